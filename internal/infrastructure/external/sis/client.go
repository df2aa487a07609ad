// Package sis implements the client for the district Student Information
// System REST API. The engine never produces attendance marks itself;
// this client fetches the roster and the marks teachers already recorded
// so the sync job can import them.
package sis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/edupulse/attendance-insight/pkg/circuitbreaker"
	"github.com/edupulse/attendance-insight/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the SIS API client.
type ClientConfig struct {
	// BaseURL is the SIS API base URL.
	BaseURL string

	// APIKey authenticates the integration account.
	APIKey string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// MaxRetries is how many times a transient failure is retried.
	MaxRetries int

	// RetryBaseDelay is the initial backoff between retries.
	RetryBaseDelay time.Duration

	// RateLimiter configures client-side request pacing.
	RateLimiter RateLimiterConfig

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables per-request debug logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:        baseURL,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 500 * time.Millisecond,
		RateLimiter:    DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the SIS API client. All calls go through a circuit breaker,
// a retrier for transient failures and the rate limiter, so a struggling
// SIS box sees back-pressure instead of a hammering loop.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *RateLimiter
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
}

// NewClient creates a new SIS API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 500 * time.Millisecond
	}

	logger := config.Logger.With("component", "sis_client")

	breaker := circuitbreaker.New("sis-api",
		circuitbreaker.WithFailureThreshold(5),
		circuitbreaker.WithTimeout(30*time.Second),
		circuitbreaker.WithIsFailure(isBreakerFailure),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}),
	)

	retrier := retry.New(
		retry.WithMaxAttempts(config.MaxRetries+1),
		retry.WithInitialDelay(config.RetryBaseDelay),
		retry.WithMaxDelay(30*time.Second),
		retry.WithRetryIf(isTransient),
	)

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  logger,
		limiter: NewRateLimiter(config.RateLimiter),
		breaker: breaker,
		retrier: retrier,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchRoster returns the full student roster, walking every page.
func (c *Client) FetchRoster(ctx context.Context) ([]RosterEntryDTO, error) {
	const perPage = 200

	var all []RosterEntryDTO
	page := 1

	for {
		entries, meta, err := c.listRoster(ctx, RosterRequestDTO{Page: page, PerPage: perPage})
		if err != nil {
			return nil, fmt.Errorf("fetch roster page %d: %w", page, err)
		}
		all = append(all, entries...)

		if len(entries) < perPage || !meta.HasMorePages(page) {
			break
		}
		page++
	}

	return all, nil
}

// listRoster fetches one roster page.
func (c *Client) listRoster(ctx context.Context, req RosterRequestDTO) ([]RosterEntryDTO, *Meta, error) {
	params := url.Values{}
	if req.Homeroom != "" {
		params.Set("homeroom", req.Homeroom)
	}
	if req.Active != nil {
		params.Set("active", strconv.FormatBool(*req.Active))
	}
	if req.Page > 0 {
		params.Set("page", strconv.Itoa(req.Page))
	}
	if req.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(req.PerPage))
	}

	path := "/api/v1/roster"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response APIResponse[[]RosterEntryDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, &response); err != nil {
		return nil, nil, err
	}

	if !response.Success {
		return nil, nil, fmt.Errorf("sis api error: %s", response.Error)
	}

	return response.Data, response.Meta, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchAttendance returns a student's attendance entries from the given
// date on (inclusive), walking every page. A zero since fetches the full
// history.
func (c *Client) FetchAttendance(ctx context.Context, studentID string, since time.Time) ([]AttendanceEntryDTO, error) {
	const perPage = 500

	req := AttendanceRequestDTO{
		StudentID: studentID,
		PerPage:   perPage,
	}
	if !since.IsZero() {
		req.Since = &since
	}

	var all []AttendanceEntryDTO
	page := 1

	for {
		req.Page = page
		entries, meta, err := c.listAttendance(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch attendance for %s page %d: %w", studentID, page, err)
		}
		all = append(all, entries...)

		if len(entries) < perPage || !meta.HasMorePages(page) {
			break
		}
		page++
	}

	return all, nil
}

// listAttendance fetches one attendance page.
func (c *Client) listAttendance(ctx context.Context, req AttendanceRequestDTO) ([]AttendanceEntryDTO, *Meta, error) {
	params := url.Values{}
	if req.StudentID != "" {
		params.Set("student_id", req.StudentID)
	}
	if req.Since != nil {
		params.Set("since", req.Since.UTC().Format(dateLayout))
	}
	if req.Page > 0 {
		params.Set("page", strconv.Itoa(req.Page))
	}
	if req.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(req.PerPage))
	}

	path := "/api/v1/attendance"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response APIResponse[[]AttendanceEntryDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, &response); err != nil {
		return nil, nil, err
	}

	if !response.Success {
		return nil, nil, fmt.Errorf("sis api error: %s", response.Error)
	}

	return response.Data, response.Meta, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST PIPELINE
// ══════════════════════════════════════════════════════════════════════════════

// doRequest runs one API call through the breaker, the retrier and the
// rate limiter, in that order: an open breaker fails fast before a token
// is spent, and a 429 feeds back into the limiter before the retry.
func (c *Client) doRequest(ctx context.Context, method, path string, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.limiter.Allow(ctx); err != nil {
				return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
			}

			err := c.doSingleRequest(ctx, method, path, result)
			if err == nil {
				return nil
			}

			var rateLimitErr *RateLimitError
			if errors.As(err, &rateLimitErr) {
				c.limiter.RecordRateLimitHit(rateLimitErr.RetryAfter)
			}
			return err
		})
	})
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("sis api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{
			RetryAfter: retryAfter,
			Message:    "too many requests",
		}
	}

	if resp.StatusCode >= 400 {
		var apiErr APIErrorDTO
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("sis api error: status %d", resp.StatusCode)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// isTransient reports whether an error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return apiErr.IsServerError()
	}

	msg := err.Error()
	for _, marker := range []string{"timeout", "connection refused", "connection reset", "temporary", "EOF"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isBreakerFailure decides which errors count against the circuit.
// Client-side mistakes (bad request, unknown student) say nothing about
// the health of the SIS and must not open the circuit.
func isBreakerFailure(err error) bool {
	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return apiErr.IsServerError()
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// IsHealthy checks whether the SIS API answers its health endpoint.
// Bypasses the breaker so the check itself can observe a recovery.
func (c *Client) IsHealthy(ctx context.Context) bool {
	var response APIResponse[map[string]interface{}]
	err := c.doSingleRequest(ctx, http.MethodGet, "/api/v1/health", &response)
	return err == nil && response.Success
}

// ClientStatus is a point-in-time view of the client's protective layers.
type ClientStatus struct {
	RateLimiter  RateLimiterStatus `json:"rate_limiter"`
	BreakerState string            `json:"breaker_state"`
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		RateLimiter:  c.limiter.Status(),
		BreakerState: c.breaker.State().String(),
	}
}

// Reset restores the rate limiter and circuit breaker to their initial
// state. Used between manually triggered sync runs.
func (c *Client) Reset() {
	c.limiter.Reset()
	c.breaker.Reset()
}
