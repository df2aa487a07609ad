package sis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Token bucket with a minimum spacing between requests. District SIS
// installations are small on-prem boxes that answer a handful of requests
// per second; the sync job must never be the thing that knocks one over.
// ══════════════════════════════════════════════════════════════════════════════

// Rate limiter errors.
var (
	// ErrRateLimitWaitTimeout is returned when a request waited longer than
	// the configured timeout for a token.
	ErrRateLimitWaitTimeout = errors.New("timed out waiting for rate limiter")
)

// RateLimitError is returned when the SIS itself answers 429.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("sis rate limit: %s (retry after %s)", e.Message, e.RetryAfter)
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64

	// BurstSize is how many requests may go out back-to-back.
	BurstSize int

	// MinInterval is the minimum spacing between any two requests,
	// regardless of available tokens.
	MinInterval time.Duration

	// WaitTimeout caps how long Allow blocks waiting for a token.
	WaitTimeout time.Duration

	// RetryAfter is the pause applied after a 429 without a Retry-After
	// header.
	RetryAfter time.Duration
}

// DefaultRateLimiterConfig returns defaults suitable for a district SIS.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 2.0,
		BurstSize:         5,
		MinInterval:       200 * time.Millisecond,
		WaitTimeout:       30 * time.Second,
		RetryAfter:        60 * time.Second,
	}
}

// ConservativeRateLimiterConfig returns a config for installations known
// to throttle hard. Used for nightly full imports.
func ConservativeRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 0.5,
		BurstSize:         2,
		MinInterval:       time.Second,
		WaitTimeout:       2 * time.Minute,
		RetryAfter:        2 * time.Minute,
	}
}

// RateLimiter is a token bucket with adaptive backoff. When the SIS
// reports 429 the bucket drains and the refill rate drops by 20%, so a
// throttling server sees progressively less traffic instead of a
// synchronized retry storm.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens      float64
	refillRate     float64 // tokens per second, reduced after 429s
	configuredRate float64 // rate from the config, restored by Reset
	tokens         float64
	lastRefill     time.Time

	minInterval time.Duration
	lastRequest time.Time

	waitTimeout  time.Duration
	retryAfter   time.Duration
	blockedUntil time.Time

	consecutiveWaits int
}

// NewRateLimiter creates a rate limiter from the config.
// The bucket starts full so the first burst goes out immediately.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1.0
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 30 * time.Second
	}
	if config.RetryAfter <= 0 {
		config.RetryAfter = 60 * time.Second
	}

	now := time.Now()
	return &RateLimiter{
		maxTokens:      float64(config.BurstSize),
		refillRate:     config.RequestsPerSecond,
		configuredRate: config.RequestsPerSecond,
		tokens:         float64(config.BurstSize),
		lastRefill:     now,
		minInterval:    config.MinInterval,
		waitTimeout:    config.WaitTimeout,
		retryAfter:     config.RetryAfter,
	}
}

// Allow blocks until a token is available, the wait timeout elapses, or
// the context is cancelled.
func (r *RateLimiter) Allow(ctx context.Context) error {
	deadline := time.Now().Add(r.waitTimeout)

	for {
		acquired, wait := r.tryAcquire()
		if acquired {
			return nil
		}

		if time.Now().Add(wait).After(deadline) {
			return ErrRateLimitWaitTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// TryAllow acquires a token without blocking.
func (r *RateLimiter) TryAllow() bool {
	acquired, _ := r.tryAcquire()
	return acquired
}

// WaitTime returns an estimate of how long the next Allow would block.
func (r *RateLimiter) WaitTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if wait := r.blockedUntil.Sub(now); wait > 0 {
		return wait
	}

	r.refill(now)
	if r.tokens >= 1 {
		if spacing := r.minInterval - now.Sub(r.lastRequest); spacing > 0 {
			return spacing
		}
		return 0
	}
	return r.timeToNextToken()
}

// tryAcquire attempts to take a token. When it cannot, the returned
// duration is how long the caller should sleep before trying again.
func (r *RateLimiter) tryAcquire() (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	// Server-imposed pause after a 429 outranks everything else.
	if wait := r.blockedUntil.Sub(now); wait > 0 {
		return false, wait
	}

	// Enforce spacing even when the bucket has tokens.
	if r.minInterval > 0 {
		if wait := r.minInterval - now.Sub(r.lastRequest); wait > 0 {
			return false, wait
		}
	}

	r.refill(now)

	if r.tokens >= 1 {
		r.tokens--
		r.lastRequest = now
		r.consecutiveWaits = 0
		return true, 0
	}

	// Out of tokens: back off harder the longer the drought lasts,
	// capped at 32x so a caller is never parked forever.
	r.consecutiveWaits++
	shift := r.consecutiveWaits
	if shift > 5 {
		shift = 5
	}
	wait := r.timeToNextToken() * time.Duration(1<<shift)
	return false, wait
}

// refill adds tokens for the time elapsed since the last refill.
// Caller must hold the lock.
func (r *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(r.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}

// timeToNextToken returns how long until one full token accrues.
// Caller must hold the lock.
func (r *RateLimiter) timeToNextToken() time.Duration {
	missing := 1 - r.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / r.refillRate * float64(time.Second))
}

// RecordRateLimitHit reacts to a 429 from the SIS: the bucket drains, all
// requests pause for the server's Retry-After (or the configured default),
// and the refill rate drops by 20%. The rate does not recover on its own;
// Reset or SetRefillRate restore it.
func (r *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if retryAfter <= 0 {
		retryAfter = r.retryAfter
	}

	r.tokens = 0
	r.blockedUntil = time.Now().Add(retryAfter)

	r.refillRate *= 0.8
	if r.refillRate < 0.1 {
		r.refillRate = 0.1
	}
}

// SetRefillRate overrides the sustained request rate.
func (r *RateLimiter) SetRefillRate(requestsPerSecond float64) {
	if requestsPerSecond <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refillRate = requestsPerSecond
}

// Reset restores the limiter to its initial full-bucket state.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens = r.maxTokens
	r.refillRate = r.configuredRate
	r.lastRefill = time.Now()
	r.lastRequest = time.Time{}
	r.blockedUntil = time.Time{}
	r.consecutiveWaits = 0
}

// RateLimiterStatus is a point-in-time view for diagnostics.
type RateLimiterStatus struct {
	AvailableTokens  float64       `json:"available_tokens"`
	MaxTokens        float64       `json:"max_tokens"`
	RefillRate       float64       `json:"refill_rate"`
	ConsecutiveWaits int           `json:"consecutive_waits"`
	BlockedFor       time.Duration `json:"blocked_for"`
}

// Status returns the current limiter state.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.refill(now)

	blocked := r.blockedUntil.Sub(now)
	if blocked < 0 {
		blocked = 0
	}

	return RateLimiterStatus{
		AvailableTokens:  r.tokens,
		MaxTokens:        r.maxTokens,
		RefillRate:       r.refillRate,
		ConsecutiveWaits: r.consecutiveWaits,
		BlockedFor:       blocked,
	}
}
