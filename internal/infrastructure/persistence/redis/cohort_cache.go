package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
	"github.com/edupulse/attendance-insight/pkg/circuitbreaker"
)

// CohortSummaryCache implements analysis.CohortCache using the generic
// Redis Cache. The cohort summary is a single entry, so there is exactly
// one key. Shares the circuit breaker with StudentReportCache: one Redis,
// one failure state.
type CohortSummaryCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// NewCohortSummaryCache creates a new CohortSummaryCache.
// breaker may be nil, in which case calls go to Redis unguarded.
func NewCohortSummaryCache(cache *Cache, breaker *circuitbreaker.CircuitBreaker) *CohortSummaryCache {
	return &CohortSummaryCache{
		cache:   cache,
		breaker: breaker,
	}
}

// GetCohortSummary gets the cached cohort risk summary.
func (c *CohortSummaryCache) GetCohortSummary(ctx context.Context) (*analysis.CohortSummary, error) {
	var summary analysis.CohortSummary
	err := c.guarded(ctx, func(ctx context.Context) error {
		return c.cache.Get(ctx, CohortSummaryKey(), &summary)
	})
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.WrapError("analysis", "GetCohortSummary", shared.ErrNotFound, "cohort summary not cached", err)
		}
		return nil, fmt.Errorf("failed to read cached cohort summary: %w", err)
	}
	return &summary, nil
}

// SetCohortSummary caches the cohort risk summary.
// A non-positive ttl falls back to TTLCohortSummary.
func (c *CohortSummaryCache) SetCohortSummary(ctx context.Context, summary *analysis.CohortSummary, ttl time.Duration) error {
	if summary == nil {
		return ErrCacheNilValue
	}
	if ttl <= 0 {
		ttl = TTLCohortSummary
	}

	err := c.guarded(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, CohortSummaryKey(), summary, ttl)
	})
	if err != nil {
		return fmt.Errorf("failed to cache cohort summary: %w", err)
	}
	return nil
}

// InvalidateCohort removes the cached cohort summary.
func (c *CohortSummaryCache) InvalidateCohort(ctx context.Context) error {
	err := c.guarded(ctx, func(ctx context.Context) error {
		return c.cache.Delete(ctx, CohortSummaryKey())
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cached cohort summary: %w", err)
	}
	return nil
}

// guarded runs op through the circuit breaker when one is configured.
func (c *CohortSummaryCache) guarded(ctx context.Context, op func(context.Context) error) error {
	if c.breaker == nil {
		return op(ctx)
	}
	return c.breaker.Execute(ctx, op)
}
