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

// StudentReportCache implements analysis.ReportCache using the generic
// Redis Cache. All Redis round trips go through an optional circuit
// breaker: when Redis is down the breaker opens and every call fails
// fast, which the read path treats as a miss and recomputes from
// Postgres instead of stalling on timeouts.
type StudentReportCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// NewStudentReportCache creates a new StudentReportCache.
// breaker may be nil, in which case calls go to Redis unguarded.
func NewStudentReportCache(cache *Cache, breaker *circuitbreaker.CircuitBreaker) *StudentReportCache {
	return &StudentReportCache{
		cache:   cache,
		breaker: breaker,
	}
}

// GetReport gets a student's cached analysis report.
// A clean miss comes back as a not-found domain error; breaker-open and
// connection failures come back as plain errors so callers can tell
// "not cached" from "cache degraded".
func (r *StudentReportCache) GetReport(ctx context.Context, studentID string) (*analysis.StudentReport, error) {
	var report analysis.StudentReport
	err := r.guarded(ctx, func(ctx context.Context) error {
		return r.cache.Get(ctx, ReportKey(studentID), &report)
	})
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.WrapError("analysis", "GetReport", shared.ErrNotFound, "report not cached", err)
		}
		return nil, fmt.Errorf("failed to read cached report: %w", err)
	}
	return &report, nil
}

// SetReport caches a student's analysis report under its student key.
// A non-positive ttl falls back to TTLStudentReport.
func (r *StudentReportCache) SetReport(ctx context.Context, report *analysis.StudentReport, ttl time.Duration) error {
	if report == nil {
		return ErrCacheNilValue
	}
	if report.StudentID == "" {
		return fmt.Errorf("failed to cache report: %w", ErrCacheKeyEmpty)
	}
	if ttl <= 0 {
		ttl = TTLStudentReport
	}

	err := r.guarded(ctx, func(ctx context.Context) error {
		return r.cache.Set(ctx, ReportKey(report.StudentID), report, ttl)
	})
	if err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// InvalidateStudent removes a student's cached report. Deleting a key
// that is not cached is a no-op, not an error.
func (r *StudentReportCache) InvalidateStudent(ctx context.Context, studentID string) error {
	err := r.guarded(ctx, func(ctx context.Context) error {
		return r.cache.Delete(ctx, ReportKey(studentID))
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cached report: %w", err)
	}
	return nil
}

// guarded runs op through the circuit breaker when one is configured.
func (r *StudentReportCache) guarded(ctx context.Context, op func(context.Context) error) error {
	if r.breaker == nil {
		return op(ctx)
	}
	return r.breaker.Execute(ctx, op)
}
