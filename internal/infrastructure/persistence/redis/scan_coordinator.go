package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ScanCoordinator coordinates cohort scans across instances through Redis:
// a SetNX lock keeps two scanners from running at once, a per-run counter
// exposes live progress, and a pattern flush clears cached reports that
// predate the scan.
type ScanCoordinator struct {
	cache *Cache
}

// NewScanCoordinator creates a coordinator on top of the shared cache client.
func NewScanCoordinator(cache *Cache) *ScanCoordinator {
	return &ScanCoordinator{cache: cache}
}

// AcquireLock attempts to take the cohort scan lock. Returns false when
// another run already holds it. The lock value is the holding run's ID,
// which makes a stuck lock attributable.
func (s *ScanCoordinator) AcquireLock(ctx context.Context, runID string) (bool, error) {
	acquired, err := s.cache.SetNX(ctx, ScanLockKey(), runID, TTLScanLock)
	if err != nil {
		return false, fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	return acquired, nil
}

// ReleaseLock releases the cohort scan lock. The TTL is only a safety net
// for crashed runs; a finished scan releases explicitly.
func (s *ScanCoordinator) ReleaseLock(ctx context.Context) error {
	return s.cache.Delete(ctx, ScanLockKey())
}

// BumpProgress increments the live counter for a run. The first increment
// arms the TTL so counters of abandoned runs age out on their own.
func (s *ScanCoordinator) BumpProgress(ctx context.Context, runID string) error {
	count, err := s.cache.Incr(ctx, ScanProgressKey(runID))
	if err != nil {
		return err
	}
	if count == 1 {
		return s.cache.Expire(ctx, ScanProgressKey(runID), TTLScanProgress)
	}
	return nil
}

// Progress returns the live counter for a run, 0 when the counter has
// expired or the run never bumped it.
func (s *ScanCoordinator) Progress(ctx context.Context, runID string) (int64, error) {
	raw, err := s.cache.GetString(ctx, ScanProgressKey(runID))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return 0, nil
		}
		return 0, err
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: scan progress counter is not a number", ErrCacheSerialization)
	}
	return count, nil
}

// FlushReports removes every cached per-student report, so no report
// computed from pre-scan records outlives the scan.
func (s *ScanCoordinator) FlushReports(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, PrefixReport+"*")
}
