// Package jobs contains implementations of scheduled jobs for the
// attendance engine.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edupulse/attendance-insight/internal/application/command"
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
	"github.com/edupulse/attendance-insight/pkg/retry"
	"github.com/edupulse/attendance-insight/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCAN COHORT JOB
// ══════════════════════════════════════════════════════════════════════════════

// ScanCohortJob recomputes attendance risk for the whole cohort. It walks
// every student with records inside the lookback window and runs the full
// analysis pipeline for each one.
//
// The per-student pipeline already persists snapshots, refreshes the report
// cache and emits risk events; this job adds the cohort-wide concerns: the
// cross-instance lock, live progress, the scan run row and the final
// scan completed event.
type ScanCohortJob struct {
	// Dependencies
	recordRepo   attendance.Repository
	analyzer     Analyzer
	snapshotRepo analysis.SnapshotRepository
	cohortCache  analysis.CohortCache
	coordinator  ScanCoordinator
	publisher    shared.EventPublisher
	logger       *slog.Logger

	// Configuration
	config ScanCohortConfig

	// State
	lastRunStats atomic.Value // *ScanStats
}

// Analyzer runs the full analysis pipeline for a single student.
// *command.AnalyzeStudentHandler satisfies this.
type Analyzer interface {
	Handle(ctx context.Context, cmd command.AnalyzeStudentCommand) (*command.AnalyzeStudentResult, error)
}

// ScanCoordinator guards and instruments a scan through Redis. A nil
// coordinator disables coordination (single-instance deployments).
type ScanCoordinator interface {
	// AcquireLock takes the scan lock; false means another run holds it.
	AcquireLock(ctx context.Context, runID string) (bool, error)

	// ReleaseLock releases the scan lock.
	ReleaseLock(ctx context.Context) error

	// BumpProgress increments the live counter for a run.
	BumpProgress(ctx context.Context, runID string) error

	// FlushReports removes all cached per-student reports.
	FlushReports(ctx context.Context) error
}

// ScanCohortConfig contains configuration for the cohort scan job.
type ScanCohortConfig struct {
	// LookbackDays bounds which students get scanned: only those with at
	// least one record in the last LookbackDays count as active.
	LookbackDays int

	// Concurrency is the number of students analyzed in parallel.
	Concurrency int

	// RetryAttempts is the number of retries for a failed per-student
	// analysis. Domain errors are never retried.
	RetryAttempts int

	// MaxFailureRate is the tolerated share of failed students before the
	// run itself counts as failed.
	MaxFailureRate float64

	// Timeout is the maximum duration for the entire scan.
	Timeout time.Duration
}

// DefaultScanCohortConfig returns sensible defaults.
func DefaultScanCohortConfig() ScanCohortConfig {
	return ScanCohortConfig{
		LookbackDays:   30,
		Concurrency:    4,
		RetryAttempts:  2,
		MaxFailureRate: 0.5,
		Timeout:        10 * time.Minute,
	}
}

// ScanStats contains statistics from a cohort scan run.
type ScanStats struct {
	RunID           string
	StartedAt       time.Time
	CompletedAt     time.Time
	Duration        time.Duration
	StudentsScanned int
	FailedStudents  int
	CriticalCount   int
	HighCount       int
	MediumCount     int
	LowCount        int
	SkippedLocked   bool
	Errors          []ScanError
}

// ScanError describes a single student whose analysis failed.
type ScanError struct {
	StudentID  string
	Error      error
	OccurredAt time.Time
}

// NewScanCohortJob creates a new cohort scan job. recordRepo and analyzer
// are required; snapshotRepo, cohortCache, coordinator and publisher may be
// nil and are then skipped.
func NewScanCohortJob(
	recordRepo attendance.Repository,
	analyzer Analyzer,
	snapshotRepo analysis.SnapshotRepository,
	cohortCache analysis.CohortCache,
	coordinator ScanCoordinator,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config ScanCohortConfig,
) *ScanCohortJob {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultScanCohortConfig()
	if config.LookbackDays <= 0 {
		config.LookbackDays = defaults.LookbackDays
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.RetryAttempts < 0 {
		config.RetryAttempts = 0
	}
	if config.MaxFailureRate <= 0 {
		config.MaxFailureRate = defaults.MaxFailureRate
	}

	return &ScanCohortJob{
		recordRepo:   recordRepo,
		analyzer:     analyzer,
		snapshotRepo: snapshotRepo,
		cohortCache:  cohortCache,
		coordinator:  coordinator,
		publisher:    publisher,
		logger:       logger,
		config:       config,
	}
}

// Name returns the job name.
func (j *ScanCohortJob) Name() string {
	return "scan_cohort"
}

// Description returns a human-readable description.
func (j *ScanCohortJob) Description() string {
	return "Recomputes attendance risk for every student with recent records"
}

// Run executes the cohort scan.
func (j *ScanCohortJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	runID := uuid.NewString()
	stats := &ScanStats{
		RunID:     runID,
		StartedAt: startedAt,
		Errors:    make([]ScanError, 0),
	}

	j.logger.Info("starting scan_cohort job", "run_id", runID)

	// Apply timeout
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	// Take the cross-instance lock. A second scanner backs off instead of
	// doubling the load; a coordination failure only costs the guarantee,
	// not the scan itself.
	if j.coordinator != nil {
		acquired, err := j.coordinator.AcquireLock(ctx, runID)
		switch {
		case err != nil:
			j.logger.Warn("scan lock unavailable, proceeding unguarded", "error", err)
		case !acquired:
			j.logger.Info("another cohort scan is running, skipping", "run_id", runID)
			stats.SkippedLocked = true
			j.finalize(stats, nil)
			return nil
		default:
			defer func() {
				if err := j.coordinator.ReleaseLock(context.WithoutCancel(ctx)); err != nil {
					j.logger.Warn("failed to release scan lock", "error", err)
				}
			}()
		}
	}

	// Students with at least one record inside the lookback window
	since := timeutil.WindowStart(startedAt, j.config.LookbackDays)
	studentIDs, err := j.recordRepo.ListStudentIDs(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to list students for scan: %w", err)
	}

	j.logger.Info("found students to scan",
		"run_id", runID,
		"count", len(studentIDs),
		"lookback_days", j.config.LookbackDays,
	)

	if len(studentIDs) == 0 {
		j.finalize(stats, nil)
		return nil
	}

	// Open the scan run row so dashboards see the run while it is active
	run := analysis.NewScanRun(runID)
	j.saveRun(ctx, run)

	// Analyze students concurrently
	j.scanStudentsConcurrently(ctx, studentIDs, run, stats)

	// The close-out must survive a timed-out scan context: a run that dies
	// of timeout still has to be recorded as failed.
	closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer closeCancel()

	checked := run.StudentsScanned + run.FailedStudents
	var runErr error
	switch {
	case ctx.Err() != nil:
		runErr = fmt.Errorf("scan interrupted: %w", ctx.Err())
	case checked > 0 && float64(run.FailedStudents)/float64(checked) > j.config.MaxFailureRate:
		runErr = fmt.Errorf("analysis failed for %d of %d students", run.FailedStudents, checked)
	}

	if runErr != nil {
		if err := run.MarkFailed(runErr); err != nil {
			j.logger.Warn("failed to mark scan run failed", "run_id", runID, "error", err)
		}
	} else if err := run.MarkCompleted(); err != nil {
		j.logger.Warn("failed to mark scan run completed", "run_id", runID, "error", err)
	}
	j.saveRun(closeCtx, run)

	// Drop cached data computed from pre-scan records; reads rebuild
	// lazily from the fresh snapshots.
	j.refreshCaches(closeCtx)

	j.publishCompleted(run)
	j.finalize(stats, run)

	j.logger.Info("scan_cohort job completed",
		"run_id", runID,
		"duration", stats.Duration.String(),
		"scanned", stats.StudentsScanned,
		"failed", stats.FailedStudents,
		"critical", stats.CriticalCount,
		"high", stats.HighCount,
		"medium", stats.MediumCount,
		"low", stats.LowCount,
	)

	return runErr
}

// scanStudentsConcurrently analyzes students using a worker pool.
func (j *ScanCohortJob) scanStudentsConcurrently(
	ctx context.Context,
	studentIDs []string,
	run *analysis.ScanRun,
	stats *ScanStats,
) {
	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, j.config.Concurrency)
		mu        sync.Mutex
	)

	for _, studentID := range studentIDs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wg.Add(1)
		semaphore <- struct{}{} // Acquire

		go func(id string) {
			defer wg.Done()
			defer func() { <-semaphore }() // Release

			result, err := j.analyzeWithRetry(ctx, id, run.ID)

			if err == nil && j.coordinator != nil {
				if perr := j.coordinator.BumpProgress(ctx, run.ID); perr != nil {
					j.logger.Debug("failed to bump scan progress", "error", perr)
				}
			}

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				run.RecordFailure()
				stats.Errors = append(stats.Errors, ScanError{
					StudentID:  id,
					Error:      err,
					OccurredAt: time.Now(),
				})
				j.logger.Error("failed to analyze student",
					"student_id", id,
					"run_id", run.ID,
					"error", err,
				)
				return
			}

			run.Record(result.Report.Risk)
		}(studentID)
	}

	wg.Wait()
}

// analyzeWithRetry runs the pipeline for one student, retrying transient
// failures. Domain errors pass through immediately: invalid data stays
// invalid on the second try too.
func (j *ScanCohortJob) analyzeWithRetry(ctx context.Context, studentID, runID string) (*command.AnalyzeStudentResult, error) {
	return retry.DoWithData(ctx, func(ctx context.Context) (*command.AnalyzeStudentResult, error) {
		return j.analyzer.Handle(ctx, command.AnalyzeStudentCommand{
			StudentID:     studentID,
			CorrelationID: runID,
		})
	},
		retry.WithMaxAttempts(j.config.RetryAttempts+1),
		retry.WithInitialDelay(200*time.Millisecond),
		retry.WithMaxDelay(2*time.Second),
		retry.WithRetryIf(func(err error) bool {
			var domainErr *shared.DomainError
			return !errors.As(err, &domainErr)
		}),
	)
}

// saveRun upserts the scan run row. Non-critical: a scan that cannot record
// itself still produces snapshots.
func (j *ScanCohortJob) saveRun(ctx context.Context, run *analysis.ScanRun) {
	if j.snapshotRepo == nil {
		return
	}
	if err := j.snapshotRepo.SaveScanRun(ctx, run); err != nil {
		j.logger.Warn("failed to save scan run",
			"run_id", run.ID,
			"status", run.Status.String(),
			"error", err,
		)
	}
}

// refreshCaches drops the cached cohort summary and per-student reports.
func (j *ScanCohortJob) refreshCaches(ctx context.Context) {
	if j.coordinator != nil {
		if err := j.coordinator.FlushReports(ctx); err != nil {
			j.logger.Warn("failed to flush cached reports", "error", err)
		}
	}
	if j.cohortCache != nil {
		if err := j.cohortCache.InvalidateCohort(ctx); err != nil {
			j.logger.Warn("failed to invalidate cohort summary", "error", err)
		}
	}
}

// publishCompleted emits the scan completed event with the run counters.
func (j *ScanCohortJob) publishCompleted(run *analysis.ScanRun) {
	if j.publisher == nil {
		return
	}
	event := shared.NewScanCompletedEvent(
		run.ID,
		run.StudentsScanned,
		run.CriticalCount,
		run.HighCount,
		run.MediumCount,
		run.LowCount,
		run.Duration(),
	)
	if err := j.publisher.Publish(event); err != nil {
		j.logger.Warn("failed to publish scan completed event", "run_id", run.ID, "error", err)
	}
}

// finalize copies the run counters into the stats and stores them.
func (j *ScanCohortJob) finalize(stats *ScanStats, run *analysis.ScanRun) {
	if run != nil {
		stats.StudentsScanned = run.StudentsScanned
		stats.FailedStudents = run.FailedStudents
		stats.CriticalCount = run.CriticalCount
		stats.HighCount = run.HighCount
		stats.MediumCount = run.MediumCount
		stats.LowCount = run.LowCount
	}
	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastRunStats.Store(stats)
}

// LastRunStats returns statistics from the last scan run, nil before the
// first run.
func (j *ScanCohortJob) LastRunStats() *ScanStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ScanStats)
}
