package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edupulse/attendance-insight/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC RECORDS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SyncRecordsJob pulls fresh attendance records from the SIS feed for the
// whole active roster. The command handler owns the per-student watermark
// and throttling logic; this job adds the run identity, the timeout and
// the failure-rate verdict for the run as a whole.
type SyncRecordsJob struct {
	// Dependencies
	syncer Syncer
	logger *slog.Logger

	// Configuration
	config SyncRecordsJobConfig

	// State
	lastRunStats atomic.Value // *SyncStats
}

// Syncer runs the SIS import for a batch of students.
// *command.SyncRecordsHandler satisfies this.
type Syncer interface {
	Handle(ctx context.Context, cmd command.SyncRecordsCommand) (*command.SyncRecordsResult, error)
}

// SyncRecordsJobConfig contains configuration for the sync job.
type SyncRecordsJobConfig struct {
	// Timeout is the maximum duration for one full-roster sync.
	Timeout time.Duration

	// MaxFailureRate is the tolerated share of failed students before
	// the run itself counts as failed.
	MaxFailureRate float64
}

// DefaultSyncRecordsJobConfig returns sensible defaults.
func DefaultSyncRecordsJobConfig() SyncRecordsJobConfig {
	return SyncRecordsJobConfig{
		Timeout:        5 * time.Minute,
		MaxFailureRate: 0.5,
	}
}

// SyncStats contains statistics from a sync run.
type SyncStats struct {
	RunID           string
	StartedAt       time.Time
	CompletedAt     time.Time
	Duration        time.Duration
	StudentsSynced  int
	StudentsSkipped int
	StudentsFailed  int
	RecordsImported int64
	RecordsRejected int
}

// NewSyncRecordsJob creates a new sync job.
func NewSyncRecordsJob(syncer Syncer, logger *slog.Logger, config SyncRecordsJobConfig) *SyncRecordsJob {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultSyncRecordsJobConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxFailureRate <= 0 {
		config.MaxFailureRate = defaults.MaxFailureRate
	}
	return &SyncRecordsJob{
		syncer: syncer,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *SyncRecordsJob) Name() string {
	return "sync_records"
}

// Description returns a human-readable description.
func (j *SyncRecordsJob) Description() string {
	return "Imports new attendance records from the SIS feed"
}

// Run executes the roster sync.
func (j *SyncRecordsJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	runID := uuid.NewString()

	j.logger.Info("starting sync_records job", "run_id", runID)

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	// Empty StudentIDs means the handler resolves the active roster
	// from the SIS itself.
	result, err := j.syncer.Handle(ctx, command.SyncRecordsCommand{
		CorrelationID: runID,
	})
	if err != nil {
		return fmt.Errorf("sync run %s failed: %w", runID, err)
	}

	stats := &SyncStats{
		RunID:           runID,
		StartedAt:       startedAt,
		CompletedAt:     time.Now(),
		StudentsSynced:  result.StudentsSynced,
		StudentsSkipped: result.StudentsSkipped,
		StudentsFailed:  len(result.Failed),
		RecordsImported: result.RecordsImported,
		RecordsRejected: result.RecordsRejected,
	}
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastRunStats.Store(stats)

	for studentID, ferr := range result.Failed {
		j.logger.Warn("student sync failed",
			"run_id", runID,
			"student_id", studentID,
			"error", ferr,
		)
	}

	j.logger.Info("sync_records job completed",
		"run_id", runID,
		"duration", stats.Duration.String(),
		"synced", stats.StudentsSynced,
		"skipped", stats.StudentsSkipped,
		"failed", stats.StudentsFailed,
		"imported", stats.RecordsImported,
		"rejected", stats.RecordsRejected,
	)

	// A handful of failing students is normal (withdrawn, renamed, SIS
	// hiccups); most of the roster failing means the feed itself is sick.
	attempted := stats.StudentsSynced + stats.StudentsFailed
	if attempted > 0 && float64(stats.StudentsFailed)/float64(attempted) > j.config.MaxFailureRate {
		return fmt.Errorf("sync run %s: %d of %d students failed", runID, stats.StudentsFailed, attempted)
	}
	return nil
}

// LastRunStats returns statistics from the last sync run, nil before the
// first run.
func (j *SyncRecordsJob) LastRunStats() *SyncStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*SyncStats)
}
