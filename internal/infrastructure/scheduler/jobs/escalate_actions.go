package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edupulse/attendance-insight/internal/application/saga"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESCALATE ACTIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// EscalateActionsJob periodically runs the escalation sweep over all live
// sessions so overdue intervention actions climb the priority ladder
// without the curator touching them.
type EscalateActionsJob struct {
	// Dependencies
	sweeper Sweeper
	logger  *slog.Logger

	// Configuration
	config EscalateActionsConfig

	// State
	lastRunStats atomic.Value // *EscalationStats
}

// Sweeper runs one escalation sweep.
// *saga.EscalationSweepSaga satisfies this.
type Sweeper interface {
	Execute(ctx context.Context, input saga.EscalationSweepInput) (*saga.EscalationSweepResult, error)
}

// EscalateActionsConfig contains configuration for the escalation job.
type EscalateActionsConfig struct {
	// Timeout is the maximum duration for one sweep.
	Timeout time.Duration
}

// DefaultEscalateActionsConfig returns sensible defaults.
func DefaultEscalateActionsConfig() EscalateActionsConfig {
	return EscalateActionsConfig{
		Timeout: time.Minute,
	}
}

// EscalationStats contains statistics from an escalation sweep run.
type EscalationStats struct {
	RunID           string
	StartedAt       time.Time
	CompletedAt     time.Time
	Duration        time.Duration
	SweptSessions   int
	OverdueFound    int
	Escalated       int
	AtCeiling       int
	Persisted       int
	PublishFailures int
}

// NewEscalateActionsJob creates a new escalation job.
func NewEscalateActionsJob(sweeper Sweeper, logger *slog.Logger, config EscalateActionsConfig) *EscalateActionsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultEscalateActionsConfig().Timeout
	}
	return &EscalateActionsJob{
		sweeper: sweeper,
		logger:  logger,
		config:  config,
	}
}

// Name returns the job name.
func (j *EscalateActionsJob) Name() string {
	return "escalate_actions"
}

// Description returns a human-readable description.
func (j *EscalateActionsJob) Description() string {
	return "Raises the priority of overdue intervention actions"
}

// Run executes the escalation sweep.
func (j *EscalateActionsJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	runID := uuid.NewString()

	j.logger.Info("starting escalate_actions job", "run_id", runID)

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	result, err := j.sweeper.Execute(ctx, saga.EscalationSweepInput{
		CorrelationID: runID,
	})
	if err != nil {
		return fmt.Errorf("escalation sweep %s failed: %w", runID, err)
	}

	stats := &EscalationStats{
		RunID:           runID,
		StartedAt:       startedAt,
		CompletedAt:     time.Now(),
		SweptSessions:   result.SweptSessions,
		OverdueFound:    result.OverdueFound,
		Escalated:       len(result.Escalated),
		AtCeiling:       result.AtCeiling,
		Persisted:       result.Persisted,
		PublishFailures: result.PublishFailures,
	}
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("escalate_actions job completed",
		"run_id", runID,
		"duration", stats.Duration.String(),
		"swept_sessions", stats.SweptSessions,
		"overdue_found", stats.OverdueFound,
		"escalated", stats.Escalated,
		"at_ceiling", stats.AtCeiling,
	)

	return nil
}

// LastRunStats returns statistics from the last sweep run, nil before the
// first run.
func (j *EscalateActionsJob) LastRunStats() *EscalationStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*EscalationStats)
}
