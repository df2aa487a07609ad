package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
	"github.com/edupulse/attendance-insight/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC RECORDS COMMAND
// Pulls attendance marks from the school information system into the local
// store. Each student carries a day-level watermark (the date of their
// newest stored record); the sync fetches only days after it and never the
// current day, which teachers are still marking. That keeps every run
// idempotent: a completed day is imported exactly once.
// ══════════════════════════════════════════════════════════════════════════════

// RecordSource is the port to the school information system.
// The infrastructure adapter translates SIS payloads into domain records
// before they cross this boundary.
type RecordSource interface {
	// ActiveStudentIDs returns the IDs of currently enrolled students.
	ActiveStudentIDs(ctx context.Context) ([]string, error)

	// RecordsSince returns a student's attendance records from the given
	// date on (inclusive). A zero since means the full history.
	RecordsSince(ctx context.Context, studentID string, since time.Time) ([]attendance.RawRecord, error)
}

// SyncRecordsCommand contains the sync request.
type SyncRecordsCommand struct {
	// StudentIDs limits the sync to specific students.
	// Empty means the whole active roster.
	StudentIDs []string

	// Force bypasses the per-student sync throttle.
	Force bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SyncRecordsCommand) Validate() error {
	for _, id := range c.StudentIDs {
		if _, err := shared.NewStudentID(id); err != nil {
			return fmt.Errorf("sync_records: %w", err)
		}
	}
	return nil
}

// SyncRecordsResult contains the outcome of one sync run.
type SyncRecordsResult struct {
	// RunID identifies this sync run in logs and events.
	RunID string

	// StudentsSynced is how many students were checked against the SIS.
	StudentsSynced int

	// StudentsSkipped is how many students the throttle left alone.
	StudentsSkipped int

	// RecordsImported is the number of rows written to the store.
	RecordsImported int64

	// RecordsRejected is the number of fetched records dropped by
	// validation. They will be fetched and rejected again until the SIS
	// data is fixed, so a non-zero value here deserves attention.
	RecordsRejected int

	// Failed maps student IDs to their sync errors.
	Failed map[string]error

	// StartedAt is when the run began.
	StartedAt time.Time

	// Duration is how long the run took.
	Duration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SyncRecordsHandlerConfig contains configuration for the handler.
type SyncRecordsHandlerConfig struct {
	// MinSyncInterval throttles repeat syncs of the same student.
	// Force bypasses it.
	MinSyncInterval time.Duration

	// Concurrency caps parallel per-student fetches so a roster-wide run
	// does not flood the SIS.
	Concurrency int
}

// DefaultSyncRecordsHandlerConfig returns default configuration.
func DefaultSyncRecordsHandlerConfig() SyncRecordsHandlerConfig {
	return SyncRecordsHandlerConfig{
		MinSyncInterval: 30 * time.Minute,
		Concurrency:     4,
	}
}

// SyncRecordsHandler handles the SyncRecordsCommand.
type SyncRecordsHandler struct {
	source      RecordSource
	recordRepo  attendance.Repository
	reportCache analysis.ReportCache
	publisher   shared.EventPublisher
	logger      *slog.Logger
	config      SyncRecordsHandlerConfig

	// lastSynced throttles per-student syncs within this process.
	mu         sync.Mutex
	lastSynced map[string]time.Time
}

// NewSyncRecordsHandler creates a new SyncRecordsHandler.
// source and recordRepo are required; reportCache and publisher may be nil.
func NewSyncRecordsHandler(
	source RecordSource,
	recordRepo attendance.Repository,
	reportCache analysis.ReportCache,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config SyncRecordsHandlerConfig,
) (*SyncRecordsHandler, error) {
	if source == nil {
		return nil, fmt.Errorf("sync_records: record source is required")
	}
	if recordRepo == nil {
		return nil, fmt.Errorf("sync_records: record repository is required")
	}
	if config.MinSyncInterval <= 0 {
		config.MinSyncInterval = DefaultSyncRecordsHandlerConfig().MinSyncInterval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultSyncRecordsHandlerConfig().Concurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SyncRecordsHandler{
		source:      source,
		recordRepo:  recordRepo,
		reportCache: reportCache,
		publisher:   publisher,
		logger:      logger.With("handler", "sync_records"),
		config:      config,
		lastSynced:  make(map[string]time.Time),
	}, nil
}

// Handle executes the sync records command.
func (h *SyncRecordsHandler) Handle(ctx context.Context, cmd SyncRecordsCommand) (*SyncRecordsResult, error) {
	// 1. Validate command
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	runID := "sync-" + uuid.NewString()

	// 2. Resolve the target students
	targets := cmd.StudentIDs
	if len(targets) == 0 {
		roster, err := h.source.ActiveStudentIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("sync_records: failed to fetch roster: %w", err)
		}
		targets = roster
	}

	// 3. Apply the per-student throttle
	result := &SyncRecordsResult{
		RunID:     runID,
		Failed:    make(map[string]error),
		StartedAt: startedAt,
	}

	due := make([]string, 0, len(targets))
	for _, studentID := range targets {
		if !cmd.Force && !h.dueForSync(studentID, startedAt) {
			result.StudentsSkipped++
			continue
		}
		due = append(due, studentID)
	}

	// 4. Sync students with bounded concurrency
	outcomes := make(chan studentSyncOutcome, len(due))
	sem := make(chan struct{}, h.config.Concurrency)
	var wg sync.WaitGroup

	for _, studentID := range due {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			imported, rejected, err := h.syncOne(ctx, id, startedAt)
			outcomes <- studentSyncOutcome{
				studentID: id,
				imported:  imported,
				rejected:  rejected,
				err:       err,
			}
		}(studentID)
	}

	wg.Wait()
	close(outcomes)

	// 5. Aggregate outcomes
	for outcome := range outcomes {
		if outcome.err != nil {
			result.Failed[outcome.studentID] = outcome.err
			continue
		}
		result.StudentsSynced++
		result.RecordsImported += outcome.imported
		result.RecordsRejected += outcome.rejected
	}
	result.Duration = time.Since(startedAt)

	// 6. Announce the run (non-critical)
	if h.publisher != nil {
		event := shared.NewRecordsSyncedEvent(
			runID,
			result.StudentsSynced,
			int(result.RecordsImported),
			len(result.Failed),
			result.Duration,
		)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		if err := h.publisher.Publish(event); err != nil {
			h.logger.Warn("failed to publish sync event",
				"run_id", runID,
				"error", err,
			)
		}
	}

	h.logger.Info("records synced",
		"run_id", runID,
		"students", result.StudentsSynced,
		"skipped", result.StudentsSkipped,
		"imported", result.RecordsImported,
		"rejected", result.RecordsRejected,
		"failed", len(result.Failed),
		"duration", result.Duration,
	)

	return result, nil
}

// studentSyncOutcome carries one student's result to the aggregator.
type studentSyncOutcome struct {
	studentID string
	imported  int64
	rejected  int
	err       error
}

// syncOne fetches and imports one student's new records.
func (h *SyncRecordsHandler) syncOne(ctx context.Context, studentID string, now time.Time) (int64, int, error) {
	// The current day is excluded: teachers are still marking it, and a
	// partial import today would collide with the full import tomorrow.
	cutoff := timeutil.DayOf(now)

	// 1. Day-level watermark: the day after the newest stored record
	latest, err := h.recordRepo.LatestRecordDate(ctx, studentID)
	if err != nil {
		return 0, 0, fmt.Errorf("watermark: %w", err)
	}

	var since time.Time
	if !latest.IsZero() {
		since = timeutil.AddDays(timeutil.DayOf(latest), 1)
		if !since.Before(cutoff) {
			// Every completed day is already in the store.
			h.markSynced(studentID, now)
			return 0, 0, nil
		}
	}

	// 2. Fetch new records from the SIS
	fetched, err := h.source.RecordsSince(ctx, studentID, since)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch: %w", err)
	}

	// 3. Keep completed days only, drop records that fail validation.
	// A rejected record is logged and counted, not fatal: one bad row in
	// the SIS must not wedge the student's sync forever.
	records := make([]attendance.RawRecord, 0, len(fetched))
	rejected := 0
	for _, rec := range fetched {
		if !rec.Date.Before(cutoff) {
			continue
		}
		if err := rec.Validate(); err != nil {
			rejected++
			h.logger.Warn("rejected record from sis",
				"student_id", studentID,
				"record", rec.String(),
				"error", err,
			)
			continue
		}
		records = append(records, rec)
	}

	// 4. Import
	var imported int64
	if len(records) > 0 {
		imported, err = h.recordRepo.BulkInsert(ctx, records)
		if err != nil {
			return 0, rejected, fmt.Errorf("import: %w", err)
		}
	}

	// 5. Invalidate the cached report (non-critical)
	if imported > 0 && h.reportCache != nil {
		if err := h.reportCache.InvalidateStudent(ctx, studentID); err != nil {
			h.logger.Warn("failed to invalidate report cache",
				"student_id", studentID,
				"error", err,
			)
		}
	}

	h.markSynced(studentID, now)
	return imported, rejected, nil
}

// dueForSync reports whether the throttle allows syncing the student now.
func (h *SyncRecordsHandler) dueForSync(studentID string, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	last, ok := h.lastSynced[studentID]
	return !ok || now.Sub(last) >= h.config.MinSyncInterval
}

// markSynced records a completed sync for the throttle.
func (h *SyncRecordsHandler) markSynced(studentID string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSynced[studentID] = now
}
