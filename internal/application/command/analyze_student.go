// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edupulse/attendance-insight/internal/application/session"
	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE STUDENT COMMAND
// Runs the full pipeline for one student: load records, normalize,
// aggregate, detect trend, classify risk, generate actions. The report is
// always computed from raw records; only the action ledger carries state
// between runs.
// ══════════════════════════════════════════════════════════════════════════════

// AnalyzeStudentCommand contains the data to analyze a student.
type AnalyzeStudentCommand struct {
	// StudentID is the school-issued ID of the student.
	StudentID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AnalyzeStudentCommand) Validate() error {
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return fmt.Errorf("analyze_student: %w", err)
	}
	return nil
}

// AnalyzeStudentResult contains the outcome of the analysis.
type AnalyzeStudentResult struct {
	// StudentID is the analyzed student.
	StudentID string

	// SessionID identifies the analysis session holding the ledger.
	SessionID string

	// NewSession is true when this run created the session.
	NewSession bool

	// Report is the freshly computed report.
	Report *analysis.StudentReport

	// Actions are the ledger's actions after this run, in ledger order.
	Actions []*action.ActionItem

	// Seeded is true when this run generated and seeded new actions.
	// False means the session ledger already existed and was left alone.
	Seeded bool

	// Events contains domain events generated by this run.
	Events []shared.Event

	// AnalyzedAt is when the analysis happened.
	AnalyzedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AnalyzeStudentHandler handles the AnalyzeStudentCommand.
type AnalyzeStudentHandler struct {
	recordRepo   attendance.Repository
	sessions     *session.Manager
	snapshotRepo analysis.SnapshotRepository
	actionRepo   action.Repository
	reportCache  analysis.ReportCache
	publisher    shared.EventPublisher
	logger       *slog.Logger

	// Engine pieces are built once from the config.
	normalizer *attendance.Normalizer
	aggregator *attendance.Aggregator
	trend      *analysis.TrendAnalyzer
	classifier *analysis.Classifier
	generator  *action.Generator

	reportTTL time.Duration
	autoSeed  bool
}

// AnalyzeStudentHandlerConfig contains configuration for the handler.
type AnalyzeStudentHandlerConfig struct {
	// Engine holds every threshold of the pipeline.
	Engine analysis.Config

	// ReportCacheTTL is how long computed reports stay in the cache.
	ReportCacheTTL time.Duration

	// DisableAutoSeed turns off generator seeding of fresh sessions.
	// Curators then fill the ledger by hand.
	DisableAutoSeed bool
}

// DefaultAnalyzeStudentHandlerConfig returns default configuration.
func DefaultAnalyzeStudentHandlerConfig() AnalyzeStudentHandlerConfig {
	return AnalyzeStudentHandlerConfig{
		Engine:         analysis.DefaultConfig(),
		ReportCacheTTL: 5 * time.Minute,
	}
}

// NewAnalyzeStudentHandler creates a new AnalyzeStudentHandler.
// recordRepo and sessions are required; snapshotRepo, actionRepo,
// reportCache and publisher may be nil and are then skipped.
func NewAnalyzeStudentHandler(
	recordRepo attendance.Repository,
	sessions *session.Manager,
	snapshotRepo analysis.SnapshotRepository,
	actionRepo action.Repository,
	reportCache analysis.ReportCache,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config AnalyzeStudentHandlerConfig,
) (*AnalyzeStudentHandler, error) {
	if config.Engine == (analysis.Config{}) {
		config.Engine = analysis.DefaultConfig()
	}
	if config.ReportCacheTTL <= 0 {
		config.ReportCacheTTL = DefaultAnalyzeStudentHandlerConfig().ReportCacheTTL
	}
	if err := config.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("analyze_student: engine config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AnalyzeStudentHandler{
		recordRepo:   recordRepo,
		sessions:     sessions,
		snapshotRepo: snapshotRepo,
		actionRepo:   actionRepo,
		reportCache:  reportCache,
		publisher:    publisher,
		logger:       logger.With("handler", "analyze_student"),
		normalizer:   attendance.NewNormalizer(),
		aggregator:   attendance.NewAggregator(),
		trend:        analysis.NewTrendAnalyzer(config.Engine.Trend),
		classifier:   analysis.NewClassifier(config.Engine.Bands),
		generator:    action.NewGenerator(config.Engine.Rules),
		reportTTL:    config.ReportCacheTTL,
		autoSeed:     !config.DisableAutoSeed,
	}, nil
}

// Handle executes the analyze student command.
func (h *AnalyzeStudentHandler) Handle(ctx context.Context, cmd AnalyzeStudentCommand) (*AnalyzeStudentResult, error) {
	// 1. Validate command
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	// 2. Load raw records (full history; the engine derives everything else)
	records, err := h.recordRepo.ListByStudent(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("analyze_student: failed to load records: %w", err)
	}

	// 3. Normalize into per-subject tallies
	tallies, err := h.normalizer.Normalize(records)
	if err != nil {
		return nil, fmt.Errorf("analyze_student: %w", err)
	}

	// 4. Aggregate into overall statistics
	overall, err := h.aggregator.Aggregate(tallies)
	if err != nil {
		return nil, fmt.Errorf("analyze_student: %w", err)
	}

	// 5. Trend over the daily rate series
	trendSignal, err := h.trend.Analyze(attendance.BuildDailySeries(records))
	if err != nil {
		return nil, fmt.Errorf("analyze_student: %w", err)
	}

	// 6. Classify risk
	risk := h.classifier.Classify(overall)

	report := &analysis.StudentReport{
		StudentID:   cmd.StudentID,
		GeneratedAt: now,
		Tallies:     tallies,
		Overall:     overall,
		Trend:       trendSignal,
		Risk:        risk,
	}

	// 7. Attach the report to the student's session
	sess, created := h.sessions.GetOrCreate(cmd.StudentID)
	sess.SetReport(report)

	// 8. Generate actions and seed the ledger (once per session)
	var generated []*action.ActionItem
	seeded := false
	if h.autoSeed {
		generated, err = h.generator.Generate(cmd.StudentID, overall, trendSignal, now)
		if err != nil {
			return nil, fmt.Errorf("analyze_student: failed to generate actions: %w", err)
		}
		seeded, err = sess.SeedOnce(generated)
		if err != nil {
			return nil, fmt.Errorf("analyze_student: failed to seed ledger: %w", err)
		}
	}

	actions := sess.ListActions(action.ListFilter{})

	// 9. Persist the ledger copy (non-critical)
	if seeded && h.actionRepo != nil && len(actions) > 0 {
		if err := h.actionRepo.SaveItems(ctx, sess.ID(), actions); err != nil {
			h.logger.Warn("failed to persist seeded actions",
				"student_id", cmd.StudentID,
				"session_id", sess.ID(),
				"error", err,
			)
		}
	}

	// 10. Persist the risk snapshot (non-critical)
	if h.snapshotRepo != nil {
		snapshot := analysis.NewRiskSnapshot(uuid.NewString(), report)
		if err := h.snapshotRepo.SaveSnapshot(ctx, snapshot); err != nil {
			h.logger.Warn("failed to save risk snapshot",
				"student_id", cmd.StudentID,
				"error", err,
			)
		}
	}

	// 11. Refresh the report cache (non-critical)
	if h.reportCache != nil {
		if err := h.reportCache.SetReport(ctx, report, h.reportTTL); err != nil {
			h.logger.Warn("failed to cache report",
				"student_id", cmd.StudentID,
				"error", err,
			)
		}
	}

	// 12. Emit domain events
	events := h.buildEvents(cmd, report, sess.ID(), seeded, generated)
	if h.publisher != nil {
		for _, event := range events {
			if err := h.publisher.Publish(event); err != nil {
				h.logger.Warn("failed to publish event",
					"event_type", event.EventType(),
					"error", err,
				)
			}
		}
	}

	h.logger.Info("student analyzed",
		"student_id", cmd.StudentID,
		"percentage", overall.Percentage,
		"risk", risk,
		"trend", trendSignal.Direction(),
		"actions", len(actions),
		"seeded", seeded,
	)

	return &AnalyzeStudentResult{
		StudentID:  cmd.StudentID,
		SessionID:  sess.ID(),
		NewSession: created,
		Report:     report,
		Actions:    actions,
		Seeded:     seeded,
		Events:     events,
		AnalyzedAt: now,
	}, nil
}

// buildEvents assembles the domain events for one analysis run.
func (h *AnalyzeStudentHandler) buildEvents(
	cmd AnalyzeStudentCommand,
	report *analysis.StudentReport,
	sessionID string,
	seeded bool,
	generated []*action.ActionItem,
) []shared.Event {
	events := make([]shared.Event, 0, 3)

	completed := shared.NewAnalysisCompletedEvent(
		cmd.StudentID,
		report.Overall.Percentage,
		report.Risk.String(),
		report.Trend.Direction(),
		report.Overall.TotalClasses,
		len(generated),
	)
	if cmd.CorrelationID != "" {
		completed.BaseEvent = completed.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	events = append(events, completed)

	if report.Risk == analysis.RiskCritical {
		critical := shared.NewRiskLevelCriticalEvent(
			cmd.StudentID,
			report.Overall.Percentage,
			report.Overall.AbsentClasses,
			report.Overall.LateClasses,
		)
		if cmd.CorrelationID != "" {
			critical.BaseEvent = critical.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		events = append(events, critical)
	}

	if seeded && len(generated) > 0 {
		types := make([]string, 0, len(generated))
		for _, item := range generated {
			types = append(types, item.Type.String())
		}
		events = append(events, shared.NewActionsGeneratedEvent(cmd.StudentID, sessionID, types))
	}

	return events
}
