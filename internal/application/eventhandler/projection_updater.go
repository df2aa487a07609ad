package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
	"github.com/edupulse/attendance-insight/internal/infrastructure/persistence/projections"
)

// ═══════════════════════════════════════════════════════════════════════════
// PROJECTION UPDATER
// Держит проекцию риска когорты в актуальном состоянии: одиночный анализ
// патчит одну строку, завершённый скан перечитывает последние снапшоты
// целиком. Дашборд читает проекцию, не трогая базу.
// ═══════════════════════════════════════════════════════════════════════════

// ProjectionUpdater реагирует на analysis.completed и system.scan_completed.
type ProjectionUpdater struct {
	view         *projections.CohortRiskView
	snapshotRepo analysis.SnapshotRepository
	logger       *slog.Logger
	config       ProjectionUpdaterConfig
}

// ProjectionUpdaterConfig содержит конфигурацию обработчика.
type ProjectionUpdaterConfig struct {
	// RebuildPageSize — размер страницы при перечитывании снапшотов.
	RebuildPageSize int

	// MaxRebuildPages — предохранитель от бесконечного перелистывания:
	// перечитывание останавливается после этого числа страниц.
	MaxRebuildPages int
}

// DefaultProjectionUpdaterConfig возвращает конфигурацию по умолчанию.
func DefaultProjectionUpdaterConfig() ProjectionUpdaterConfig {
	return ProjectionUpdaterConfig{
		RebuildPageSize: shared.MaxPageSize,
		MaxRebuildPages: 50,
	}
}

// NewProjectionUpdater создаёт новый обработчик обновления проекции.
func NewProjectionUpdater(
	view *projections.CohortRiskView,
	snapshotRepo analysis.SnapshotRepository,
	logger *slog.Logger,
	config ProjectionUpdaterConfig,
) *ProjectionUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RebuildPageSize <= 0 {
		config.RebuildPageSize = DefaultProjectionUpdaterConfig().RebuildPageSize
	}
	if config.MaxRebuildPages <= 0 {
		config.MaxRebuildPages = DefaultProjectionUpdaterConfig().MaxRebuildPages
	}

	return &ProjectionUpdater{
		view:         view,
		snapshotRepo: snapshotRepo,
		logger:       logger.With("handler", "projection_updater"),
		config:       config,
	}
}

// Handle обрабатывает событие.
// Реализует интерфейс shared.EventHandler.
func (h *ProjectionUpdater) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.AnalysisCompletedEvent:
		return h.applyAnalysis(e)
	case shared.ScanCompletedEvent:
		return h.rebuild(e)
	default:
		h.logger.Warn("received unexpected event",
			"event_type", event.EventType(),
		)
		return nil
	}
}

// applyAnalysis патчит строку одного студента по данным события.
func (h *ProjectionUpdater) applyAnalysis(event shared.AnalysisCompletedEvent) error {
	entry := &projections.CohortRiskEntry{
		StudentID:      event.StudentID,
		Percentage:     event.Percentage,
		RiskLevel:      analysis.RiskLevel(event.RiskLevel),
		TrendDirection: event.TrendDirection,
		TotalClasses:   event.TotalClasses,
		AnalyzedAt:     event.OccurredAt(),
	}

	if err := h.view.ApplyAnalysis(entry); err != nil {
		h.logger.Error("failed to apply analysis to projection",
			"student_id", event.StudentID,
			"error", err,
		)
		return fmt.Errorf("apply analysis: %w", err)
	}

	h.logger.Debug("projection entry updated",
		"student_id", event.StudentID,
		"risk_level", event.RiskLevel,
	)
	return nil
}

// rebuild перечитывает проекцию после фонового скана когорты.
func (h *ProjectionUpdater) rebuild(event shared.ScanCompletedEvent) error {
	if err := h.Rebuild(context.Background()); err != nil {
		h.logger.Error("failed to rebuild projection after scan",
			"run_id", event.RunID,
			"error", err,
		)
		return err
	}
	return nil
}

// Rebuild перечитывает последние снапшоты всех студентов и перестраивает
// проекцию целиком. Вызывается при старте процесса и после фонового скана:
// инкрементальные патчи между сканами могли разойтись с базой.
func (h *ProjectionUpdater) Rebuild(ctx context.Context) error {
	snapshots := make([]*analysis.RiskSnapshot, 0, h.config.RebuildPageSize)
	for page := 1; page <= h.config.MaxRebuildPages; page++ {
		batch, err := h.snapshotRepo.LatestSnapshots(ctx, shared.NewPagination(page, h.config.RebuildPageSize))
		if err != nil {
			return fmt.Errorf("load snapshots (page %d): %w", page, err)
		}
		snapshots = append(snapshots, batch...)
		if len(batch) < h.config.RebuildPageSize {
			break
		}
	}

	if err := h.view.RebuildFromSnapshots(snapshots); err != nil {
		return fmt.Errorf("rebuild projection: %w", err)
	}

	h.logger.Info("cohort risk projection rebuilt", "students", len(snapshots))
	return nil
}

// EventTypes возвращает типы событий, которые обрабатывает этот handler.
func (h *ProjectionUpdater) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventAnalysisCompleted,
		shared.EventScanCompleted,
	}
}
