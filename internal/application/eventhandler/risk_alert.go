// Package eventhandler содержит обработчики доменных событий.
// Обработчики — "реактивная" часть системы: они подписаны на шину,
// реагируют на события анализа и запускают побочные эффекты вроде
// записи алертов, не вмешиваясь в сам вычислительный конвейер.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// RISK ALERT HANDLER
// Обрабатывает событие критического уровня риска: записывает алерт
// для кураторов и сбрасывает кеш сводки когорты, чтобы дашборд сразу
// увидел нового критического студента.
// ═══════════════════════════════════════════════════════════════════════════

// RiskAlertHandler реагирует на risk.level.critical.
type RiskAlertHandler struct {
	snapshotRepo analysis.SnapshotRepository
	cohortCache  analysis.CohortCache
	logger       *slog.Logger
	config       RiskAlertConfig
}

// RiskAlertConfig содержит конфигурацию обработчика.
type RiskAlertConfig struct {
	// DedupeWindow — окно подавления повторов: если у студента уже есть
	// неподтверждённый алерт моложе окна, новый не создаётся.
	// Иначе каждый фоновый скан плодил бы дубликаты.
	DedupeWindow time.Duration

	// RecentScanLimit — сколько последних алертов просматривать
	// при проверке на дубликат.
	RecentScanLimit int
}

// DefaultRiskAlertConfig возвращает конфигурацию по умолчанию.
func DefaultRiskAlertConfig() RiskAlertConfig {
	return RiskAlertConfig{
		DedupeWindow:    24 * time.Hour,
		RecentScanLimit: 100,
	}
}

// NewRiskAlertHandler создаёт новый обработчик критического риска.
// cohortCache может быть nil.
func NewRiskAlertHandler(
	snapshotRepo analysis.SnapshotRepository,
	cohortCache analysis.CohortCache,
	logger *slog.Logger,
	config RiskAlertConfig,
) *RiskAlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DedupeWindow <= 0 {
		config.DedupeWindow = DefaultRiskAlertConfig().DedupeWindow
	}
	if config.RecentScanLimit <= 0 {
		config.RecentScanLimit = DefaultRiskAlertConfig().RecentScanLimit
	}

	return &RiskAlertHandler{
		snapshotRepo: snapshotRepo,
		cohortCache:  cohortCache,
		logger:       logger.With("handler", "risk_alert"),
		config:       config,
	}
}

// Handle обрабатывает событие критического риска.
// Реализует интерфейс shared.EventHandler.
func (h *RiskAlertHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	criticalEvent, ok := event.(shared.RiskLevelCriticalEvent)
	if !ok {
		h.logger.Warn("received non-RiskLevelCriticalEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Warn("critical attendance risk",
		"student_id", criticalEvent.StudentID,
		"percentage", criticalEvent.Percentage,
		"absent_classes", criticalEvent.AbsentClasses,
		"late_classes", criticalEvent.LateClasses,
	)

	// 1. Подавление дубликатов: свежий неподтверждённый алерт уже есть
	duplicate, err := h.hasRecentAlert(ctx, criticalEvent.StudentID)
	if err != nil {
		h.logger.Warn("failed to check recent alerts",
			"student_id", criticalEvent.StudentID,
			"error", err,
		)
		// Проверка не удалась — лучше лишний алерт, чем пропущенный
	}
	if duplicate {
		h.logger.Debug("skipping duplicate alert",
			"student_id", criticalEvent.StudentID,
		)
		return nil
	}

	// 2. Запись алерта
	alert := analysis.NewRiskAlert(
		uuid.NewString(),
		criticalEvent.StudentID,
		analysis.RiskCritical,
		criticalEvent.Percentage,
		h.formatMessage(criticalEvent),
	)
	if err := h.snapshotRepo.InsertAlert(ctx, alert); err != nil {
		h.logger.Error("failed to insert alert",
			"student_id", criticalEvent.StudentID,
			"error", err,
		)
		return fmt.Errorf("insert alert: %w", err)
	}

	// 3. Сброс кеша сводки когорты
	if h.cohortCache != nil {
		if err := h.cohortCache.InvalidateCohort(ctx); err != nil {
			h.logger.Warn("failed to invalidate cohort cache",
				"error", err,
			)
		}
	}

	h.logger.Info("risk alert recorded",
		"alert_id", alert.ID,
		"student_id", criticalEvent.StudentID,
	)

	return nil
}

// hasRecentAlert проверяет, есть ли у студента свежий неподтверждённый алерт.
func (h *RiskAlertHandler) hasRecentAlert(ctx context.Context, studentID string) (bool, error) {
	alerts, err := h.snapshotRepo.ListRecentAlerts(ctx, h.config.RecentScanLimit, true)
	if err != nil {
		return false, err
	}

	cutoff := time.Now().UTC().Add(-h.config.DedupeWindow)
	for _, alert := range alerts {
		if alert.StudentID == studentID && alert.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// formatMessage формирует текст алерта для кураторов.
func (h *RiskAlertHandler) formatMessage(event shared.RiskLevelCriticalEvent) string {
	return fmt.Sprintf(
		"Attendance is %.2f%% with %d unexcused absences and %d late arrivals. Immediate intervention is required.",
		event.Percentage, event.AbsentClasses, event.LateClasses,
	)
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *RiskAlertHandler) EventType() shared.EventType {
	return shared.EventRiskLevelCritical
}
