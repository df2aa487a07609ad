package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edupulse/attendance-insight/internal/application/session"
	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADVANCE ACTION COMMAND
// Переводит задачу вмешательства на следующий шаг жизненного цикла.
// ══════════════════════════════════════════════════════════════════════════════

// AdvanceActionCommand содержит данные для перевода задачи по статусу.
type AdvanceActionCommand struct {
	// StudentID — идентификатор студента, владельца сессии.
	StudentID string

	// ActionID — идентификатор задачи в леджере сессии.
	ActionID string

	// ToStatus — целевой статус (in_progress, completed).
	ToStatus string

	// Force обходит проверку порядка переходов (коррекция куратором).
	Force bool
}

// Validate проверяет команду.
func (c AdvanceActionCommand) Validate() error {
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return fmt.Errorf("advance_action: %w", err)
	}
	if strings.TrimSpace(c.ActionID) == "" {
		return shared.NewDomainError("action", "AdvanceAction", shared.ErrInvalidID, "action id is required")
	}
	if _, err := action.ParseStatus(c.ToStatus); err != nil {
		return fmt.Errorf("advance_action: %w", err)
	}
	return nil
}

// AdvanceActionResult содержит задачу после перехода.
type AdvanceActionResult struct {
	StudentID  string
	SessionID  string
	Item       *action.ActionItem
	FromStatus action.Status
	ToStatus   action.Status
	Forced     bool
	Events     []shared.Event
}

// AdvanceActionHandler обрабатывает AdvanceActionCommand.
type AdvanceActionHandler struct {
	sessions   *session.Manager
	actionRepo action.Repository
	publisher  shared.EventPublisher
	logger     *slog.Logger
}

// NewAdvanceActionHandler создает новый AdvanceActionHandler.
func NewAdvanceActionHandler(
	sessions *session.Manager,
	actionRepo action.Repository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *AdvanceActionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvanceActionHandler{
		sessions:   sessions,
		actionRepo: actionRepo,
		publisher:  publisher,
		logger:     logger.With("handler", "advance_action"),
	}
}

// Handle выполняет команду перевода задачи.
func (h *AdvanceActionHandler) Handle(ctx context.Context, cmd AdvanceActionCommand) (*AdvanceActionResult, error) {
	// 1. Валидация команды
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	next, err := action.ParseStatus(cmd.ToStatus)
	if err != nil {
		return nil, fmt.Errorf("advance_action: %w", err)
	}

	// 2. Поиск активной сессии студента
	sess, err := h.sessions.GetByStudent(cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("advance_action: %w", err)
	}

	// 3. Текущий статус до перехода
	actionID := action.ActionID(cmd.ActionID)
	before, err := sess.GetAction(actionID)
	if err != nil {
		return nil, fmt.Errorf("advance_action: %w", err)
	}
	fromStatus := before.Status

	// 4. Переход (force обходит порядок шагов)
	item, err := sess.AdvanceAction(actionID, next, cmd.Force)
	if err != nil {
		return nil, fmt.Errorf("advance_action: %w", err)
	}

	// 5. Сохранение обновления (некритично)
	if h.actionRepo != nil {
		if err := h.actionRepo.UpdateItem(ctx, sess.ID(), item); err != nil {
			h.logger.Warn("failed to persist action update",
				"student_id", cmd.StudentID,
				"action_id", item.ID,
				"error", err,
			)
		}
	}

	// 6. Публикация события
	event := shared.NewActionAdvancedEvent(
		cmd.StudentID,
		string(item.ID),
		fromStatus.String(),
		item.Status.String(),
		cmd.Force,
	)
	if h.publisher != nil {
		if err := h.publisher.Publish(event); err != nil {
			h.logger.Warn("failed to publish event",
				"event_type", event.EventType(),
				"error", err,
			)
		}
	}

	h.logger.Info("action advanced",
		"student_id", cmd.StudentID,
		"action_id", item.ID,
		"from", fromStatus,
		"to", item.Status,
		"forced", cmd.Force,
	)

	return &AdvanceActionResult{
		StudentID:  cmd.StudentID,
		SessionID:  sess.ID(),
		Item:       item,
		FromStatus: fromStatus,
		ToStatus:   item.Status,
		Forced:     cmd.Force,
		Events:     []shared.Event{event},
	}, nil
}
