package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edupulse/attendance-insight/internal/application/session"
	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
	"github.com/edupulse/attendance-insight/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADD ACTION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// defaultManualDueDays is used when a manual action comes without a due date.
const defaultManualDueDays = 7

// AddActionCommand contains the data to add a manual action to a ledger.
type AddActionCommand struct {
	StudentID   string
	Type        string
	Title       string
	Description string
	Priority    string

	// DueDate is optional; when zero the action is due in seven days.
	DueDate time.Time
}

// Validate validates the command. Type, priority and the text fields are
// checked by the domain when the item is built.
func (c AddActionCommand) Validate() error {
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return fmt.Errorf("add_action: %w", err)
	}
	return nil
}

// AddActionResult contains the created action item.
type AddActionResult struct {
	StudentID string
	SessionID string
	Item      *action.ActionItem
}

// AddActionHandler handles the AddActionCommand.
type AddActionHandler struct {
	sessions   *session.Manager
	actionRepo action.Repository
	logger     *slog.Logger
}

// NewAddActionHandler creates a new AddActionHandler.
func NewAddActionHandler(sessions *session.Manager, actionRepo action.Repository, logger *slog.Logger) *AddActionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AddActionHandler{
		sessions:   sessions,
		actionRepo: actionRepo,
		logger:     logger.With("handler", "add_action"),
	}
}

// Handle executes the add action command.
func (h *AddActionHandler) Handle(ctx context.Context, cmd AddActionCommand) (*AddActionResult, error) {
	// 1. Validate command
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	actionType, err := action.ParseType(cmd.Type)
	if err != nil {
		return nil, fmt.Errorf("add_action: %w", err)
	}
	priority, err := action.ParsePriority(cmd.Priority)
	if err != nil {
		return nil, fmt.Errorf("add_action: %w", err)
	}

	// 2. Find the student's active session
	sess, err := h.sessions.GetByStudent(cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("add_action: %w", err)
	}

	due := cmd.DueDate
	if due.IsZero() {
		// Manual actions default to the end of the school day a week out.
		due = timeutil.EndOfDay(timeutil.AddDays(time.Now(), defaultManualDueDays))
	}

	// 3. Add through the session ledger
	item, err := sess.AddAction(action.Draft{
		Type:        actionType,
		Title:       cmd.Title,
		Description: cmd.Description,
		Priority:    priority,
		DueDate:     due,
	})
	if err != nil {
		return nil, fmt.Errorf("add_action: %w", err)
	}

	// 4. Persist the new item (non-critical)
	if h.actionRepo != nil {
		if err := h.actionRepo.SaveItems(ctx, sess.ID(), []*action.ActionItem{item}); err != nil {
			h.logger.Warn("failed to persist manual action",
				"student_id", cmd.StudentID,
				"action_id", item.ID,
				"error", err,
			)
		}
	}

	h.logger.Info("manual action added",
		"student_id", cmd.StudentID,
		"action_id", item.ID,
		"type", item.Type,
		"priority", item.Priority,
	)

	return &AddActionResult{
		StudentID: cmd.StudentID,
		SessionID: sess.ID(),
		Item:      item,
	}, nil
}
