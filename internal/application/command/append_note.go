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
// APPEND NOTE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// AppendNoteCommand contains the data to attach a curator note to an action.
type AppendNoteCommand struct {
	StudentID string
	ActionID  string
	Text      string
}

// Validate validates the command.
func (c AppendNoteCommand) Validate() error {
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return fmt.Errorf("append_note: %w", err)
	}
	if strings.TrimSpace(c.ActionID) == "" {
		return shared.NewDomainError("action", "AppendNote", shared.ErrInvalidID, "action id is required")
	}
	return nil
}

// AppendNoteResult contains the action item after the note was attached.
type AppendNoteResult struct {
	StudentID string
	SessionID string
	Item      *action.ActionItem
}

// AppendNoteHandler handles the AppendNoteCommand.
type AppendNoteHandler struct {
	sessions   *session.Manager
	actionRepo action.Repository
	logger     *slog.Logger
}

// NewAppendNoteHandler creates a new AppendNoteHandler.
func NewAppendNoteHandler(sessions *session.Manager, actionRepo action.Repository, logger *slog.Logger) *AppendNoteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppendNoteHandler{
		sessions:   sessions,
		actionRepo: actionRepo,
		logger:     logger.With("handler", "append_note"),
	}
}

// Handle executes the append note command.
func (h *AppendNoteHandler) Handle(ctx context.Context, cmd AppendNoteCommand) (*AppendNoteResult, error) {
	// 1. Validate command
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	// 2. Find the student's active session
	sess, err := h.sessions.GetByStudent(cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("append_note: %w", err)
	}

	// 3. Append through the session ledger
	item, err := sess.AppendNote(action.ActionID(cmd.ActionID), cmd.Text)
	if err != nil {
		return nil, fmt.Errorf("append_note: %w", err)
	}

	// 4. Persist the update (non-critical)
	if h.actionRepo != nil {
		if err := h.actionRepo.UpdateItem(ctx, sess.ID(), item); err != nil {
			h.logger.Warn("failed to persist note",
				"student_id", cmd.StudentID,
				"action_id", item.ID,
				"error", err,
			)
		}
	}

	h.logger.Info("note appended",
		"student_id", cmd.StudentID,
		"action_id", item.ID,
		"notes", len(item.Notes),
	)

	return &AppendNoteResult{
		StudentID: cmd.StudentID,
		SessionID: sess.ID(),
		Item:      item,
	}, nil
}
