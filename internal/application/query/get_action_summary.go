package query

import (
	"context"
	"fmt"
	"time"

	"github.com/edupulse/attendance-insight/internal/application/session"
	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACTION SUMMARY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetActionSummaryQuery asks for the ledger summary of one student.
type GetActionSummaryQuery struct {
	StudentID string
}

// Validate validates the query.
func (q GetActionSummaryQuery) Validate() error {
	if _, err := shared.NewStudentID(q.StudentID); err != nil {
		return fmt.Errorf("get_action_summary: %w", err)
	}
	return nil
}

// GetActionSummaryResult contains the ledger summary.
type GetActionSummaryResult struct {
	StudentID   string         `json:"student_id"`
	SessionID   string         `json:"session_id"`
	Summary     action.Summary `json:"summary"`
	Seeded      bool           `json:"seeded"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// GetActionSummaryHandler handles the GetActionSummaryQuery.
type GetActionSummaryHandler struct {
	sessions *session.Manager
}

// NewGetActionSummaryHandler creates a new GetActionSummaryHandler.
func NewGetActionSummaryHandler(sessions *session.Manager) *GetActionSummaryHandler {
	return &GetActionSummaryHandler{sessions: sessions}
}

// Handle executes the get action summary query.
// Returns ErrSessionNotFound when the student has no active session.
func (h *GetActionSummaryHandler) Handle(_ context.Context, query GetActionSummaryQuery) (*GetActionSummaryResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	sess, err := h.sessions.GetByStudent(query.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_action_summary: %w", err)
	}

	return &GetActionSummaryResult{
		StudentID:   query.StudentID,
		SessionID:   sess.ID(),
		Summary:     sess.Summary(),
		Seeded:      sess.Seeded(),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
