package query

import (
	"context"
	"fmt"

	"github.com/edupulse/attendance-insight/internal/application/session"
	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ACTIONS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// Where the returned actions came from.
const (
	ActionsSourceSession = "session"
	ActionsSourceStore   = "store"
)

// ListActionsQuery filters the action list of one student.
// Empty filter fields match everything.
type ListActionsQuery struct {
	StudentID string
	Status    string
	Priority  string
	Type      string
}

// Validate validates the query and resolves the filter fields.
func (q ListActionsQuery) Validate() (action.ListFilter, error) {
	var filter action.ListFilter
	if _, err := shared.NewStudentID(q.StudentID); err != nil {
		return filter, fmt.Errorf("list_actions: %w", err)
	}
	if q.Status != "" {
		status, err := action.ParseStatus(q.Status)
		if err != nil {
			return filter, fmt.Errorf("list_actions: %w", err)
		}
		filter.Status = status
	}
	if q.Priority != "" {
		priority, err := action.ParsePriority(q.Priority)
		if err != nil {
			return filter, fmt.Errorf("list_actions: %w", err)
		}
		filter.Priority = priority
	}
	if q.Type != "" {
		actionType, err := action.ParseType(q.Type)
		if err != nil {
			return filter, fmt.Errorf("list_actions: %w", err)
		}
		filter.Type = actionType
	}
	return filter, nil
}

// ListActionsResult contains the filtered actions.
type ListActionsResult struct {
	StudentID string               `json:"student_id"`
	SessionID string               `json:"session_id,omitempty"`
	Items     []*action.ActionItem `json:"items"`
	Total     int                  `json:"total"`

	// Source is "session" for the live ledger, "store" when the student
	// has no active session and the persisted history was used instead.
	Source string `json:"source"`
}

// ListActionsHandler handles the ListActionsQuery.
type ListActionsHandler struct {
	sessions   *session.Manager
	actionRepo action.Repository
}

// NewListActionsHandler creates a new ListActionsHandler.
// actionRepo may be nil; students without a session then get an empty list.
func NewListActionsHandler(sessions *session.Manager, actionRepo action.Repository) *ListActionsHandler {
	return &ListActionsHandler{
		sessions:   sessions,
		actionRepo: actionRepo,
	}
}

// Handle executes the list actions query.
func (h *ListActionsHandler) Handle(ctx context.Context, query ListActionsQuery) (*ListActionsResult, error) {
	filter, err := query.Validate()
	if err != nil {
		return nil, err
	}

	// Live ledger first.
	if sess, err := h.sessions.GetByStudent(query.StudentID); err == nil {
		items := sess.ListActions(filter)
		return &ListActionsResult{
			StudentID: query.StudentID,
			SessionID: sess.ID(),
			Items:     items,
			Total:     len(items),
			Source:    ActionsSourceSession,
		}, nil
	}

	// No session: fall back to the persisted history.
	items := []*action.ActionItem{}
	if h.actionRepo != nil {
		stored, err := h.actionRepo.ListByStudent(ctx, query.StudentID)
		if err != nil {
			return nil, fmt.Errorf("list_actions: failed to load stored actions: %w", err)
		}
		items = applyFilter(stored, filter)
	}

	return &ListActionsResult{
		StudentID: query.StudentID,
		Items:     items,
		Total:     len(items),
		Source:    ActionsSourceStore,
	}, nil
}

// applyFilter filters stored items the same way the live ledger does.
func applyFilter(items []*action.ActionItem, filter action.ListFilter) []*action.ActionItem {
	out := make([]*action.ActionItem, 0, len(items))
	for _, item := range items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && item.Priority != filter.Priority {
			continue
		}
		if filter.Type != "" && item.Type != filter.Type {
			continue
		}
		out = append(out, item)
	}
	return out
}
