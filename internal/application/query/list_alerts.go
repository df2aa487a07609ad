package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ALERTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 100
)

// ListAlertsQuery asks for recent critical-risk alerts.
type ListAlertsQuery struct {
	// Limit caps the number of alerts (default 20, max 100).
	Limit int

	// UnacknowledgedOnly hides alerts a curator already handled.
	UnacknowledgedOnly bool
}

// Validate validates and normalizes the query.
func (q *ListAlertsQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultAlertLimit
	}
	if q.Limit > maxAlertLimit {
		q.Limit = maxAlertLimit
	}
	return nil
}

// ListAlertsResult contains the alerts, newest first.
type ListAlertsResult struct {
	Alerts      []*analysis.RiskAlert `json:"alerts"`
	Count       int                   `json:"count"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// ListAlertsHandler handles the ListAlertsQuery.
type ListAlertsHandler struct {
	snapshotRepo analysis.SnapshotRepository
}

// NewListAlertsHandler creates a new ListAlertsHandler.
func NewListAlertsHandler(snapshotRepo analysis.SnapshotRepository) *ListAlertsHandler {
	return &ListAlertsHandler{snapshotRepo: snapshotRepo}
}

// Handle executes the list alerts query.
func (h *ListAlertsHandler) Handle(ctx context.Context, query ListAlertsQuery) (*ListAlertsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("list_alerts: %w", err)
	}

	alerts, err := h.snapshotRepo.ListRecentAlerts(ctx, query.Limit, query.UnacknowledgedOnly)
	if err != nil {
		return nil, fmt.Errorf("list_alerts: failed to load alerts: %w", err)
	}

	return &ListAlertsResult{
		Alerts:      alerts,
		Count:       len(alerts),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
