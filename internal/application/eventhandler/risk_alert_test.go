package eventhandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type alertStore struct {
	alerts    []*analysis.RiskAlert
	insertErr error
	listErr   error
}

func (s *alertStore) SaveSnapshot(_ context.Context, _ *analysis.RiskSnapshot) error { return nil }

func (s *alertStore) LatestForStudent(_ context.Context, _ string) (*analysis.RiskSnapshot, error) {
	return nil, shared.ErrSnapshotNotFound
}

func (s *alertStore) LatestSnapshots(_ context.Context, _ shared.Pagination) ([]*analysis.RiskSnapshot, error) {
	return nil, nil
}

func (s *alertStore) CountByLevel(_ context.Context) (map[analysis.RiskLevel]int, error) {
	return nil, nil
}

func (s *alertStore) SaveScanRun(_ context.Context, _ *analysis.ScanRun) error { return nil }

func (s *alertStore) LastScanRun(_ context.Context) (*analysis.ScanRun, error) {
	return nil, shared.ErrScanRunNotFound
}

func (s *alertStore) InsertAlert(_ context.Context, alert *analysis.RiskAlert) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *alertStore) ListRecentAlerts(_ context.Context, limit int, unacknowledgedOnly bool) ([]*analysis.RiskAlert, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*analysis.RiskAlert, 0, limit)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if unacknowledgedOnly && s.alerts[i].Acknowledged {
			continue
		}
		out = append(out, s.alerts[i])
	}
	return out, nil
}

func (s *alertStore) AcknowledgeAlert(_ context.Context, alertID string) error {
	for _, alert := range s.alerts {
		if alert.ID == alertID {
			alert.Acknowledge()
			return nil
		}
	}
	return shared.ErrNotFound
}

type cohortCacheSpy struct {
	invalidations int
}

func (c *cohortCacheSpy) GetCohortSummary(_ context.Context) (*analysis.CohortSummary, error) {
	return nil, shared.ErrNotFound
}

func (c *cohortCacheSpy) SetCohortSummary(_ context.Context, _ *analysis.CohortSummary, _ time.Duration) error {
	return nil
}

func (c *cohortCacheSpy) InvalidateCohort(_ context.Context) error {
	c.invalidations++
	return nil
}

func criticalEvent(studentID string) shared.RiskLevelCriticalEvent {
	return shared.NewRiskLevelCriticalEvent(studentID, 42.5, 11, 3)
}

func TestRiskAlertHandler_RecordsAlert(t *testing.T) {
	store := &alertStore{}
	cache := &cohortCacheSpy{}
	handler := NewRiskAlertHandler(store, cache, testLogger(), DefaultRiskAlertConfig())

	err := handler.Handle(criticalEvent("stu-1"))
	require.NoError(t, err)

	require.Len(t, store.alerts, 1)
	alert := store.alerts[0]
	assert.Equal(t, "stu-1", alert.StudentID)
	assert.Equal(t, analysis.RiskCritical, alert.RiskLevel)
	assert.InDelta(t, 42.5, alert.Percentage, 0.001)
	assert.Contains(t, alert.Message, "42.50%")
	assert.Contains(t, alert.Message, "11 unexcused absences")
	assert.False(t, alert.Acknowledged)

	assert.Equal(t, 1, cache.invalidations)
}

func TestRiskAlertHandler_DeduplicatesWithinWindow(t *testing.T) {
	store := &alertStore{}
	handler := NewRiskAlertHandler(store, nil, testLogger(), DefaultRiskAlertConfig())

	require.NoError(t, handler.Handle(criticalEvent("stu-1")))
	require.NoError(t, handler.Handle(criticalEvent("stu-1")))

	assert.Len(t, store.alerts, 1)
}

func TestRiskAlertHandler_AcknowledgedAlertDoesNotSuppress(t *testing.T) {
	store := &alertStore{}
	handler := NewRiskAlertHandler(store, nil, testLogger(), DefaultRiskAlertConfig())

	require.NoError(t, handler.Handle(criticalEvent("stu-1")))
	require.NoError(t, store.AcknowledgeAlert(context.Background(), store.alerts[0].ID))

	require.NoError(t, handler.Handle(criticalEvent("stu-1")))
	assert.Len(t, store.alerts, 2)
}

func TestRiskAlertHandler_DifferentStudentsNotDeduplicated(t *testing.T) {
	store := &alertStore{}
	handler := NewRiskAlertHandler(store, nil, testLogger(), DefaultRiskAlertConfig())

	require.NoError(t, handler.Handle(criticalEvent("stu-1")))
	require.NoError(t, handler.Handle(criticalEvent("stu-2")))

	assert.Len(t, store.alerts, 2)
}

func TestRiskAlertHandler_IgnoresForeignEvents(t *testing.T) {
	store := &alertStore{}
	handler := NewRiskAlertHandler(store, nil, testLogger(), DefaultRiskAlertConfig())

	err := handler.Handle(shared.NewAnalysisCompletedEvent("stu-1", 42.5, "critical", "stable", 10, 2))
	require.NoError(t, err)
	assert.Empty(t, store.alerts)
}

func TestRiskAlertHandler_InsertFailureSurfaces(t *testing.T) {
	store := &alertStore{insertErr: errors.New("insert failed")}
	handler := NewRiskAlertHandler(store, nil, testLogger(), DefaultRiskAlertConfig())

	err := handler.Handle(criticalEvent("stu-1"))
	require.Error(t, err)
}

func TestRiskAlertHandler_DedupeCheckFailureFallsOpen(t *testing.T) {
	store := &alertStore{listErr: errors.New("list failed")}
	handler := NewRiskAlertHandler(store, nil, testLogger(), DefaultRiskAlertConfig())

	// A broken duplicate check must not block the alert itself.
	err := handler.Handle(criticalEvent("stu-1"))
	require.NoError(t, err)
	assert.Len(t, store.alerts, 1)
}

func TestRiskAlertHandler_EventType(t *testing.T) {
	handler := NewRiskAlertHandler(&alertStore{}, nil, testLogger(), DefaultRiskAlertConfig())
	assert.Equal(t, shared.EventRiskLevelCritical, handler.EventType())
}
