package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

func cohortRepo() *stubSnapshotRepo {
	return &stubSnapshotRepo{
		snapshots: []*analysis.RiskSnapshot{
			snapshotFor("stu-a", 45.0, analysis.RiskCritical),
			snapshotFor("stu-b", 72.0, analysis.RiskHigh),
			snapshotFor("stu-c", 91.0, analysis.RiskLow),
		},
		counts: map[analysis.RiskLevel]int{
			analysis.RiskCritical: 1,
			analysis.RiskHigh:     1,
			analysis.RiskLow:      1,
		},
	}
}

func TestGetCohortRiskHandler_BuildsSummary(t *testing.T) {
	handler := NewGetCohortRiskHandler(cohortRepo(), nil, testLogger())

	result, err := handler.Handle(context.Background(), GetCohortRiskQuery{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalStudents)
	assert.Equal(t, 2, result.AtRisk)
	assert.False(t, result.FromCache)
	require.Len(t, result.Entries, 3)
	// Worst first.
	assert.Equal(t, "stu-a", result.Entries[0].StudentID)
	assert.Nil(t, result.LastScan)
}

func TestGetCohortRiskHandler_CachesFirstPage(t *testing.T) {
	cache := &stubCohortCache{}
	handler := NewGetCohortRiskHandler(cohortRepo(), cache, testLogger())

	first, err := handler.Handle(context.Background(), GetCohortRiskQuery{})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, cache.sets)

	second, err := handler.Handle(context.Background(), GetCohortRiskQuery{})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, first.TotalStudents, second.TotalStudents)
}

func TestGetCohortRiskHandler_DeepPagesSkipCache(t *testing.T) {
	cache := &stubCohortCache{}
	handler := NewGetCohortRiskHandler(cohortRepo(), cache, testLogger())

	result, err := handler.Handle(context.Background(), GetCohortRiskQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)

	assert.False(t, result.FromCache)
	assert.Zero(t, cache.sets)
	// Page 2 of size 2 over three students holds the last one.
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "stu-c", result.Entries[0].StudentID)
}

func TestGetCohortRiskHandler_LevelFilter(t *testing.T) {
	handler := NewGetCohortRiskHandler(cohortRepo(), nil, testLogger())

	result, err := handler.Handle(context.Background(), GetCohortRiskQuery{Level: "critical"})
	require.NoError(t, err)

	require.Len(t, result.Entries, 1)
	assert.Equal(t, "stu-a", result.Entries[0].StudentID)
	// Counts still describe the whole cohort.
	assert.Equal(t, 3, result.TotalStudents)
}

func TestGetCohortRiskHandler_UnknownLevel(t *testing.T) {
	handler := NewGetCohortRiskHandler(cohortRepo(), nil, testLogger())

	_, err := handler.Handle(context.Background(), GetCohortRiskQuery{Level: "severe"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidRiskLevel))
}

func TestGetCohortRiskHandler_IncludesLastScan(t *testing.T) {
	repo := cohortRepo()
	run := analysis.NewScanRun("run-1")
	run.Record(analysis.RiskCritical)
	run.Record(analysis.RiskLow)
	require.NoError(t, run.MarkCompleted())
	repo.lastRun = run

	handler := NewGetCohortRiskHandler(repo, nil, testLogger())

	result, err := handler.Handle(context.Background(), GetCohortRiskQuery{})
	require.NoError(t, err)

	require.NotNil(t, result.LastScan)
	assert.Equal(t, "run-1", result.LastScan.ID)
	assert.Equal(t, "completed", result.LastScan.Status)
	assert.Equal(t, 2, result.LastScan.StudentsScanned)
}

func TestGetCohortRiskHandler_RepoFailure(t *testing.T) {
	repo := cohortRepo()
	repo.err = errors.New("connection refused")
	handler := NewGetCohortRiskHandler(repo, nil, testLogger())

	_, err := handler.Handle(context.Background(), GetCohortRiskQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load snapshots")
}

// ─────────────────────────────────────────────────────────────────────────────
// ListAlerts
// ─────────────────────────────────────────────────────────────────────────────

func TestListAlertsHandler_NewestFirst(t *testing.T) {
	repo := &stubSnapshotRepo{}
	for _, id := range []string{"al-1", "al-2", "al-3"} {
		require.NoError(t, repo.InsertAlert(context.Background(),
			analysis.NewRiskAlert(id, "stu-1", analysis.RiskCritical, 42.0, "attendance collapsed")))
	}

	handler := NewListAlertsHandler(repo)

	result, err := handler.Handle(context.Background(), ListAlertsQuery{})
	require.NoError(t, err)

	require.Equal(t, 3, result.Count)
	assert.Equal(t, "al-3", result.Alerts[0].ID)
}

func TestListAlertsHandler_UnacknowledgedOnly(t *testing.T) {
	repo := &stubSnapshotRepo{}
	handled := analysis.NewRiskAlert("al-1", "stu-1", analysis.RiskCritical, 42.0, "attendance collapsed")
	handled.Acknowledge()
	require.NoError(t, repo.InsertAlert(context.Background(), handled))
	require.NoError(t, repo.InsertAlert(context.Background(),
		analysis.NewRiskAlert("al-2", "stu-2", analysis.RiskCritical, 38.0, "attendance collapsed")))

	handler := NewListAlertsHandler(repo)

	result, err := handler.Handle(context.Background(), ListAlertsQuery{UnacknowledgedOnly: true})
	require.NoError(t, err)

	require.Equal(t, 1, result.Count)
	assert.Equal(t, "al-2", result.Alerts[0].ID)
}

func TestListAlertsQuery_LimitNormalization(t *testing.T) {
	q := ListAlertsQuery{Limit: 500}
	require.NoError(t, q.Validate())
	assert.Equal(t, maxAlertLimit, q.Limit)

	q = ListAlertsQuery{}
	require.NoError(t, q.Validate())
	assert.Equal(t, defaultAlertLimit, q.Limit)

	q = ListAlertsQuery{Limit: -1}
	assert.Error(t, q.Validate())
}
