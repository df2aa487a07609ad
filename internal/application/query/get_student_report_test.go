package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/attendance-insight/internal/application/session"
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

func newReportHandler(t *testing.T, records *stubRecordRepo, sessions *session.Manager, cache analysis.ReportCache) *GetStudentReportHandler {
	t.Helper()
	handler, err := NewGetStudentReportHandler(records, sessions, cache, testLogger(), analysis.DefaultConfig())
	require.NoError(t, err)
	return handler
}

func TestGetStudentReportHandler_CacheHit(t *testing.T) {
	cache := &stubReportCache{reports: map[string]*analysis.StudentReport{
		"stu-1": reportFor("stu-1", 92.5, analysis.RiskLow),
	}}
	handler := newReportHandler(t, &stubRecordRepo{}, session.NewManager(0, testLogger()), cache)

	result, err := handler.Handle(context.Background(), GetStudentReportQuery{StudentID: "stu-1"})
	require.NoError(t, err)

	assert.Equal(t, ReportSourceCache, result.Source)
	assert.InDelta(t, 92.5, result.Report.Overall.Percentage, 0.001)
	assert.Nil(t, result.ActionSummary)
}

func TestGetStudentReportHandler_SessionFallback(t *testing.T) {
	sessions := session.NewManager(0, testLogger())
	sess, created := sessions.GetOrCreate("stu-2")
	require.True(t, created)
	sess.SetReport(reportFor("stu-2", 78.0, analysis.RiskMedium))
	seeded, err := sess.SeedOnce(nil)
	require.NoError(t, err)
	require.True(t, seeded)

	handler := newReportHandler(t, &stubRecordRepo{}, sessions, &stubReportCache{})

	result, err := handler.Handle(context.Background(), GetStudentReportQuery{StudentID: "stu-2"})
	require.NoError(t, err)

	assert.Equal(t, ReportSourceSession, result.Source)
	assert.Equal(t, analysis.RiskMedium, result.Report.Risk)
	require.NotNil(t, result.ActionSummary)
	assert.Zero(t, result.ActionSummary.Total)
}

func TestGetStudentReportHandler_ComputesWhenCold(t *testing.T) {
	records := &stubRecordRepo{records: map[string][]attendance.RawRecord{
		"stu-3": presentHistory("stu-3", 9, 1),
	}}
	handler := newReportHandler(t, records, session.NewManager(0, testLogger()), nil)

	result, err := handler.Handle(context.Background(), GetStudentReportQuery{StudentID: "stu-3"})
	require.NoError(t, err)

	assert.Equal(t, ReportSourceComputed, result.Source)
	assert.InDelta(t, 90.0, result.Report.Overall.Percentage, 0.001)
	assert.Equal(t, analysis.RiskLow, result.Report.Risk)
	require.Len(t, result.Report.Tallies, 1)
	assert.Equal(t, 10, result.Report.Tallies[0].Total)
}

func TestGetStudentReportHandler_ComputeDoesNotCreateSession(t *testing.T) {
	records := &stubRecordRepo{records: map[string][]attendance.RawRecord{
		"stu-4": presentHistory("stu-4", 5, 5),
	}}
	sessions := session.NewManager(0, testLogger())
	handler := newReportHandler(t, records, sessions, nil)

	_, err := handler.Handle(context.Background(), GetStudentReportQuery{StudentID: "stu-4"})
	require.NoError(t, err)
	assert.Zero(t, sessions.Len())
}

func TestGetStudentReportHandler_ForceRefreshSkipsCache(t *testing.T) {
	stale := reportFor("stu-5", 99.0, analysis.RiskLow)
	cache := &stubReportCache{reports: map[string]*analysis.StudentReport{"stu-5": stale}}
	records := &stubRecordRepo{records: map[string][]attendance.RawRecord{
		"stu-5": presentHistory("stu-5", 5, 5),
	}}
	handler := newReportHandler(t, records, session.NewManager(0, testLogger()), cache)

	result, err := handler.Handle(context.Background(), GetStudentReportQuery{StudentID: "stu-5", ForceRefresh: true})
	require.NoError(t, err)

	assert.Equal(t, ReportSourceComputed, result.Source)
	assert.InDelta(t, 50.0, result.Report.Overall.Percentage, 0.001)
}

func TestGetStudentReportHandler_CacheErrorDegradesToCompute(t *testing.T) {
	cache := &stubReportCache{getErr: errors.New("circuit open")}
	records := &stubRecordRepo{records: map[string][]attendance.RawRecord{
		"stu-6": presentHistory("stu-6", 9, 1),
	}}
	handler := newReportHandler(t, records, session.NewManager(0, testLogger()), cache)

	result, err := handler.Handle(context.Background(), GetStudentReportQuery{StudentID: "stu-6"})
	require.NoError(t, err)
	assert.Equal(t, ReportSourceComputed, result.Source)
}

func TestGetStudentReportHandler_InvalidStudentID(t *testing.T) {
	handler := newReportHandler(t, &stubRecordRepo{}, session.NewManager(0, testLogger()), nil)

	_, err := handler.Handle(context.Background(), GetStudentReportQuery{StudentID: "bad id with spaces"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidID))
}

func TestGetStudentReportHandler_RepoFailure(t *testing.T) {
	records := &stubRecordRepo{err: errors.New("connection refused")}
	handler := newReportHandler(t, records, session.NewManager(0, testLogger()), nil)

	_, err := handler.Handle(context.Background(), GetStudentReportQuery{StudentID: "stu-7"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load records")
}
