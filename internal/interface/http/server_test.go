package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/attendance-insight/internal/application/command"
	"github.com/edupulse/attendance-insight/internal/application/query"
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
	"github.com/edupulse/attendance-insight/internal/infrastructure/persistence/projections"
	"github.com/edupulse/attendance-insight/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server with rate limiting off so tests can hammer it.
func newTestServer(t *testing.T, mutate func(*Config), deps Dependencies) *Server {
	t.Helper()

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}
	if deps.Logger == nil {
		deps.Logger = testLogger()
	}

	s := NewServer(cfg, deps)
	t.Cleanup(func() {
		require.NoError(t, s.Shutdown(context.Background()))
	})
	return s
}

// doRequest sends a request through the full middleware chain.
func doRequest(t *testing.T, s *Server, method, target string, body io.Reader) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	var envelope JSONResponse
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	}
	return rec, envelope
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

// dataField digs a field out of the decoded Data map.
func dataField(t *testing.T, envelope JSONResponse, key string) interface{} {
	t.Helper()
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok, "response data is not an object: %T", envelope.Data)
	return data[key]
}

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeRecordRepo struct {
	records   []attendance.RawRecord
	insertErr error
}

func (f *fakeRecordRepo) ListByStudent(_ context.Context, studentID string) ([]attendance.RawRecord, error) {
	var out []attendance.RawRecord
	for _, r := range f.records {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ListByStudentSince(ctx context.Context, studentID string, _ time.Time) ([]attendance.RawRecord, error) {
	return f.ListByStudent(ctx, studentID)
}

func (f *fakeRecordRepo) ListStudentIDs(_ context.Context, _ time.Time) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range f.records {
		if _, ok := seen[r.StudentID]; !ok {
			seen[r.StudentID] = struct{}{}
			ids = append(ids, r.StudentID)
		}
	}
	return ids, nil
}

func (f *fakeRecordRepo) CountByStudent(_ context.Context, studentID string) (int, error) {
	n := 0
	for _, r := range f.records {
		if r.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRecordRepo) LatestRecordDate(_ context.Context, studentID string) (time.Time, error) {
	var latest time.Time
	for _, r := range f.records {
		if r.StudentID == studentID && r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest, nil
}

func (f *fakeRecordRepo) BulkInsert(_ context.Context, records []attendance.RawRecord) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.records = append(f.records, records...)
	return int64(len(records)), nil
}

// fakeRecordSource stands in for the SIS feed.
type fakeRecordSource struct {
	roster   []string
	records  map[string][]attendance.RawRecord
	fetchErr error
}

func (f *fakeRecordSource) ActiveStudentIDs(_ context.Context) ([]string, error) {
	return f.roster, nil
}

func (f *fakeRecordSource) RecordsSince(_ context.Context, studentID string, _ time.Time) ([]attendance.RawRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.records[studentID], nil
}

type fakeSnapshotRepo struct {
	snapshots []*analysis.RiskSnapshot
	alerts    []*analysis.RiskAlert
	lastRun   *analysis.ScanRun
	ackIDs    []string
}

func (f *fakeSnapshotRepo) SaveSnapshot(_ context.Context, snapshot *analysis.RiskSnapshot) error {
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func (f *fakeSnapshotRepo) LatestForStudent(_ context.Context, _ string) (*analysis.RiskSnapshot, error) {
	return nil, shared.ErrSnapshotNotFound
}

func (f *fakeSnapshotRepo) LatestSnapshots(_ context.Context, _ shared.Pagination) ([]*analysis.RiskSnapshot, error) {
	return f.snapshots, nil
}

func (f *fakeSnapshotRepo) CountByLevel(_ context.Context) (map[analysis.RiskLevel]int, error) {
	counts := make(map[analysis.RiskLevel]int)
	for _, s := range f.snapshots {
		counts[s.RiskLevel]++
	}
	return counts, nil
}

func (f *fakeSnapshotRepo) SaveScanRun(_ context.Context, run *analysis.ScanRun) error {
	f.lastRun = run
	return nil
}

func (f *fakeSnapshotRepo) LastScanRun(_ context.Context) (*analysis.ScanRun, error) {
	if f.lastRun == nil {
		return nil, shared.ErrScanRunNotFound
	}
	return f.lastRun, nil
}

func (f *fakeSnapshotRepo) InsertAlert(_ context.Context, alert *analysis.RiskAlert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeSnapshotRepo) ListRecentAlerts(_ context.Context, limit int, unacknowledgedOnly bool) ([]*analysis.RiskAlert, error) {
	var out []*analysis.RiskAlert
	for _, a := range f.alerts {
		if unacknowledgedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSnapshotRepo) AcknowledgeAlert(_ context.Context, alertID string) error {
	for _, a := range f.alerts {
		if a.ID == alertID {
			a.Acknowledged = true
			f.ackIDs = append(f.ackIDs, alertID)
			return nil
		}
	}
	return shared.NewDomainError("snapshot", "AcknowledgeAlert", shared.ErrNotFound, "alert not found")
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_RootEndpoint(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{})

	rec, envelope := doRequest(t, s, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)
	assert.Equal(t, "Attendance Insight API", dataField(t, envelope, "name"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestServer_HealthWithoutChecker(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{})

	rec, envelope := doRequest(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", dataField(t, envelope, "status"))

	rec, _ = doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthWithFailingCheck(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("v1")
	checker.AddCheck("database", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	s := newTestServer(t, nil, Dependencies{HealthChecker: checker})

	rec, envelope := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, dataField(t, envelope, "healthy"))

	rec, envelope = doRequest(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "not_ready", envelope.Error.Code)
}

func TestServer_LiveAlwaysUp(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{})

	rec, envelope := doRequest(t, s, http.MethodGet, "/live", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", dataField(t, envelope, "status"))
}

func TestServer_MetricsAggregatesSources(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{
		MetricsSources: []MetricsSource{
			{Name: "bus", Collect: func() interface{} {
				return map[string]int64{"published": 42}
			}},
			{Name: "", Collect: func() interface{} { return "ignored" }},
		},
	})

	rec, envelope := doRequest(t, s, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, dataField(t, envelope, "server"))

	bus, ok := dataField(t, envelope, "bus").(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(42), bus["published"])
}

// ══════════════════════════════════════════════════════════════════════════════
// NIL HANDLER GUARDS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_UnconfiguredHandlersReturn501(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{})

	routes := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/api/v1/students/stu-001/report"},
		{http.MethodGet, "/api/v1/students/stu-001/daily-rates"},
		{http.MethodPost, "/api/v1/students/stu-001/analyze"},
		{http.MethodPost, "/api/v1/students/stu-001/sync"},
		{http.MethodGet, "/api/v1/students/stu-001/actions"},
		{http.MethodGet, "/api/v1/students/stu-001/actions/summary"},
		{http.MethodGet, "/api/v1/alerts"},
	}

	for _, route := range routes {
		rec, envelope := doRequest(t, s, route.method, route.target, nil)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, "%s %s", route.method, route.target)
		require.NotNil(t, envelope.Error, "%s %s", route.method, route.target)
		assert.Equal(t, "not_implemented", envelope.Error.Code)
	}
}

func TestServer_CohortEndpointsDisabled(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{})

	for _, target := range []string{"/api/v1/cohort/risk", "/api/v1/cohort/overview"} {
		rec, envelope := doRequest(t, s, http.MethodGet, target, nil)

		assert.Equal(t, http.StatusNotImplemented, rec.Code, target)
		require.NotNil(t, envelope.Error, target)
		assert.Contains(t, envelope.Error.Message, "not enabled")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD IMPORT
// ══════════════════════════════════════════════════════════════════════════════

func importDeps(repo *fakeRecordRepo) Dependencies {
	return Dependencies{
		ImportRecordsHandler: command.NewImportRecordsHandler(repo, nil, testLogger()),
	}
}

func TestServer_ImportRecords(t *testing.T) {
	repo := &fakeRecordRepo{}
	s := newTestServer(t, nil, importDeps(repo))

	body := jsonBody(t, map[string]interface{}{
		"records": []attendance.RawRecord{
			{StudentID: "stu-001", SubjectID: "math", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Status: attendance.StatusPresent},
			{StudentID: "stu-001", SubjectID: "math", Date: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), Status: attendance.StatusAbsent},
		},
	})

	rec, envelope := doRequest(t, s, http.MethodPost, "/api/v1/records/import", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)
	assert.Equal(t, float64(2), dataField(t, envelope, "inserted"))
	assert.Equal(t, float64(1), dataField(t, envelope, "students"))
	assert.Len(t, repo.records, 2)
}

func TestServer_ImportRejectsEmptyBatch(t *testing.T) {
	s := newTestServer(t, nil, importDeps(&fakeRecordRepo{}))

	body := jsonBody(t, map[string]interface{}{"records": []attendance.RawRecord{}})
	rec, envelope := doRequest(t, s, http.MethodPost, "/api/v1/records/import", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "invalid_request", envelope.Error.Code)
}

func TestServer_ImportRejectsInvalidRecord(t *testing.T) {
	repo := &fakeRecordRepo{}
	s := newTestServer(t, nil, importDeps(repo))

	// Second record has no student id, the whole batch must bounce.
	body := jsonBody(t, map[string]interface{}{
		"records": []attendance.RawRecord{
			{StudentID: "stu-001", SubjectID: "math", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Status: attendance.StatusPresent},
			{SubjectID: "math", Date: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), Status: attendance.StatusPresent},
		},
	})

	rec, _ := doRequest(t, s, http.MethodPost, "/api/v1/records/import", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.records, "partial imports must never reach the store")
}

func TestServer_ImportRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t, nil, importDeps(&fakeRecordRepo{}))

	rec, envelope := doRequest(t, s, http.MethodPost, "/api/v1/records/import", bytes.NewReader([]byte("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.NotEmpty(t, envelope.Error.Details)
}

func TestServer_ImportBodyTooLarge(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.MaxImportBytes = 32
	}, importDeps(&fakeRecordRepo{}))

	payload := bytes.Repeat([]byte("x"), 256)
	rec, _ := doRequest(t, s, http.MethodPost, "/api/v1/records/import", bytes.NewReader(payload))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY RATES & SIS SYNC
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_DailyRates(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	repo := &fakeRecordRepo{records: []attendance.RawRecord{
		{StudentID: "stu-001", SubjectID: "math", Date: day, Status: attendance.StatusPresent},
		{StudentID: "stu-001", SubjectID: "physics", Date: day, Status: attendance.StatusAbsent},
	}}
	s := newTestServer(t, nil, Dependencies{
		GetDailyRatesHandler: query.NewGetDailyRatesHandler(repo, testLogger()),
	})

	rec, envelope := doRequest(t, s, http.MethodGet, "/api/v1/students/stu-001/daily-rates?days=7", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-001", dataField(t, envelope, "student_id"))

	series, ok := dataField(t, envelope, "series").([]interface{})
	require.True(t, ok)
	require.Len(t, series, 1)
	assert.Equal(t, float64(50), dataField(t, envelope, "average_rate"))
}

func syncDeps(t *testing.T, source *fakeRecordSource, repo *fakeRecordRepo) Dependencies {
	t.Helper()
	handler, err := command.NewSyncRecordsHandler(
		source, repo, nil, nil, testLogger(), command.SyncRecordsHandlerConfig{},
	)
	require.NoError(t, err)
	return Dependencies{SyncRecordsHandler: handler}
}

func TestServer_SyncStudent(t *testing.T) {
	repo := &fakeRecordRepo{}
	source := &fakeRecordSource{records: map[string][]attendance.RawRecord{
		"stu-001": {
			{StudentID: "stu-001", SubjectID: "math", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Status: attendance.StatusPresent},
			{StudentID: "stu-001", SubjectID: "math", Date: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), Status: attendance.StatusLate},
		},
	}}
	s := newTestServer(t, nil, syncDeps(t, source, repo))

	rec, envelope := doRequest(t, s, http.MethodPost, "/api/v1/students/stu-001/sync", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, dataField(t, envelope, "run_id"))
	assert.Equal(t, float64(1), dataField(t, envelope, "students_synced"))
	assert.Equal(t, float64(2), dataField(t, envelope, "records_imported"))
	assert.Len(t, repo.records, 2)
}

func TestServer_SyncStudentFetchFailureIsReported(t *testing.T) {
	// A broken SIS is a run outcome, not an HTTP failure.
	source := &fakeRecordSource{fetchErr: errors.New("sis timeout")}
	s := newTestServer(t, nil, syncDeps(t, source, &fakeRecordRepo{}))

	rec, envelope := doRequest(t, s, http.MethodPost, "/api/v1/students/stu-001/sync", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), dataField(t, envelope, "students_synced"))

	failures, ok := dataField(t, envelope, "failures").(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, failures, "stu-001")
}

// ══════════════════════════════════════════════════════════════════════════════
// COHORT & ALERTS
// ══════════════════════════════════════════════════════════════════════════════

func cohortDeps(repo *fakeSnapshotRepo) Dependencies {
	return Dependencies{
		GetCohortRiskHandler:    query.NewGetCohortRiskHandler(repo, nil, testLogger()),
		ListAlertsHandler:       query.NewListAlertsHandler(repo),
		AcknowledgeAlertHandler: command.NewAcknowledgeAlertHandler(repo, testLogger()),
	}
}

func TestServer_CohortRiskSummary(t *testing.T) {
	repo := &fakeSnapshotRepo{
		snapshots: []*analysis.RiskSnapshot{
			{ID: "snap-1", StudentID: "stu-001", Percentage: 42.0, RiskLevel: analysis.RiskCritical},
			{ID: "snap-2", StudentID: "stu-002", Percentage: 91.5, RiskLevel: analysis.RiskLow},
		},
	}
	s := newTestServer(t, nil, cohortDeps(repo))

	rec, envelope := doRequest(t, s, http.MethodGet, "/api/v1/cohort/risk", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)
	assert.Equal(t, float64(2), dataField(t, envelope, "total_students"))
	assert.Equal(t, float64(1), dataField(t, envelope, "at_risk"))

	require.NotNil(t, envelope.Meta)
	assert.Equal(t, 2, envelope.Meta.TotalCount)
	assert.Equal(t, 1, envelope.Meta.Page)
	assert.Equal(t, shared.DefaultPageSize, envelope.Meta.PageSize)
	assert.False(t, envelope.Meta.HasMore)
	assert.NotEmpty(t, envelope.RequestID)
}

func TestServer_CohortRiskLevelFilter(t *testing.T) {
	repo := &fakeSnapshotRepo{
		snapshots: []*analysis.RiskSnapshot{
			{ID: "snap-1", StudentID: "stu-001", RiskLevel: analysis.RiskCritical},
			{ID: "snap-2", StudentID: "stu-002", RiskLevel: analysis.RiskLow},
		},
	}
	s := newTestServer(t, nil, cohortDeps(repo))

	rec, envelope := doRequest(t, s, http.MethodGet, "/api/v1/cohort/risk?level=critical", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	entries, ok := dataField(t, envelope, "entries").([]interface{})
	require.True(t, ok)
	assert.Len(t, entries, 1)

	// Garbage level is a client error
	rec, _ = doRequest(t, s, http.MethodGet, "/api/v1/cohort/risk?level=apocalyptic", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CohortOverview(t *testing.T) {
	view := projections.NewCohortRiskView()
	require.NoError(t, view.ApplyAnalysis(&projections.CohortRiskEntry{
		StudentID: "stu-001", Percentage: 52.5, RiskLevel: analysis.RiskCritical, TrendDirection: "declining",
	}))
	require.NoError(t, view.ApplyAnalysis(&projections.CohortRiskEntry{
		StudentID: "stu-002", Percentage: 94.0, RiskLevel: analysis.RiskLow, TrendDirection: "stable",
	}))

	s := newTestServer(t, nil, Dependencies{
		GetCohortOverviewHandler: query.NewGetCohortOverviewHandler(view, testLogger()),
	})

	rec, envelope := doRequest(t, s, http.MethodGet, "/api/v1/cohort/overview", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), dataField(t, envelope, "total_students"))
	assert.Equal(t, float64(1), dataField(t, envelope, "at_risk"))

	worst, ok := dataField(t, envelope, "worst").([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, worst)
	first, ok := worst[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "stu-001", first["student_id"])

	// Level filter narrows the worst list, aggregates stay cohort-wide
	rec, envelope = doRequest(t, s, http.MethodGet, "/api/v1/cohort/overview?level=low&limit=1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), dataField(t, envelope, "total_students"))
	worst, ok = dataField(t, envelope, "worst").([]interface{})
	require.True(t, ok)
	require.Len(t, worst, 1)

	// Garbage level is a client error
	rec, _ = doRequest(t, s, http.MethodGet, "/api/v1/cohort/overview?level=apocalyptic", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListAlerts(t *testing.T) {
	repo := &fakeSnapshotRepo{
		alerts: []*analysis.RiskAlert{
			{ID: "alert-1", StudentID: "stu-001", RiskLevel: analysis.RiskCritical, Acknowledged: true},
			{ID: "alert-2", StudentID: "stu-002", RiskLevel: analysis.RiskCritical},
		},
	}
	s := newTestServer(t, nil, cohortDeps(repo))

	rec, envelope := doRequest(t, s, http.MethodGet, "/api/v1/alerts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), dataField(t, envelope, "count"))

	rec, envelope = doRequest(t, s, http.MethodGet, "/api/v1/alerts?unacknowledged=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), dataField(t, envelope, "count"))
}

func TestServer_AcknowledgeAlert(t *testing.T) {
	repo := &fakeSnapshotRepo{
		alerts: []*analysis.RiskAlert{
			{ID: "alert-1", StudentID: "stu-001", RiskLevel: analysis.RiskCritical},
		},
	}
	s := newTestServer(t, nil, cohortDeps(repo))

	rec, envelope := doRequest(t, s, http.MethodPost, "/api/v1/alerts/alert-1/ack", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acknowledged", dataField(t, envelope, "status"))
	assert.Equal(t, []string{"alert-1"}, repo.ackIDs)
}

func TestServer_AcknowledgeUnknownAlert(t *testing.T) {
	s := newTestServer(t, nil, cohortDeps(&fakeSnapshotRepo{}))

	rec, envelope := doRequest(t, s, http.MethodPost, "/api/v1/alerts/ghost/ack", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "not_found", envelope.Error.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_APIKeyProtectsMutations(t *testing.T) {
	repo := &fakeSnapshotRepo{
		alerts: []*analysis.RiskAlert{
			{ID: "alert-1", StudentID: "stu-001", RiskLevel: analysis.RiskCritical},
		},
	}
	s := newTestServer(t, func(cfg *Config) {
		cfg.APIKeys = []string{"curator-key"}
	}, cohortDeps(repo))

	// Mutation without a key bounces
	rec, _ := doRequest(t, s, http.MethodPost, "/api/v1/alerts/alert-1/ack", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, repo.ackIDs)

	// Reads stay open
	rec, _ = doRequest(t, s, http.MethodGet, "/api/v1/alerts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Mutation with the key goes through
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/ack", nil)
	req.Header.Set("X-API-Key", "curator-key")
	recorder := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, []string{"alert-1"}, repo.ackIDs)
}

func TestServer_RateLimitKicksIn(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.RateLimitPerMinute = 2
	}, Dependencies{})

	rec, _ := doRequest(t, s, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doRequest(t, s, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, envelope := doRequest(t, s, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "rate_limit_exceeded", envelope.Error.Code)
}

func TestServer_RequestIDRoundTrip(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "trace-me-123")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "trace-me-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/alerts", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func TestWriteDomainError_StatusMapping(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", shared.ErrEmptyStudentID, http.StatusBadRequest, "invalid_request"},
		{"unknown status", shared.ErrRecordUnknownStatus, http.StatusBadRequest, "invalid_request"},
		{"not found", shared.ErrActionNotFound, http.StatusNotFound, "not_found"},
		{"expired session", shared.ErrSessionExpired, http.StatusGone, "session_expired"},
		{"already exists", shared.ErrActionExists, http.StatusConflict, "already_exists"},
		{"backward transition", shared.ErrBackwardTransition, http.StatusConflict, "invalid_transition"},
		{"already seeded", shared.ErrAlreadySeeded, http.StatusConflict, "invalid_state"},
		{"duplicate record", shared.ErrDuplicateRecord, http.StatusConflict, "data_conflict"},
		{"opaque failure", errors.New("pool exhausted"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)

			s.writeDomainError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var envelope JSONResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			require.NotNil(t, envelope.Error)
			assert.Equal(t, tt.wantCode, envelope.Error.Code)
		})
	}
}

func TestWriteDomainError_MasksInternalDetails(t *testing.T) {
	s := newTestServer(t, nil, Dependencies{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	s.writeDomainError(rec, req, errors.New("password=hunter2 leaked into error"))

	var envelope JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.NotContains(t, envelope.Error.Message, "hunter2")
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY PARAM HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func TestQueryParamHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?limit=25&flag=true&bad=abc&yes=1", nil)

	assert.Equal(t, 25, getQueryParamInt(req, "limit", 10))
	assert.Equal(t, 10, getQueryParamInt(req, "missing", 10))
	assert.True(t, getQueryParamBool(req, "flag"))
	assert.True(t, getQueryParamBool(req, "yes"))
	assert.False(t, getQueryParamBool(req, "missing"))
	assert.Equal(t, "fallback", getQueryParam(req, "missing", "fallback"))
}
