package query

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

// ─────────────────────────────────────────────────────────────────────────────
// attendance.Repository stub
// ─────────────────────────────────────────────────────────────────────────────

type stubRecordRepo struct {
	records map[string][]attendance.RawRecord
	err     error
}

func (r *stubRecordRepo) ListByStudent(_ context.Context, studentID string) ([]attendance.RawRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := append([]attendance.RawRecord(nil), r.records[studentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *stubRecordRepo) ListByStudentSince(ctx context.Context, studentID string, since time.Time) ([]attendance.RawRecord, error) {
	all, err := r.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	out := make([]attendance.RawRecord, 0, len(all))
	for _, rec := range all {
		if !rec.Date.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *stubRecordRepo) ListStudentIDs(_ context.Context, _ time.Time) ([]string, error) {
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *stubRecordRepo) CountByStudent(_ context.Context, studentID string) (int, error) {
	return len(r.records[studentID]), nil
}

func (r *stubRecordRepo) LatestRecordDate(_ context.Context, studentID string) (time.Time, error) {
	var latest time.Time
	for _, rec := range r.records[studentID] {
		if rec.Date.After(latest) {
			latest = rec.Date
		}
	}
	return latest, nil
}

func (r *stubRecordRepo) BulkInsert(_ context.Context, records []attendance.RawRecord) (int64, error) {
	for _, rec := range records {
		r.records[rec.StudentID] = append(r.records[rec.StudentID], rec)
	}
	return int64(len(records)), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// analysis.ReportCache / analysis.CohortCache stubs
// ─────────────────────────────────────────────────────────────────────────────

type stubReportCache struct {
	mu      sync.Mutex
	reports map[string]*analysis.StudentReport
	getErr  error
}

func (c *stubReportCache) GetReport(_ context.Context, studentID string) (*analysis.StudentReport, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	report, ok := c.reports[studentID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return report, nil
}

func (c *stubReportCache) SetReport(_ context.Context, report *analysis.StudentReport, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reports == nil {
		c.reports = make(map[string]*analysis.StudentReport)
	}
	c.reports[report.StudentID] = report
	return nil
}

func (c *stubReportCache) InvalidateStudent(_ context.Context, studentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reports, studentID)
	return nil
}

type stubCohortCache struct {
	mu      sync.Mutex
	summary *analysis.CohortSummary
	sets    int
	getErr  error
}

func (c *stubCohortCache) GetCohortSummary(_ context.Context) (*analysis.CohortSummary, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return nil, shared.ErrNotFound
	}
	return c.summary, nil
}

func (c *stubCohortCache) SetCohortSummary(_ context.Context, summary *analysis.CohortSummary, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = summary
	c.sets++
	return nil
}

func (c *stubCohortCache) InvalidateCohort(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = nil
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// analysis.SnapshotRepository stub
// ─────────────────────────────────────────────────────────────────────────────

type stubSnapshotRepo struct {
	snapshots []*analysis.RiskSnapshot
	counts    map[analysis.RiskLevel]int
	lastRun   *analysis.ScanRun
	alerts    []*analysis.RiskAlert
	err       error
}

func (r *stubSnapshotRepo) SaveSnapshot(_ context.Context, snapshot *analysis.RiskSnapshot) error {
	r.snapshots = append(r.snapshots, snapshot)
	return nil
}

func (r *stubSnapshotRepo) LatestForStudent(_ context.Context, studentID string) (*analysis.RiskSnapshot, error) {
	for i := len(r.snapshots) - 1; i >= 0; i-- {
		if r.snapshots[i].StudentID == studentID {
			return r.snapshots[i], nil
		}
	}
	return nil, shared.ErrSnapshotNotFound
}

func (r *stubSnapshotRepo) LatestSnapshots(_ context.Context, p shared.Pagination) ([]*analysis.RiskSnapshot, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := append([]*analysis.RiskSnapshot(nil), r.snapshots...)
	sort.Slice(out, func(i, j int) bool { return out[i].Percentage < out[j].Percentage })
	start := p.Offset()
	if start >= len(out) {
		return []*analysis.RiskSnapshot{}, nil
	}
	end := start + p.Limit()
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (r *stubSnapshotRepo) CountByLevel(_ context.Context) (map[analysis.RiskLevel]int, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.counts, nil
}

func (r *stubSnapshotRepo) SaveScanRun(_ context.Context, run *analysis.ScanRun) error {
	r.lastRun = run
	return nil
}

func (r *stubSnapshotRepo) LastScanRun(_ context.Context) (*analysis.ScanRun, error) {
	if r.lastRun == nil {
		return nil, shared.ErrScanRunNotFound
	}
	return r.lastRun, nil
}

func (r *stubSnapshotRepo) InsertAlert(_ context.Context, alert *analysis.RiskAlert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *stubSnapshotRepo) ListRecentAlerts(_ context.Context, limit int, unacknowledgedOnly bool) ([]*analysis.RiskAlert, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*analysis.RiskAlert, 0, limit)
	for i := len(r.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if unacknowledgedOnly && r.alerts[i].Acknowledged {
			continue
		}
		out = append(out, r.alerts[i])
	}
	return out, nil
}

func (r *stubSnapshotRepo) AcknowledgeAlert(_ context.Context, alertID string) error {
	for _, alert := range r.alerts {
		if alert.ID == alertID {
			alert.Acknowledge()
			return nil
		}
	}
	return shared.ErrNotFound
}

// ─────────────────────────────────────────────────────────────────────────────
// builders
// ─────────────────────────────────────────────────────────────────────────────

// presentHistory builds one record per day, `present` attended then
// `absent` missed, starting 2026-03-02.
func presentHistory(studentID string, present, absent int) []attendance.RawRecord {
	records := make([]attendance.RawRecord, 0, present+absent)
	start := day("2026-03-02")
	for i := 0; i < present+absent; i++ {
		status := attendance.StatusPresent
		if i >= present {
			status = attendance.StatusAbsent
		}
		records = append(records, attendance.RawRecord{
			StudentID:   studentID,
			SubjectID:   "sub-math",
			SubjectName: "Mathematics",
			SubjectCode: "MATH101",
			Date:        start.AddDate(0, 0, i),
			Status:      status,
		})
	}
	return records
}

func reportFor(studentID string, percentage float64, risk analysis.RiskLevel) *analysis.StudentReport {
	return &analysis.StudentReport{
		StudentID:   studentID,
		GeneratedAt: time.Now().UTC(),
		Overall:     attendance.OverallAttendance{TotalClasses: 10, AttendedClasses: 9, Percentage: percentage},
		Trend:       analysis.TrendSignal{Stable: true},
		Risk:        risk,
	}
}

func snapshotFor(studentID string, percentage float64, level analysis.RiskLevel) *analysis.RiskSnapshot {
	return &analysis.RiskSnapshot{
		ID:          "snap-" + studentID,
		StudentID:   studentID,
		Percentage:  percentage,
		RiskLevel:   level,
		GeneratedAt: time.Now().UTC(),
	}
}

func pendingItem(studentID, title string) *action.ActionItem {
	item, err := action.NewActionItem(action.NewActionItemParams{
		ID:          action.NewManualID(),
		StudentID:   studentID,
		Type:        action.TypeContactStudent,
		Title:       title,
		Description: "Talk to the student about recent absences.",
		Priority:    action.PriorityMedium,
		DueDate:     time.Now().UTC().AddDate(0, 0, 5),
	})
	if err != nil {
		panic(err)
	}
	return item
}
