package command

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// In-memory collaborators shared by the command handler tests.

// ─────────────────────────────────────────────────────────────────────────────
// attendance.Repository
// ─────────────────────────────────────────────────────────────────────────────

type memRecordRepo struct {
	mu        sync.Mutex
	records   map[string][]attendance.RawRecord
	listErr   error
	insertErr error
}

func newMemRecordRepo() *memRecordRepo {
	return &memRecordRepo{records: make(map[string][]attendance.RawRecord)}
}

func (r *memRecordRepo) add(records ...attendance.RawRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.records[rec.StudentID] = append(r.records[rec.StudentID], rec)
	}
}

func (r *memRecordRepo) ListByStudent(_ context.Context, studentID string) ([]attendance.RawRecord, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]attendance.RawRecord(nil), r.records[studentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memRecordRepo) ListByStudentSince(ctx context.Context, studentID string, since time.Time) ([]attendance.RawRecord, error) {
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

func (r *memRecordRepo) ListStudentIDs(_ context.Context, since time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.records))
	for id, recs := range r.records {
		for _, rec := range recs {
			if !rec.Date.Before(since) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memRecordRepo) CountByStudent(_ context.Context, studentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records[studentID]), nil
}

func (r *memRecordRepo) LatestRecordDate(_ context.Context, studentID string) (time.Time, error) {
	if r.listErr != nil {
		return time.Time{}, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest time.Time
	for _, rec := range r.records[studentID] {
		if rec.Date.After(latest) {
			latest = rec.Date
		}
	}
	return latest, nil
}

func (r *memRecordRepo) BulkInsert(_ context.Context, records []attendance.RawRecord) (int64, error) {
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.records[rec.StudentID] = append(r.records[rec.StudentID], rec)
	}
	return int64(len(records)), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// action.Repository
// ─────────────────────────────────────────────────────────────────────────────

type memActionRepo struct {
	mu      sync.Mutex
	saved   map[string][]*action.ActionItem
	updates int
	saveErr error
}

func newMemActionRepo() *memActionRepo {
	return &memActionRepo{saved: make(map[string][]*action.ActionItem)}
}

func (r *memActionRepo) SaveItems(_ context.Context, sessionID string, items []*action.ActionItem) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.saved[sessionID] = append(r.saved[sessionID], item.Clone())
	}
	return nil
}

func (r *memActionRepo) UpdateItem(_ context.Context, sessionID string, item *action.ActionItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, stored := range r.saved[sessionID] {
		if stored.ID == item.ID {
			r.saved[sessionID][i] = item.Clone()
			r.updates++
			return nil
		}
	}
	return shared.ErrActionNotFound
}

func (r *memActionRepo) LoadBySession(_ context.Context, sessionID string) ([]*action.ActionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*action.ActionItem, 0, len(r.saved[sessionID]))
	for _, item := range r.saved[sessionID] {
		out = append(out, item.Clone())
	}
	return out, nil
}

func (r *memActionRepo) ListByStudent(_ context.Context, studentID string) ([]*action.ActionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*action.ActionItem
	for _, items := range r.saved {
		for _, item := range items {
			if item.StudentID == studentID {
				out = append(out, item.Clone())
			}
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// analysis.SnapshotRepository
// ─────────────────────────────────────────────────────────────────────────────

type memSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []*analysis.RiskSnapshot
	runs      []*analysis.ScanRun
	alerts    []*analysis.RiskAlert
	saveErr   error
}

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{}
}

func (r *memSnapshotRepo) SaveSnapshot(_ context.Context, snapshot *analysis.RiskSnapshot) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
	return nil
}

func (r *memSnapshotRepo) LatestForStudent(_ context.Context, studentID string) (*analysis.RiskSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.snapshots) - 1; i >= 0; i-- {
		if r.snapshots[i].StudentID == studentID {
			return r.snapshots[i], nil
		}
	}
	return nil, shared.ErrSnapshotNotFound
}

func (r *memSnapshotRepo) LatestSnapshots(_ context.Context, _ shared.Pagination) ([]*analysis.RiskSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*analysis.RiskSnapshot(nil), r.snapshots...), nil
}

func (r *memSnapshotRepo) CountByLevel(_ context.Context) (map[analysis.RiskLevel]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[analysis.RiskLevel]int)
	latest := make(map[string]analysis.RiskLevel)
	for _, snap := range r.snapshots {
		latest[snap.StudentID] = snap.RiskLevel
	}
	for _, level := range latest {
		counts[level]++
	}
	return counts, nil
}

func (r *memSnapshotRepo) SaveScanRun(_ context.Context, run *analysis.ScanRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, stored := range r.runs {
		if stored.ID == run.ID {
			r.runs[i] = run
			return nil
		}
	}
	r.runs = append(r.runs, run)
	return nil
}

func (r *memSnapshotRepo) LastScanRun(_ context.Context) (*analysis.ScanRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return nil, shared.ErrScanRunNotFound
	}
	return r.runs[len(r.runs)-1], nil
}

func (r *memSnapshotRepo) InsertAlert(_ context.Context, alert *analysis.RiskAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *memSnapshotRepo) ListRecentAlerts(_ context.Context, limit int, unacknowledgedOnly bool) ([]*analysis.RiskAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*analysis.RiskAlert, 0, limit)
	for i := len(r.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if unacknowledgedOnly && r.alerts[i].Acknowledged {
			continue
		}
		out = append(out, r.alerts[i])
	}
	return out, nil
}

func (r *memSnapshotRepo) AcknowledgeAlert(_ context.Context, alertID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, alert := range r.alerts {
		if alert.ID == alertID {
			alert.Acknowledge()
			return nil
		}
	}
	return shared.ErrNotFound
}

// ─────────────────────────────────────────────────────────────────────────────
// analysis.ReportCache
// ─────────────────────────────────────────────────────────────────────────────

type memReportCache struct {
	mu          sync.Mutex
	reports     map[string]*analysis.StudentReport
	invalidated []string
	getErr      error
	setErr      error
}

func newMemReportCache() *memReportCache {
	return &memReportCache{reports: make(map[string]*analysis.StudentReport)}
}

func (c *memReportCache) GetReport(_ context.Context, studentID string) (*analysis.StudentReport, error) {
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

func (c *memReportCache) SetReport(_ context.Context, report *analysis.StudentReport, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[report.StudentID] = report
	return nil
}

func (c *memReportCache) InvalidateStudent(_ context.Context, studentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reports, studentID)
	c.invalidated = append(c.invalidated, studentID)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// shared.EventPublisher
// ─────────────────────────────────────────────────────────────────────────────

type memPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *memPublisher) Publish(event shared.Event) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *memPublisher) published() []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shared.Event(nil), p.events...)
}

func (p *memPublisher) typesSeen() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]shared.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.EventType())
	}
	return types
}
