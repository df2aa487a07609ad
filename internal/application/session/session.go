// Package session keeps per-student analysis state between requests.
// A session owns the action ledger of one student and remembers the last
// computed report. Sessions live in memory with a TTL; Postgres keeps a
// copy of the ledger for history, the session is the working set.
package session

import (
	"sync"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
)

// Session is the working state of one student's analysis.
// All methods are safe for concurrent use.
type Session struct {
	id        string
	studentID string
	createdAt time.Time

	mu         sync.Mutex
	lastSeenAt time.Time
	seeded     bool
	ledger     *action.Ledger
	report     *analysis.StudentReport
}

func newSession(id, studentID string, now time.Time) *Session {
	return &Session{
		id:         id,
		studentID:  studentID,
		createdAt:  now,
		lastSeenAt: now,
		ledger:     action.NewLedger(studentID),
	}
}

// ID returns the session identifier used as the persistence key.
func (s *Session) ID() string {
	return s.id
}

// StudentID returns the student this session belongs to.
func (s *Session) StudentID() string {
	return s.studentID
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastSeen returns the time of the last session access.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeenAt
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenAt = now
}

func (s *Session) expired(ttl time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeenAt) > ttl
}

// ─────────────────────────────────────────────────────────────────────────────
// Report state
// ─────────────────────────────────────────────────────────────────────────────

// SetReport stores the latest computed report.
func (s *Session) SetReport(report *analysis.StudentReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
}

// Report returns a copy of the last computed report, or nil if the
// student has not been analyzed in this session yet.
func (s *Session) Report() *analysis.StudentReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return nil
	}
	clone := *s.report
	if s.report.Tallies != nil {
		clone.Tallies = append(clone.Tallies[:0:0], s.report.Tallies...)
	}
	return &clone
}

// ─────────────────────────────────────────────────────────────────────────────
// Ledger operations
// ─────────────────────────────────────────────────────────────────────────────

// SeedOnce loads generated actions into the ledger exactly once per
// session. The first call seeds and returns true; re-analysis within the
// same session returns false without touching existing actions, so the
// curator's status changes and notes survive a refresh.
func (s *Session) SeedOnce(items []*action.ActionItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return false, nil
	}
	if err := s.ledger.Seed(items); err != nil {
		return false, err
	}
	s.seeded = true
	return true, nil
}

// Seeded reports whether the ledger has been seeded in this session.
func (s *Session) Seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded
}

// AddAction adds a manual action to the ledger.
func (s *Session) AddAction(draft action.Draft) (*action.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Add(draft)
}

// AdvanceAction moves an action one step forward, or to an arbitrary
// valid status when force is set.
func (s *Session) AdvanceAction(id action.ActionID, next action.Status, force bool) (*action.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if force {
		return s.ledger.ForceSet(id, next)
	}
	return s.ledger.Advance(id, next)
}

// AppendNote attaches a curator note to an action.
func (s *Session) AppendNote(id action.ActionID, text string) (*action.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.AppendNote(id, text)
}

// EscalateAction bumps an overdue action one priority level up.
// Returns the updated copy and the priority it had before.
func (s *Session) EscalateAction(id action.ActionID, now time.Time) (*action.ActionItem, action.Priority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Escalate(id, now)
}

// OverdueActions returns copies of actions whose due date has passed.
func (s *Session) OverdueActions(now time.Time) []*action.ActionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Overdue(now)
}

// GetAction returns a copy of one action.
func (s *Session) GetAction(id action.ActionID) (*action.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Get(id)
}

// ListActions returns copies of the ledger's actions in insertion order.
func (s *Session) ListActions(filter action.ListFilter) []*action.ActionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.List(filter)
}

// ActionCount returns the number of actions in the ledger.
func (s *Session) ActionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Count()
}

// Summary returns the ledger summary for the curator dashboard.
func (s *Session) Summary() action.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Summarize()
}
