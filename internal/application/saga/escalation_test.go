package saga

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/attendance-insight/internal/application/session"
	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// overdueDraft builds a manual action whose due date passed n days ago.
func overdueDraft(title string, priority action.Priority, daysOverdue int) action.Draft {
	return action.Draft{
		Type:        action.TypeContactStudent,
		Title:       title,
		Description: "Call the student and ask what is going on.",
		Priority:    priority,
		DueDate:     time.Now().UTC().AddDate(0, 0, -daysOverdue),
	}
}

func futureDraft(title string, priority action.Priority) action.Draft {
	d := overdueDraft(title, priority, 0)
	d.DueDate = time.Now().UTC().AddDate(0, 0, 7)
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// stubs
// ─────────────────────────────────────────────────────────────────────────────

type sweepActionRepo struct {
	mu        sync.Mutex
	updated   []*action.ActionItem
	updateErr error
}

func (r *sweepActionRepo) SaveItems(_ context.Context, _ string, _ []*action.ActionItem) error {
	return nil
}

func (r *sweepActionRepo) UpdateItem(_ context.Context, _ string, item *action.ActionItem) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, item.Clone())
	return nil
}

func (r *sweepActionRepo) LoadBySession(_ context.Context, _ string) ([]*action.ActionItem, error) {
	return nil, nil
}

func (r *sweepActionRepo) ListByStudent(_ context.Context, _ string) ([]*action.ActionItem, error) {
	return nil, nil
}

type sweepBus struct {
	mu         sync.Mutex
	events     []shared.Event
	publishErr error
}

func (b *sweepBus) Publish(event shared.Event) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// fixture
// ─────────────────────────────────────────────────────────────────────────────

type sweepFixture struct {
	sessions *session.Manager
	repo     *sweepActionRepo
	bus      *sweepBus
	saga     *EscalationSweepSaga
}

func newSweepFixture(t *testing.T, config EscalationSweepConfig) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		sessions: session.NewManager(time.Hour, testLogger()),
		repo:     &sweepActionRepo{},
		bus:      &sweepBus{},
	}
	saga, err := NewEscalationSweepSaga(f.sessions, f.repo, f.bus, testLogger(), config)
	require.NoError(t, err)
	f.saga = saga
	return f
}

func (f *sweepFixture) addSession(t *testing.T, studentID string, drafts ...action.Draft) (*session.Session, []*action.ActionItem) {
	t.Helper()
	sess, _ := f.sessions.GetOrCreate(studentID)
	items := make([]*action.ActionItem, 0, len(drafts))
	for _, draft := range drafts {
		item, err := sess.AddAction(draft)
		require.NoError(t, err)
		items = append(items, item)
	}
	return sess, items
}

// ─────────────────────────────────────────────────────────────────────────────
// tests
// ─────────────────────────────────────────────────────────────────────────────

func TestEscalationSweepSaga_EscalatesOverdueAction(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	sess, items := f.addSession(t, "stu-1", overdueDraft("Call home", action.PriorityMedium, 3))

	result, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SweptSessions)
	assert.Equal(t, 1, result.OverdueFound)
	require.Len(t, result.Escalated, 1)
	assert.Equal(t, "stu-1", result.Escalated[0].StudentID)
	assert.Equal(t, action.PriorityMedium, result.Escalated[0].From)
	assert.Equal(t, action.PriorityHigh, result.Escalated[0].To)

	// The ledger now holds the raised priority.
	current, err := sess.GetAction(items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, action.PriorityHigh, current.Priority)
}

func TestEscalationSweepSaga_LeavesFutureActionsAlone(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	sess, items := f.addSession(t, "stu-1",
		overdueDraft("Call home", action.PriorityMedium, 3),
		futureDraft("Plan tutoring", action.PriorityLow),
	)

	result, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.OverdueFound)
	require.Len(t, result.Escalated, 1)

	untouched, err := sess.GetAction(items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, action.PriorityLow, untouched.Priority)
}

func TestEscalationSweepSaga_CriticalIsTheCeiling(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	f.addSession(t, "stu-1", overdueDraft("Escalate to dean", action.PriorityCritical, 10))

	result, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.OverdueFound)
	assert.Empty(t, result.Escalated)
	assert.Equal(t, 1, result.AtCeiling)
	assert.Empty(t, f.repo.updated)
	assert.Empty(t, f.bus.events)
}

func TestEscalationSweepSaga_CompletedActionsAreNotOverdue(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	sess, items := f.addSession(t, "stu-1", overdueDraft("Call home", action.PriorityMedium, 3))
	_, err := sess.AdvanceAction(items[0].ID, action.StatusCompleted, true)
	require.NoError(t, err)

	result, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SweptSessions)
	assert.Zero(t, result.OverdueFound)
	assert.Empty(t, result.Escalated)
}

func TestEscalationSweepSaga_SweepsEveryLiveSession(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	f.addSession(t, "stu-1", overdueDraft("Call home", action.PriorityLow, 2))
	f.addSession(t, "stu-2", overdueDraft("Meet curator", action.PriorityHigh, 5))
	f.addSession(t, "stu-3")

	result, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.SweptSessions)
	assert.Equal(t, 2, result.OverdueFound)
	assert.Len(t, result.Escalated, 2)
	assert.Equal(t, 2, result.Persisted)
}

func TestEscalationSweepSaga_SubsetSweepsOnlyNamedStudents(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	f.addSession(t, "stu-1", overdueDraft("Call home", action.PriorityLow, 2))
	f.addSession(t, "stu-2", overdueDraft("Meet curator", action.PriorityLow, 2))

	result, err := f.saga.SweepStudent(context.Background(), "stu-2")
	require.NoError(t, err)

	assert.Equal(t, 1, result.SweptSessions)
	require.Len(t, result.Escalated, 1)
	assert.Equal(t, "stu-2", result.Escalated[0].StudentID)
}

func TestEscalationSweepSaga_StudentWithoutSessionIsSkipped(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())

	result, err := f.saga.SweepStudent(context.Background(), "stu-ghost")
	require.NoError(t, err)

	assert.Zero(t, result.SweptSessions)
	assert.Empty(t, result.Escalated)
}

func TestEscalationSweepSaga_PersistFailureDoesNotAbortSweep(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	f.repo.updateErr = errors.New("connection refused")
	f.addSession(t, "stu-1", overdueDraft("Call home", action.PriorityMedium, 3))

	result, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
	require.NoError(t, err)

	require.Len(t, result.Escalated, 1)
	assert.Zero(t, result.Persisted)

	// Events still go out: the ledger state did change.
	assert.Len(t, f.bus.events, 1)
}

func TestEscalationSweepSaga_PublishFailureIsCounted(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	f.bus.publishErr = errors.New("bus is down")
	f.addSession(t, "stu-1", overdueDraft("Call home", action.PriorityMedium, 3))

	result, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
	require.NoError(t, err)

	require.Len(t, result.Escalated, 1)
	assert.Equal(t, 1, result.PublishFailures)
	assert.Equal(t, 1, result.Persisted)
}

func TestEscalationSweepSaga_PublishesEscalationEvent(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	_, items := f.addSession(t, "stu-1", overdueDraft("Call home", action.PriorityMedium, 3))

	_, err := f.saga.Execute(context.Background(), EscalationSweepInput{CorrelationID: "sweep-7"})
	require.NoError(t, err)

	require.Len(t, f.bus.events, 1)
	event, ok := f.bus.events[0].(shared.ActionEscalatedEvent)
	require.True(t, ok)
	assert.Equal(t, shared.EventActionEscalated, event.EventType())
	assert.Equal(t, "stu-1", event.StudentID)
	assert.Equal(t, string(items[0].ID), event.ActionID)
	assert.Equal(t, "medium", event.FromPriority)
	assert.Equal(t, "high", event.ToPriority)
	assert.Equal(t, "sweep-7", event.CorrelationID)
}

func TestEscalationSweepSaga_CapLimitsEscalationsPerRun(t *testing.T) {
	f := newSweepFixture(t, EscalationSweepConfig{MaxEscalationsPerRun: 2})
	f.addSession(t, "stu-1",
		overdueDraft("Call home", action.PriorityLow, 2),
		overdueDraft("Meet curator", action.PriorityLow, 3),
		overdueDraft("Notify parents", action.PriorityLow, 4),
	)

	result, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.OverdueFound)
	assert.Len(t, result.Escalated, 2)
}

func TestEscalationSweepSaga_RepeatedSweepsClimbToCritical(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())
	sess, items := f.addSession(t, "stu-1", overdueDraft("Call home", action.PriorityMedium, 3))

	for i := 0; i < 2; i++ {
		_, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
		require.NoError(t, err)
	}

	current, err := sess.GetAction(items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, action.PriorityCritical, current.Priority)

	// The third sweep finds the action at the ceiling.
	result, err := f.saga.Execute(context.Background(), EscalationSweepInput{})
	require.NoError(t, err)
	assert.Empty(t, result.Escalated)
	assert.Equal(t, 1, result.AtCeiling)
}

func TestEscalationSweepSaga_RejectsBlankStudentID(t *testing.T) {
	f := newSweepFixture(t, DefaultEscalationSweepConfig())

	_, err := f.saga.Execute(context.Background(), EscalationSweepInput{StudentIDs: []string{""}})
	require.Error(t, err)

	var sweepErr *EscalationError
	require.True(t, errors.As(err, &sweepErr))
	assert.Equal(t, StepSweepSessions, sweepErr.Step)
}

func TestEscalationSweepSaga_BuilderValidatesDependencies(t *testing.T) {
	_, err := NewEscalationSweepSagaBuilder().Build()
	require.Error(t, err)

	saga, err := NewEscalationSweepSagaBuilder().
		WithSessions(session.NewManager(time.Hour, testLogger())).
		WithActionRepo(&sweepActionRepo{}).
		WithEventBus(&sweepBus{}).
		WithLogger(testLogger()).
		Build()
	require.NoError(t, err)
	assert.NotNil(t, saga)
}
