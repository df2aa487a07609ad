// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
// Sagas ensure consistency across operations and handle compensation on failures.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edupulse/attendance-insight/internal/application/session"
	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESCALATION SWEEP SAGA
// Complex business process: priority escalation of overdue intervention actions
// Flow: Sweep Sessions → Collect Overdue → Escalate Priorities →
//
//	Persist Updates → Publish Events
//
// Philosophy: an overdue action is a signal the curator missed. The sweep
// raises its priority one level at a time so the action climbs the
// dashboard instead of quietly rotting at the bottom. A single failing
// action or session never aborts the whole sweep.
// ══════════════════════════════════════════════════════════════════════════════

// EscalationSweepInput contains parameters for one escalation sweep.
type EscalationSweepInput struct {
	// StudentIDs - optional subset of students to sweep. Empty means
	// every student with a live session.
	StudentIDs []string

	// Now - reference time for overdue checks. Zero means current time.
	Now time.Time

	// CorrelationID - optional ID tying published events to the
	// triggering run.
	CorrelationID string
}

// Validate checks if the input is valid.
func (i EscalationSweepInput) Validate() error {
	for _, id := range i.StudentIDs {
		if id == "" {
			return errors.New("escalation_sweep: student ID must not be empty")
		}
	}
	return nil
}

// EscalatedAction describes one successfully escalated action.
type EscalatedAction struct {
	// StudentID - the student the action belongs to.
	StudentID string

	// SessionID - the session whose ledger holds the action.
	SessionID string

	// ActionID - the escalated action.
	ActionID action.ActionID

	// From - priority before escalation.
	From action.Priority

	// To - priority after escalation.
	To action.Priority

	// DueDate - the due date the action overran.
	DueDate time.Time
}

// EscalationSweepResult contains the result of one sweep.
type EscalationSweepResult struct {
	// SweptSessions - number of live sessions inspected.
	SweptSessions int

	// OverdueFound - total overdue actions discovered across sessions.
	OverdueFound int

	// Escalated - actions whose priority was raised this sweep.
	Escalated []EscalatedAction

	// AtCeiling - overdue actions already at critical priority.
	AtCeiling int

	// Persisted - escalated actions whose new priority reached storage.
	Persisted int

	// PublishFailures - escalation events that could not be published.
	PublishFailures int

	// ProcessedAt - when the sweep completed.
	ProcessedAt time.Time
}

// HasEscalations returns true if any action was escalated.
func (r *EscalationSweepResult) HasEscalations() bool {
	return len(r.Escalated) > 0
}

// EscalationSweepStep represents a step in the escalation sweep.
type EscalationSweepStep string

const (
	StepSweepSessions      EscalationSweepStep = "sweep_sessions"
	StepCollectOverdue     EscalationSweepStep = "collect_overdue"
	StepEscalateOverdue    EscalationSweepStep = "escalate_overdue"
	StepPersistEscalations EscalationSweepStep = "persist_escalations"
	StepPublishEscalations EscalationSweepStep = "publish_escalations"
	StepEscalationComplete EscalationSweepStep = "complete"
)

// escalationCandidate pairs a live session with its overdue actions.
type escalationCandidate struct {
	studentID string
	sessionID string
	session   *session.Session
	overdue   []*action.ActionItem
}

// escalationOutcome is an escalated action waiting for persistence.
type escalationOutcome struct {
	candidate escalationCandidate
	item      *action.ActionItem
	from      action.Priority
}

// EscalationSweepState tracks the current state of the sweep saga.
type EscalationSweepState struct {
	CurrentStep EscalationSweepStep
	Input       EscalationSweepInput
	Now         time.Time
	Candidates  []escalationCandidate
	Outcomes    []escalationOutcome
	Result      EscalationSweepResult
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       error
	FailedStep  EscalationSweepStep
}

// ══════════════════════════════════════════════════════════════════════════════
// ESCALATION SWEEP SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EscalationSweepSaga walks every live session, escalates overdue actions
// and mirrors the new priorities to storage.
type EscalationSweepSaga struct {
	// Dependencies
	sessions   *session.Manager
	actionRepo action.Repository
	eventBus   shared.EventPublisher
	logger     *slog.Logger

	// Configuration
	maxEscalationsPerRun int
}

// EscalationSweepConfig contains configuration for the sweep saga.
type EscalationSweepConfig struct {
	// MaxEscalationsPerRun caps how many actions one sweep may escalate.
	// A misconfigured due-date generator must not flood the dashboard.
	MaxEscalationsPerRun int
}

// DefaultEscalationSweepConfig returns default configuration.
func DefaultEscalationSweepConfig() EscalationSweepConfig {
	return EscalationSweepConfig{
		MaxEscalationsPerRun: 200,
	}
}

// NewEscalationSweepSaga creates a new escalation sweep saga.
func NewEscalationSweepSaga(
	sessions *session.Manager,
	actionRepo action.Repository,
	eventBus shared.EventPublisher,
	logger *slog.Logger,
	config EscalationSweepConfig,
) (*EscalationSweepSaga, error) {
	if sessions == nil {
		return nil, errors.New("escalation_sweep: session manager is required")
	}
	if actionRepo == nil {
		return nil, errors.New("escalation_sweep: action repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxEscalationsPerRun <= 0 {
		config.MaxEscalationsPerRun = DefaultEscalationSweepConfig().MaxEscalationsPerRun
	}
	return &EscalationSweepSaga{
		sessions:             sessions,
		actionRepo:           actionRepo,
		eventBus:             eventBus,
		logger:               logger.With("saga", "escalation_sweep"),
		maxEscalationsPerRun: config.MaxEscalationsPerRun,
	}, nil
}

// Execute runs the complete escalation sweep.
func (s *EscalationSweepSaga) Execute(ctx context.Context, input EscalationSweepInput) (*EscalationSweepResult, error) {
	state := &EscalationSweepState{
		CurrentStep: StepSweepSessions,
		Input:       input,
		Now:         input.Now,
		StartedAt:   time.Now().UTC(),
	}
	if state.Now.IsZero() {
		state.Now = time.Now().UTC()
	}

	// Validate input
	if err := input.Validate(); err != nil {
		state.FailedStep = StepSweepSessions
		state.Error = err
		return nil, s.wrapError(state, err)
	}

	// Step 1: Resolve live sessions
	if err := s.stepSweepSessions(ctx, state); err != nil {
		return nil, s.wrapError(state, err)
	}

	// Step 2: Collect overdue actions
	state.CurrentStep = StepCollectOverdue
	if err := s.stepCollectOverdue(ctx, state); err != nil {
		return nil, s.wrapError(state, err)
	}

	// If nothing is overdue, return early
	if state.Result.OverdueFound == 0 {
		return s.complete(state), nil
	}

	// Step 3: Escalate priorities in session ledgers
	state.CurrentStep = StepEscalateOverdue
	if err := s.stepEscalateOverdue(ctx, state); err != nil {
		return nil, s.wrapError(state, err)
	}

	// Step 4: Mirror new priorities to storage
	state.CurrentStep = StepPersistEscalations
	if err := s.stepPersistEscalations(ctx, state); err != nil {
		// Non-critical - the session ledger holds the authoritative
		// state, storage catches up on the next save
	}

	// Step 5: Publish escalation events
	state.CurrentStep = StepPublishEscalations
	if err := s.stepPublishEscalations(ctx, state); err != nil {
		// Non-critical - the dashboard reflects escalations on the
		// next read either way
	}

	return s.complete(state), nil
}

// SweepAll sweeps every student with a live session.
func (s *EscalationSweepSaga) SweepAll(ctx context.Context, correlationID string) (*EscalationSweepResult, error) {
	return s.Execute(ctx, EscalationSweepInput{CorrelationID: correlationID})
}

// SweepStudent sweeps a single student's session.
func (s *EscalationSweepSaga) SweepStudent(ctx context.Context, studentID string) (*EscalationSweepResult, error) {
	return s.Execute(ctx, EscalationSweepInput{StudentIDs: []string{studentID}})
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

// stepSweepSessions resolves the target students and their live sessions.
// Students without a live session are skipped: no session means no ledger
// to escalate.
func (s *EscalationSweepSaga) stepSweepSessions(_ context.Context, state *EscalationSweepState) error {
	targets := state.Input.StudentIDs
	if len(targets) == 0 {
		targets = s.sessions.LiveStudentIDs()
	}

	candidates := make([]escalationCandidate, 0, len(targets))
	for _, studentID := range targets {
		sess, err := s.sessions.PeekByStudent(studentID)
		if err != nil {
			s.logger.Debug("student skipped: no live session",
				"student_id", studentID,
			)
			continue
		}
		candidates = append(candidates, escalationCandidate{
			studentID: studentID,
			sessionID: sess.ID(),
			session:   sess,
		})
	}

	state.Candidates = candidates
	state.Result.SweptSessions = len(candidates)
	return nil
}

// stepCollectOverdue gathers overdue actions per session and applies the
// per-run cap.
func (s *EscalationSweepSaga) stepCollectOverdue(_ context.Context, state *EscalationSweepState) error {
	total := 0
	kept := make([]escalationCandidate, 0, len(state.Candidates))

	for _, candidate := range state.Candidates {
		overdue := candidate.session.OverdueActions(state.Now)
		if len(overdue) == 0 {
			continue
		}

		// Cap escalations per run to keep a misbehaving generator
		// from flooding every priority to critical in a single sweep.
		remaining := s.maxEscalationsPerRun - total
		if remaining <= 0 {
			s.logger.Warn("escalation cap reached, remaining sessions deferred to next sweep",
				"cap", s.maxEscalationsPerRun,
			)
			break
		}
		if len(overdue) > remaining {
			overdue = overdue[:remaining]
		}

		candidate.overdue = overdue
		kept = append(kept, candidate)
		total += len(overdue)
	}

	state.Candidates = kept
	state.Result.OverdueFound = total
	return nil
}

// stepEscalateOverdue raises the priority of each overdue action through
// the session ledger. Individual failures are counted, not fatal.
func (s *EscalationSweepSaga) stepEscalateOverdue(_ context.Context, state *EscalationSweepState) error {
	for _, candidate := range state.Candidates {
		for _, overdueItem := range candidate.overdue {
			updated, from, err := candidate.session.EscalateAction(overdueItem.ID, state.Now)
			if err != nil {
				switch {
				case errors.Is(err, shared.ErrPriorityCeiling):
					state.Result.AtCeiling++
				case errors.Is(err, shared.ErrActionNotOverdue):
					// The curator completed the action between
					// collection and escalation. Nothing to do.
				default:
					s.logger.Warn("failed to escalate action",
						"student_id", candidate.studentID,
						"action_id", string(overdueItem.ID),
						"error", err,
					)
				}
				continue
			}

			state.Outcomes = append(state.Outcomes, escalationOutcome{
				candidate: candidate,
				item:      updated,
				from:      from,
			})
			state.Result.Escalated = append(state.Result.Escalated, EscalatedAction{
				StudentID: candidate.studentID,
				SessionID: candidate.sessionID,
				ActionID:  updated.ID,
				From:      from,
				To:        updated.Priority,
				DueDate:   updated.DueDate,
			})

			s.logger.Info("action escalated",
				"student_id", candidate.studentID,
				"action_id", string(updated.ID),
				"from", string(from),
				"to", string(updated.Priority),
				"due_date", updated.DueDate.Format("2006-01-02"),
			)
		}
	}
	return nil
}

// stepPersistEscalations mirrors escalated actions to storage.
func (s *EscalationSweepSaga) stepPersistEscalations(ctx context.Context, state *EscalationSweepState) error {
	var lastErr error
	for _, outcome := range state.Outcomes {
		if err := s.actionRepo.UpdateItem(ctx, outcome.candidate.sessionID, outcome.item); err != nil {
			lastErr = err
			s.logger.Warn("failed to persist escalated action",
				"session_id", outcome.candidate.sessionID,
				"action_id", string(outcome.item.ID),
				"error", err,
			)
			continue
		}
		state.Result.Persisted++
	}
	return lastErr
}

// stepPublishEscalations publishes one event per escalated action.
func (s *EscalationSweepSaga) stepPublishEscalations(_ context.Context, state *EscalationSweepState) error {
	if s.eventBus == nil {
		return nil
	}

	var lastErr error
	for _, outcome := range state.Outcomes {
		event := shared.NewActionEscalatedEvent(
			outcome.candidate.studentID,
			string(outcome.item.ID),
			string(outcome.from),
			string(outcome.item.Priority),
			outcome.item.DueDate,
		)
		if state.Input.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(state.Input.CorrelationID)
		}

		if err := s.eventBus.Publish(event); err != nil {
			lastErr = err
			state.Result.PublishFailures++
			s.logger.Warn("failed to publish escalation event",
				"action_id", string(outcome.item.ID),
				"error", err,
			)
			continue
		}
	}
	return lastErr
}

// complete finalizes the state and returns the result.
func (s *EscalationSweepSaga) complete(state *EscalationSweepState) *EscalationSweepResult {
	state.CurrentStep = StepEscalationComplete
	now := time.Now().UTC()
	state.CompletedAt = &now
	state.Result.ProcessedAt = now

	s.logger.Info("escalation sweep finished",
		"swept_sessions", state.Result.SweptSessions,
		"overdue_found", state.Result.OverdueFound,
		"escalated", len(state.Result.Escalated),
		"at_ceiling", state.Result.AtCeiling,
		"persisted", state.Result.Persisted,
		"duration", now.Sub(state.StartedAt),
	)

	result := state.Result
	return &result
}

// wrapError wraps an error with saga context.
func (s *EscalationSweepSaga) wrapError(state *EscalationSweepState, err error) error {
	return &EscalationError{
		Step:    state.FailedStep,
		Cause:   err,
		Message: fmt.Sprintf("escalation sweep failed at step '%s': %v", state.FailedStep, err),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// EscalationError represents an error during the escalation sweep.
type EscalationError struct {
	Step    EscalationSweepStep
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *EscalationError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *EscalationError) Unwrap() error {
	return e.Cause
}

// ══════════════════════════════════════════════════════════════════════════════
// ESCALATION SWEEP SAGA BUILDER (Fluent API)
// ══════════════════════════════════════════════════════════════════════════════

// EscalationSweepSagaBuilder provides a fluent API for building EscalationSweepSaga.
type EscalationSweepSagaBuilder struct {
	sessions   *session.Manager
	actionRepo action.Repository
	eventBus   shared.EventPublisher
	logger     *slog.Logger
	config     EscalationSweepConfig
}

// NewEscalationSweepSagaBuilder creates a new builder.
func NewEscalationSweepSagaBuilder() *EscalationSweepSagaBuilder {
	return &EscalationSweepSagaBuilder{
		config: DefaultEscalationSweepConfig(),
	}
}

// WithSessions sets the session manager.
func (b *EscalationSweepSagaBuilder) WithSessions(sessions *session.Manager) *EscalationSweepSagaBuilder {
	b.sessions = sessions
	return b
}

// WithActionRepo sets the action repository.
func (b *EscalationSweepSagaBuilder) WithActionRepo(repo action.Repository) *EscalationSweepSagaBuilder {
	b.actionRepo = repo
	return b
}

// WithEventBus sets the event bus.
func (b *EscalationSweepSagaBuilder) WithEventBus(bus shared.EventPublisher) *EscalationSweepSagaBuilder {
	b.eventBus = bus
	return b
}

// WithLogger sets the logger.
func (b *EscalationSweepSagaBuilder) WithLogger(logger *slog.Logger) *EscalationSweepSagaBuilder {
	b.logger = logger
	return b
}

// WithConfig sets the configuration.
func (b *EscalationSweepSagaBuilder) WithConfig(config EscalationSweepConfig) *EscalationSweepSagaBuilder {
	b.config = config
	return b
}

// Build creates the EscalationSweepSaga instance.
func (b *EscalationSweepSagaBuilder) Build() (*EscalationSweepSaga, error) {
	return NewEscalationSweepSaga(b.sessions, b.actionRepo, b.eventBus, b.logger, b.config)
}
