// Package shared contains common domain types, errors, and events that are
// used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Analysis events
	EventAnalysisCompleted EventType = "analysis.completed"
	EventRiskLevelCritical EventType = "risk.level.critical"

	// Action events
	EventActionsGenerated EventType = "actions.generated"
	EventActionAdvanced   EventType = "action.advanced"
	EventActionEscalated  EventType = "action.escalated"

	// System events
	EventScanCompleted EventType = "system.scan_completed"
	EventRecordsSynced EventType = "system.records_synced"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Analysis Events
// ═══════════════════════════════════════════════════════════════════════════

// AnalysisCompletedEvent is emitted when a full risk analysis finishes for a student.
type AnalysisCompletedEvent struct {
	BaseEvent
	StudentID      string  `json:"student_id"`
	Percentage     float64 `json:"percentage"`
	RiskLevel      string  `json:"risk_level"`
	TrendDirection string  `json:"trend_direction"`
	TotalClasses   int     `json:"total_classes"`
	ActionCount    int     `json:"action_count"`
}

// Payload implements Event interface.
func (e AnalysisCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"percentage":      e.Percentage,
		"risk_level":      e.RiskLevel,
		"trend_direction": e.TrendDirection,
		"total_classes":   e.TotalClasses,
		"action_count":    e.ActionCount,
	}
}

// NewAnalysisCompletedEvent creates a new AnalysisCompletedEvent.
func NewAnalysisCompletedEvent(studentID string, percentage float64, riskLevel, trendDirection string, totalClasses, actionCount int) AnalysisCompletedEvent {
	return AnalysisCompletedEvent{
		BaseEvent:      NewBaseEvent(EventAnalysisCompleted, studentID),
		StudentID:      studentID,
		Percentage:     percentage,
		RiskLevel:      riskLevel,
		TrendDirection: trendDirection,
		TotalClasses:   totalClasses,
		ActionCount:    actionCount,
	}
}

// RiskLevelCriticalEvent is emitted when a student is classified as critical risk.
// Handlers use it to record alerts that reach an advisor the same day.
type RiskLevelCriticalEvent struct {
	BaseEvent
	StudentID     string  `json:"student_id"`
	Percentage    float64 `json:"percentage"`
	AbsentClasses int     `json:"absent_classes"`
	LateClasses   int     `json:"late_classes"`
}

// Payload implements Event interface.
func (e RiskLevelCriticalEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"percentage":     e.Percentage,
		"absent_classes": e.AbsentClasses,
		"late_classes":   e.LateClasses,
	}
}

// NewRiskLevelCriticalEvent creates a new RiskLevelCriticalEvent.
func NewRiskLevelCriticalEvent(studentID string, percentage float64, absentClasses, lateClasses int) RiskLevelCriticalEvent {
	return RiskLevelCriticalEvent{
		BaseEvent:     NewBaseEvent(EventRiskLevelCritical, studentID),
		StudentID:     studentID,
		Percentage:    percentage,
		AbsentClasses: absentClasses,
		LateClasses:   lateClasses,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Action Events
// ═══════════════════════════════════════════════════════════════════════════

// ActionsGeneratedEvent is emitted when the generator seeds a session ledger.
type ActionsGeneratedEvent struct {
	BaseEvent
	StudentID string   `json:"student_id"`
	SessionID string   `json:"session_id"`
	Count     int      `json:"count"`
	Types     []string `json:"types"`
}

// Payload implements Event interface.
func (e ActionsGeneratedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"session_id": e.SessionID,
		"count":      e.Count,
		"types":      e.Types,
	}
}

// NewActionsGeneratedEvent creates a new ActionsGeneratedEvent.
func NewActionsGeneratedEvent(studentID, sessionID string, types []string) ActionsGeneratedEvent {
	return ActionsGeneratedEvent{
		BaseEvent: NewBaseEvent(EventActionsGenerated, studentID),
		StudentID: studentID,
		SessionID: sessionID,
		Count:     len(types),
		Types:     types,
	}
}

// ActionAdvancedEvent is emitted when an action item changes status.
type ActionAdvancedEvent struct {
	BaseEvent
	StudentID  string `json:"student_id"`
	ActionID   string `json:"action_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Forced     bool   `json:"forced"`
}

// Payload implements Event interface.
func (e ActionAdvancedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":  e.StudentID,
		"action_id":   e.ActionID,
		"from_status": e.FromStatus,
		"to_status":   e.ToStatus,
		"forced":      e.Forced,
	}
}

// NewActionAdvancedEvent creates a new ActionAdvancedEvent.
func NewActionAdvancedEvent(studentID, actionID, fromStatus, toStatus string, forced bool) ActionAdvancedEvent {
	return ActionAdvancedEvent{
		BaseEvent:  NewBaseEvent(EventActionAdvanced, studentID),
		StudentID:  studentID,
		ActionID:   actionID,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Forced:     forced,
	}
}

// ActionEscalatedEvent is emitted when the overdue sweep raises the priority
// of an action item that blew past its due date.
type ActionEscalatedEvent struct {
	BaseEvent
	StudentID    string    `json:"student_id"`
	ActionID     string    `json:"action_id"`
	FromPriority string    `json:"from_priority"`
	ToPriority   string    `json:"to_priority"`
	DueDate      time.Time `json:"due_date"`
}

// Payload implements Event interface.
func (e ActionEscalatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":    e.StudentID,
		"action_id":     e.ActionID,
		"from_priority": e.FromPriority,
		"to_priority":   e.ToPriority,
		"due_date":      e.DueDate,
	}
}

// NewActionEscalatedEvent creates a new ActionEscalatedEvent.
func NewActionEscalatedEvent(studentID, actionID, fromPriority, toPriority string, dueDate time.Time) ActionEscalatedEvent {
	return ActionEscalatedEvent{
		BaseEvent:    NewBaseEvent(EventActionEscalated, studentID),
		StudentID:    studentID,
		ActionID:     actionID,
		FromPriority: fromPriority,
		ToPriority:   toPriority,
		DueDate:      dueDate,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// ScanCompletedEvent is emitted when a cohort risk scan finishes.
type ScanCompletedEvent struct {
	BaseEvent
	RunID           string        `json:"run_id"`
	StudentsScanned int           `json:"students_scanned"`
	CriticalCount   int           `json:"critical_count"`
	HighCount       int           `json:"high_count"`
	MediumCount     int           `json:"medium_count"`
	LowCount        int           `json:"low_count"`
	Duration        time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e ScanCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"run_id":           e.RunID,
		"students_scanned": e.StudentsScanned,
		"critical_count":   e.CriticalCount,
		"high_count":       e.HighCount,
		"medium_count":     e.MediumCount,
		"low_count":        e.LowCount,
		"duration":         e.Duration.String(),
	}
}

// NewScanCompletedEvent creates a new ScanCompletedEvent.
func NewScanCompletedEvent(runID string, scanned, critical, high, medium, low int, duration time.Duration) ScanCompletedEvent {
	return ScanCompletedEvent{
		BaseEvent:       NewBaseEvent(EventScanCompleted, runID),
		RunID:           runID,
		StudentsScanned: scanned,
		CriticalCount:   critical,
		HighCount:       high,
		MediumCount:     medium,
		LowCount:        low,
		Duration:        duration,
	}
}

// RecordsSyncedEvent is emitted when a roster-wide import from the student
// information system finishes.
type RecordsSyncedEvent struct {
	BaseEvent
	RunID           string        `json:"run_id"`
	StudentsSynced  int           `json:"students_synced"`
	RecordsImported int           `json:"records_imported"`
	FailedCount     int           `json:"failed_count"`
	Duration        time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e RecordsSyncedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"run_id":           e.RunID,
		"students_synced":  e.StudentsSynced,
		"records_imported": e.RecordsImported,
		"failed_count":     e.FailedCount,
		"duration":         e.Duration.String(),
	}
}

// NewRecordsSyncedEvent creates a new RecordsSyncedEvent.
func NewRecordsSyncedEvent(runID string, synced, imported, failed int, duration time.Duration) RecordsSyncedEvent {
	return RecordsSyncedEvent{
		BaseEvent:       NewBaseEvent(EventRecordsSynced, runID),
		RunID:           runID,
		StudentsSynced:  synced,
		RecordsImported: imported,
		FailedCount:     failed,
		Duration:        duration,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
