// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Attendance data errors
	ErrUnknownStatus = errors.New("unknown attendance status")
	ErrIntegrity     = errors.New("integrity violation")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrExpired         = errors.New("expired")

	// Infrastructure errors
	ErrUnavailable = errors.New("service unavailable")
	ErrTimeout     = errors.New("operation timeout")
	ErrInternal    = errors.New("internal error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "attendance", "analysis", "action"
	Op      string // Operation that failed, e.g., "Normalize", "Advance"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Attendance domain errors
var (
	ErrRecordUnknownStatus = NewDomainError("attendance", "Normalize", ErrUnknownStatus, "record status is not one of present/absent/late/excused")
	ErrDuplicateRecord     = NewDomainError("attendance", "Normalize", ErrIntegrity, "more than one record for the same student, subject and date")
	ErrTallyMismatch       = NewDomainError("attendance", "Aggregate", ErrIntegrity, "tally counts do not sum to total classes")
	ErrEmptyStudentID      = NewDomainError("attendance", "Validate", ErrEmptyValue, "student id cannot be empty")
	ErrEmptySubjectID      = NewDomainError("attendance", "Validate", ErrEmptyValue, "subject id cannot be empty")
	ErrZeroRecordDate      = NewDomainError("attendance", "Validate", ErrInvalidInput, "record date cannot be zero")
)

// Analysis domain errors
var (
	ErrInvalidRiskBands = NewDomainError("analysis", "Validate", ErrValueOutOfRange, "risk thresholds must be ascending")
	ErrInvalidWindow    = NewDomainError("analysis", "Validate", ErrValueOutOfRange, "trend window must be positive")
	ErrNegativeDeadband = NewDomainError("analysis", "Validate", ErrNegativeValue, "trend deadband cannot be negative")
	ErrUnorderedSeries  = NewDomainError("analysis", "AnalyzeTrend", ErrInvalidInput, "daily rate series is not chronologically ordered")
	ErrInvalidRiskLevel = NewDomainError("analysis", "Validate", ErrInvalidInput, "invalid risk level")
)

// Action domain errors
var (
	ErrActionNotFound      = NewDomainError("action", "Find", ErrNotFound, "action item not found")
	ErrActionExists        = NewDomainError("action", "Add", ErrAlreadyExists, "action item with this id already exists")
	ErrEmptyActionTitle    = NewDomainError("action", "Add", ErrValidation, "action title cannot be empty")
	ErrEmptyActionText     = NewDomainError("action", "Add", ErrValidation, "action description cannot be empty")
	ErrEmptyActionNote     = NewDomainError("action", "AppendNote", ErrValidation, "note text cannot be empty")
	ErrInvalidActionType   = NewDomainError("action", "Validate", ErrInvalidInput, "invalid action type")
	ErrInvalidActionStatus = NewDomainError("action", "Validate", ErrInvalidInput, "invalid action status")
	ErrInvalidPriority     = NewDomainError("action", "Validate", ErrInvalidInput, "invalid action priority")
	ErrBackwardTransition  = NewDomainError("action", "Advance", ErrStateTransition, "action status can only move forward")
	ErrSkippedTransition   = NewDomainError("action", "Advance", ErrStateTransition, "action status cannot skip in_progress")
	ErrActionNotOverdue    = NewDomainError("action", "Escalate", ErrInvalidState, "action item is not overdue")
	ErrPriorityCeiling     = NewDomainError("action", "Escalate", ErrInvalidState, "action priority is already critical")
)

// Session domain errors
var (
	ErrSessionNotFound = NewDomainError("session", "Find", ErrNotFound, "analysis session not found")
	ErrSessionExpired  = NewDomainError("session", "Touch", ErrExpired, "analysis session has expired")
	ErrAlreadySeeded   = NewDomainError("session", "Seed", ErrInvalidState, "session ledger has already been seeded")
)

// Snapshot domain errors
var (
	ErrSnapshotNotFound = NewDomainError("snapshot", "Find", ErrNotFound, "risk snapshot not found")
	ErrScanRunNotFound  = NewDomainError("snapshot", "FindRun", ErrNotFound, "scan run not found")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsUnknownStatus checks if the error is an unknown attendance status error.
func IsUnknownStatus(err error) bool {
	return errors.Is(err, ErrUnknownStatus)
}

// IsIntegrity checks if the error is a data integrity violation.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsStateTransition checks if the error is an invalid state transition.
func IsStateTransition(err error) bool {
	return errors.Is(err, ErrStateTransition)
}

// IsRetryable checks if the operation can be retried.
// Pure engine errors are never retryable; only infrastructure failures are.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTimeout)
}
