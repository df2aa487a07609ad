package sis

import (
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the standard envelope every SIS endpoint wraps its payload in.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta contains pagination details for list endpoints.
type Meta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// HasMorePages reports whether pages remain after the given one.
func (m *Meta) HasMorePages(page int) bool {
	return m != nil && page < m.TotalPages
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER
// ══════════════════════════════════════════════════════════════════════════════

// RosterEntryDTO is one student as the school information system exports it.
type RosterEntryDTO struct {
	StudentID  string    `json:"student_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	GradeLevel string    `json:"grade_level"`
	Homeroom   string    `json:"homeroom"`
	Active     bool      `json:"active"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// FullName returns the student's display name.
func (d RosterEntryDTO) FullName() string {
	name := strings.TrimSpace(d.FirstName + " " + d.LastName)
	if name == "" {
		return d.StudentID
	}
	return name
}

// RosterRequestDTO contains filters for the roster endpoint.
type RosterRequestDTO struct {
	Homeroom string
	Active   *bool
	Page     int
	PerPage  int
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceEntryDTO is one attendance mark as the SIS exports it.
// Date is a calendar date (YYYY-MM-DD), not an instant: the SIS records
// which class day the mark belongs to, while RecordedAt is when the
// teacher actually entered it.
type AttendanceEntryDTO struct {
	EntryID    string    `json:"entry_id"`
	StudentID  string    `json:"student_id"`
	CourseID   string    `json:"course_id"`
	CourseName string    `json:"course_name"`
	CourseCode string    `json:"course_code"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AttendanceRequestDTO contains filters for the attendance endpoint.
type AttendanceRequestDTO struct {
	StudentID string
	Since     *time.Time
	Page      int
	PerPage   int
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIErrorDTO is the error body SIS endpoints return on 4xx/5xx.
type APIErrorDTO struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("sis api error %s: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("sis api error %s: %s", e.Code, e.Message)
}

// IsServerError reports whether the error is on the SIS side and worth
// retrying, as opposed to a bad request that will fail the same way again.
func (e *APIErrorDTO) IsServerError() bool {
	switch e.Code {
	case "SERVER_ERROR", "TEMPORARILY_UNAVAILABLE", "GATEWAY_TIMEOUT":
		return true
	default:
		return false
	}
}
