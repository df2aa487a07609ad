package sis

import (
	"fmt"
	"strings"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/attendance"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER (Anti-Corruption Layer)
// Translates the SIS export vocabulary into domain records. Every district
// configures its SIS differently, so the same mark arrives under half a
// dozen spellings; the alias table folds the known ones into the four
// canonical statuses. Anything unknown passes through untouched and is
// rejected by domain validation, never silently coerced.
// ══════════════════════════════════════════════════════════════════════════════

// Date layouts the SIS has been observed to export.
const (
	dateLayout = "2006-01-02"
)

// statusAliases maps SIS status spellings to canonical attendance statuses.
// Keys are lowercase; lookup trims and lowercases first.
var statusAliases = map[string]attendance.Status{
	// present
	"present":  attendance.StatusPresent,
	"p":        attendance.StatusPresent,
	"attended": attendance.StatusPresent,

	// absent
	"absent":    attendance.StatusAbsent,
	"a":         attendance.StatusAbsent,
	"unexcused": attendance.StatusAbsent,
	"uav":       attendance.StatusAbsent,

	// late
	"late":  attendance.StatusLate,
	"l":     attendance.StatusLate,
	"tardy": attendance.StatusLate,

	// excused
	"excused":            attendance.StatusExcused,
	"e":                  attendance.StatusExcused,
	"excused_absence":    attendance.StatusExcused,
	"authorized_absence": attendance.StatusExcused,
	"medical":            attendance.StatusExcused,
}

// MappingError describes a structural failure while translating one entry.
type MappingError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *MappingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mapping %s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("mapping %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error.
func (e *MappingError) Unwrap() error {
	return e.Cause
}

// Mapper converts SIS DTOs into domain types.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// NormalizeStatus folds a SIS status spelling into a canonical attendance
// status. Unknown spellings come back lowercased but otherwise untouched:
// RawRecord.Validate is the place that rejects them.
func (m *Mapper) NormalizeStatus(raw string) attendance.Status {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := statusAliases[key]; ok {
		return canonical
	}
	return attendance.Status(key)
}

// RecordFromDTO converts one attendance entry into a domain record.
// Returns a MappingError when the entry is structurally unusable (no date,
// unparseable date). Status problems are not mapping errors.
func (m *Mapper) RecordFromDTO(dto AttendanceEntryDTO) (attendance.RawRecord, error) {
	rawDate := strings.TrimSpace(dto.Date)
	if rawDate == "" {
		return attendance.RawRecord{}, &MappingError{
			Field:   "date",
			Message: fmt.Sprintf("entry %s has no date", dto.EntryID),
		}
	}

	date, err := parseDate(rawDate)
	if err != nil {
		return attendance.RawRecord{}, &MappingError{
			Field:   "date",
			Message: fmt.Sprintf("entry %s has unparseable date %q", dto.EntryID, rawDate),
			Cause:   err,
		}
	}

	return attendance.RawRecord{
		StudentID:   strings.TrimSpace(dto.StudentID),
		SubjectID:   strings.TrimSpace(dto.CourseID),
		SubjectName: strings.TrimSpace(dto.CourseName),
		SubjectCode: strings.TrimSpace(dto.CourseCode),
		Date:        date,
		Status:      m.NormalizeStatus(dto.Status),
	}, nil
}

// RecordsFromDTOs converts a batch, skipping entries that cannot be mapped.
// The errors are returned alongside the good records so the sync can log
// what it dropped without failing the whole import over one bad row.
func (m *Mapper) RecordsFromDTOs(dtos []AttendanceEntryDTO) ([]attendance.RawRecord, []error) {
	records := make([]attendance.RawRecord, 0, len(dtos))
	var errs []error

	for _, dto := range dtos {
		rec, err := m.RecordFromDTO(dto)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}

	return records, errs
}

// ActiveStudentIDs extracts the IDs of active roster students.
// Inactive students stay in the SIS export for reporting, but the engine
// only analyzes students who are still enrolled.
func (m *Mapper) ActiveStudentIDs(entries []RosterEntryDTO) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.StudentID)
		if id == "" || !e.Active {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// parseDate parses a calendar date, accepting a full timestamp as a
// fallback for SIS builds that export RFC 3339 everywhere.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
