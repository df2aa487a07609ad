package sis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

func TestMapper_NormalizeStatus(t *testing.T) {
	m := NewMapper()

	tests := []struct {
		raw  string
		want attendance.Status
	}{
		{"present", attendance.StatusPresent},
		{"P", attendance.StatusPresent},
		{"Attended", attendance.StatusPresent},
		{"absent", attendance.StatusAbsent},
		{"A", attendance.StatusAbsent},
		{"UAV", attendance.StatusAbsent},
		{" tardy ", attendance.StatusLate},
		{"L", attendance.StatusLate},
		{"Authorized_Absence", attendance.StatusExcused},
		{"medical", attendance.StatusExcused},
		{"E", attendance.StatusExcused},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, m.NormalizeStatus(tt.raw), "raw status %q", tt.raw)
	}
}

func TestMapper_NormalizeStatus_UnknownPassesThrough(t *testing.T) {
	m := NewMapper()

	// Unknown spellings are not coerced; validation downstream rejects them.
	got := m.NormalizeStatus(" Vacationing ")
	assert.Equal(t, attendance.Status("vacationing"), got)
	assert.False(t, got.IsValid())
}

func TestMapper_RecordFromDTO(t *testing.T) {
	m := NewMapper()

	rec, err := m.RecordFromDTO(AttendanceEntryDTO{
		EntryID:    "ent-1",
		StudentID:  " stu-042 ",
		CourseID:   "crs-math",
		CourseName: "Algebra II",
		CourseCode: "MATH-201",
		Date:       "2024-03-15",
		Status:     "Tardy",
	})
	require.NoError(t, err)

	assert.Equal(t, "stu-042", rec.StudentID)
	assert.Equal(t, "crs-math", rec.SubjectID)
	assert.Equal(t, "Algebra II", rec.SubjectName)
	assert.Equal(t, "MATH-201", rec.SubjectCode)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Equal(t, attendance.StatusLate, rec.Status)
	assert.NoError(t, rec.Validate())
}

func TestMapper_RecordFromDTO_TimestampDateFallback(t *testing.T) {
	m := NewMapper()

	rec, err := m.RecordFromDTO(AttendanceEntryDTO{
		EntryID:   "ent-2",
		StudentID: "stu-042",
		CourseID:  "crs-math",
		Date:      "2024-03-15T08:30:00Z",
		Status:    "present",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", rec.DayKey())
}

func TestMapper_RecordFromDTO_BadDate(t *testing.T) {
	m := NewMapper()

	tests := []struct {
		name string
		date string
	}{
		{"empty", ""},
		{"garbage", "15/03/2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.RecordFromDTO(AttendanceEntryDTO{
				EntryID:   "ent-3",
				StudentID: "stu-042",
				CourseID:  "crs-math",
				Date:      tt.date,
				Status:    "present",
			})
			var mapErr *MappingError
			require.ErrorAs(t, err, &mapErr)
			assert.Equal(t, "date", mapErr.Field)
		})
	}
}

func TestMapper_UnknownStatusFailsDomainValidation(t *testing.T) {
	m := NewMapper()

	// The mapper maps it; the domain rejects it. Keeping the raw value
	// intact is what makes the eventual error message useful.
	rec, err := m.RecordFromDTO(AttendanceEntryDTO{
		EntryID:   "ent-4",
		StudentID: "stu-042",
		CourseID:  "crs-math",
		Date:      "2024-03-15",
		Status:    "field_trip",
	})
	require.NoError(t, err)

	assert.True(t, shared.IsUnknownStatus(rec.Validate()))
}

func TestMapper_RecordsFromDTOs_SkipsBadEntries(t *testing.T) {
	m := NewMapper()

	dtos := []AttendanceEntryDTO{
		{EntryID: "ent-1", StudentID: "stu-1", CourseID: "crs-1", Date: "2024-03-11", Status: "present"},
		{EntryID: "ent-2", StudentID: "stu-1", CourseID: "crs-1", Date: "not-a-date", Status: "present"},
		{EntryID: "ent-3", StudentID: "stu-1", CourseID: "crs-1", Date: "2024-03-13", Status: "absent"},
	}

	records, errs := m.RecordsFromDTOs(dtos)

	assert.Len(t, records, 2)
	assert.Len(t, errs, 1)
	assert.Equal(t, "2024-03-11", records[0].DayKey())
	assert.Equal(t, "2024-03-13", records[1].DayKey())
}

func TestMapper_ActiveStudentIDs(t *testing.T) {
	m := NewMapper()

	entries := []RosterEntryDTO{
		{StudentID: "stu-1", Active: true},
		{StudentID: "stu-2", Active: false},
		{StudentID: "  ", Active: true},
		{StudentID: " stu-3 ", Active: true},
	}

	assert.Equal(t, []string{"stu-1", "stu-3"}, m.ActiveStudentIDs(entries))
}

func TestRosterEntryDTO_FullName(t *testing.T) {
	assert.Equal(t, "Aliya Bekova", RosterEntryDTO{FirstName: "Aliya", LastName: "Bekova"}.FullName())
	assert.Equal(t, "stu-9", RosterEntryDTO{StudentID: "stu-9"}.FullName())
}
