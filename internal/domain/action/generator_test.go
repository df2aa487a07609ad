package action

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
)

var genNow = time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

func defaultGenerator() *Generator {
	return NewGenerator(analysis.DefaultConfig().Rules)
}

func stableTrend() analysis.TrendSignal {
	return analysis.TrendSignal{Stable: true}
}

func typesOf(items []*ActionItem) []Type {
	out := make([]Type, 0, len(items))
	for _, item := range items {
		out = append(out, item.Type)
	}
	return out
}

func TestGenerator_HealthyStudentGetsNothing(t *testing.T) {
	g := defaultGenerator()

	overall := attendance.OverallAttendance{TotalClasses: 10, AttendedClasses: 9, AbsentClasses: 1, Percentage: 90.0}
	items, err := g.Generate("stu-1", overall, stableTrend(), genNow)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGenerator_LowAttendanceIssuesWarningAndParentContact(t *testing.T) {
	g := defaultGenerator()

	// 60% is exactly the high-risk boundary: the warning rule still fires
	// because 60 < 75, but the check-in band [75, 85) does not apply.
	overall := attendance.OverallAttendance{
		TotalClasses: 10, AttendedClasses: 6, AbsentClasses: 4, Percentage: 60.0,
	}
	items, err := g.Generate("stu-1", overall, stableTrend(), genNow)
	require.NoError(t, err)
	require.Len(t, items, 2)

	warning := items[0]
	assert.Equal(t, TypeAcademicWarning, warning.Type)
	assert.Equal(t, PriorityCritical, warning.Priority)
	assert.Equal(t, genNow.AddDate(0, 0, 3), warning.DueDate)
	assert.Equal(t, StatusPending, warning.Status)
	assert.True(t, warning.AutoGenerated)
	assert.True(t, warning.ID.IsAuto())
	assert.Contains(t, warning.Description, "60.00%")

	contact := items[1]
	assert.Equal(t, TypeContactParent, contact.Type)
	assert.Equal(t, PriorityHigh, contact.Priority)
	assert.Equal(t, genNow.AddDate(0, 0, 2), contact.DueDate)
	assert.Contains(t, contact.Description, "4 unexcused absences")
}

func TestGenerator_WarningBandSchedulesCheckin(t *testing.T) {
	g := defaultGenerator()

	overall := attendance.OverallAttendance{TotalClasses: 20, AttendedClasses: 16, AbsentClasses: 4, Percentage: 80.0}
	items, err := g.Generate("stu-1", overall, stableTrend(), genNow)
	require.NoError(t, err)
	require.Len(t, items, 1)

	checkin := items[0]
	assert.Equal(t, TypeContactStudent, checkin.Type)
	assert.Equal(t, PriorityMedium, checkin.Priority)
	assert.Equal(t, genNow.AddDate(0, 0, 5), checkin.DueDate)
}

func TestGenerator_CheckinBandBoundaries(t *testing.T) {
	g := defaultGenerator()

	// 75.0 belongs to the check-in band, 85.0 does not.
	for percentage, wantCheckin := range map[float64]bool{74.99: false, 75.0: true, 84.99: true, 85.0: false} {
		overall := attendance.OverallAttendance{TotalClasses: 100, Percentage: percentage}
		items, err := g.Generate("stu-1", overall, stableTrend(), genNow)
		require.NoError(t, err)

		hasCheckin := false
		for _, item := range items {
			if item.Type == TypeContactStudent {
				hasCheckin = true
			}
		}
		assert.Equal(t, wantCheckin, hasCheckin, "percentage=%.2f", percentage)
	}
}

func TestGenerator_AbsencesTriggerCounseling(t *testing.T) {
	g := defaultGenerator()

	// Exactly 5 absences is within the allowance; 6 crosses it.
	overall := attendance.OverallAttendance{TotalClasses: 40, AttendedClasses: 35, AbsentClasses: 5, Percentage: 87.5}
	items, err := g.Generate("stu-1", overall, stableTrend(), genNow)
	require.NoError(t, err)
	assert.Empty(t, items)

	overall = attendance.OverallAttendance{TotalClasses: 48, AttendedClasses: 42, AbsentClasses: 6, Percentage: 87.5}
	items, err = g.Generate("stu-1", overall, stableTrend(), genNow)
	require.NoError(t, err)
	require.Len(t, items, 1)

	counseling := items[0]
	assert.Equal(t, TypeCounseling, counseling.Type)
	assert.Equal(t, PriorityMedium, counseling.Priority)
	assert.Equal(t, genNow.AddDate(0, 0, 7), counseling.DueDate)
	assert.Contains(t, counseling.Description, "6 unexcused absences")
}

func TestGenerator_LateArrivalsTriggerMonitoring(t *testing.T) {
	g := defaultGenerator()

	// 4 lates: monitoring at medium priority.
	overall := attendance.OverallAttendance{TotalClasses: 40, AttendedClasses: 39, LateClasses: 4, AbsentClasses: 1, Percentage: 97.5}
	items, err := g.Generate("stu-1", overall, stableTrend(), genNow)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeMonitoring, items[0].Type)
	assert.Equal(t, PriorityMedium, items[0].Priority)

	// 7 lates: same rule escalates to high priority.
	overall.LateClasses = 7
	items, err = g.Generate("stu-1", overall, stableTrend(), genNow)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeMonitoring, items[0].Type)
	assert.Equal(t, PriorityHigh, items[0].Priority)
	assert.Equal(t, genNow.AddDate(0, 0, 5), items[0].DueDate)
}

func TestGenerator_DecliningTrendCreatesInterventionPlan(t *testing.T) {
	g := defaultGenerator()

	recent, previous := 70.0, 80.0
	trend := analysis.TrendSignal{
		RecentAverage:   &recent,
		PreviousAverage: &previous,
		Change:          -10.0,
		Declining:       true,
	}
	overall := attendance.OverallAttendance{TotalClasses: 40, AttendedClasses: 36, AbsentClasses: 4, Percentage: 90.0}

	items, err := g.Generate("stu-1", overall, trend, genNow)
	require.NoError(t, err)
	require.Len(t, items, 1)

	plan := items[0]
	assert.Equal(t, TypeIntervention, plan.Type)
	assert.Equal(t, PriorityHigh, plan.Priority)
	assert.Equal(t, genNow.AddDate(0, 0, 4), plan.DueDate)
	assert.Contains(t, plan.Description, "80.00%")
	assert.Contains(t, plan.Description, "70.00%")
}

func TestGenerator_RulesStack(t *testing.T) {
	g := defaultGenerator()

	recent, previous := 50.0, 70.0
	trend := analysis.TrendSignal{
		RecentAverage:   &recent,
		PreviousAverage: &previous,
		Change:          -20.0,
		Declining:       true,
	}
	overall := attendance.OverallAttendance{
		TotalClasses:    30,
		AttendedClasses: 17,
		AbsentClasses:   13,
		LateClasses:     7,
		Percentage:      56.67,
	}

	items, err := g.Generate("stu-1", overall, trend, genNow)
	require.NoError(t, err)

	assert.Equal(t, []Type{
		TypeAcademicWarning,
		TypeContactParent,
		TypeCounseling,
		TypeMonitoring,
		TypeIntervention,
	}, typesOf(items))
}

func TestGenerator_ZeroRecordsStudent(t *testing.T) {
	g := defaultGenerator()

	// No records means 0%, which lands in the warning rule like any other
	// low percentage. Counters are all zero, so count-based rules stay quiet.
	items, err := g.Generate("stu-1", attendance.OverallAttendance{}, stableTrend(), genNow)
	require.NoError(t, err)

	assert.Equal(t, []Type{TypeAcademicWarning, TypeContactParent}, typesOf(items))
}

func TestGenerator_FreshIDsEveryRun(t *testing.T) {
	g := defaultGenerator()

	overall := attendance.OverallAttendance{TotalClasses: 10, AttendedClasses: 6, AbsentClasses: 4, Percentage: 60.0}

	first, err := g.Generate("stu-1", overall, stableTrend(), genNow)
	require.NoError(t, err)
	second, err := g.Generate("stu-1", overall, stableTrend(), genNow)
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	// Everything except IDs and timestamps is identical run to run.
	assert.Equal(t, first[0].Type, second[0].Type)
	assert.Equal(t, first[0].Description, second[0].Description)
	assert.Equal(t, first[0].DueDate, second[0].DueDate)
}
