package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOf(t *testing.T) {
	noon := time.Date(2026, 3, 15, 12, 30, 45, 123, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), DayOf(noon))

	// Zoned times collapse onto their UTC day, not the local one.
	zoned := time.Date(2026, 3, 15, 2, 0, 0, 0, time.FixedZone("UTC+5", 5*60*60))
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), DayOf(zoned))
}

func TestEndOfDay(t *testing.T) {
	noon := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	end := EndOfDay(noon)
	assert.Equal(t, time.Date(2026, 3, 15, 23, 59, 59, 999999999, time.UTC), end)
	assert.True(t, SameDay(noon, end))
}

func TestSameDay(t *testing.T) {
	morning := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 15, 22, 0, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(morning, evening))
	assert.False(t, SameDay(evening, nextDay))

	// Same wall clock in different zones can be different UTC days.
	almaty := time.Date(2026, 3, 16, 3, 0, 0, 0, time.FixedZone("UTC+5", 5*60*60))
	assert.True(t, SameDay(evening, almaty))
}

func TestDayKeyRoundTrip(t *testing.T) {
	day := time.Date(2026, 3, 15, 14, 45, 0, 0, time.UTC)
	key := DayKey(day)
	assert.Equal(t, "2026-03-15", key)

	parsed, err := ParseDay(key)
	require.NoError(t, err)
	assert.Equal(t, DayOf(day), parsed)
	assert.Equal(t, time.UTC, parsed.Location())
}

func TestParseDay_Invalid(t *testing.T) {
	for _, bad := range []string{"", "15.03.2026", "2026-3-15", "yesterday"} {
		_, err := ParseDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestAddDays(t *testing.T) {
	noon := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), AddDays(noon, 3))
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), AddDays(noon, -5))
	// Month boundary.
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), AddDays(noon, 17))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 16, 1, 0, 0, 0, time.UTC)

	// Two hours apart but on different calendar days.
	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, 1, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
	assert.Equal(t, 30, DaysBetween(a, a.AddDate(0, 0, 30)))
}

func TestWindowStart(t *testing.T) {
	startedAt := time.Date(2026, 3, 15, 2, 17, 0, 0, time.UTC)
	since := WindowStart(startedAt, 30)

	assert.Equal(t, time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC), since)
	// The boundary day is included from midnight, not from the scan hour.
	boundaryRecord := time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC)
	assert.False(t, boundaryRecord.Before(since))
}

func TestSchoolDays(t *testing.T) {
	friday := time.Date(2026, 3, 13, 10, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	assert.True(t, IsSchoolDay(friday))
	assert.False(t, IsSchoolDay(saturday))
	assert.True(t, IsWeekend(sunday))

	// Friday rolls over the weekend to Monday.
	monday := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, NextSchoolDay(friday))
	assert.Equal(t, monday, NextSchoolDay(saturday))

	// Midweek just advances one day.
	tuesday := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), NextSchoolDay(tuesday))
}
