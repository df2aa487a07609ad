// Package timeutil provides UTC calendar-day helpers for attendance data.
// Every attendance record is keyed by its UTC calendar day; normalization,
// lookback windows and due dates all rely on the same truncation rules, so
// they live here. No external dependencies - uses only standard library.
package timeutil

import "time"

// DayFormat is the canonical YYYY-MM-DD layout for attendance day keys.
const DayFormat = "2006-01-02"

// DayOf returns the UTC start of the calendar day containing t.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of the UTC calendar day containing t.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999999, time.UTC)
}

// SameDay checks if two times fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	ua, ub := a.UTC(), b.UTC()
	return ua.Year() == ub.Year() && ua.YearDay() == ub.YearDay()
}

// DayKey formats a time as a YYYY-MM-DD day key in UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// ParseDay parses a YYYY-MM-DD day key into the UTC start of that day.
func ParseDay(value string) (time.Time, error) {
	return time.ParseInLocation(DayFormat, value, time.UTC)
}

// AddDays returns the UTC start of the day n days after t's day.
// n may be negative.
func AddDays(t time.Time, n int) time.Time {
	return DayOf(t).AddDate(0, 0, n)
}

// DaysBetween calculates the number of whole calendar days between two times,
// regardless of order.
func DaysBetween(a, b time.Time) int {
	d1 := DayOf(a)
	d2 := DayOf(b)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// WindowStart returns the UTC start of a lookback window ending at t.
// The window covers the day of t plus the given number of full days before
// it, so records dated on the boundary day are included whole.
func WindowStart(t time.Time, days int) time.Time {
	return AddDays(t, -days)
}

// IsWeekend checks if the given time is on a Saturday or Sunday in UTC.
func IsWeekend(t time.Time) bool {
	weekday := t.UTC().Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

// IsSchoolDay checks if the given time is on a weekday (Mon-Fri) in UTC.
func IsSchoolDay(t time.Time) bool {
	return !IsWeekend(t)
}

// NextSchoolDay returns the UTC start of the next weekday after t,
// skipping weekends.
func NextSchoolDay(t time.Time) time.Time {
	next := AddDays(t, 1)
	for IsWeekend(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
