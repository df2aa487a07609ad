package scheduler

import (
	"fmt"
	"math/rand"
	"time"
)

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{
		Interval: interval,
	}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}

// JitteredIntervalSchedule runs a job at a fixed interval plus a random
// offset of up to Jitter per occurrence. Instances deployed together
// drift apart instead of polling the SIS API in lockstep.
type JitteredIntervalSchedule struct {
	Interval time.Duration
	Jitter   time.Duration
}

// NewJitteredIntervalSchedule creates a new JitteredIntervalSchedule.
// A non-positive jitter degrades to a plain interval.
func NewJitteredIntervalSchedule(interval, jitter time.Duration) *JitteredIntervalSchedule {
	if jitter < 0 {
		jitter = 0
	}
	return &JitteredIntervalSchedule{
		Interval: interval,
		Jitter:   jitter,
	}
}

// Next returns the next scheduled time with jitter applied.
func (s *JitteredIntervalSchedule) Next(t time.Time) time.Time {
	next := t.Add(s.Interval)
	if s.Jitter > 0 {
		next = next.Add(time.Duration(rand.Int63n(int64(s.Jitter))))
	}
	return next
}

// String returns the string representation of the schedule.
func (s *JitteredIntervalSchedule) String() string {
	if s.Jitter > 0 {
		return fmt.Sprintf("@every %s (+ up to %s jitter)", s.Interval.String(), s.Jitter.String())
	}
	return fmt.Sprintf("@every %s", s.Interval.String())
}
