package analysis

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// series строит дневной ряд с последовательными датами, по одной точке в день.
func series(rates ...float64) []attendance.DailyRate {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	out := make([]attendance.DailyRate, 0, len(rates))
	for i, rate := range rates {
		out = append(out, attendance.DailyRate{
			Date: start.AddDate(0, 0, i),
			Rate: rate,
		})
	}
	return out
}

func flat(rate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rate
	}
	return out
}

func defaultAnalyzer() *TrendAnalyzer {
	return NewTrendAnalyzer(DefaultConfig().Trend)
}

func TestTrendAnalyzer_InsufficientData(t *testing.T) {
	a := defaultAnalyzer()

	for _, n := range []int{0, 1, 7, 13} {
		signal, err := a.Analyze(series(flat(80, n)...))
		require.NoError(t, err, "n=%d", n)
		assert.True(t, signal.Stable, "n=%d", n)
		assert.False(t, signal.Improving, "n=%d", n)
		assert.False(t, signal.Declining, "n=%d", n)
		assert.Nil(t, signal.RecentAverage, "n=%d", n)
		assert.Nil(t, signal.PreviousAverage, "n=%d", n)
		assert.Zero(t, signal.Change, "n=%d", n)
	}
}

func TestTrendAnalyzer_Declining(t *testing.T) {
	a := defaultAnalyzer()

	rates := append(flat(80, 7), flat(70, 7)...)
	signal, err := a.Analyze(series(rates...))
	require.NoError(t, err)

	require.True(t, signal.HasData())
	assert.InDelta(t, 70.0, *signal.RecentAverage, 0.0001)
	assert.InDelta(t, 80.0, *signal.PreviousAverage, 0.0001)
	assert.InDelta(t, -10.0, signal.Change, 0.0001)
	assert.True(t, signal.Declining)
	assert.False(t, signal.Improving)
	assert.False(t, signal.Stable)
	assert.Equal(t, "declining", signal.Direction())
}

func TestTrendAnalyzer_Improving(t *testing.T) {
	a := defaultAnalyzer()

	rates := append(flat(70, 7), flat(80, 7)...)
	signal, err := a.Analyze(series(rates...))
	require.NoError(t, err)

	assert.True(t, signal.Improving)
	assert.InDelta(t, 10.0, signal.Change, 0.0001)
}

func TestTrendAnalyzer_DeadbandIsStable(t *testing.T) {
	a := defaultAnalyzer()

	// Change of exactly +2.0 percentage points sits on the deadband edge
	// and must read as stable, not improving.
	rates := append(flat(80, 7), flat(82, 7)...)
	signal, err := a.Analyze(series(rates...))
	require.NoError(t, err)
	assert.True(t, signal.Stable)
	assert.InDelta(t, 2.0, signal.Change, 0.0001)

	// Just past the deadband flips to improving.
	rates = append(flat(80, 7), flat(82.5, 7)...)
	signal, err = a.Analyze(series(rates...))
	require.NoError(t, err)
	assert.True(t, signal.Improving)

	// Mirror case on the declining side.
	rates = append(flat(80, 7), flat(78, 7)...)
	signal, err = a.Analyze(series(rates...))
	require.NoError(t, err)
	assert.True(t, signal.Stable)
}

func TestTrendAnalyzer_UsesMostRecentWindows(t *testing.T) {
	a := defaultAnalyzer()

	// Older history outside the two windows must not affect the signal.
	rates := append(flat(10, 6), append(flat(80, 7), flat(70, 7)...)...)
	signal, err := a.Analyze(series(rates...))
	require.NoError(t, err)

	require.True(t, signal.HasData())
	assert.InDelta(t, 70.0, *signal.RecentAverage, 0.0001)
	assert.InDelta(t, 80.0, *signal.PreviousAverage, 0.0001)
	assert.True(t, signal.Declining)
}

func TestTrendAnalyzer_AveragesRounded(t *testing.T) {
	a := NewTrendAnalyzer(TrendConfig{WindowDays: 3, Deadband: 2.0})

	rates := []float64{100, 100, 100, 100, 50, 50}
	signal, err := a.Analyze(series(rates...))
	require.NoError(t, err)

	require.True(t, signal.HasData())
	assert.InDelta(t, 66.67, *signal.RecentAverage, 0.0001)
	assert.InDelta(t, 100.0, *signal.PreviousAverage, 0.0001)
	assert.InDelta(t, -33.33, signal.Change, 0.0001)
}

func TestTrendAnalyzer_UnorderedSeriesRejected(t *testing.T) {
	a := defaultAnalyzer()

	s := series(flat(80, 14)...)
	s[3], s[4] = s[4], s[3]

	_, err := a.Analyze(s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnorderedSeries))
	assert.True(t, shared.IsValidation(err))
}

func TestTrendAnalyzer_SameDayRejected(t *testing.T) {
	a := defaultAnalyzer()

	s := series(flat(80, 14)...)
	s[5].Date = s[4].Date

	_, err := a.Analyze(s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnorderedSeries))
}
