package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailySeries(t *testing.T) {
	records := []RawRecord{
		rec("sub-math", "MATH101", "2026-03-04", StatusPresent),
		rec("sub-bio", "BIO110", "2026-03-04", StatusAbsent),
		rec("sub-math", "MATH101", "2026-03-02", StatusPresent),
		rec("sub-math", "MATH101", "2026-03-03", StatusLate),
	}

	series := BuildDailySeries(records)
	require.Len(t, series, 3)

	// Chronological order regardless of input order.
	assert.Equal(t, day("2026-03-02"), series[0].Date)
	assert.Equal(t, day("2026-03-03"), series[1].Date)
	assert.Equal(t, day("2026-03-04"), series[2].Date)

	assert.InDelta(t, 100.0, series[0].Rate, 0.0001)
	assert.InDelta(t, 100.0, series[1].Rate, 0.0001) // late attends
	assert.InDelta(t, 50.0, series[2].Rate, 0.0001)  // one of two
}

func TestBuildDailySeries_ExcusedOnlyDaySkipped(t *testing.T) {
	records := []RawRecord{
		rec("sub-math", "MATH101", "2026-03-02", StatusPresent),
		rec("sub-math", "MATH101", "2026-03-03", StatusExcused),
	}

	series := BuildDailySeries(records)
	require.Len(t, series, 1)
	assert.Equal(t, day("2026-03-02"), series[0].Date)
}

func TestBuildDailySeries_Empty(t *testing.T) {
	assert.Empty(t, BuildDailySeries(nil))
	assert.Empty(t, BuildDailySeries([]RawRecord{}))
}
