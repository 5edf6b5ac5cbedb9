package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
)

// =============================================================================
// DATE NORMALIZATION TESTS
// =============================================================================

func TestNormalizeDate_PortalFormat(t *testing.T) {
	// GIVEN: The dominant portal encoding "06-Oct-2025"
	// WHEN: Normalizing
	// THEN: The calendar date parses exactly

	d, ok := engine.NormalizeDate("06-Oct-2025")
	require.True(t, ok)
	assert.Equal(t, 2025, d.Year())
	assert.Equal(t, time.October, d.Month())
	assert.Equal(t, 6, d.Day())
}

func TestNormalizeDate_AlternateFormats(t *testing.T) {
	cases := map[string]string{
		"06-Oct-25":  "2025-10-06",
		"06/10/2025": "2025-10-06", // day/month/year
		"2025-10-06": "2025-10-06",
	}
	for raw, want := range cases {
		d, ok := engine.NormalizeDate(raw)
		require.True(t, ok, "should parse %q", raw)
		assert.Equal(t, want, d.Format("2006-01-02"), "raw %q", raw)
	}
}

func TestNormalizeDate_FirstMatchingFormatWins(t *testing.T) {
	// GIVEN: A value consistent with more than one pattern
	// WHEN: Normalizing
	// THEN: The first format in the ordered list decides

	d, ok := engine.NormalizeDate("02-Jan-2006")
	require.True(t, ok)
	assert.Equal(t, "2006-01-02", d.Format("2006-01-02"))
}

func TestNormalizeDate_Garbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "nan", "NaN", "bad-date", "32-Oct-2025"} {
		_, ok := engine.NormalizeDate(raw)
		assert.False(t, ok, "should reject %q", raw)
	}
}

func TestNormalizeDate_TrimsWhitespace(t *testing.T) {
	d, ok := engine.NormalizeDate("  06-Oct-2025 ")
	require.True(t, ok)
	assert.Equal(t, 6, d.Day())
}

// =============================================================================
// PLAUSIBILITY TESTS
// =============================================================================

func TestPlausible_RejectsAncientAndFutureDates(t *testing.T) {
	now := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

	old := time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC)
	assert.False(t, engine.Plausible(old, now), "pre-2000 dates are feed noise")

	future := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, engine.Plausible(future, now), "dates after now are feed noise")

	fine := time.Date(2025, time.October, 6, 0, 0, 0, 0, time.UTC)
	assert.True(t, engine.Plausible(fine, now))

	// The horizon itself is plausible.
	assert.True(t, engine.Plausible(now, now))
}

func TestMonthKey_SortsChronologically(t *testing.T) {
	jan := engine.MonthKey(time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC))
	oct := engine.MonthKey(time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "2025-01", jan)
	assert.Equal(t, "2025-10", oct)
	assert.Less(t, jan, oct, "plain string order must be chronological")
}
