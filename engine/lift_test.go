package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
)

func TestLift_OverRepresentedCategory(t *testing.T) {
	// GIVEN: A category taking 30% of a state's spend but only 10%
	//        of national spend
	// WHEN: Computing lift
	// THEN: 0.30 / 0.10 = 3.0

	lift, ok := engine.Lift(dec("1000"), dec("300"), dec("100000"), dec("10000"))
	require.True(t, ok)
	assert.InDelta(t, 3.0, lift, 1e-9)
}

func TestLift_ParityIsOne(t *testing.T) {
	lift, ok := engine.Lift(dec("1000"), dec("100"), dec("50000"), dec("5000"))
	require.True(t, ok)
	assert.InDelta(t, 1.0, lift, 1e-9)
}

func TestLift_UndefinedWhenNationalShareZero(t *testing.T) {
	// GIVEN: The category has no national spend at all
	// WHEN: Computing lift
	// THEN: The ratio is undefined - reported as absent, not infinite
	//       and not zero

	_, ok := engine.Lift(dec("1000"), dec("300"), dec("100000"), dec("0"))
	assert.False(t, ok)

	_, ok = engine.Lift(dec("1000"), dec("300"), dec("0"), dec("0"))
	assert.False(t, ok)
}

func TestLift_ZeroScopedShare(t *testing.T) {
	// The state spends nothing on the category: lift 0 is meaningful.
	lift, ok := engine.Lift(dec("1000"), dec("0"), dec("100000"), dec("10000"))
	require.True(t, ok)
	assert.Equal(t, 0.0, lift)
}
