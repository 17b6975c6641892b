package dice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotation(t *testing.T) {
	testCases := []struct {
		notation string
		expected []Spec
	}{
		{"2d6", []Spec{{Count: 2, Sides: 6}}},
		{"d20", []Spec{{Count: 1, Sides: 20}}},
		{"1D8 + 2d4", []Spec{{Count: 1, Sides: 8}, {Count: 2, Sides: 4}}},
		{"3d6+1d20+2d8", []Spec{{Count: 3, Sides: 6}, {Count: 1, Sides: 20}, {Count: 2, Sides: 8}}},
	}
	for _, tc := range testCases {
		specs, err := ParseNotation(tc.notation)
		require.NoError(t, err, tc.notation)
		assert.Equal(t, tc.expected, specs, tc.notation)
	}
}

func TestParseNotationRejectsGarbage(t *testing.T) {
	for _, notation := range []string{"", "abc", "0d6", "2d0", "2x6", "-1d6", "2d", "+2d6+"} {
		_, err := ParseNotation(notation)
		require.ErrorIs(t, err, ErrBadNotation, notation)
	}
}

func TestRollStaysWithinBounds(t *testing.T) {
	roller := NewLocalRoller(1)

	for i := 0; i < 100; i++ {
		result, err := roller.Roll([]Spec{{Count: 4, Sides: 6}, {Count: 1, Sides: 20}})
		require.NoError(t, err)
		require.Len(t, result.Rolls, 2)

		sum := 0
		for _, roll := range result.Rolls {
			rollSum := 0
			for _, value := range roll.Results {
				assert.GreaterOrEqual(t, value, 1)
				assert.LessOrEqual(t, value, roll.Sides)
				rollSum += value
			}
			assert.Equal(t, rollSum, roll.Total)
			sum += rollSum
		}
		assert.Equal(t, sum, result.Total)
	}
}

func TestRollIsDeterministicPerSeed(t *testing.T) {
	first, err := NewLocalRoller(42).Roll([]Spec{{Count: 3, Sides: 8}})
	require.NoError(t, err)
	second, err := NewLocalRoller(42).Roll([]Spec{{Count: 3, Sides: 8}})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRollRejectsEmptyRequest(t *testing.T) {
	_, err := NewLocalRoller(1).Roll(nil)
	require.ErrorIs(t, err, ErrMissingDice)
}

func TestRollRejectsBadSpec(t *testing.T) {
	_, err := NewLocalRoller(1).Roll([]Spec{{Count: 0, Sides: 6}})
	require.ErrorIs(t, err, ErrInvalidDiceSpec)

	_, err = NewLocalRoller(1).Roll([]Spec{{Count: 2, Sides: -4}})
	require.ErrorIs(t, err, ErrInvalidDiceSpec)
}

func TestParseNotationEnforcesCeilings(t *testing.T) {
	for _, notation := range []string{
		"99999999999d6",
		"101d6",
		"2d1001",
		"1d6+1d6+1d6+1d6+1d6+1d6+1d6+1d6+1d6+1d6+1d6",
	} {
		_, err := ParseNotation(notation)
		require.ErrorIs(t, err, ErrBadNotation, notation)
	}

	specs, err := ParseNotation("100d1000")
	require.NoError(t, err)
	assert.Equal(t, []Spec{{Count: 100, Sides: 1000}}, specs)
}

func TestRollEnforcesCeilings(t *testing.T) {
	roller := NewLocalRoller(1)

	_, err := roller.Roll([]Spec{{Count: MaxCountPerSpec + 1, Sides: 6}})
	require.ErrorIs(t, err, ErrInvalidDiceSpec)

	_, err = roller.Roll([]Spec{{Count: 2, Sides: MaxSides + 1}})
	require.ErrorIs(t, err, ErrInvalidDiceSpec)

	tooMany := make([]Spec, MaxSpecs+1)
	for i := range tooMany {
		tooMany[i] = Spec{Count: 1, Sides: 6}
	}
	_, err = roller.Roll(tooMany)
	require.ErrorIs(t, err, ErrInvalidDiceSpec)
}
