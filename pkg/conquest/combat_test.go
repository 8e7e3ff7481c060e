package conquest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCombat(t *testing.T) {
	t.Run("defender loses two", func(t *testing.T) {
		out := ValidateCombat(2, 5, 2, 3)
		require.True(t, out.OK, out.Reason)
		assert.Equal(t, 0, out.AttackerLosses)
		assert.Equal(t, 2, out.DefenderLosses)
		assert.False(t, out.Conquered)
	})

	t.Run("defender wiped out", func(t *testing.T) {
		out := ValidateCombat(2, 5, 1, 0)
		require.True(t, out.OK, out.Reason)
		assert.True(t, out.Conquered)
		assert.Equal(t, 1, out.AttackerLosses)
		assert.Equal(t, 5, out.DefenderLosses)
	})

	t.Run("attacker annihilated", func(t *testing.T) {
		out := ValidateCombat(2, 5, 0, 3)
		assert.False(t, out.OK)
		assert.Contains(t, out.Reason, "at least 1")
	})

	t.Run("attacker gains", func(t *testing.T) {
		out := ValidateCombat(2, 5, 3, 3)
		assert.False(t, out.OK)
		assert.Contains(t, out.Reason, "attacker gained")
	})
}

func TestValidateCombatFirstFailureWins(t *testing.T) {
	// Negative input is reported before the gain rule even though both fail.
	out := ValidateCombat(2, 5, 3, -1)
	assert.False(t, out.OK)
	assert.Contains(t, out.Reason, "non-negative")

	out = ValidateCombat(2, 5, 2, 6)
	assert.False(t, out.OK)
	assert.Contains(t, out.Reason, "defender gained")
}

func TestValidateCombatNoLosses(t *testing.T) {
	out := ValidateCombat(4, 3, 4, 3)
	require.True(t, out.OK)
	assert.Zero(t, out.AttackerLosses)
	assert.Zero(t, out.DefenderLosses)
	assert.False(t, out.Conquered)
}

func TestStandardCombatMatchesValidateCombat(t *testing.T) {
	var rules CombatRules = StandardCombat{}
	assert.Equal(t, ValidateCombat(3, 2, 3, 0), rules.Validate(3, 2, 3, 0))
	assert.Equal(t, ValidateCombat(3, 2, 0, 0), rules.Validate(3, 2, 0, 0))
}
