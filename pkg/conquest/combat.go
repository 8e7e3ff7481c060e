package conquest

import "fmt"

// CombatOutcome is the verdict on a proposed battle result.
type CombatOutcome struct {
	OK             bool   `json:"ok"`
	Reason         string `json:"reason,omitempty"`
	Conquered      bool   `json:"conquered"`
	AttackerLosses int    `json:"attackerLosses"`
	DefenderLosses int    `json:"defenderLosses"`
}

// CombatRules decides whether a battle outcome is acceptable.
type CombatRules interface {
	Validate(beforeAttacker, beforeDefender, afterAttacker, afterDefender int) CombatOutcome
}

// StandardCombat accepts any outcome where neither side gains armies and the
// attacking stack survives. It says nothing about how likely an outcome is.
type StandardCombat struct{}

func (StandardCombat) Validate(beforeAttacker, beforeDefender, afterAttacker, afterDefender int) CombatOutcome {
	return ValidateCombat(beforeAttacker, beforeDefender, afterAttacker, afterDefender)
}

// ValidateCombat checks a battle outcome. Rules apply in order and the first
// failure is reported.
func ValidateCombat(beforeAttacker, beforeDefender, afterAttacker, afterDefender int) CombatOutcome {
	if beforeAttacker < 0 || beforeDefender < 0 || afterAttacker < 0 || afterDefender < 0 {
		return reject("army counts must be non-negative")
	}
	if afterAttacker > beforeAttacker {
		return reject(fmt.Sprintf("attacker gained armies (%d -> %d)", beforeAttacker, afterAttacker))
	}
	if afterDefender > beforeDefender {
		return reject(fmt.Sprintf("defender gained armies (%d -> %d)", beforeDefender, afterDefender))
	}
	if afterAttacker < 1 {
		return reject("attacking stack must keep at least 1 army")
	}
	if afterDefender < 0 {
		return reject("defender armies cannot go below 0")
	}
	return CombatOutcome{
		OK:             true,
		Conquered:      afterDefender == 0,
		AttackerLosses: beforeAttacker - afterAttacker,
		DefenderLosses: beforeDefender - afterDefender,
	}
}

func reject(reason string) CombatOutcome {
	return CombatOutcome{Reason: reason}
}
