package bot

import (
	"sort"

	"golang.org/x/exp/rand"
)

// Dice is the random source bots roll battles and break ties with. Seed it for
// reproducible games.
type Dice struct {
	rng *rand.Rand
}

// NewDice returns dice seeded with seed.
func NewDice(seed uint64) *Dice {
	return &Dice{rng: rand.New(rand.NewSource(seed))}
}

func (d *Dice) intn(n int) int { return d.rng.Intn(n) }

func (d *Dice) roll(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = d.rng.Intn(6) + 1
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// Round rolls one exchange: up to three attacker dice (leaving one army
// behind) against up to two defender dice. Ties go to the defender.
func (d *Dice) Round(attacker, defender int) (attackerLoss, defenderLoss int) {
	att := d.roll(min(3, attacker-1))
	def := d.roll(min(2, defender))
	for i := 0; i < len(att) && i < len(def); i++ {
		if att[i] > def[i] {
			defenderLoss++
		} else {
			attackerLoss++
		}
	}
	return attackerLoss, defenderLoss
}

// Blitz rolls rounds until the defender is wiped out or the attacker is down
// to stopAt armies (never below 1). A conquest always leaves the attacker at
// least two armies so one can move in.
func (d *Dice) Blitz(attacker, defender, stopAt int) (attackerAfter, defenderAfter int) {
	if stopAt < 1 {
		stopAt = 1
	}
	for attacker > stopAt && attacker >= 2 && defender > 0 {
		al, dl := d.Round(attacker, defender)
		attacker -= al
		defender -= dl
	}
	return attacker, defender
}
