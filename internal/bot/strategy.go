package bot

import (
	"fmt"
	"sort"

	"github.com/freeeve/conquest/api/pkg/conquest"
)

// Move is one intent a bot wants to send.
type Move struct {
	Action  conquest.Action
	Payload any
}

// Turn is what a strategy sees when it is asked to move.
type Turn struct {
	Snapshot  conquest.Snapshot
	Me        string
	Graph     *conquest.Graph
	Attacks   int  // attacks already made this turn
	Fortified bool // a fortify was already made this turn
}

// Strategy picks the next move for a bot whose turn it is.
type Strategy interface {
	Name() string
	NextMove(t Turn) Move
}

// board helpers shared by the strategies.

func owned(snap conquest.Snapshot, me string) []string {
	var ids []string
	for id, terr := range snap.Territories {
		if terr.Owner == me {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func pool(snap conquest.Snapshot, me string) int {
	for _, p := range snap.Players {
		if p.ID == me {
			return p.Pool
		}
	}
	return 0
}

// enemyNeighbors counts hostile armies adjacent to id.
func enemyNeighbors(t Turn, id string) (count, armies int) {
	for _, n := range t.Graph.Neighbors(id) {
		terr := t.Snapshot.Territories[n]
		if terr.Owner != "" && terr.Owner != t.Me {
			count++
			armies += terr.Armies
		}
	}
	return count, armies
}

// frontline returns the owned territory facing the most enemy armies, falling
// back to the first owned territory.
func frontline(t Turn) string {
	mine := owned(t.Snapshot, t.Me)
	best, bestArmies := "", -1
	for _, id := range mine {
		if _, armies := enemyNeighbors(t, id); armies > bestArmies {
			best, bestArmies = id, armies
		}
	}
	return best
}

func deployAll(t Turn) Move {
	return Move{Action: conquest.ActionDeploy, Payload: conquest.DeployPayload{
		Territory: frontline(t),
		Count:     pool(t.Snapshot, t.Me),
	}}
}

func advance() Move { return Move{Action: conquest.ActionAdvancePhase} }

// PassiveStrategy claims and deploys but never attacks or fortifies.
type PassiveStrategy struct {
	Dice *Dice
}

func (PassiveStrategy) Name() string { return "passive" }

func (s PassiveStrategy) NextMove(t Turn) Move {
	switch t.Snapshot.Phase {
	case conquest.PhaseInitialSetup:
		return claim(t, s.Dice)
	case conquest.PhaseInitialPlacement:
		return deployAll(t)
	case conquest.PhaseDeploy:
		if pool(t.Snapshot, t.Me) > 0 {
			return deployAll(t)
		}
		return advance()
	case conquest.PhaseAttack:
		if occ := t.Snapshot.PendingOccupation; occ != nil {
			return Move{Action: conquest.ActionOccupy, Payload: conquest.OccupyPayload{Count: occ.Min}}
		}
		return Move{Action: conquest.ActionSkipPhase}
	default:
		return Move{Action: conquest.ActionSkipPhase}
	}
}

// claim takes an unowned territory next to one already held, or any unowned
// territory when none borders the bot.
func claim(t Turn, dice *Dice) Move {
	var near, free []string
	for _, id := range t.Graph.IDs() {
		if t.Snapshot.Territories[id].Owner != "" {
			continue
		}
		free = append(free, id)
		for _, n := range t.Graph.Neighbors(id) {
			if t.Snapshot.Territories[n].Owner == t.Me {
				near = append(near, id)
				break
			}
		}
	}
	pick := free
	if len(near) > 0 {
		pick = near
	}
	if len(pick) == 0 {
		return advance()
	}
	choice := pick[0]
	if dice != nil {
		choice = pick[dice.intn(len(pick))]
	}
	return Move{Action: conquest.ActionClaim, Payload: conquest.ClaimPayload{Territory: choice}}
}

// DiceStrategy attacks whenever it has the bigger stack, rolls its own
// battles and moves everything it can into conquered territory.
type DiceStrategy struct {
	Dice *Dice
	// MaxAttacks bounds the attacks made in one turn.
	MaxAttacks int
}

func (DiceStrategy) Name() string { return "dice" }

func (s DiceStrategy) NextMove(t Turn) Move {
	switch t.Snapshot.Phase {
	case conquest.PhaseInitialSetup:
		return claim(t, s.Dice)
	case conquest.PhaseInitialPlacement:
		return deployAll(t)
	case conquest.PhaseDeploy:
		if pool(t.Snapshot, t.Me) > 0 {
			return deployAll(t)
		}
		return advance()
	case conquest.PhaseAttack:
		if occ := t.Snapshot.PendingOccupation; occ != nil {
			return Move{Action: conquest.ActionOccupy, Payload: conquest.OccupyPayload{Count: occ.Max}}
		}
		limit := s.MaxAttacks
		if limit <= 0 {
			limit = 10
		}
		if t.Attacks < limit {
			if m, ok := s.attack(t); ok {
				return m
			}
		}
		return advance()
	case conquest.PhaseFortify:
		if !t.Fortified {
			if m, ok := fortify(t); ok {
				return m
			}
		}
		return advance()
	}
	return advance()
}

// attack picks the owned stack with the largest advantage over an adjacent
// enemy and blitzes it.
func (s DiceStrategy) attack(t Turn) (Move, bool) {
	var from, to string
	bestEdge := 0
	for _, id := range owned(t.Snapshot, t.Me) {
		src := t.Snapshot.Territories[id]
		if src.Armies < 3 {
			continue
		}
		for _, n := range t.Graph.Neighbors(id) {
			dst := t.Snapshot.Territories[n]
			if dst.Owner == "" || dst.Owner == t.Me {
				continue
			}
			if edge := src.Armies - dst.Armies; edge > bestEdge {
				from, to, bestEdge = id, n, edge
			}
		}
	}
	if from == "" {
		return Move{}, false
	}
	att := t.Snapshot.Territories[from].Armies
	def := t.Snapshot.Territories[to].Armies
	attAfter, defAfter := s.Dice.Blitz(att, def, 1)
	return Move{Action: conquest.ActionAttackResult, Payload: conquest.CombatResult{
		AttackerTerritory:    from,
		DefenderTerritory:    to,
		AttackerArmiesBefore: att,
		AttackerArmiesAfter:  attAfter,
		DefenderArmiesBefore: def,
		DefenderArmiesAfter:  defAfter,
		Conquered:            defAfter == 0,
	}}, true
}

// fortify moves the biggest interior stack to an adjacent owned territory on
// the front.
func fortify(t Turn) (Move, bool) {
	var from, to string
	most := 1
	for _, id := range owned(t.Snapshot, t.Me) {
		armies := t.Snapshot.Territories[id].Armies
		if n, _ := enemyNeighbors(t, id); n > 0 || armies <= most {
			continue
		}
		for _, nb := range t.Graph.Neighbors(id) {
			if t.Snapshot.Territories[nb].Owner != t.Me {
				continue
			}
			if n, _ := enemyNeighbors(t, nb); n > 0 {
				from, to, most = id, nb, armies
				break
			}
		}
	}
	if from == "" {
		return Move{}, false
	}
	return Move{Action: conquest.ActionFortify, Payload: conquest.FortifyPayload{
		From: from, To: to, Count: most - 1,
	}}, true
}

// NewStrategy returns the named strategy rolling its own seeded dice.
func NewStrategy(name string, seed uint64) (Strategy, error) {
	switch name {
	case "dice", "":
		return DiceStrategy{Dice: NewDice(seed)}, nil
	case "passive":
		return PassiveStrategy{Dice: NewDice(seed)}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q", name)
}
