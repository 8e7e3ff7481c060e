package conquest

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// TurnOrchestrator rotates the active player, computes reinforcements and
// detects the end of the game.
type TurnOrchestrator struct {
	state *GameState
}

// NewTurnOrchestrator creates an orchestrator bound to a state.
func NewTurnOrchestrator(gs *GameState) *TurnOrchestrator {
	return &TurnOrchestrator{state: gs}
}

// InitialArmies returns the starting pool per player for a given player count.
func InitialArmies(players int) int {
	switch {
	case players <= 2:
		return 40
	case players == 3:
		return 35
	case players == 4:
		return 30
	case players == 5:
		return 25
	default:
		return 20
	}
}

// ReinforcementsFor returns max(3, owned/3) plus the bonus of every continent
// the player owns completely.
func (o *TurnOrchestrator) ReinforcementsFor(playerID string) int {
	gs := o.state
	n := max(3, gs.OwnedCount(playerID)/3)
	for _, c := range gs.graph.Continents() {
		owned := true
		for _, id := range c.Territories {
			if gs.territories[id].Owner != playerID {
				owned = false
				break
			}
		}
		if owned {
			n += c.Bonus
		}
	}
	return n
}

// GrantInitialArmies fills every pool with the starting allotment.
func (o *TurnOrchestrator) GrantInitialArmies() {
	gs := o.state
	n := InitialArmies(len(gs.players))
	for _, p := range gs.players {
		p.Pool = n
	}
	gs.record(HistoryEntry{Kind: HistoryGrant, Detail: fmt.Sprintf("%d armies each", n)})
}

// DistributeTerritories deals every territory round-robin in a random order,
// one army each, taken from the players' pools.
func (o *TurnOrchestrator) DistributeTerritories(rng *rand.Rand) error {
	gs := o.state
	ids := gs.graph.IDs()
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	for i, id := range ids {
		p := gs.players[i%len(gs.players)]
		if err := gs.ApplyClaim(p.ID, id); err != nil {
			return err
		}
	}
	gs.currentPlayerIndex = 0
	return nil
}

// NextPlacer moves the turn to the next player that still has armies to place
// during setup. It returns false when every pool is empty.
func (o *TurnOrchestrator) NextPlacer() bool {
	gs := o.state
	n := len(gs.players)
	for step := 1; step <= n; step++ {
		idx := (gs.currentPlayerIndex + step) % n
		if gs.players[idx].Pool > 0 {
			gs.currentPlayerIndex = idx
			return true
		}
	}
	return false
}

// RefreshEliminations marks players without territories as eliminated and
// returns the ids newly marked.
func (o *TurnOrchestrator) RefreshEliminations() []string {
	gs := o.state
	var out []string
	for _, p := range gs.players {
		if !p.Eliminated && gs.OwnedCount(p.ID) == 0 {
			p.Eliminated = true
			out = append(out, p.ID)
		}
	}
	return out
}

// CheckGameOver records the winner once a single player remains.
func (o *TurnOrchestrator) CheckGameOver() (string, bool) {
	gs := o.state
	if gs.winner != "" {
		return gs.winner, true
	}
	active := gs.ActivePlayers()
	if len(active) != 1 {
		return "", false
	}
	gs.winner = active[0]
	gs.record(HistoryEntry{Kind: HistoryEnd, PlayerID: gs.winner})
	return gs.winner, true
}

// StartFirstTurn hands the first turn to the first active player and grants
// their reinforcements.
func (o *TurnOrchestrator) StartFirstTurn() {
	gs := o.state
	gs.turnNumber = 1
	gs.currentPlayerIndex = 0
	for i, p := range gs.players {
		if !p.Eliminated {
			gs.currentPlayerIndex = i
			break
		}
	}
	o.grantReinforcements()
}

// AdvanceTurn passes play to the next non-eliminated player, incrementing the
// turn number when play wraps back to the head of the order, and resets that
// player's pool to their reinforcements. Only PhaseEngine calls it, on the
// fortify to deploy transition.
func (o *TurnOrchestrator) AdvanceTurn() error {
	gs := o.state
	o.RefreshEliminations()
	if winner, over := o.CheckGameOver(); over {
		return &GameOverError{Winner: winner}
	}

	n := len(gs.players)
	cur := gs.currentPlayerIndex
	next := -1
	for step := 1; step <= n; step++ {
		idx := (cur + step) % n
		if !gs.players[idx].Eliminated {
			next = idx
			break
		}
	}
	if next < 0 {
		return fmt.Errorf("no active player to advance to")
	}
	if next <= cur {
		gs.turnNumber++
	}
	gs.currentPlayerIndex = next
	o.grantReinforcements()
	return nil
}

func (o *TurnOrchestrator) grantReinforcements() {
	gs := o.state
	p := gs.players[gs.currentPlayerIndex]
	p.Pool = o.ReinforcementsFor(p.ID)
	gs.record(HistoryEntry{Kind: HistoryGrant, PlayerID: p.ID, Detail: fmt.Sprintf("%d reinforcements", p.Pool)})
}
