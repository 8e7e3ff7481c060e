package conquest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func testPlayers(ids ...string) []Player {
	colors := []string{"red", "blue", "green", "yellow", "black", "purple"}
	out := make([]Player, len(ids))
	for i, id := range ids {
		out[i] = Player{ID: id, Name: "Player " + id, Color: colors[i%len(colors)]}
	}
	return out
}

func newTestState(t *testing.T, ids ...string) *GameState {
	t.Helper()
	gs, err := NewGameState("session-1", ClassicGraph(), testPlayers(ids...), DefaultRules())
	require.NoError(t, err)
	gs.SetClock(tickingClock())
	return gs
}

// own assigns territories to a player with the given army count.
func own(gs *GameState, playerID string, armies int, ids ...string) {
	for _, id := range ids {
		gs.territories[id].Owner = playerID
		gs.territories[id].Armies = armies
	}
}

// fillRemaining deals every unowned territory round-robin with one army.
func fillRemaining(gs *GameState) {
	i := 0
	for _, id := range gs.graph.IDs() {
		t := gs.territories[id]
		if t.Owner != "" {
			continue
		}
		t.Owner = gs.players[i%len(gs.players)].ID
		t.Armies = 1
		i++
	}
}

// inPhase moves a fully owned board into a regular phase with player index cur active.
func inPhase(gs *GameState, phase Phase, cur int) {
	gs.phase = phase
	gs.isNewGame = false
	gs.currentPlayerIndex = cur
}

func newTestSession(t *testing.T, ids ...string) *Session {
	t.Helper()
	s, err := NewSession(SessionConfig{ID: "session-1", Players: testPlayers(ids...), Rules: DefaultRules()})
	require.NoError(t, err)
	s.state.SetClock(tickingClock())
	return s
}

func intent(t *testing.T, playerID string, action Action, payload any) Intent {
	t.Helper()
	in, err := NewIntent("session-1", playerID, action, payload, 0)
	require.NoError(t, err)
	return in
}
