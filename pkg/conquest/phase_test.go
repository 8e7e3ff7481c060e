package conquest

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, ids ...string) (*GameState, *PhaseEngine, *[]PhaseChanged) {
	t.Helper()
	gs := newTestState(t, ids...)
	nop := zerolog.Nop()
	e := NewPhaseEngine(gs, NewTurnOrchestrator(gs), &nop)
	var seen []PhaseChanged
	e.Subscribe(func(ev PhaseChanged) { seen = append(seen, ev) })
	return gs, e, &seen
}

func TestDeployGuardRequiresEmptyPool(t *testing.T) {
	gs, e, seen := newTestEngine(t, "a", "b")
	own(gs, "a", 1, "alaska")
	fillRemaining(gs)
	inPhase(gs, PhaseDeploy, 0)
	gs.players[0].Pool = 3

	err := e.Fire(EventEndPhase)
	require.ErrorIs(t, err, ErrInvalidOperation)
	assert.Equal(t, PhaseDeploy, gs.Phase())
	assert.Empty(t, *seen)

	require.NoError(t, gs.ApplyDeploy("a", "alaska", 3))
	require.NoError(t, e.Fire(EventEndPhase))
	assert.Equal(t, PhaseAttack, gs.Phase())
	require.Len(t, *seen, 1)
	assert.Equal(t, PhaseChanged{From: PhaseDeploy, To: PhaseAttack, TurnNumber: 1, PlayerID: "a"}, (*seen)[0])
}

func TestFullTurnCycle(t *testing.T) {
	gs, e, seen := newTestEngine(t, "a", "b")
	fillRemaining(gs)
	inPhase(gs, PhaseAttack, 0)

	require.NoError(t, e.Fire(EventSkip))
	assert.Equal(t, PhaseFortify, gs.Phase())

	require.NoError(t, e.Fire(EventEndPhase))
	assert.Equal(t, PhaseDeploy, gs.Phase())
	assert.Equal(t, "b", gs.CurrentPlayer().ID)
	assert.Equal(t, 1, gs.TurnNumber())
	assert.Equal(t, 7, gs.CurrentPlayer().Pool, "21 territories give 7 reinforcements")

	require.Len(t, *seen, 2)
	assert.Equal(t, PhaseFortify, (*seen)[1].From)
	assert.Equal(t, "b", (*seen)[1].PlayerID)
}

func TestPendingOccupationBlocksTransitions(t *testing.T) {
	gs, e, _ := newTestEngine(t, "a", "b")
	own(gs, "a", 3, "alaska")
	own(gs, "b", 2, "kamchatka")
	fillRemaining(gs)
	inPhase(gs, PhaseAttack, 0)
	require.NoError(t, gs.ApplyCombatResult("a", CombatResult{
		AttackerTerritory: "alaska", DefenderTerritory: "kamchatka",
		AttackerArmiesBefore: 3, AttackerArmiesAfter: 3,
		DefenderArmiesBefore: 2, DefenderArmiesAfter: 0,
		Conquered: true,
	}))

	assert.ErrorContains(t, e.Fire(EventSkip), "must be resolved")
	assert.ErrorContains(t, e.Fire(EventEndPhase), "must be resolved")
	assert.Equal(t, PhaseAttack, gs.Phase())

	require.NoError(t, gs.ApplyOccupy("a", 1))
	require.NoError(t, e.Fire(EventEndPhase))
	assert.Equal(t, PhaseFortify, gs.Phase())
}

func TestFireWithoutTableRow(t *testing.T) {
	gs, e, seen := newTestEngine(t, "a", "b")
	fillRemaining(gs)
	inPhase(gs, PhaseAttack, 0)
	v := gs.Version()

	var verr *ValidationError
	require.ErrorAs(t, e.Fire(EventAllClaimed), &verr)
	assert.Equal(t, "phase", verr.Op)
	assert.ErrorIs(t, e.Fire(EventPlacementDone), ErrInvalidOperation)
	assert.Equal(t, PhaseAttack, gs.Phase())
	assert.Equal(t, v, gs.Version())
	assert.Empty(t, *seen)

	inPhase(gs, PhaseDeploy, 0)
	assert.ErrorIs(t, e.Fire(EventSkip), ErrInvalidOperation, "deploy cannot be skipped")
}

func TestSetupGuards(t *testing.T) {
	gs, e, _ := newTestEngine(t, "a", "b")
	own(gs, "a", 1, "alaska")
	assert.ErrorContains(t, e.Fire(EventAllClaimed), "unclaimed")

	fillRemaining(gs)
	gs.players[0].Pool = 2
	require.NoError(t, e.Fire(EventAllClaimed))
	assert.Equal(t, PhaseInitialPlacement, gs.Phase())
	assert.False(t, gs.IsNewGame())

	assert.ErrorContains(t, e.Fire(EventPlacementDone), "still has 2")
	gs.players[0].Pool = 0
	require.NoError(t, e.Fire(EventPlacementDone))
	assert.Equal(t, PhaseDeploy, gs.Phase())
	assert.Equal(t, 0, gs.CurrentPlayerIndex())
	assert.Equal(t, 7, gs.CurrentPlayer().Pool)
}

func TestEnterPlacementSkipsEmptyPool(t *testing.T) {
	gs, e, _ := newTestEngine(t, "a", "b")
	fillRemaining(gs)
	gs.players[1].Pool = 4
	require.NoError(t, e.Fire(EventAllClaimed))
	assert.Equal(t, "b", gs.CurrentPlayer().ID)
}

func TestRecoverUnknownPhase(t *testing.T) {
	gs, e, seen := newTestEngine(t, "a", "b")
	fillRemaining(gs)
	inPhase(gs, Phase("sieging"), 1)
	v := gs.Version()

	assert.True(t, e.Recover())
	assert.Equal(t, PhaseDeploy, gs.Phase())
	assert.Equal(t, v+1, gs.Version())
	require.Len(t, *seen, 1)
	assert.True(t, (*seen)[0].Recovered)
	assert.Equal(t, Phase("sieging"), (*seen)[0].From)
	assert.Equal(t, "b", (*seen)[0].PlayerID)

	assert.False(t, e.Recover())
	assert.Len(t, *seen, 1)
}

func TestAllows(t *testing.T) {
	gs, e, _ := newTestEngine(t, "a", "b")
	inPhase(gs, PhaseDeploy, 0)
	assert.NoError(t, e.Allows(ActionDeploy))
	assert.ErrorIs(t, e.Allows(ActionClaim), ErrInvalidOperation)
	assert.ErrorIs(t, e.Allows(ActionFortify), ErrInvalidOperation)
	assert.ErrorIs(t, e.Allows(ActionAdvancePhase), ErrInvalidOperation)

	inPhase(gs, PhaseAttack, 0)
	assert.NoError(t, e.Allows(ActionAttackResult))
	assert.NoError(t, e.Allows(ActionOccupy))
}

func TestFireAfterGameOver(t *testing.T) {
	gs, e, _ := newTestEngine(t, "a", "b")
	fillRemaining(gs)
	inPhase(gs, PhaseAttack, 0)
	gs.winner = "a"
	assert.ErrorIs(t, e.Fire(EventEndPhase), ErrGameOver)
}

func TestEventForAdvance(t *testing.T) {
	assert.Equal(t, EventAllClaimed, EventForAdvance(PhaseInitialSetup))
	assert.Equal(t, EventPlacementDone, EventForAdvance(PhaseInitialPlacement))
	assert.Equal(t, EventEndPhase, EventForAdvance(PhaseFortify))
}
