package conquest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestSessionConquestAndOccupation(t *testing.T) {
	s := newTestSession(t, "a", "b")
	gs := s.state
	own(gs, "a", 3, "alaska")
	own(gs, "b", 2, "kamchatka")
	fillRemaining(gs)
	inPhase(gs, PhaseAttack, 0)

	var events []PhaseChanged
	s.OnPhaseChanged(func(ev PhaseChanged) { events = append(events, ev) })

	snap, err := s.Submit(intent(t, "a", ActionAttackResult, CombatResult{
		AttackerTerritory: "alaska", DefenderTerritory: "kamchatka",
		AttackerArmiesBefore: 3, AttackerArmiesAfter: 3,
		DefenderArmiesBefore: 2, DefenderArmiesAfter: 0,
		Conquered: true,
	}))
	require.NoError(t, err)
	assert.Equal(t, TerritorySnapshot{Owner: "a", Armies: 0}, snap.Territories["kamchatka"])
	assert.Equal(t, &Occupation{From: "alaska", To: "kamchatka", Min: 1, Max: 2}, snap.PendingOccupation)

	_, err = s.Submit(intent(t, "a", ActionAdvancePhase, nil))
	assert.ErrorIs(t, err, ErrInvalidOperation)

	snap, err = s.Submit(intent(t, "a", ActionOccupy, OccupyPayload{Count: 1}))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Territories["alaska"].Armies)
	assert.Equal(t, 1, snap.Territories["kamchatka"].Armies)
	assert.Nil(t, snap.PendingOccupation)

	snap, err = s.Submit(intent(t, "a", ActionAdvancePhase, nil))
	require.NoError(t, err)
	assert.Equal(t, PhaseFortify, snap.Phase)
	require.Len(t, events, 1)
	assert.Equal(t, PhaseAttack, events[0].From)
	assert.Equal(t, PhaseFortify, events[0].To)
}

func TestSessionRejectsOutOfTurnIntent(t *testing.T) {
	s := newTestSession(t, "a", "b")
	fillRemaining(s.state)
	inPhase(s.state, PhaseDeploy, 0)
	s.state.players[1].Pool = 3
	before := s.Snapshot()

	_, err := s.Submit(intent(t, "b", ActionDeploy, DeployPayload{Territory: s.state.OwnedTerritories("b")[0], Count: 1}))
	require.ErrorIs(t, err, ErrNotYourTurn)
	after := s.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Territories, after.Territories)
	assert.Equal(t, before.Players, after.Players)

	_, err = s.Submit(intent(t, "zed", ActionSkipPhase, nil))
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestSessionRejectsStaleClientVersion(t *testing.T) {
	s := newTestSession(t, "a", "b")
	fillRemaining(s.state)
	inPhase(s.state, PhaseDeploy, 0)
	s.state.players[0].Pool = 5
	target := s.state.OwnedTerritories("a")[0]

	in, err := NewIntent("session-1", "a", ActionDeploy, DeployPayload{Territory: target, Count: 1}, 0)
	require.NoError(t, err)
	_, err = s.Submit(in)
	require.NoError(t, err)
	_, err = s.Submit(in)
	require.NoError(t, err)

	in.ClientVersion = 1
	_, err = s.Submit(in)
	assert.ErrorIs(t, err, ErrStaleVersion)

	in.ClientVersion = s.Version()
	_, err = s.Submit(in)
	assert.NoError(t, err)
}

func TestSessionRejectsBadIntents(t *testing.T) {
	s := newTestSession(t, "a", "b")
	fillRemaining(s.state)
	inPhase(s.state, PhaseDeploy, 0)
	s.state.players[0].Pool = 5

	in := intent(t, "a", ActionDeploy, nil)
	_, err := s.Submit(in)
	assert.ErrorContains(t, err, "missing payload")

	in.Payload = json.RawMessage(`{"count":"many"}`)
	_, err = s.Submit(in)
	assert.ErrorContains(t, err, "malformed payload")

	in = intent(t, "a", ActionFortify, FortifyPayload{From: "alaska", To: "alberta", Count: 1})
	_, err = s.Submit(in)
	assert.ErrorContains(t, err, "not allowed during deploy")

	in = intent(t, "a", Action("teleport"), nil)
	_, err = s.Submit(in)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	in = intent(t, "a", ActionSkipPhase, nil)
	in.SessionID = "other"
	_, err = s.Submit(in)
	assert.ErrorContains(t, err, "sent to session-1")

	assert.Zero(t, s.Version())
}

func TestSessionClaimSetup(t *testing.T) {
	s := newTestSession(t, "a", "b")
	snap, err := s.Begin(SetupClaim, nil)
	require.NoError(t, err)
	assert.Equal(t, PhaseInitialSetup, snap.Phase)
	assert.True(t, snap.IsNewGame)
	assert.Equal(t, 80, snap.TotalArmies())
	begun := snap.Version

	_, err = s.Begin(SetupClaim, nil)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	snap, err = s.Submit(intent(t, "a", ActionClaim, ClaimPayload{Territory: "alaska"}))
	require.NoError(t, err)
	assert.Equal(t, "b", s.CurrentPlayerID())
	assert.Greater(t, snap.Version, begun)
	assert.True(t, snap.IsNewGame, "claims keep the session new until setup completes")

	_, err = s.Submit(intent(t, "b", ActionClaim, ClaimPayload{Territory: "alaska"}))
	assert.ErrorContains(t, err, "already owned")

	_, err = s.Submit(intent(t, "b", ActionAdvancePhase, nil))
	assert.ErrorContains(t, err, "unclaimed")

	for _, id := range ClassicGraph().IDs() {
		if id == "alaska" {
			continue
		}
		_, err := s.Submit(intent(t, s.CurrentPlayerID(), ActionClaim, ClaimPayload{Territory: id}))
		require.NoError(t, err, id)
	}

	snap = s.Snapshot()
	assert.Equal(t, PhaseInitialPlacement, snap.Phase)
	assert.False(t, snap.IsNewGame)
	assert.Equal(t, 19, snap.Players[0].Pool)
	assert.Equal(t, 19, snap.Players[1].Pool)

	for s.Snapshot().Phase == PhaseInitialPlacement {
		cur := s.CurrentPlayerID()
		_, err := s.Submit(intent(t, cur, ActionDeploy, DeployPayload{Territory: s.state.OwnedTerritories(cur)[0], Count: 1}))
		require.NoError(t, err)
	}

	snap = s.Snapshot()
	assert.Equal(t, PhaseDeploy, snap.Phase)
	assert.Equal(t, 1, snap.TurnNumber)
	assert.Equal(t, "a", snap.CurrentPlayerID())
	assert.Equal(t, 7, snap.Players[0].Pool)
	assert.Equal(t, 80+7, snap.TotalArmies())
}

func TestSessionRandomSetup(t *testing.T) {
	s := newTestSession(t, "a", "b", "c", "d")
	var events []PhaseChanged
	s.OnPhaseChanged(func(ev PhaseChanged) { events = append(events, ev) })

	snap, err := s.Begin(SetupRandom, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, PhaseInitialPlacement, snap.Phase)
	assert.False(t, snap.IsNewGame)
	assert.Equal(t, 4*30, snap.TotalArmies())
	for _, terr := range snap.Territories {
		assert.NotEmpty(t, terr.Owner)
	}
	require.Len(t, events, 1)
	assert.Equal(t, PhaseInitialSetup, events[0].From)

	_, err = s.Begin(SetupRandom, nil)
	assert.Error(t, err)
}

func TestSessionGameOver(t *testing.T) {
	s := newTestSession(t, "a", "b")
	gs := s.state
	own(gs, "a", 1, gs.graph.IDs()...)
	own(gs, "a", 3, "alaska")
	own(gs, "b", 1, "kamchatka")
	inPhase(gs, PhaseAttack, 0)

	snap, err := s.Submit(intent(t, "a", ActionAttackResult, CombatResult{
		AttackerTerritory: "alaska", DefenderTerritory: "kamchatka",
		AttackerArmiesBefore: 3, AttackerArmiesAfter: 2,
		DefenderArmiesBefore: 1, DefenderArmiesAfter: 0,
		Conquered: true,
	}))
	require.NoError(t, err)
	assert.Empty(t, snap.Winner)
	assert.Empty(t, s.Winner())
	assert.True(t, snap.Players[1].Eliminated)
	assert.Equal(t, &Occupation{From: "alaska", To: "kamchatka", Min: 1, Max: 1}, snap.PendingOccupation)

	snap, err = s.Submit(intent(t, "a", ActionOccupy, OccupyPayload{Count: 1}))
	require.NoError(t, err)
	assert.Equal(t, "a", snap.Winner)
	assert.Equal(t, "a", s.Winner())
	assert.Nil(t, snap.PendingOccupation)
	assert.Equal(t, TerritorySnapshot{Owner: "a", Armies: 1}, snap.Territories["kamchatka"])
	require.NoError(t, snap.Validate(ClassicGraph()))

	_, err = s.Submit(intent(t, "a", ActionAdvancePhase, nil))
	var over *GameOverError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, "a", over.Winner)
}

func TestSessionFinalConquestMovesArmiesBeforeWin(t *testing.T) {
	s := newTestSession(t, "a", "b")
	gs := s.state
	own(gs, "a", 1, gs.graph.IDs()...)
	own(gs, "a", 3, "alaska")
	own(gs, "b", 2, "kamchatka")
	inPhase(gs, PhaseAttack, 0)

	snap, err := s.Submit(intent(t, "a", ActionAttackResult, CombatResult{
		AttackerTerritory: "alaska", DefenderTerritory: "kamchatka",
		AttackerArmiesBefore: 3, AttackerArmiesAfter: 3,
		DefenderArmiesBefore: 2, DefenderArmiesAfter: 0,
		Conquered: true,
	}))
	require.NoError(t, err)
	require.Empty(t, snap.Winner)
	require.NotNil(t, snap.PendingOccupation)
	assert.Equal(t, 2, snap.PendingOccupation.Max)

	snap, err = s.Submit(intent(t, "a", ActionOccupy, OccupyPayload{Count: 2}))
	require.NoError(t, err)
	assert.Equal(t, "a", snap.Winner)
	assert.Equal(t, 1, snap.Territories["alaska"].Armies)
	assert.Equal(t, 2, snap.Territories["kamchatka"].Armies)
	for id, terr := range snap.Territories {
		assert.Equal(t, "a", terr.Owner, id)
		assert.GreaterOrEqual(t, terr.Armies, 1, id)
	}
}

func TestSessionLoadInitialRecoversUnknownPhase(t *testing.T) {
	src := newTestState(t, "a", "b")
	fillRemaining(src)
	inPhase(src, PhaseDeploy, 1)
	snap := src.Snapshot()
	snap.Phase = "reinforce"
	snap.Version = 12

	s := newTestSession(t, "a", "b")
	require.NoError(t, s.LoadInitial(snap))
	got := s.Snapshot()
	assert.Equal(t, PhaseDeploy, got.Phase)
	assert.Equal(t, uint64(13), got.Version)
	assert.Equal(t, "b", got.CurrentPlayerID())
}

func TestRespond(t *testing.T) {
	r := Respond(Snapshot{Version: 3}, nil)
	assert.True(t, r.Accepted)
	require.NotNil(t, r.Snapshot)
	assert.Equal(t, uint64(3), r.Snapshot.Version)

	r = Respond(Snapshot{}, ErrNotYourTurn)
	assert.False(t, r.Accepted)
	assert.Equal(t, "not your turn", r.Reason)
	assert.Nil(t, r.Snapshot)
}

// TestArmiesOnlyGrowFromGrants drives a session with random intents, valid or
// not, and checks that the board stays well formed and that the army total
// never rises except when a new turn grants reinforcements.
func TestArmiesOnlyGrowFromGrants(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		s := newTestSession(t, "a", "b", "c")
		_, err := s.Begin(SetupRandom, rng)
		require.NoError(t, err)

		prev := s.Snapshot()
		for step := 0; step < 600 && prev.Winner == ""; step++ {
			in := randomIntent(t, rng, prev)
			next, err := s.Submit(in)
			if err != nil {
				require.Equal(t, prev.Version, s.Version(), "rejected %s changed the version", in.Action)
				continue
			}
			require.NoError(t, next.Validate(ClassicGraph()))
			require.Greater(t, next.Version, prev.Version)

			granted := next.CurrentPlayerIndex != prev.CurrentPlayerIndex ||
				(prev.Phase == PhaseInitialPlacement && next.Phase == PhaseDeploy)
			if !granted {
				require.LessOrEqual(t, next.TotalArmies(), prev.TotalArmies(), "seed %d step %d %s", seed, step, in.Action)
			}
			prev = next
		}
	}
}

func randomIntent(t *testing.T, rng *rand.Rand, snap Snapshot) Intent {
	t.Helper()
	g := ClassicGraph()
	cur := snap.CurrentPlayerID()
	var owned []string
	for _, id := range g.IDs() {
		if snap.Territories[id].Owner == cur {
			owned = append(owned, id)
		}
	}
	pick := func(ids []string) string {
		if len(ids) == 0 {
			return "alaska"
		}
		return ids[rng.Intn(len(ids))]
	}
	from := pick(owned)
	to := pick(g.Neighbors(from))
	fromArmies := snap.Territories[from].Armies
	toArmies := snap.Territories[to].Armies

	switch rng.Intn(8) {
	case 0:
		return intent(t, cur, ActionDeploy, DeployPayload{Territory: from, Count: 1 + rng.Intn(4)})
	case 1, 2:
		after := 1 + rng.Intn(max(fromArmies, 1))
		return intent(t, cur, ActionAttackResult, CombatResult{
			AttackerTerritory: from, DefenderTerritory: to,
			AttackerArmiesBefore: fromArmies, AttackerArmiesAfter: after,
			DefenderArmiesBefore: toArmies, DefenderArmiesAfter: rng.Intn(toArmies + 1),
		})
	case 3:
		return intent(t, cur, ActionOccupy, OccupyPayload{Count: 1 + rng.Intn(3)})
	case 4:
		return intent(t, cur, ActionFortify, FortifyPayload{From: from, To: to, Count: 1 + rng.Intn(3)})
	case 5:
		return intent(t, cur, ActionSkipPhase, nil)
	default:
		return intent(t, cur, ActionAdvancePhase, nil)
	}
}
