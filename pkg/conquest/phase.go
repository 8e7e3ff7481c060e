package conquest

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event triggers a phase transition.
type Event string

const (
	EventAllClaimed    Event = "all-claimed"
	EventPlacementDone Event = "placement-done"
	EventEndPhase      Event = "end-phase"
	EventSkip          Event = "skip"
)

// PhaseChanged is published once per transition.
type PhaseChanged struct {
	From       Phase  `json:"oldPhase"`
	To         Phase  `json:"newPhase"`
	TurnNumber int    `json:"turnNumber"`
	PlayerID   string `json:"currentPlayerId"`
	Recovered  bool   `json:"recovered,omitempty"`
}

// PhaseGuard is a precondition for leaving a phase.
type PhaseGuard interface {
	Check(gs *GameState) error
}

// GuardFunc adapts a function to PhaseGuard.
type GuardFunc func(gs *GameState) error

func (f GuardFunc) Check(gs *GameState) error { return f(gs) }

type transition struct {
	from  Phase
	event Event
	guard PhaseGuard
	to    Phase
	enter func(e *PhaseEngine) error
}

var (
	guardAllClaimed = GuardFunc(func(gs *GameState) error {
		if !gs.AllClaimed() {
			return invalid("phase", "%d territories are still unclaimed", gs.graph.Len()-claimedCount(gs))
		}
		return nil
	})
	guardPoolsEmpty = GuardFunc(func(gs *GameState) error {
		for _, p := range gs.players {
			if p.Pool > 0 {
				return invalid("phase", "%s still has %d armies to place", p.ID, p.Pool)
			}
		}
		return nil
	})
	guardCurrentPoolEmpty = GuardFunc(func(gs *GameState) error {
		if p := gs.players[gs.currentPlayerIndex]; p.Pool > 0 {
			return invalid("phase", "%s still has %d armies to deploy", p.ID, p.Pool)
		}
		return nil
	})
)

func claimedCount(gs *GameState) int {
	n := 0
	for _, t := range gs.territories {
		if t.Owner != "" {
			n++
		}
	}
	return n
}

// transitions is the complete table of legal phase changes.
var transitions = []transition{
	{PhaseInitialSetup, EventAllClaimed, guardAllClaimed, PhaseInitialPlacement, enterPlacement},
	{PhaseInitialPlacement, EventPlacementDone, guardPoolsEmpty, PhaseDeploy, enterFirstTurn},
	{PhaseDeploy, EventEndPhase, guardCurrentPoolEmpty, PhaseAttack, nil},
	{PhaseAttack, EventEndPhase, nil, PhaseFortify, nil},
	{PhaseAttack, EventSkip, nil, PhaseFortify, nil},
	{PhaseFortify, EventEndPhase, nil, PhaseDeploy, enterNextTurn},
	{PhaseFortify, EventSkip, nil, PhaseDeploy, enterNextTurn},
}

func enterPlacement(e *PhaseEngine) error {
	gs := e.state
	gs.isNewGame = false
	if gs.players[gs.currentPlayerIndex].Pool == 0 {
		e.turns.NextPlacer()
	}
	return nil
}

func enterFirstTurn(e *PhaseEngine) error {
	e.turns.StartFirstTurn()
	return nil
}

func enterNextTurn(e *PhaseEngine) error {
	return e.turns.AdvanceTurn()
}

// actionPhases lists the phases in which each mutating action is legal.
var actionPhases = map[Action][]Phase{
	ActionClaim:        {PhaseInitialSetup},
	ActionDeploy:       {PhaseInitialPlacement, PhaseDeploy},
	ActionAttackResult: {PhaseAttack},
	ActionOccupy:       {PhaseAttack},
	ActionFortify:      {PhaseFortify},
}

// PhaseEngine is the only component that changes the phase of a GameState.
type PhaseEngine struct {
	state     *GameState
	turns     *TurnOrchestrator
	observers []func(PhaseChanged)
	log       zerolog.Logger
}

// NewPhaseEngine creates an engine for a state. A nil logger uses the global logger.
func NewPhaseEngine(gs *GameState, turns *TurnOrchestrator, logger *zerolog.Logger) *PhaseEngine {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &PhaseEngine{state: gs, turns: turns, log: l}
}

// Subscribe registers an observer called synchronously after each transition.
// Observers must not call back into the owning Session.
func (e *PhaseEngine) Subscribe(fn func(PhaseChanged)) {
	e.observers = append(e.observers, fn)
}

// Allows reports whether action may be applied in the current phase.
func (e *PhaseEngine) Allows(action Action) error {
	phases, ok := actionPhases[action]
	if !ok {
		return invalid("intent", "%s is not a mutating action", action)
	}
	cur := e.state.phase
	for _, p := range phases {
		if p == cur {
			return nil
		}
	}
	return invalid(string(action), "not allowed during %s", cur)
}

// EventForAdvance maps an explicit "advance phase" request to the event that
// completes the current phase.
func EventForAdvance(p Phase) Event {
	switch p {
	case PhaseInitialSetup:
		return EventAllClaimed
	case PhaseInitialPlacement:
		return EventPlacementDone
	default:
		return EventEndPhase
	}
}

// Fire attempts the transition for ev from the current phase. Guard failures
// and events with no row in the table are rejected with a ValidationError and
// leave the state unchanged.
func (e *PhaseEngine) Fire(ev Event) error {
	gs := e.state
	if gs.winner != "" {
		return &GameOverError{Winner: gs.winner}
	}
	e.Recover()
	if gs.pending != nil {
		return invalid("phase", "occupation of %s must be resolved first", gs.pending.To)
	}

	var t *transition
	for i := range transitions {
		if transitions[i].from == gs.phase && transitions[i].event == ev {
			t = &transitions[i]
			break
		}
	}
	if t == nil {
		return invalid("phase", "%s is not allowed during %s", ev, gs.phase)
	}
	if t.guard != nil {
		if err := t.guard.Check(gs); err != nil {
			return err
		}
	}
	from := gs.phase
	if t.enter != nil {
		if err := t.enter(e); err != nil {
			return err
		}
	}
	e.setPhase(from, t.to, false)
	return nil
}

// Recover moves a state whose phase name is unknown to deploy, logging a
// warning. This is the only place an unknown phase is tolerated. It reports
// whether a recovery happened.
func (e *PhaseEngine) Recover() bool {
	gs := e.state
	if gs.phase.Known() {
		return false
	}
	e.log.Warn().
		Str("sessionId", gs.sessionID).
		Str("phase", string(gs.phase)).
		Int("turn", gs.turnNumber).
		Msg("Unknown phase, falling back to deploy")
	e.setPhase(gs.phase, PhaseDeploy, true)
	return true
}

func (e *PhaseEngine) setPhase(from, to Phase, recovered bool) {
	gs := e.state
	gs.phase = to
	playerID := gs.players[gs.currentPlayerIndex].ID
	gs.record(HistoryEntry{Kind: HistoryPhase, PlayerID: playerID, From: from, To: to})

	ev := PhaseChanged{From: from, To: to, TurnNumber: gs.turnNumber, PlayerID: playerID, Recovered: recovered}
	for _, fn := range e.observers {
		fn(ev)
	}
}
