package conquest

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
)

// Action names an intent.
type Action string

const (
	ActionClaim        Action = "claim"
	ActionDeploy       Action = "deploy"
	ActionAttackResult Action = "attackResult"
	ActionOccupy       Action = "occupy"
	ActionFortify      Action = "fortify"
	ActionAdvancePhase Action = "advancePhase"
	ActionSkipPhase    Action = "skipPhase"
)

// Intent is a player's request to change the session.
type Intent struct {
	SessionID     string          `json:"sessionId"`
	PlayerID      string          `json:"playerId"`
	Action        Action          `json:"action"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ClientVersion uint64          `json:"clientVersion"`
}

// ClaimPayload is the payload of a claim intent.
type ClaimPayload struct {
	Territory string `json:"territory"`
}

// DeployPayload is the payload of a deploy intent.
type DeployPayload struct {
	Territory string `json:"territory"`
	Count     int    `json:"count"`
}

// OccupyPayload is the payload of an occupy intent.
type OccupyPayload struct {
	Count int `json:"count"`
}

// FortifyPayload is the payload of a fortify intent.
type FortifyPayload struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// NewIntent builds an intent with an encoded payload.
func NewIntent(sessionID, playerID string, action Action, payload any, clientVersion uint64) (Intent, error) {
	in := Intent{SessionID: sessionID, PlayerID: playerID, Action: action, ClientVersion: clientVersion}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Intent{}, fmt.Errorf("marshal %s payload: %w", action, err)
		}
		in.Payload = data
	}
	return in, nil
}

// Response is the reply to an intent.
type Response struct {
	Accepted bool      `json:"accepted"`
	Reason   string    `json:"reason,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// Respond builds a Response from the result of Submit.
func Respond(snap Snapshot, err error) Response {
	if err != nil {
		return Response{Reason: err.Error()}
	}
	return Response{Accepted: true, Snapshot: &snap}
}

// SetupMode selects how territories are handed out at the start.
type SetupMode string

const (
	SetupRandom SetupMode = "random"
	SetupClaim  SetupMode = "claim"
)

// SessionConfig describes a new session.
type SessionConfig struct {
	ID      string
	Graph   *Graph
	Players []Player
	Rules   Rules
	Logger  *zerolog.Logger
}

// Session owns one GameState together with the engine and orchestrator that
// act on it. Intents are applied one at a time.
type Session struct {
	mu     sync.Mutex
	state  *GameState
	engine *PhaseEngine
	turns  *TurnOrchestrator
}

// NewSession creates a session in initial-setup with no territories owned.
func NewSession(cfg SessionConfig) (*Session, error) {
	g := cfg.Graph
	if g == nil {
		g = ClassicGraph()
	}
	gs, err := NewGameState(cfg.ID, g, cfg.Players, cfg.Rules)
	if err != nil {
		return nil, err
	}
	turns := NewTurnOrchestrator(gs)
	return &Session{
		state:  gs,
		turns:  turns,
		engine: NewPhaseEngine(gs, turns, cfg.Logger),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.state.sessionID }

// OnPhaseChanged registers a phase change observer.
func (s *Session) OnPhaseChanged(fn func(PhaseChanged)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Subscribe(fn)
}

// Begin grants starting armies and performs setup. In random mode territories
// are dealt immediately and the session moves to initial-placement; in claim
// mode players claim territories in seat order.
func (s *Session) Begin(mode SetupMode, rng *rand.Rand) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gs := s.state
	if gs.phase != PhaseInitialSetup || !gs.isNewGame || gs.version != 0 {
		return Snapshot{}, invalid("setup", "session has already started")
	}
	s.turns.GrantInitialArmies()
	switch mode {
	case SetupRandom:
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		if err := s.turns.DistributeTerritories(rng); err != nil {
			return Snapshot{}, err
		}
		if err := s.engine.Fire(EventAllClaimed); err != nil {
			return Snapshot{}, err
		}
	case SetupClaim:
		gs.currentPlayerIndex = 0
	default:
		return Snapshot{}, invalid("setup", "unknown setup mode %q", mode)
	}
	return gs.Snapshot(), nil
}

// Submit validates and applies one intent, returning the resulting snapshot.
func (s *Session) Submit(in Intent) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gs := s.state
	if in.SessionID != "" && in.SessionID != gs.sessionID {
		return Snapshot{}, invalid("intent", "intent for session %s sent to %s", in.SessionID, gs.sessionID)
	}
	if gs.winner != "" {
		return Snapshot{}, &GameOverError{Winner: gs.winner}
	}
	if gs.player(in.PlayerID) == nil {
		return Snapshot{}, invalid("intent", "unknown player %s", in.PlayerID)
	}
	if cur := gs.players[gs.currentPlayerIndex].ID; cur != in.PlayerID {
		return Snapshot{}, fmt.Errorf("%w: waiting for %s", ErrNotYourTurn, cur)
	}
	if in.ClientVersion != 0 && in.ClientVersion < gs.version {
		return Snapshot{}, fmt.Errorf("%w: client at v%d, session at v%d", ErrStaleVersion, in.ClientVersion, gs.version)
	}
	s.engine.Recover()

	var err error
	switch in.Action {
	case ActionAdvancePhase:
		err = s.engine.Fire(EventForAdvance(gs.phase))
	case ActionSkipPhase:
		err = s.engine.Fire(EventSkip)
	default:
		if err = s.engine.Allows(in.Action); err == nil {
			err = s.apply(in)
		}
	}
	if err != nil {
		return Snapshot{}, err
	}
	return gs.Snapshot(), nil
}

func (s *Session) apply(in Intent) error {
	gs := s.state
	switch in.Action {
	case ActionClaim:
		var p ClaimPayload
		if err := decodePayload(in, &p); err != nil {
			return err
		}
		if err := gs.ApplyClaim(in.PlayerID, p.Territory); err != nil {
			return err
		}
		s.turns.NextPlacer()
		if gs.AllClaimed() {
			return s.engine.Fire(EventAllClaimed)
		}
		return nil

	case ActionDeploy:
		var p DeployPayload
		if err := decodePayload(in, &p); err != nil {
			return err
		}
		if err := gs.ApplyDeploy(in.PlayerID, p.Territory, p.Count); err != nil {
			return err
		}
		if gs.phase == PhaseInitialPlacement {
			if gs.PoolsEmpty() {
				return s.engine.Fire(EventPlacementDone)
			}
			s.turns.NextPlacer()
		}
		return nil

	case ActionAttackResult:
		var r CombatResult
		if err := decodePayload(in, &r); err != nil {
			return err
		}
		if err := gs.ApplyCombatResult(in.PlayerID, r); err != nil {
			return err
		}
		// A conquest is decided once its occupation has moved in.
		if gs.pending == nil {
			s.turns.CheckGameOver()
		}
		return nil

	case ActionOccupy:
		var p OccupyPayload
		if err := decodePayload(in, &p); err != nil {
			return err
		}
		if err := gs.ApplyOccupy(in.PlayerID, p.Count); err != nil {
			return err
		}
		s.turns.CheckGameOver()
		return nil

	case ActionFortify:
		var p FortifyPayload
		if err := decodePayload(in, &p); err != nil {
			return err
		}
		return gs.ApplyFortify(in.PlayerID, p.From, p.To, p.Count)
	}
	return invalid("intent", "unknown action %q", in.Action)
}

func decodePayload(in Intent, v any) error {
	if len(in.Payload) == 0 {
		return invalid(string(in.Action), "missing payload")
	}
	if err := json.Unmarshal(in.Payload, v); err != nil {
		return invalid(string(in.Action), "malformed payload: %v", err)
	}
	return nil
}

// Snapshot returns the current snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// Version returns the current version.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.version
}

// CurrentPlayerID returns the id of the player whose turn it is.
func (s *Session) CurrentPlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.players[s.state.currentPlayerIndex].ID
}

// Winner returns the winning player id, or "" while the game is running.
func (s *Session) Winner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.winner
}

// LoadInitial rehydrates the session from any structurally valid snapshot.
func (s *Session) LoadInitial(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.LoadInitial(snap); err != nil {
		return err
	}
	s.engine.Recover()
	return nil
}

// Restore replaces the session with an equal-or-newer snapshot.
func (s *Session) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Restore(snap); err != nil {
		return err
	}
	s.engine.Recover()
	return nil
}

// ApplyRemote reconciles a snapshot received from another replica. The remote
// copy replaces the local state only when it wins; the authoritative snapshot
// is returned with whether a replacement happened.
func (s *Session) ApplyRemote(remote Snapshot) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := s.state.Snapshot()
	if !RemoteWins(local, remote) {
		return local, false, nil
	}
	if err := s.state.Restore(remote); err != nil {
		return local, false, err
	}
	s.engine.Recover()
	return s.state.Snapshot(), true, nil
}
