package conquest

import (
	"fmt"
	"time"
)

// Phase is one stage of a player's turn, or one of the two setup stages.
type Phase string

const (
	PhaseInitialSetup     Phase = "initial-setup"
	PhaseInitialPlacement Phase = "initial-placement"
	PhaseDeploy           Phase = "deploy"
	PhaseAttack           Phase = "attack"
	PhaseFortify          Phase = "fortify"
)

// Known reports whether p is one of the defined phases.
func (p Phase) Known() bool {
	switch p {
	case PhaseInitialSetup, PhaseInitialPlacement, PhaseDeploy, PhaseAttack, PhaseFortify:
		return true
	}
	return false
}

// MinPlayers and MaxPlayers bound the seats of a session.
const (
	MinPlayers = 2
	MaxPlayers = 6
)

// DefaultHistoryLimit is the number of history entries kept by a GameState.
const DefaultHistoryLimit = 64

// Territory is the live state of one territory.
type Territory struct {
	ID        string   `json:"id"`
	Owner     string   `json:"owner,omitempty"`
	Armies    int      `json:"armies"`
	Continent string   `json:"continent"`
	Neighbors []string `json:"neighbors"`
}

// Player is a seat in the session.
type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Pool       int    `json:"pool"`
	Eliminated bool   `json:"eliminated"`
}

// Occupation is the forced transfer owed after a conquest: between Min and Max
// armies must move From the attacking territory To the conquered one.
type Occupation struct {
	From string `json:"from"`
	To   string `json:"to"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// History entry kinds.
const (
	HistoryClaim   = "claim"
	HistoryDeploy  = "deploy"
	HistoryCombat  = "combat"
	HistoryOccupy  = "occupy"
	HistoryFortify = "fortify"
	HistoryGrant   = "grant"
	HistoryPhase   = "phase"
	HistoryEnd     = "game-over"
)

// HistoryEntry records one successful mutation.
type HistoryEntry struct {
	Version    uint64    `json:"version"`
	Kind       string    `json:"kind"`
	PlayerID   string    `json:"playerId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	From       Phase     `json:"from,omitempty"`
	To         Phase     `json:"to,omitempty"`
	TurnNumber int       `json:"turnNumber"`
	At         time.Time `json:"at"`
}

// Rules are the per-session rule switches.
type Rules struct {
	// FortifyConnected allows fortifying along any chain of owned territories
	// instead of only between neighbors.
	FortifyConnected bool
	HistoryLimit     int
	Combat           CombatRules
}

// DefaultRules returns the standard rule set.
func DefaultRules() Rules {
	return Rules{HistoryLimit: DefaultHistoryLimit, Combat: StandardCombat{}}
}

// GameState is the canonical record of one session. It is not safe for
// concurrent use; Session serializes access.
type GameState struct {
	sessionID          string
	phase              Phase
	turnNumber         int
	currentPlayerIndex int
	territories        map[string]*Territory
	players            []*Player
	isNewGame          bool
	version            uint64
	pending            *Occupation
	winner             string
	history            []HistoryEntry
	updatedAt          time.Time

	graph *Graph
	rules Rules
	now   func() time.Time
}

// NewGameState creates a fresh session state with every territory unowned.
func NewGameState(sessionID string, g *Graph, players []Player, rules Rules) (*GameState, error) {
	if g == nil {
		return nil, fmt.Errorf("nil territory graph")
	}
	if len(players) < MinPlayers || len(players) > MaxPlayers {
		return nil, fmt.Errorf("need %d to %d players, got %d", MinPlayers, MaxPlayers, len(players))
	}
	if rules.HistoryLimit <= 0 {
		rules.HistoryLimit = DefaultHistoryLimit
	}
	if rules.Combat == nil {
		rules.Combat = StandardCombat{}
	}

	gs := &GameState{
		sessionID:   sessionID,
		phase:       PhaseInitialSetup,
		turnNumber:  1,
		territories: make(map[string]*Territory, g.Len()),
		isNewGame:   true,
		graph:       g,
		rules:       rules,
		now:         time.Now,
	}

	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if p.ID == "" {
			return nil, fmt.Errorf("player with empty id")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate player %q", p.ID)
		}
		seen[p.ID] = true
		gs.players = append(gs.players, &Player{ID: p.ID, Name: p.Name, Color: p.Color})
	}

	for _, id := range g.IDs() {
		gs.territories[id] = gs.newTerritory(id)
	}
	return gs, nil
}

func (gs *GameState) newTerritory(id string) *Territory {
	return &Territory{
		ID:        id,
		Continent: gs.graph.ContinentOf(id),
		Neighbors: gs.graph.Neighbors(id),
	}
}

// SetClock replaces the wall clock used for history and snapshot timestamps.
func (gs *GameState) SetClock(now func() time.Time) { gs.now = now }

func (gs *GameState) SessionID() string { return gs.sessionID }
func (gs *GameState) Phase() Phase { return gs.phase }
func (gs *GameState) TurnNumber() int { return gs.turnNumber }
func (gs *GameState) CurrentPlayerIndex() int { return gs.currentPlayerIndex }
func (gs *GameState) IsNewGame() bool { return gs.isNewGame }
func (gs *GameState) Version() uint64 { return gs.version }
func (gs *GameState) Winner() string { return gs.winner }
func (gs *GameState) Graph() *Graph { return gs.graph }
func (gs *GameState) Rules() Rules { return gs.rules }

// PendingOccupation returns the unresolved forced transfer, or nil.
func (gs *GameState) PendingOccupation() *Occupation {
	if gs.pending == nil {
		return nil
	}
	p := *gs.pending
	return &p
}

// CurrentPlayer returns a copy of the active player.
func (gs *GameState) CurrentPlayer() Player {
	return *gs.players[gs.currentPlayerIndex]
}

// Player returns a copy of the player with the given id.
func (gs *GameState) Player(id string) (Player, bool) {
	if p := gs.player(id); p != nil {
		return *p, true
	}
	return Player{}, false
}

// Players returns copies of all players in seat order.
func (gs *GameState) Players() []Player {
	out := make([]Player, len(gs.players))
	for i, p := range gs.players {
		out[i] = *p
	}
	return out
}

// Territory returns a copy of the territory with the given id.
func (gs *GameState) Territory(id string) (Territory, bool) {
	t, ok := gs.territories[id]
	if !ok {
		return Territory{}, false
	}
	cp := *t
	cp.Neighbors = append([]string(nil), t.Neighbors...)
	return cp, true
}

// History returns the retained history, oldest first.
func (gs *GameState) History() []HistoryEntry {
	return append([]HistoryEntry(nil), gs.history...)
}

func (gs *GameState) player(id string) *Player {
	for _, p := range gs.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (gs *GameState) playerIndex(id string) int {
	for i, p := range gs.players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// OwnedCount returns the number of territories owned by a player.
func (gs *GameState) OwnedCount(playerID string) int {
	n := 0
	for _, t := range gs.territories {
		if t.Owner == playerID {
			n++
		}
	}
	return n
}

// OwnedTerritories returns the sorted ids of territories owned by a player.
func (gs *GameState) OwnedTerritories(playerID string) []string {
	var out []string
	for _, id := range gs.graph.IDs() {
		if gs.territories[id].Owner == playerID {
			out = append(out, id)
		}
	}
	return out
}

// AllClaimed reports whether every territory has an owner.
func (gs *GameState) AllClaimed() bool {
	for _, t := range gs.territories {
		if t.Owner == "" {
			return false
		}
	}
	return true
}

// PoolsEmpty reports whether no player has armies left to deploy.
func (gs *GameState) PoolsEmpty() bool {
	for _, p := range gs.players {
		if p.Pool > 0 {
			return false
		}
	}
	return true
}

// TotalArmies counts armies on the board plus undeployed pools.
func (gs *GameState) TotalArmies() int {
	total := 0
	for _, t := range gs.territories {
		total += t.Armies
	}
	for _, p := range gs.players {
		total += p.Pool
	}
	return total
}

// ActivePlayers returns the ids of players not yet eliminated, in seat order.
func (gs *GameState) ActivePlayers() []string {
	var out []string
	for _, p := range gs.players {
		if !p.Eliminated {
			out = append(out, p.ID)
		}
	}
	return out
}

// record bumps the version and appends a history entry, dropping the oldest
// entries beyond the history limit.
func (gs *GameState) record(e HistoryEntry) {
	gs.version++
	e.Version = gs.version
	e.TurnNumber = gs.turnNumber
	e.At = gs.now().UTC()
	gs.updatedAt = e.At
	gs.history = append(gs.history, e)
	if over := len(gs.history) - gs.rules.HistoryLimit; over > 0 {
		gs.history = append(gs.history[:0:0], gs.history[over:]...)
	}
}

func (gs *GameState) ownedBy(playerID string) func(string) bool {
	return func(id string) bool { return gs.territories[id].Owner == playerID }
}

// ApplyClaim gives an unowned territory to a player during initial setup,
// placing one army from the player's pool on it.
func (gs *GameState) ApplyClaim(playerID, territoryID string) error {
	p := gs.player(playerID)
	if p == nil {
		return invalid("claim", "unknown player %s", playerID)
	}
	t, ok := gs.territories[territoryID]
	if !ok {
		return invalid("claim", "unknown territory %s", territoryID)
	}
	if t.Owner != "" {
		return invalid("claim", "%s is already owned by %s", territoryID, t.Owner)
	}
	if p.Pool < 1 {
		return invalid("claim", "%s has no armies left to place", playerID)
	}
	t.Owner = playerID
	t.Armies = 1
	p.Pool--
	gs.record(HistoryEntry{Kind: HistoryClaim, PlayerID: playerID, Detail: territoryID})
	return nil
}

// ApplyDeploy moves count armies from a player's pool onto an owned territory.
func (gs *GameState) ApplyDeploy(playerID, territoryID string, count int) error {
	if gs.pending != nil {
		return invalid("deploy", "occupation of %s must be resolved first", gs.pending.To)
	}
	p := gs.player(playerID)
	if p == nil {
		return invalid("deploy", "unknown player %s", playerID)
	}
	t, ok := gs.territories[territoryID]
	if !ok {
		return invalid("deploy", "unknown territory %s", territoryID)
	}
	if t.Owner != playerID {
		return invalid("deploy", "%s does not own %s", playerID, territoryID)
	}
	if count < 1 {
		return invalid("deploy", "count must be at least 1, got %d", count)
	}
	if count > p.Pool {
		return invalid("deploy", "%s has %d armies to deploy, asked for %d", playerID, p.Pool, count)
	}
	t.Armies += count
	p.Pool -= count
	gs.record(HistoryEntry{Kind: HistoryDeploy, PlayerID: playerID, Detail: fmt.Sprintf("%d to %s", count, territoryID)})
	return nil
}

// CombatResult is a battle outcome supplied by the caller.
type CombatResult struct {
	AttackerTerritory    string `json:"attackerTerritory"`
	DefenderTerritory    string `json:"defenderTerritory"`
	AttackerArmiesBefore int    `json:"attackerArmiesBefore"`
	AttackerArmiesAfter  int    `json:"attackerArmiesAfter"`
	DefenderArmiesBefore int    `json:"defenderArmiesBefore"`
	DefenderArmiesAfter  int    `json:"defenderArmiesAfter"`
	Conquered            bool   `json:"conquered"`
}

// ApplyCombatResult applies a validated battle outcome. On conquest the
// defending territory changes owner with zero armies and an Occupation is
// left pending until ApplyOccupy moves armies in.
func (gs *GameState) ApplyCombatResult(playerID string, r CombatResult) error {
	if gs.pending != nil {
		return invalid("attack", "occupation of %s must be resolved first", gs.pending.To)
	}
	from, ok := gs.territories[r.AttackerTerritory]
	if !ok {
		return invalid("attack", "unknown territory %s", r.AttackerTerritory)
	}
	to, ok := gs.territories[r.DefenderTerritory]
	if !ok {
		return invalid("attack", "unknown territory %s", r.DefenderTerritory)
	}
	if from.Owner != playerID {
		return invalid("attack", "%s does not own %s", playerID, from.ID)
	}
	if to.Owner == playerID {
		return invalid("attack", "%s cannot attack its own territory %s", playerID, to.ID)
	}
	if to.Owner == "" {
		return invalid("attack", "%s is unowned", to.ID)
	}
	if !gs.graph.Adjacent(from.ID, to.ID) {
		return invalid("attack", "%s is not adjacent to %s", from.ID, to.ID)
	}
	if r.AttackerArmiesBefore != from.Armies || r.DefenderArmiesBefore != to.Armies {
		return invalid("attack", "before counts %d/%d do not match board %d/%d",
			r.AttackerArmiesBefore, r.DefenderArmiesBefore, from.Armies, to.Armies)
	}
	if from.Armies < 2 {
		return invalid("attack", "%s needs at least 2 armies to attack", from.ID)
	}

	out := gs.rules.Combat.Validate(r.AttackerArmiesBefore, r.DefenderArmiesBefore, r.AttackerArmiesAfter, r.DefenderArmiesAfter)
	if !out.OK {
		return invalid("attack", "%s", out.Reason)
	}
	if out.Conquered && r.AttackerArmiesAfter < 2 {
		return invalid("attack", "conquest leaves %s with %d army, none can occupy", from.ID, r.AttackerArmiesAfter)
	}

	defender := to.Owner
	from.Armies = r.AttackerArmiesAfter
	if out.Conquered {
		to.Owner = playerID
		to.Armies = 0
		gs.pending = &Occupation{From: from.ID, To: to.ID, Min: 1, Max: from.Armies - 1}
		if gs.OwnedCount(defender) == 0 {
			gs.player(defender).Eliminated = true
		}
	} else {
		to.Armies = r.DefenderArmiesAfter
	}

	detail := fmt.Sprintf("%s->%s %d/%d lost %d/%d", from.ID, to.ID,
		r.AttackerArmiesBefore, r.DefenderArmiesBefore, out.AttackerLosses, out.DefenderLosses)
	if out.Conquered {
		detail += " conquered"
	}
	gs.record(HistoryEntry{Kind: HistoryCombat, PlayerID: playerID, Detail: detail})
	return nil
}

// ApplyOccupy resolves the pending occupation by moving count armies into the
// conquered territory.
func (gs *GameState) ApplyOccupy(playerID string, count int) error {
	occ := gs.pending
	if occ == nil {
		return invalid("occupy", "no conquest awaiting occupation")
	}
	from := gs.territories[occ.From]
	to := gs.territories[occ.To]
	if from.Owner != playerID || to.Owner != playerID {
		return invalid("occupy", "%s does not own %s", playerID, occ.To)
	}
	if count < occ.Min || count > occ.Max {
		return invalid("occupy", "must move between %d and %d armies, got %d", occ.Min, occ.Max, count)
	}
	from.Armies -= count
	to.Armies += count
	gs.pending = nil
	gs.record(HistoryEntry{Kind: HistoryOccupy, PlayerID: playerID, Detail: fmt.Sprintf("%d from %s to %s", count, from.ID, to.ID)})
	return nil
}

// ApplyFortify moves armies between two territories owned by the same player,
// leaving at least one army behind.
func (gs *GameState) ApplyFortify(playerID, fromID, toID string, count int) error {
	if gs.pending != nil {
		return invalid("fortify", "occupation of %s must be resolved first", gs.pending.To)
	}
	from, ok := gs.territories[fromID]
	if !ok {
		return invalid("fortify", "unknown territory %s", fromID)
	}
	to, ok := gs.territories[toID]
	if !ok {
		return invalid("fortify", "unknown territory %s", toID)
	}
	if fromID == toID {
		return invalid("fortify", "source and target are both %s", fromID)
	}
	if from.Owner != playerID {
		return invalid("fortify", "%s does not own %s", playerID, fromID)
	}
	if to.Owner != playerID {
		return invalid("fortify", "%s does not own %s", playerID, toID)
	}
	if count < 1 {
		return invalid("fortify", "count must be at least 1, got %d", count)
	}
	if from.Armies-count < 1 {
		return invalid("fortify", "%s has %d armies, cannot move %d and keep one", fromID, from.Armies, count)
	}
	if gs.rules.FortifyConnected {
		if !gs.graph.Connected(fromID, toID, gs.ownedBy(playerID)) {
			return invalid("fortify", "%s is not connected to %s through owned territory", fromID, toID)
		}
	} else if !gs.graph.Adjacent(fromID, toID) {
		return invalid("fortify", "%s is not adjacent to %s", fromID, toID)
	}
	from.Armies -= count
	to.Armies += count
	gs.record(HistoryEntry{Kind: HistoryFortify, PlayerID: playerID, Detail: fmt.Sprintf("%d from %s to %s", count, fromID, toID)})
	return nil
}

// Snapshot returns an immutable copy of the state, stamped with the time of
// the last mutation.
func (gs *GameState) Snapshot() Snapshot {
	ts := gs.updatedAt
	if ts.IsZero() {
		ts = gs.now().UTC()
	}
	s := Snapshot{
		SessionID:          gs.sessionID,
		Version:            gs.version,
		Timestamp:          ts,
		Phase:              gs.phase,
		TurnNumber:         gs.turnNumber,
		CurrentPlayerIndex: gs.currentPlayerIndex,
		IsNewGame:          gs.isNewGame,
		Players:            make([]PlayerSnapshot, len(gs.players)),
		Territories:        make(map[string]TerritorySnapshot, len(gs.territories)),
		Winner:             gs.winner,
		History:            gs.History(),
	}
	for i, p := range gs.players {
		s.Players[i] = PlayerSnapshot{ID: p.ID, Name: p.Name, Color: p.Color, Pool: p.Pool, Eliminated: p.Eliminated}
	}
	for id, t := range gs.territories {
		s.Territories[id] = TerritorySnapshot{Owner: t.Owner, Armies: t.Armies}
	}
	s.PendingOccupation = gs.PendingOccupation()
	return s
}

// Restore replaces the state with a snapshot that is at least as new as the
// current version.
func (gs *GameState) Restore(s Snapshot) error {
	if s.Version < gs.version {
		return fmt.Errorf("%w: snapshot v%d is older than v%d", ErrStaleVersion, s.Version, gs.version)
	}
	return gs.load(s)
}

// LoadInitial replaces the state with any structurally valid snapshot. It is
// used once when a session is rehydrated.
func (gs *GameState) LoadInitial(s Snapshot) error {
	return gs.load(s)
}

func (gs *GameState) load(s Snapshot) error {
	if s.SessionID != "" && gs.sessionID != "" && s.SessionID != gs.sessionID {
		return invalid("restore", "snapshot of session %s cannot replace %s", s.SessionID, gs.sessionID)
	}
	if err := s.Validate(gs.graph); err != nil {
		return err
	}

	players := make([]*Player, len(s.Players))
	for i, p := range s.Players {
		players[i] = &Player{ID: p.ID, Name: p.Name, Color: p.Color, Pool: p.Pool, Eliminated: p.Eliminated}
	}
	territories := make(map[string]*Territory, len(s.Territories))
	for id, t := range s.Territories {
		nt := gs.newTerritory(id)
		nt.Owner = t.Owner
		nt.Armies = t.Armies
		territories[id] = nt
	}

	if gs.sessionID == "" {
		gs.sessionID = s.SessionID
	}
	gs.players = players
	gs.territories = territories
	gs.phase = s.Phase
	gs.turnNumber = s.TurnNumber
	gs.currentPlayerIndex = s.CurrentPlayerIndex
	gs.version = s.Version
	gs.winner = s.Winner
	gs.updatedAt = s.Timestamp
	gs.history = append([]HistoryEntry(nil), s.History...)
	if over := len(gs.history) - gs.rules.HistoryLimit; over > 0 {
		gs.history = gs.history[over:]
	}
	gs.pending = nil
	if s.PendingOccupation != nil {
		occ := *s.PendingOccupation
		gs.pending = &occ
	}
	// Once setup has completed nothing can make the session new again.
	gs.isNewGame = gs.isNewGame && s.IsNewGame && s.Phase == PhaseInitialSetup
	return nil
}
