package conquest

import (
	"encoding/json"
	"fmt"
	"time"
)

// PlayerSnapshot is the persisted form of a Player.
type PlayerSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Color      string `json:"color"`
	Pool       int    `json:"pool"`
	Eliminated bool   `json:"eliminated"`
}

// TerritorySnapshot is the persisted form of a Territory.
type TerritorySnapshot struct {
	Owner  string `json:"owner"`
	Armies int    `json:"armies"`
}

// Snapshot is a versioned, immutable serialization of a GameState used for
// transport, reconciliation and persistence. Treat values as read-only; use
// Clone before handing one to code that may modify it.
type Snapshot struct {
	SessionID          string                       `json:"sessionId,omitempty"`
	Version            uint64                       `json:"version"`
	Timestamp          time.Time                    `json:"timestamp"`
	Phase              Phase                        `json:"phase"`
	TurnNumber         int                          `json:"turnNumber"`
	CurrentPlayerIndex int                          `json:"currentPlayerIndex"`
	IsNewGame          bool                         `json:"isNewGame"`
	Players            []PlayerSnapshot             `json:"players"`
	Territories        map[string]TerritorySnapshot `json:"territories"`
	PendingOccupation  *Occupation                  `json:"pendingOccupation,omitempty"`
	Winner             string                       `json:"winner,omitempty"`
	History            []HistoryEntry               `json:"history,omitempty"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Players = append([]PlayerSnapshot(nil), s.Players...)
	c.Territories = make(map[string]TerritorySnapshot, len(s.Territories))
	for id, t := range s.Territories {
		c.Territories[id] = t
	}
	if s.PendingOccupation != nil {
		occ := *s.PendingOccupation
		c.PendingOccupation = &occ
	}
	c.History = append([]HistoryEntry(nil), s.History...)
	return c
}

// CurrentPlayerID returns the id of the active player, or "" if the index is out of range.
func (s Snapshot) CurrentPlayerID() string {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return ""
	}
	return s.Players[s.CurrentPlayerIndex].ID
}

// TotalArmies counts armies on the board plus undeployed pools.
func (s Snapshot) TotalArmies() int {
	total := 0
	for _, t := range s.Territories {
		total += t.Armies
	}
	for _, p := range s.Players {
		total += p.Pool
	}
	return total
}

// Validate checks the snapshot's structure against a graph. Any failure wraps
// ErrCorruptSnapshot. Unknown phase names are allowed here; PhaseEngine.Recover
// is the one place that handles them.
func (s Snapshot) Validate(g *Graph) error {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
	}

	if s.Phase == "" {
		return corrupt("missing phase")
	}
	if s.TurnNumber < 1 {
		return corrupt("turn number %d", s.TurnNumber)
	}
	if len(s.Players) < MinPlayers || len(s.Players) > MaxPlayers {
		return corrupt("%d players", len(s.Players))
	}
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return corrupt("current player index %d out of range", s.CurrentPlayerIndex)
	}

	players := make(map[string]bool, len(s.Players))
	for _, p := range s.Players {
		if p.ID == "" {
			return corrupt("player with empty id")
		}
		if players[p.ID] {
			return corrupt("duplicate player %s", p.ID)
		}
		if p.Pool < 0 {
			return corrupt("player %s has negative pool", p.ID)
		}
		players[p.ID] = true
	}

	if len(s.Territories) != g.Len() {
		return corrupt("%d territories, map has %d", len(s.Territories), g.Len())
	}
	for id, t := range s.Territories {
		if !g.Has(id) {
			return corrupt("unknown territory %s", id)
		}
		if t.Armies < 0 {
			return corrupt("territory %s has negative armies", id)
		}
		if t.Owner == "" {
			if t.Armies != 0 {
				return corrupt("unowned territory %s has %d armies", id, t.Armies)
			}
			continue
		}
		if !players[t.Owner] {
			return corrupt("territory %s owned by unknown player %s", id, t.Owner)
		}
		awaitingOccupation := s.PendingOccupation != nil && s.PendingOccupation.To == id
		if t.Armies < 1 && !awaitingOccupation {
			return corrupt("owned territory %s has no armies", id)
		}
	}

	if occ := s.PendingOccupation; occ != nil {
		from, okFrom := s.Territories[occ.From]
		to, okTo := s.Territories[occ.To]
		if !okFrom || !okTo {
			return corrupt("pending occupation references unknown territory")
		}
		if from.Owner == "" || from.Owner != to.Owner {
			return corrupt("pending occupation %s->%s crosses owners", occ.From, occ.To)
		}
		if occ.Min < 1 || occ.Max < occ.Min || from.Armies-occ.Max < 1 {
			return corrupt("pending occupation bounds %d..%d invalid", occ.Min, occ.Max)
		}
	}

	if s.Winner != "" && !players[s.Winner] {
		return corrupt("winner %s is not a player", s.Winner)
	}
	return nil
}

// Marshal encodes the snapshot document.
func (s Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a snapshot document. Decoding failures wrap
// ErrCorruptSnapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return s, nil
}
