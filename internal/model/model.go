package model

import (
	"encoding/json"
	"time"
)

// Session statuses.
const (
	StatusWaiting  = "waiting"
	StatusActive   = "active"
	StatusFinished = "finished"
)

// Finish reasons.
const (
	FinishWinner          = "winner"
	FinishCorruptSnapshot = "corrupt_snapshot"
	FinishStopped         = "stopped"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session represents a conquest session and its lobby.
type Session struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CreatorID    string          `json:"creator_id"`
	Status       string          `json:"status"` // waiting, active, finished
	SetupMode    string          `json:"setup_mode"`
	MaxPlayers   int             `json:"max_players"`
	Winner       string          `json:"winner,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Players      []SessionPlayer `json:"players,omitempty"`
}

// SessionPlayer is a seat in a session.
type SessionPlayer struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Seat      int       `json:"seat"`
	Color     string    `json:"color"`
	IsBot     bool      `json:"is_bot"`
	JoinedAt  time.Time `json:"joined_at"`
}

// PhaseRecord is one persisted phase transition.
type PhaseRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Version    int64     `json:"version"`
	TurnNumber int       `json:"turn_number"`
	OldPhase   string    `json:"old_phase"`
	NewPhase   string    `json:"new_phase"`
	PlayerID   string    `json:"player_id"`
	Recovered  bool      `json:"recovered"`
	CreatedAt  time.Time `json:"created_at"`
}

// SnapshotRecord is the latest durable snapshot of a session.
type SnapshotRecord struct {
	SessionID string          `json:"session_id"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	SavedAt   time.Time       `json:"saved_at"`
}

// SnapshotMessage is a snapshot published by one server process to the others.
type SnapshotMessage struct {
	Origin    string          `json:"origin"`
	SessionID string          `json:"session_id"`
	Version   uint64          `json:"version"`
	Data      json.RawMessage `json:"data"`
}
