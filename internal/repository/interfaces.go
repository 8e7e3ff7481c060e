package repository

import (
	"context"
	"encoding/json"

	"github.com/freeeve/conquest/api/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// SessionRepository defines session and seat data operations.
type SessionRepository interface {
	Create(ctx context.Context, id, name, creatorID, setupMode string, maxPlayers int) (*model.Session, error)
	FindByID(ctx context.Context, id string) (*model.Session, error)
	ListOpen(ctx context.Context) ([]model.Session, error)
	ListByUser(ctx context.Context, userID string) ([]model.Session, error)
	ListActive(ctx context.Context) ([]model.Session, error)
	Join(ctx context.Context, sessionID, userID string, seat int, color string, isBot bool) error
	PlayerCount(ctx context.Context, sessionID string) (int, error)
	SetActive(ctx context.Context, sessionID string) error
	SetFinished(ctx context.Context, sessionID, winner, reason string) error
}

// SnapshotStore is the durable blob store behind the persistence gateway.
// Save keeps only the newest version per session.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, sessionID string, version uint64, data json.RawMessage) error
	LoadSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error)
}

// PhaseLogRepository records phase transitions.
type PhaseLogRepository interface {
	Append(ctx context.Context, rec model.PhaseRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]model.PhaseRecord, error)
}

// SnapshotCache is the live snapshot cache and cross-process channel (Redis).
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, sessionID string, data json.RawMessage) error
	GetSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error)
	PublishSnapshot(ctx context.Context, sessionID string, version uint64, data json.RawMessage) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// SnapshotFeed delivers snapshots published by other processes. The channel is
// closed when ctx is done.
type SnapshotFeed interface {
	SubscribeSnapshots(ctx context.Context) (<-chan model.SnapshotMessage, error)
}
