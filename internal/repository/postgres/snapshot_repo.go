package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/conquest/api/internal/model"
)

// SnapshotRepo is the durable snapshot store. It keeps one row per session.
type SnapshotRepo struct {
	db *sql.DB
}

// NewSnapshotRepo creates a SnapshotRepo.
func NewSnapshotRepo(db *sql.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// SaveSnapshot upserts the session snapshot. A write carrying an older version
// than the stored row is a no-op.
func (r *SnapshotRepo) SaveSnapshot(ctx context.Context, sessionID string, version uint64, data json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, version, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id)
		 DO UPDATE SET version = EXCLUDED.version, data = EXCLUDED.data, saved_at = now()
		 WHERE snapshots.version <= EXCLUDED.version`,
		sessionID, int64(version), []byte(data),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot data, or nil when none exists.
func (r *SnapshotRepo) LoadSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error) {
	rec, err := r.FindRecord(ctx, sessionID)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Data, nil
}

// FindRecord returns the stored snapshot row with its metadata.
func (r *SnapshotRepo) FindRecord(ctx context.Context, sessionID string) (*model.SnapshotRecord, error) {
	var rec model.SnapshotRecord
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, version, data, saved_at FROM snapshots WHERE session_id = $1`, sessionID,
	).Scan(&rec.SessionID, &rec.Version, &data, &rec.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	rec.Data = json.RawMessage(data)
	return &rec, nil
}
