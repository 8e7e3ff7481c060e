package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/conquest/api/internal/model"
)

// PhaseRepo records phase transitions for auditing and replay.
type PhaseRepo struct {
	db *sql.DB
}

// NewPhaseRepo creates a PhaseRepo.
func NewPhaseRepo(db *sql.DB) *PhaseRepo {
	return &PhaseRepo{db: db}
}

// Append inserts one phase transition.
func (r *PhaseRepo) Append(ctx context.Context, rec model.PhaseRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO phase_transitions (session_id, version, turn_number, old_phase, new_phase, player_id, recovered)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.SessionID, rec.Version, rec.TurnNumber, rec.OldPhase, rec.NewPhase, rec.PlayerID, rec.Recovered,
	)
	if err != nil {
		return fmt.Errorf("append phase transition: %w", err)
	}
	return nil
}

// ListBySession returns all transitions for a session in version order.
func (r *PhaseRepo) ListBySession(ctx context.Context, sessionID string) ([]model.PhaseRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, version, turn_number, old_phase, new_phase, player_id, recovered, created_at
		 FROM phase_transitions WHERE session_id = $1
		 ORDER BY version, id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list phase transitions: %w", err)
	}
	defer rows.Close()

	var recs []model.PhaseRecord
	for rows.Next() {
		var p model.PhaseRecord
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Version, &p.TurnNumber, &p.OldPhase, &p.NewPhase, &p.PlayerID, &p.Recovered, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan phase transition: %w", err)
		}
		recs = append(recs, p)
	}
	return recs, rows.Err()
}
