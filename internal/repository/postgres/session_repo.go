package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/conquest/api/internal/model"
)

const sessionColumns = `id, name, creator_id, status, setup_mode, max_players, winner, finish_reason, created_at, started_at, finished_at`

// SessionRepo handles session and session_player database operations.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var s model.Session
	var winner, reason sql.NullString
	err := row.Scan(&s.ID, &s.Name, &s.CreatorID, &s.Status, &s.SetupMode, &s.MaxPlayers,
		&winner, &reason, &s.CreatedAt, &s.StartedAt, &s.FinishedAt)
	s.Winner = winner.String
	s.FinishReason = reason.String
	return s, err
}

// Create inserts a new waiting session.
func (r *SessionRepo) Create(ctx context.Context, id, name, creatorID, setupMode string, maxPlayers int) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, name, creator_id, setup_mode, max_players)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+sessionColumns,
		id, name, creatorID, setupMode, maxPlayers,
	))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &s, nil
}

// FindByID returns a session by ID with its players.
func (r *SessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}

	players, err := r.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Players = players
	return &s, nil
}

func (r *SessionRepo) list(ctx context.Context, op, query string, args ...any) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListOpen returns sessions in "waiting" status.
func (r *SessionRepo) ListOpen(ctx context.Context) ([]model.Session, error) {
	return r.list(ctx, "list open sessions",
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'waiting' ORDER BY created_at DESC LIMIT 50`)
}

// ListActive returns every session in "active" status. Used at startup to
// restore in-memory sessions.
func (r *SessionRepo) ListActive(ctx context.Context) ([]model.Session, error) {
	return r.list(ctx, "list active sessions",
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'active' ORDER BY started_at`)
}

// ListByUser returns all sessions a user is seated in or created.
func (r *SessionRepo) ListByUser(ctx context.Context, userID string) ([]model.Session, error) {
	return r.list(ctx, "list user sessions",
		`SELECT DISTINCT s.id, s.name, s.creator_id, s.status, s.setup_mode, s.max_players, s.winner,
		        s.finish_reason, s.created_at, s.started_at, s.finished_at
		 FROM sessions s LEFT JOIN session_players sp ON s.id = sp.session_id AND sp.user_id = $1
		 WHERE sp.user_id = $1 OR s.creator_id = $1
		 ORDER BY s.created_at DESC LIMIT 50`, userID)
}

// Join seats a user in a session. Joining twice is a no-op.
func (r *SessionRepo) Join(ctx context.Context, sessionID, userID string, seat int, color string, isBot bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_players (session_id, user_id, seat, color, is_bot) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, user_id) DO NOTHING`,
		sessionID, userID, seat, color, isBot,
	)
	if err != nil {
		return fmt.Errorf("join session: %w", err)
	}
	return nil
}

// ListPlayers returns the seats of a session in seat order.
func (r *SessionRepo) ListPlayers(ctx context.Context, sessionID string) ([]model.SessionPlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, user_id, seat, color, is_bot, joined_at FROM session_players
		 WHERE session_id = $1 ORDER BY seat`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.SessionPlayer
	for rows.Next() {
		var p model.SessionPlayer
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.Seat, &p.Color, &p.IsBot, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// PlayerCount returns the number of seated players.
func (r *SessionRepo) PlayerCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_players WHERE session_id = $1`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("player count: %w", err)
	}
	return n, nil
}

// SetActive marks a session as started.
func (r *SessionRepo) SetActive(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'active', started_at = now() WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("set session active: %w", err)
	}
	return nil
}

// SetFinished marks a session as finished with an optional winner and the reason.
func (r *SessionRepo) SetFinished(ctx context.Context, sessionID, winner, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'finished', winner = $2, finish_reason = $3, finished_at = now() WHERE id = $1`,
		sessionID, nullStr(winner), nullStr(reason))
	if err != nil {
		return fmt.Errorf("set session finished: %w", err)
	}
	return nil
}
