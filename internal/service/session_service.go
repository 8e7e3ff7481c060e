package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/model"
	"github.com/freeeve/conquest/api/internal/repository"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotWaiting = errors.New("session is not in waiting status")
	ErrSessionFull       = errors.New("session is full")
	ErrNotEnoughPlayers  = errors.New("need at least 2 players to start")
	ErrNotCreator        = errors.New("only the creator can do this")
	ErrNotInSession      = errors.New("you are not in this session")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrAlreadyJoined     = errors.New("already joined this session")
	ErrInvalidSetupMode  = errors.New("setup mode must be random or claim")
	ErrInvalidMaxPlayers = errors.New("max players must be between 2 and 6")
)

// SeatColors are assigned to seats in order.
var SeatColors = []string{"red", "blue", "green", "yellow", "purple", "orange"}

// SessionService handles the session lobby and lifecycle.
type SessionService struct {
	sessionRepo repository.SessionRepository
	phaseLog    repository.PhaseLogRepository
	registry    *Registry
	broadcaster Broadcaster
}

// NewSessionService creates a SessionService.
func NewSessionService(sessionRepo repository.SessionRepository, phaseLog repository.PhaseLogRepository, registry *Registry, broadcaster Broadcaster) *SessionService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &SessionService{sessionRepo: sessionRepo, phaseLog: phaseLog, registry: registry, broadcaster: broadcaster}
}

// CreateSession creates a waiting session and seats the creator.
func (s *SessionService) CreateSession(ctx context.Context, name, creatorID, setupMode string, maxPlayers int) (*model.Session, error) {
	switch setupMode {
	case "":
		setupMode = string(conquest.SetupRandom)
	case string(conquest.SetupRandom), string(conquest.SetupClaim):
	default:
		return nil, ErrInvalidSetupMode
	}
	if maxPlayers == 0 {
		maxPlayers = conquest.MaxPlayers
	}
	if maxPlayers < conquest.MinPlayers || maxPlayers > conquest.MaxPlayers {
		return nil, ErrInvalidMaxPlayers
	}
	if name == "" {
		name = "Conquest"
	}

	sess, err := s.sessionRepo.Create(ctx, uuid.NewString(), name, creatorID, setupMode, maxPlayers)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Join(ctx, sess.ID, creatorID, 0, SeatColors[0], false); err != nil {
		return nil, err
	}
	log.Info().Str("sessionId", sess.ID).Str("creatorId", creatorID).Str("setupMode", setupMode).Msg("Session created")
	return s.sessionRepo.FindByID(ctx, sess.ID)
}

// JoinSession seats a user in the next free seat of a waiting session.
func (s *SessionService) JoinSession(ctx context.Context, sessionID, userID string, isBot bool) (*model.SessionPlayer, error) {
	sess, err := s.findWaiting(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, p := range sess.Players {
		if p.UserID == userID {
			return nil, ErrAlreadyJoined
		}
	}
	if len(sess.Players) >= sess.MaxPlayers {
		return nil, ErrSessionFull
	}

	seat := len(sess.Players)
	color := SeatColors[seat%len(SeatColors)]
	if err := s.sessionRepo.Join(ctx, sessionID, userID, seat, color, isBot); err != nil {
		return nil, err
	}
	player := &model.SessionPlayer{SessionID: sessionID, UserID: userID, Seat: seat, Color: color, IsBot: isBot}
	s.broadcaster.BroadcastSessionEvent(sessionID, EventPlayerJoined, player)
	return player, nil
}

// StartSession deals or opens the board and moves the session to active.
func (s *SessionService) StartSession(ctx context.Context, sessionID, userID string) (*conquest.Snapshot, error) {
	sess, err := s.findWaiting(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if len(sess.Players) < conquest.MinPlayers {
		return nil, ErrNotEnoughPlayers
	}

	snap, err := s.registry.Start(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.SetActive(ctx, sessionID); err != nil {
		s.registry.Remove(sessionID)
		return nil, err
	}
	s.broadcaster.BroadcastSessionEvent(sessionID, EventSessionStarted, snap)
	return &snap, nil
}

// StopSession ends an active session without a winner. Creator only.
func (s *SessionService) StopSession(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.StatusActive {
		return nil, ErrSessionNotActive
	}
	if sess.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if err := s.sessionRepo.SetFinished(ctx, sessionID, "", model.FinishStopped); err != nil {
		return nil, err
	}
	s.registry.Remove(sessionID)
	s.broadcaster.BroadcastSessionEvent(sessionID, EventGameOver, map[string]any{
		"reason": model.FinishStopped,
	})
	log.Info().Str("sessionId", sessionID).Msg("Session stopped by creator")
	return s.sessionRepo.FindByID(ctx, sessionID)
}

// GetSession returns a session by ID.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// ListSessions returns open sessions or the sessions the user is in.
func (s *SessionService) ListSessions(ctx context.Context, userID, filter string) ([]model.Session, error) {
	if filter == "my" {
		return s.sessionRepo.ListByUser(ctx, userID)
	}
	return s.sessionRepo.ListOpen(ctx)
}

// CurrentSnapshot returns the live snapshot of an active session for one of
// its players.
func (s *SessionService) CurrentSnapshot(ctx context.Context, sessionID, userID string) (*conquest.Snapshot, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !isSeated(sess, userID) {
		return nil, ErrNotInSession
	}
	snap, err := s.registry.Snapshot(sessionID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SubmitIntent applies a player's intent. The player id always comes from the
// authenticated user, never from the request body.
func (s *SessionService) SubmitIntent(ctx context.Context, sessionID, userID string, in conquest.Intent) (conquest.Snapshot, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return conquest.Snapshot{}, err
	}
	if !isSeated(sess, userID) {
		return conquest.Snapshot{}, ErrNotInSession
	}
	if sess.Status == model.StatusFinished && !s.registry.Running(sessionID) {
		return conquest.Snapshot{}, &conquest.GameOverError{Winner: sess.Winner}
	}
	in.SessionID = sessionID
	in.PlayerID = userID
	snap, err := s.registry.Submit(ctx, in)
	if err != nil {
		return conquest.Snapshot{}, fmt.Errorf("submit %s: %w", in.Action, err)
	}
	return snap, nil
}

// PhaseHistory returns the recorded phase transitions of a session.
func (s *SessionService) PhaseHistory(ctx context.Context, sessionID string) ([]model.PhaseRecord, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.phaseLog.ListBySession(ctx, sessionID)
}

func (s *SessionService) findWaiting(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.StatusWaiting {
		return nil, ErrSessionNotWaiting
	}
	return sess, nil
}

func isSeated(sess *model.Session, userID string) bool {
	for _, p := range sess.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
