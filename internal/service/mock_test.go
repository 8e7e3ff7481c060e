package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/freeeve/conquest/api/internal/model"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	players  map[string][]model.SessionPlayer
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions: make(map[string]*model.Session),
		players:  make(map[string][]model.SessionPlayer),
	}
}

func (m *mockSessionRepo) Create(_ context.Context, id, name, creatorID, setupMode string, maxPlayers int) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &model.Session{
		ID:         id,
		Name:       name,
		CreatorID:  creatorID,
		Status:     model.StatusWaiting,
		SetupMode:  setupMode,
		MaxPlayers: maxPlayers,
		CreatedAt:  time.Now(),
	}
	m.sessions[id] = s
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Players = append([]model.SessionPlayer(nil), m.players[id]...)
	return &cp, nil
}

func (m *mockSessionRepo) listWhere(keep func(*model.Session) bool) []model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, *s)
		}
	}
	return out
}

func (m *mockSessionRepo) ListOpen(_ context.Context) ([]model.Session, error) {
	return m.listWhere(func(s *model.Session) bool { return s.Status == model.StatusWaiting }), nil
}

func (m *mockSessionRepo) ListActive(_ context.Context) ([]model.Session, error) {
	return m.listWhere(func(s *model.Session) bool { return s.Status == model.StatusActive }), nil
}

func (m *mockSessionRepo) ListByUser(_ context.Context, userID string) ([]model.Session, error) {
	return m.listWhere(func(s *model.Session) bool {
		if s.CreatorID == userID {
			return true
		}
		for _, p := range m.players[s.ID] {
			if p.UserID == userID {
				return true
			}
		}
		return false
	}), nil
}

func (m *mockSessionRepo) Join(_ context.Context, sessionID, userID string, seat int, color string, isBot bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players[sessionID] {
		if p.UserID == userID {
			return nil
		}
	}
	m.players[sessionID] = append(m.players[sessionID], model.SessionPlayer{
		SessionID: sessionID, UserID: userID, Seat: seat, Color: color, IsBot: isBot, JoinedAt: time.Now(),
	})
	return nil
}

func (m *mockSessionRepo) PlayerCount(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players[sessionID]), nil
}

func (m *mockSessionRepo) SetActive(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.Status = model.StatusActive
		now := time.Now()
		s.StartedAt = &now
	}
	return nil
}

func (m *mockSessionRepo) SetFinished(_ context.Context, sessionID, winner, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.Status = model.StatusFinished
		s.Winner = winner
		s.FinishReason = reason
		now := time.Now()
		s.FinishedAt = &now
	}
	return nil
}

func (m *mockSessionRepo) status(id string) (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	return s.Status, s.FinishReason
}

type mockPhaseLog struct {
	mu   sync.Mutex
	recs []model.PhaseRecord
}

func (m *mockPhaseLog) Append(_ context.Context, rec model.PhaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.recs) + 1)
	m.recs = append(m.recs, rec)
	return nil
}

func (m *mockPhaseLog) ListBySession(_ context.Context, sessionID string) ([]model.PhaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PhaseRecord
	for _, r := range m.recs {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

var errStoreDown = errors.New("store unavailable")

// mockStore keeps the newest snapshot per session. The first failN saves fail.
type mockStore struct {
	mu       sync.Mutex
	data     map[string]json.RawMessage
	versions map[string]uint64
	failN    int
	saves    int
	loads    int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]json.RawMessage), versions: make(map[string]uint64)}
}

func (m *mockStore) SaveSnapshot(_ context.Context, sessionID string, version uint64, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saves <= m.failN {
		return errStoreDown
	}
	if v, ok := m.versions[sessionID]; ok && v > version {
		return nil
	}
	m.versions[sessionID] = version
	m.data[sessionID] = append(json.RawMessage(nil), data...)
	return nil
}

func (m *mockStore) LoadSnapshot(_ context.Context, sessionID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return m.data[sessionID], nil
}

func (m *mockStore) put(sessionID string, snap conquest.Snapshot) {
	data, _ := snap.Marshal()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sessionID] = data
	m.versions[sessionID] = snap.Version
}

func (m *mockStore) version(sessionID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[sessionID]
}

type publishedSnapshot struct {
	sessionID string
	version   uint64
}

type mockCache struct {
	mu        sync.Mutex
	data      map[string]json.RawMessage
	published []publishedSnapshot
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]json.RawMessage)}
}

func (c *mockCache) SetSnapshot(_ context.Context, sessionID string, data json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[sessionID] = data
	return nil
}

func (c *mockCache) GetSnapshot(_ context.Context, sessionID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[sessionID], nil
}

func (c *mockCache) PublishSnapshot(_ context.Context, sessionID string, version uint64, _ json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedSnapshot{sessionID, version})
	return nil
}

func (c *mockCache) DeleteSession(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, sessionID)
	return nil
}

type broadcastEvent struct {
	sessionID string
	eventType string
	data      any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *recordingBroadcaster) BroadcastSessionEvent(sessionID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{sessionID, eventType, data})
}

func (b *recordingBroadcaster) all() []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastEvent(nil), b.events...)
}

func (b *recordingBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}
