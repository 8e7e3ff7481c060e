package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"github.com/freeeve/conquest/api/internal/metrics"
	"github.com/freeeve/conquest/api/internal/model"
	"github.com/freeeve/conquest/api/internal/repository"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

const persistTimeout = 30 * time.Second

// liveSession is a running session plus the phase changes it has emitted
// since the last intent was handled. applyMu covers an intent from the moment
// it is applied until its events are out, so fan-out follows version order.
type liveSession struct {
	session *conquest.Session

	applyMu sync.Mutex

	mu      sync.Mutex
	changes []conquest.PhaseChanged

	saveMu       sync.Mutex
	savedVersion uint64

	over atomic.Bool
}

func (ls *liveSession) drain() []conquest.PhaseChanged {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := ls.changes
	ls.changes = nil
	return out
}

// Registry holds the in-memory sessions of this process. Each session applies
// its intents one at a time; persistence and fan-out happen after the intent
// has been applied and never block it.
type Registry struct {
	graph       *conquest.Graph
	rules       conquest.Rules
	gateway     *PersistenceGateway
	sessionRepo repository.SessionRepository
	phaseLog    repository.PhaseLogRepository
	broadcaster Broadcaster

	sessions sync.Map // session id -> *liveSession
	seed     func() uint64
	pending  sync.WaitGroup
}

// NewRegistry creates a Registry.
func NewRegistry(
	graph *conquest.Graph,
	rules conquest.Rules,
	gateway *PersistenceGateway,
	sessionRepo repository.SessionRepository,
	phaseLog repository.PhaseLogRepository,
	broadcaster Broadcaster,
) *Registry {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if graph == nil {
		graph = conquest.ClassicGraph()
	}
	return &Registry{
		graph:       graph,
		rules:       rules,
		gateway:     gateway,
		sessionRepo: sessionRepo,
		phaseLog:    phaseLog,
		broadcaster: broadcaster,
		seed:        func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// SetSeed overrides the seed used for random territory distribution.
func (r *Registry) SetSeed(seed func() uint64) {
	r.seed = seed
}

// Graph returns the territory graph used by every session.
func (r *Registry) Graph() *conquest.Graph { return r.graph }

func (r *Registry) newSession(id string, ps []conquest.Player) (*liveSession, error) {
	logger := log.With().Str("sessionId", id).Logger()
	s, err := conquest.NewSession(conquest.SessionConfig{
		ID:      id,
		Graph:   r.graph,
		Players: ps,
		Rules:   r.rules,
		Logger:  &logger,
	})
	if err != nil {
		return nil, err
	}
	ls := &liveSession{session: s}
	s.OnPhaseChanged(func(ev conquest.PhaseChanged) {
		ls.mu.Lock()
		ls.changes = append(ls.changes, ev)
		ls.mu.Unlock()
	})
	return ls, nil
}

func (r *Registry) get(id string) (*liveSession, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*liveSession), true
}

// Start creates the in-memory session for a lobby that is about to start,
// performs setup and persists the first snapshot.
func (r *Registry) Start(ctx context.Context, sess *model.Session) (conquest.Snapshot, error) {
	if _, ok := r.get(sess.ID); ok {
		return conquest.Snapshot{}, fmt.Errorf("session %s already running", sess.ID)
	}
	players := make([]conquest.Player, len(sess.Players))
	for i, p := range sess.Players {
		players[i] = conquest.Player{ID: p.UserID, Color: p.Color}
	}
	ls, err := r.newSession(sess.ID, players)
	if err != nil {
		return conquest.Snapshot{}, fmt.Errorf("create session: %w", err)
	}
	ls.applyMu.Lock()
	defer ls.applyMu.Unlock()
	rng := rand.New(rand.NewSource(r.seed()))
	snap, err := ls.session.Begin(conquest.SetupMode(sess.SetupMode), rng)
	if err != nil {
		return conquest.Snapshot{}, fmt.Errorf("begin session: %w", err)
	}
	if _, loaded := r.sessions.LoadOrStore(sess.ID, ls); loaded {
		return conquest.Snapshot{}, fmt.Errorf("session %s already running", sess.ID)
	}
	metrics.ActiveSessions.Inc()

	log.Info().Str("sessionId", sess.ID).Str("setupMode", sess.SetupMode).
		Int("players", len(sess.Players)).Str("phase", string(snap.Phase)).Msg("Session started")
	r.afterApply(ctx, sess.ID, ls, snap)
	return snap, nil
}

// Submit applies an intent to a running session.
func (r *Registry) Submit(ctx context.Context, in conquest.Intent) (conquest.Snapshot, error) {
	ls, ok := r.get(in.SessionID)
	if !ok {
		return conquest.Snapshot{}, ErrSessionNotActive
	}
	ls.applyMu.Lock()
	defer ls.applyMu.Unlock()
	snap, err := ls.session.Submit(in)
	metrics.Intents.WithLabelValues(string(in.Action), intentOutcome(err)).Inc()
	if err != nil {
		log.Debug().Err(err).Str("sessionId", in.SessionID).Str("playerId", in.PlayerID).
			Str("action", string(in.Action)).Msg("Intent rejected")
		return conquest.Snapshot{}, err
	}
	log.Debug().Str("sessionId", in.SessionID).Str("playerId", in.PlayerID).
		Str("action", string(in.Action)).Uint64("version", snap.Version).Msg("Intent applied")
	r.afterApply(ctx, in.SessionID, ls, snap)
	return snap, nil
}

func intentOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, conquest.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, conquest.ErrStaleVersion):
		return "stale"
	case errors.Is(err, conquest.ErrGameOver):
		return "game_over"
	default:
		return "rejected"
	}
}

// afterApply fans out a newly produced snapshot: phase log, broadcasts,
// game-over bookkeeping and asynchronous persistence.
func (r *Registry) afterApply(ctx context.Context, sessionID string, ls *liveSession, snap conquest.Snapshot) {
	for _, ev := range ls.drain() {
		metrics.PhaseTransitions.WithLabelValues(string(ev.To), strconv.FormatBool(ev.Recovered)).Inc()
		r.logPhase(ctx, sessionID, snap.Version, ev)
		r.broadcaster.BroadcastSessionEvent(sessionID, EventPhaseChanged, map[string]any{
			"old_phase":         ev.From,
			"new_phase":         ev.To,
			"turn_number":       ev.TurnNumber,
			"current_player_id": ev.PlayerID,
			"version":           snap.Version,
		})
	}
	r.broadcaster.BroadcastSessionEvent(sessionID, EventSnapshot, snap)

	if snap.Winner != "" {
		r.finish(ctx, sessionID, ls, snap.Winner, model.FinishWinner)
	}
	r.persist(sessionID, ls, snap)
}

func (r *Registry) logPhase(ctx context.Context, sessionID string, version uint64, ev conquest.PhaseChanged) {
	if r.phaseLog == nil {
		return
	}
	rec := model.PhaseRecord{
		SessionID:  sessionID,
		Version:    int64(version),
		TurnNumber: ev.TurnNumber,
		OldPhase:   string(ev.From),
		NewPhase:   string(ev.To),
		PlayerID:   ev.PlayerID,
		Recovered:  ev.Recovered,
	}
	if err := r.phaseLog.Append(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Str("newPhase", rec.NewPhase).Msg("Failed to record phase transition")
	}
}

// finish marks a won session finished. The session stays in memory so late
// intents are answered with the game-over error.
func (r *Registry) finish(ctx context.Context, sessionID string, ls *liveSession, winner, reason string) {
	if !ls.over.CompareAndSwap(false, true) {
		return
	}
	metrics.ActiveSessions.Dec()
	log.Info().Str("sessionId", sessionID).Str("winner", winner).Msg("Game won")
	if r.sessionRepo != nil {
		if err := r.sessionRepo.SetFinished(context.WithoutCancel(ctx), sessionID, winner, reason); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to mark session finished")
		}
	}
	r.broadcaster.BroadcastSessionEvent(sessionID, EventGameOver, map[string]any{
		"winner": winner,
		"reason": reason,
	})
}

// persist saves the snapshot in the background. Saves of one session are
// serialized and a version older than the last saved one is skipped.
func (r *Registry) persist(sessionID string, ls *liveSession, snap conquest.Snapshot) {
	if r.gateway == nil {
		return
	}
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		ls.saveMu.Lock()
		defer ls.saveMu.Unlock()
		if snap.Version < ls.savedVersion {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.gateway.Save(ctx, snap); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Uint64("version", snap.Version).
				Msg("Snapshot not persisted, in-memory state remains authoritative")
			return
		}
		ls.savedVersion = snap.Version
	}()
}

// Wait blocks until background saves started so far have finished.
func (r *Registry) Wait() {
	r.pending.Wait()
}

// Snapshot returns the current snapshot of a running session.
func (r *Registry) Snapshot(sessionID string) (conquest.Snapshot, error) {
	ls, ok := r.get(sessionID)
	if !ok {
		return conquest.Snapshot{}, ErrSessionNotActive
	}
	return ls.session.Snapshot(), nil
}

// Running reports whether the session is held in memory.
func (r *Registry) Running(sessionID string) bool {
	_, ok := r.get(sessionID)
	return ok
}

// IDs returns the ids of every running session.
func (r *Registry) IDs() []string {
	var ids []string
	r.sessions.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

// Remove drops a session from memory.
func (r *Registry) Remove(sessionID string) {
	if v, loaded := r.sessions.LoadAndDelete(sessionID); loaded {
		if ls := v.(*liveSession); ls.over.CompareAndSwap(false, true) {
			metrics.ActiveSessions.Dec()
		}
	}
}

// ApplyRemote reconciles a snapshot produced by another process with the local
// copy. Snapshots for sessions this process does not run are ignored.
func (r *Registry) ApplyRemote(ctx context.Context, sessionID string, data []byte) error {
	ls, ok := r.get(sessionID)
	if !ok {
		return nil
	}
	remote, err := conquest.UnmarshalSnapshot(data)
	if err != nil {
		return err
	}
	ls.applyMu.Lock()
	defer ls.applyMu.Unlock()
	snap, replaced, err := ls.session.ApplyRemote(remote)
	if err != nil {
		metrics.Reconciles.WithLabelValues("rejected").Inc()
		return fmt.Errorf("apply remote snapshot: %w", err)
	}
	if !replaced {
		metrics.Reconciles.WithLabelValues("local").Inc()
		ls.drain()
		return nil
	}
	metrics.Reconciles.WithLabelValues("remote").Inc()
	ls.drain()
	log.Info().Str("sessionId", sessionID).Uint64("version", snap.Version).Msg("Adopted newer snapshot from another process")

	ls.saveMu.Lock()
	if snap.Version > ls.savedVersion {
		ls.savedVersion = snap.Version
	}
	ls.saveMu.Unlock()

	r.broadcaster.BroadcastSessionEvent(sessionID, EventSnapshot, snap)
	if snap.Winner != "" && ls.over.CompareAndSwap(false, true) {
		metrics.ActiveSessions.Dec()
		r.broadcaster.BroadcastSessionEvent(sessionID, EventGameOver, map[string]any{
			"winner": snap.Winner,
			"reason": model.FinishWinner,
		})
	}
	return nil
}

// Recover rehydrates every active session from its latest snapshot after a
// restart. Sessions whose snapshot cannot be used are marked finished.
func (r *Registry) Recover(ctx context.Context) error {
	sessions, err := r.sessionRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if len(sessions) == 0 {
		log.Info().Msg("No active sessions to recover")
		return nil
	}

	log.Info().Int("count", len(sessions)).Msg("Recovering active sessions after restart")
	for _, s := range sessions {
		if err := r.recoverOne(ctx, s); err != nil {
			log.Error().Err(err).Str("sessionId", s.ID).Msg("Failed to recover session")
		}
	}
	return nil
}

func (r *Registry) recoverOne(ctx context.Context, s model.Session) error {
	if r.Running(s.ID) {
		return nil
	}
	snap, err := r.gateway.Load(ctx, s.ID)
	if errors.Is(err, conquest.ErrCorruptSnapshot) {
		return r.markCorrupt(ctx, s.ID, err)
	}
	if err != nil {
		return err
	}
	if snap == nil {
		log.Warn().Str("sessionId", s.ID).Msg("Active session has no snapshot, skipping")
		return nil
	}

	players := make([]conquest.Player, len(snap.Players))
	for i, p := range snap.Players {
		players[i] = conquest.Player{ID: p.ID, Name: p.Name, Color: p.Color}
	}
	ls, err := r.newSession(s.ID, players)
	if err != nil {
		return r.markCorrupt(ctx, s.ID, fmt.Errorf("%w: %w", conquest.ErrCorruptSnapshot, err))
	}
	if err := ls.session.LoadInitial(*snap); err != nil {
		if errors.Is(err, conquest.ErrCorruptSnapshot) || errors.Is(err, conquest.ErrInvalidOperation) {
			return r.markCorrupt(ctx, s.ID, err)
		}
		return err
	}
	ls.savedVersion = snap.Version
	if _, loaded := r.sessions.LoadOrStore(s.ID, ls); loaded {
		return nil
	}
	metrics.ActiveSessions.Inc()

	for _, ev := range ls.drain() {
		metrics.PhaseTransitions.WithLabelValues(string(ev.To), strconv.FormatBool(ev.Recovered)).Inc()
		r.logPhase(ctx, s.ID, snap.Version, ev)
	}
	log.Info().Str("sessionId", s.ID).Uint64("version", ls.session.Version()).
		Str("currentPlayer", ls.session.CurrentPlayerID()).Msg("Session recovered")
	return nil
}

func (r *Registry) markCorrupt(ctx context.Context, sessionID string, cause error) error {
	log.Error().Err(cause).Str("sessionId", sessionID).Msg("Persisted snapshot is corrupt, ending session")
	if err := r.sessionRepo.SetFinished(ctx, sessionID, "", model.FinishCorruptSnapshot); err != nil {
		return fmt.Errorf("mark session corrupt: %w", err)
	}
	r.broadcaster.BroadcastSessionEvent(sessionID, EventGameOver, map[string]any{
		"reason": model.FinishCorruptSnapshot,
	})
	return nil
}
