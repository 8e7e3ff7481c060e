// Package replica keeps a client-side copy of one session in step with the
// server: one intent in flight at a time, inbound snapshots reconciled by
// version, and a bounded reconnect that resyncs wholesale.
package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/pkg/conquest"
)

// ErrDisconnected is terminal: reconnect gave up and the replica no longer
// accepts intents.
var ErrDisconnected = fmt.Errorf("replica disconnected: %w", conquest.ErrSyncTimeout)

// ErrRejected marks a server refusal that maps to no engine error.
var ErrRejected = errors.New("intent rejected")

// Transport reaches the authoritative server. Submit returns the server's
// Response together with a verdict error when the intent was refused; any
// other error means the request may not have reached the server.
type Transport interface {
	FetchSnapshot(ctx context.Context, sessionID string) (conquest.Snapshot, error)
	Submit(ctx context.Context, in conquest.Intent) (conquest.Response, error)
}

const (
	defaultAttempts = 5
	defaultBackoff  = 2 * time.Second
)

// Option configures a Replica.
type Option func(*Replica)

// WithBackoff sets the reconnect attempt count and the first delay; each
// following delay doubles.
func WithBackoff(attempts int, first time.Duration) Option {
	return func(r *Replica) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if first > 0 {
			r.backoff = first
		}
	}
}

// WithSleep replaces the context-aware sleep used between reconnect attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Replica) { r.sleep = sleep }
}

// WithLogger sets the logger; the global logger is used otherwise.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Replica) { r.log = l }
}

// Replica is one player's view of a session.
type Replica struct {
	sessionID string
	playerID  string
	transport Transport
	attempts  int
	backoff   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	log       zerolog.Logger

	inflight sync.Mutex // one intent at a time

	mu           sync.Mutex
	snap         conquest.Snapshot
	pending      []conquest.Intent
	disconnected bool
}

// New creates a replica for playerID in sessionID. Call Sync or Reconnect
// before submitting so the client version is known.
func New(sessionID, playerID string, t Transport, opts ...Option) *Replica {
	r := &Replica{
		sessionID: sessionID,
		playerID:  playerID,
		transport: t,
		attempts:  defaultAttempts,
		backoff:   defaultBackoff,
		sleep:     sleepCtx,
		log:       log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("sessionId", sessionID).Str("playerId", playerID).Logger()
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot returns a copy of the local snapshot.
func (r *Replica) Snapshot() conquest.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Clone()
}

// PlayerID returns the player this replica acts for.
func (r *Replica) PlayerID() string { return r.playerID }

// Disconnected reports whether reconnect has given up.
func (r *Replica) Disconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}

// Pending returns the intents sent but not yet acknowledged.
func (r *Replica) Pending() []conquest.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]conquest.Intent(nil), r.pending...)
}

// Apply reconciles an inbound snapshot against the local one and reports
// whether the local copy was replaced.
func (r *Replica) Apply(remote conquest.Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(remote)
}

func (r *Replica) applyLocked(remote conquest.Snapshot) bool {
	if remote.SessionID != "" && r.snap.SessionID != "" && remote.SessionID != r.snap.SessionID {
		return false
	}
	if !conquest.RemoteWins(r.snap, remote) {
		return false
	}
	r.snap = remote.Clone()
	return true
}

// Sync fetches the server snapshot and reconciles it into the local copy.
func (r *Replica) Sync(ctx context.Context) error {
	snap, err := r.transport.FetchSnapshot(ctx, r.sessionID)
	if err != nil {
		return fmt.Errorf("sync %s: %w", r.sessionID, err)
	}
	r.Apply(snap)
	return nil
}

// Submit sends one intent built against the current local version. Intents
// are serialized; a second call waits for the first to be answered. On
// acceptance the returned snapshot has already been applied locally.
func (r *Replica) Submit(ctx context.Context, action conquest.Action, payload any) (conquest.Snapshot, error) {
	r.inflight.Lock()
	defer r.inflight.Unlock()

	r.mu.Lock()
	if r.disconnected {
		r.mu.Unlock()
		return conquest.Snapshot{}, ErrDisconnected
	}
	in, err := conquest.NewIntent(r.sessionID, r.playerID, action, payload, r.snap.Version)
	if err != nil {
		r.mu.Unlock()
		return conquest.Snapshot{}, err
	}
	r.pending = append(r.pending, in)
	r.mu.Unlock()

	resp, err := r.transport.Submit(ctx, in)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil && !isVerdict(err) {
		// Unanswered: the intent stays pending until a reconnect settles it.
		return r.snap.Clone(), fmt.Errorf("submit %s: %w", action, err)
	}
	r.pending = r.pending[:len(r.pending)-1]
	if resp.Snapshot != nil {
		r.applyLocked(*resp.Snapshot)
	}
	if err != nil {
		return r.snap.Clone(), err
	}
	if !resp.Accepted {
		return r.snap.Clone(), fmt.Errorf("%w: %s", ErrRejected, resp.Reason)
	}
	return r.snap.Clone(), nil
}

func isVerdict(err error) bool {
	return errors.Is(err, conquest.ErrInvalidOperation) ||
		errors.Is(err, conquest.ErrNotYourTurn) ||
		errors.Is(err, conquest.ErrStaleVersion) ||
		errors.Is(err, conquest.ErrGameOver) ||
		errors.Is(err, ErrRejected)
}

// Reconnect fetches the authoritative snapshot up to attempts times, waiting
// before each attempt with a doubling delay (2s, 4s, 8s, 16s, 32s by default).
// On success the local snapshot is replaced wholesale and the intents that
// were never acknowledged are dropped and returned. After the last failed
// attempt the replica is disconnected for good; a cancelled ctx only ends this
// call.
func (r *Replica) Reconnect(ctx context.Context) ([]conquest.Intent, error) {
	r.inflight.Lock()
	defer r.inflight.Unlock()

	if r.Disconnected() {
		return nil, ErrDisconnected
	}

	delay := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := r.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("reconnect %s: %w", r.sessionID, err)
		}
		delay *= 2

		snap, err := r.transport.FetchSnapshot(ctx, r.sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("reconnect %s: %w", r.sessionID, ctx.Err())
			}
			lastErr = err
			r.log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect attempt failed")
			continue
		}

		r.mu.Lock()
		dropped := r.pending
		r.pending = nil
		r.snap = snap.Clone()
		r.mu.Unlock()
		if len(dropped) > 0 {
			r.log.Warn().Int("dropped", len(dropped)).Uint64("version", snap.Version).Msg("Reconnected; unacknowledged intents dropped")
		} else {
			r.log.Info().Uint64("version", snap.Version).Int("attempt", attempt).Msg("Reconnected")
		}
		return dropped, nil
	}

	r.mu.Lock()
	r.disconnected = true
	r.mu.Unlock()
	r.log.Error().Err(lastErr).Msg("Giving up on reconnect")
	return nil, fmt.Errorf("%w: %v", ErrDisconnected, lastErr)
}
