package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/metrics"
	"github.com/freeeve/conquest/api/internal/repository"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

// PersistenceGateway saves session snapshots to the durable store and mirrors
// them into the live cache. A failed save never touches the in-memory session.
type PersistenceGateway struct {
	store   repository.SnapshotStore
	cache   repository.SnapshotCache
	retries int
	backoff time.Duration
}

// NewPersistenceGateway creates a PersistenceGateway. cache may be nil.
func NewPersistenceGateway(store repository.SnapshotStore, cache repository.SnapshotCache, retries int, backoff time.Duration) *PersistenceGateway {
	if retries < 1 {
		retries = 1
	}
	return &PersistenceGateway{store: store, cache: cache, retries: retries, backoff: backoff}
}

// Save writes the snapshot to the durable store, retrying with doubling backoff.
// After a durable write the snapshot is cached and published to other
// processes; cache failures are logged only. The returned error wraps
// conquest.ErrPersistence.
func (p *PersistenceGateway) Save(ctx context.Context, snap conquest.Snapshot) error {
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", conquest.ErrPersistence, err)
	}

	start := time.Now()
	delay := p.backoff
	for attempt := 1; ; attempt++ {
		err = p.store.SaveSnapshot(ctx, snap.SessionID, snap.Version, data)
		if err == nil {
			break
		}
		log.Warn().Err(err).Str("sessionId", snap.SessionID).Uint64("version", snap.Version).
			Int("attempt", attempt).Msg("Snapshot save failed")
		if attempt >= p.retries {
			metrics.PersistFailures.Inc()
			return fmt.Errorf("%w: save %s v%d after %d attempts: %w",
				conquest.ErrPersistence, snap.SessionID, snap.Version, attempt, err)
		}
		select {
		case <-ctx.Done():
			metrics.PersistFailures.Inc()
			return fmt.Errorf("%w: %w", conquest.ErrPersistence, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	metrics.PersistLatency.Observe(time.Since(start).Seconds())

	if p.cache != nil {
		if err := p.cache.SetSnapshot(ctx, snap.SessionID, data); err != nil {
			log.Warn().Err(err).Str("sessionId", snap.SessionID).Msg("Failed to cache snapshot")
		}
		if err := p.cache.PublishSnapshot(ctx, snap.SessionID, snap.Version, data); err != nil {
			log.Warn().Err(err).Str("sessionId", snap.SessionID).Msg("Failed to publish snapshot")
		}
	}
	return nil
}

// Load returns the newest known snapshot for a session, preferring the cache
// when it is at least as new as the durable copy. It returns nil, nil when the
// session has never been saved and an error wrapping
// conquest.ErrCorruptSnapshot when stored data cannot be decoded.
func (p *PersistenceGateway) Load(ctx context.Context, sessionID string) (*conquest.Snapshot, error) {
	var cached *conquest.Snapshot
	if p.cache != nil {
		data, err := p.cache.GetSnapshot(ctx, sessionID)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", sessionID).Msg("Snapshot cache read failed")
		} else if data != nil {
			snap, err := conquest.UnmarshalSnapshot(data)
			if err != nil {
				log.Warn().Err(err).Str("sessionId", sessionID).Msg("Discarding undecodable cached snapshot")
			} else {
				cached = &snap
			}
		}
	}

	data, err := p.store.LoadSnapshot(ctx, sessionID)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("%w: %w", conquest.ErrPersistence, err)
	}
	if data == nil {
		return cached, nil
	}
	stored, err := conquest.UnmarshalSnapshot(data)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("load %s: %w", sessionID, err)
	}
	if cached != nil && conquest.RemoteWins(stored, *cached) {
		return cached, nil
	}
	return &stored, nil
}
