package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/model"
	"github.com/freeeve/conquest/api/internal/repository"
)

// SnapshotListener keeps the sessions of this process in step with snapshots
// written by other processes. It consumes the Redis snapshot channel and runs
// a polling fallback against the durable store in case messages are missed.
type SnapshotListener struct {
	feed     repository.SnapshotFeed
	store    repository.SnapshotStore
	registry *Registry
	interval time.Duration
}

// NewSnapshotListener creates a SnapshotListener. feed may be nil, in which
// case only the poller runs.
func NewSnapshotListener(feed repository.SnapshotFeed, store repository.SnapshotStore, registry *Registry, interval time.Duration) *SnapshotListener {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SnapshotListener{feed: feed, store: store, registry: registry, interval: interval}
}

// Start listens for published snapshots and runs the poller until ctx is done.
func (l *SnapshotListener) Start(ctx context.Context) {
	if l.feed != nil {
		go l.listenFeed(ctx)
	}
	l.pollStore(ctx)
}

func (l *SnapshotListener) listenFeed(ctx context.Context) {
	ch, err := l.feed.SubscribeSnapshots(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to snapshot channel")
		return
	}

	log.Info().Msg("Snapshot listener started")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.handleMessage(ctx, msg)
		}
	}
}

func (l *SnapshotListener) handleMessage(ctx context.Context, msg model.SnapshotMessage) {
	if err := l.registry.ApplyRemote(ctx, msg.SessionID, msg.Data); err != nil {
		log.Warn().Err(err).Str("sessionId", msg.SessionID).Uint64("version", msg.Version).
			Str("origin", msg.Origin).Msg("Ignoring published snapshot")
	}
}

func (l *SnapshotListener) pollStore(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", l.interval).Msg("Snapshot poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Snapshot poller stopped")
			return
		case <-ticker.C:
			l.checkStore(ctx)
		}
	}
}

// versionSource is implemented by feeds that also record the latest
// published version of each session.
type versionSource interface {
	LatestVersion(ctx context.Context, sessionID string) (uint64, error)
}

// upToDate reports whether the feed's last published version is already
// held locally, so the durable store need not be read.
func (l *SnapshotListener) upToDate(ctx context.Context, sessionID string) bool {
	vs, ok := l.feed.(versionSource)
	if !ok {
		return false
	}
	latest, err := vs.LatestVersion(ctx, sessionID)
	if err != nil || latest == 0 {
		return false
	}
	snap, err := l.registry.Snapshot(sessionID)
	return err == nil && snap.Version >= latest
}

// checkStore reconciles every running session with its durable copy.
func (l *SnapshotListener) checkStore(ctx context.Context) {
	for _, id := range l.registry.IDs() {
		if l.upToDate(ctx, id) {
			continue
		}
		data, err := l.store.LoadSnapshot(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("sessionId", id).Msg("Failed to load snapshot for reconcile")
			continue
		}
		if data == nil {
			continue
		}
		if err := l.registry.ApplyRemote(ctx, id, data); err != nil {
			log.Warn().Err(err).Str("sessionId", id).Msg("Stored snapshot rejected during reconcile")
		}
	}
}
