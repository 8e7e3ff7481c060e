package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/model"
)

// SnapshotChannel carries snapshots between server processes.
const SnapshotChannel = "conquest:snapshots"

// Key patterns for Redis session state.
func snapshotKey(sessionID string) string { return "session:" + sessionID + ":snapshot" }
func versionKey(sessionID string) string  { return "session:" + sessionID + ":version" }

// SetSnapshot stores the live snapshot JSON.
func (c *Client) SetSnapshot(ctx context.Context, sessionID string, data json.RawMessage) error {
	return c.rdb.Set(ctx, snapshotKey(sessionID), []byte(data), 0).Err()
}

// GetSnapshot retrieves the live snapshot JSON, or nil if none is cached.
func (c *Client) GetSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return json.RawMessage(data), nil
}

// PublishSnapshot records the session's latest version and announces the
// snapshot to other processes.
func (c *Client) PublishSnapshot(ctx context.Context, sessionID string, version uint64, data json.RawMessage) error {
	msg, err := json.Marshal(model.SnapshotMessage{
		Origin:    c.origin,
		SessionID: sessionID,
		Version:   version,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot message: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, versionKey(sessionID), version, 0)
	pipe.Publish(ctx, SnapshotChannel, msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// LatestVersion returns the last version published for a session, or 0.
func (c *Client) LatestVersion(ctx context.Context, sessionID string) (uint64, error) {
	v, err := c.rdb.Get(ctx, versionKey(sessionID)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest version: %w", err)
	}
	return v, nil
}

// SubscribeSnapshots streams snapshots published by other processes until ctx
// is done.
func (c *Client) SubscribeSnapshots(ctx context.Context) (<-chan model.SnapshotMessage, error) {
	pubsub := c.rdb.Subscribe(ctx, SnapshotChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe snapshots: %w", err)
	}

	out := make(chan model.SnapshotMessage, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg model.SnapshotMessage
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					log.Warn().Err(err).Msg("Dropping malformed snapshot message")
					continue
				}
				if msg.Origin == c.origin {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// DeleteSession removes all cached data for a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, snapshotKey(sessionID), versionKey(sessionID)).Err()
}
