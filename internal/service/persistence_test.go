package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/freeeve/conquest/api/pkg/conquest"
)

func TestPersistenceGatewaySaveRetries(t *testing.T) {
	store := newMockStore()
	store.failN = 2
	cache := newMockCache()
	gw := NewPersistenceGateway(store, cache, 3, time.Millisecond)

	snap := endgameSnapshot("s-1", 10)
	if err := gw.Save(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.saves != 3 {
		t.Errorf("expected 3 attempts, got %d", store.saves)
	}
	if store.version("s-1") != 10 {
		t.Errorf("expected stored version 10, got %d", store.version("s-1"))
	}
	if len(cache.published) != 1 || cache.published[0].version != 10 {
		t.Errorf("expected one publish of v10, got %+v", cache.published)
	}
}

func TestPersistenceGatewaySaveGivesUp(t *testing.T) {
	store := newMockStore()
	store.failN = 10
	cache := newMockCache()
	gw := NewPersistenceGateway(store, cache, 2, time.Millisecond)

	err := gw.Save(context.Background(), endgameSnapshot("s-1", 4))
	if !errors.Is(err, conquest.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Errorf("expected cause to be kept, got %v", err)
	}
	if store.saves != 2 {
		t.Errorf("expected 2 attempts, got %d", store.saves)
	}
	if len(cache.published) != 0 {
		t.Error("nothing should be published when the durable write failed")
	}
}

func TestPersistenceGatewaySaveHonorsContext(t *testing.T) {
	store := newMockStore()
	store.failN = 10
	gw := NewPersistenceGateway(store, nil, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gw.Save(ctx, endgameSnapshot("s-1", 4))
	if !errors.Is(err, conquest.ErrPersistence) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled persistence failure, got %v", err)
	}
}

func TestPersistenceGatewayLoad(t *testing.T) {
	store := newMockStore()
	cache := newMockCache()
	gw := NewPersistenceGateway(store, cache, 1, time.Millisecond)
	ctx := context.Background()

	got, err := gw.Load(ctx, "s-1")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for unknown session, got %v, %v", got, err)
	}

	store.put("s-1", endgameSnapshot("s-1", 7))
	got, err = gw.Load(ctx, "s-1")
	if err != nil || got.Version != 7 {
		t.Fatalf("expected stored v7, got %+v, %v", got, err)
	}

	newer, _ := endgameSnapshot("s-1", 9).Marshal()
	cache.SetSnapshot(ctx, "s-1", newer)
	got, _ = gw.Load(ctx, "s-1")
	if got.Version != 9 {
		t.Errorf("expected newer cached v9, got v%d", got.Version)
	}

	older, _ := endgameSnapshot("s-1", 3).Marshal()
	cache.SetSnapshot(ctx, "s-1", older)
	got, _ = gw.Load(ctx, "s-1")
	if got.Version != 7 {
		t.Errorf("expected stored v7 over stale cache, got v%d", got.Version)
	}
}

func TestPersistenceGatewayLoadCorrupt(t *testing.T) {
	store := newMockStore()
	gw := NewPersistenceGateway(store, nil, 1, time.Millisecond)
	store.data["s-1"] = json.RawMessage(`{"version": "nope"`)

	_, err := gw.Load(context.Background(), "s-1")
	if !errors.Is(err, conquest.ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
}
