//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/freeeve/conquest/api/internal/model"
	"github.com/freeeve/conquest/api/internal/testutil"
)

var testDB *sql.DB

func setup(t *testing.T) {
	t.Helper()
	if testDB == nil {
		testDB = testutil.SetupDB(t)
	}
	testutil.CleanupDB(t, testDB)
}

func createTestUser(t *testing.T, repo *UserRepo, suffix string) *model.User {
	t.Helper()
	u, err := repo.Upsert(context.Background(), "google", "provider-"+suffix, "User "+suffix, "https://avatar/"+suffix)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return u
}

func createTestSession(t *testing.T, repo *SessionRepo, creatorID string) *model.Session {
	t.Helper()
	s, err := repo.Create(context.Background(), uuid.NewString(), "Test Session", creatorID, "random", 4)
	if err != nil {
		t.Fatalf("create test session: %v", err)
	}
	return s
}

// --- UserRepo Tests ---

func TestUserUpsertCreatesAndUpdates(t *testing.T) {
	setup(t)
	repo := NewUserRepo(testDB)
	ctx := context.Background()

	u, err := repo.Upsert(ctx, "google", "goog-123", "Alice", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.ID == "" || u.DisplayName != "Alice" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.AvatarURL != "" {
		t.Errorf("expected empty avatar, got %q", u.AvatarURL)
	}

	again, err := repo.Upsert(ctx, "google", "goog-123", "Alice B", "https://avatar/b")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != u.ID {
		t.Fatalf("expected same ID %s, got %s", u.ID, again.ID)
	}
	if again.DisplayName != "Alice B" || again.AvatarURL != "https://avatar/b" {
		t.Errorf("expected refreshed profile, got %+v", again)
	}
}

func TestUserFind(t *testing.T) {
	setup(t)
	repo := NewUserRepo(testDB)
	ctx := context.Background()
	u := createTestUser(t, repo, "find")

	byID, err := repo.FindByID(ctx, u.ID)
	if err != nil || byID == nil || byID.ProviderID != "provider-find" {
		t.Fatalf("find by id: %+v, %v", byID, err)
	}
	byProvider, err := repo.FindByProviderID(ctx, "google", "provider-find")
	if err != nil || byProvider == nil || byProvider.ID != u.ID {
		t.Fatalf("find by provider: %+v, %v", byProvider, err)
	}
	missing, err := repo.FindByID(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing user")
	}
}

func TestUserUpdateDisplayName(t *testing.T) {
	setup(t)
	repo := NewUserRepo(testDB)
	ctx := context.Background()
	u := createTestUser(t, repo, "rename")

	if err := repo.UpdateDisplayName(ctx, u.ID, "Renamed"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.FindByID(ctx, u.ID)
	if got.DisplayName != "Renamed" {
		t.Errorf("expected Renamed, got %s", got.DisplayName)
	}
}

// --- SessionRepo Tests ---

func TestSessionCreateAndFind(t *testing.T) {
	setup(t)
	users := NewUserRepo(testDB)
	sessions := NewSessionRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, users, "creator")
	s := createTestSession(t, sessions, creator.ID)
	if s.Status != model.StatusWaiting {
		t.Fatalf("expected waiting, got %s", s.Status)
	}
	if s.SetupMode != "random" || s.MaxPlayers != 4 {
		t.Fatalf("unexpected settings: %+v", s)
	}

	if err := sessions.Join(ctx, s.ID, creator.ID, 0, "red", false); err != nil {
		t.Fatalf("join: %v", err)
	}
	got, err := sessions.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.Players) != 1 || got.Players[0].Color != "red" {
		t.Fatalf("expected one red player, got %+v", got.Players)
	}

	missing, err := sessions.FindByID(ctx, uuid.NewString())
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing session, got %+v, %v", missing, err)
	}
}

func TestSessionJoinIdempotent(t *testing.T) {
	setup(t)
	users := NewUserRepo(testDB)
	sessions := NewSessionRepo(testDB)
	ctx := context.Background()

	creator := createTestUser(t, users, "c")
	other := createTestUser(t, users, "o")
	s := createTestSession(t, sessions, creator.ID)

	sessions.Join(ctx, s.ID, creator.ID, 0, "red", false)
	sessions.Join(ctx, s.ID, creator.ID, 0, "red", false)
	sessions.Join(ctx, s.ID, other.ID, 1, "blue", true)

	n, err := sessions.PlayerCount(ctx, s.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 players, got %d", n)
	}
	players, _ := sessions.ListPlayers(ctx, s.ID)
	if players[1].UserID != other.ID || !players[1].IsBot {
		t.Errorf("expected bot in seat 1, got %+v", players[1])
	}
}

func TestSessionLifecycleLists(t *testing.T) {
	setup(t)
	users := NewUserRepo(testDB)
	sessions := NewSessionRepo(testDB)
	ctx := context.Background()

	u := createTestUser(t, users, "life")
	open := createTestSession(t, sessions, u.ID)
	running := createTestSession(t, sessions, u.ID)
	done := createTestSession(t, sessions, u.ID)

	sessions.SetActive(ctx, running.ID)
	sessions.SetActive(ctx, done.ID)
	if err := sessions.SetFinished(ctx, done.ID, "p1", model.FinishWinner); err != nil {
		t.Fatalf("set finished: %v", err)
	}

	openList, _ := sessions.ListOpen(ctx)
	if len(openList) != 1 || openList[0].ID != open.ID {
		t.Errorf("expected only %s open, got %+v", open.ID, openList)
	}
	active, _ := sessions.ListActive(ctx)
	if len(active) != 1 || active[0].ID != running.ID {
		t.Errorf("expected only %s active, got %+v", running.ID, active)
	}
	if active[0].StartedAt == nil {
		t.Error("expected started_at to be set")
	}
	mine, _ := sessions.ListByUser(ctx, u.ID)
	if len(mine) != 3 {
		t.Errorf("expected 3 sessions for creator, got %d", len(mine))
	}

	finished, _ := sessions.FindByID(ctx, done.ID)
	if finished.Status != model.StatusFinished || finished.Winner != "p1" || finished.FinishReason != model.FinishWinner {
		t.Errorf("unexpected finished session: %+v", finished)
	}
	if finished.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

// --- SnapshotRepo Tests ---

func TestSnapshotKeepsNewestVersion(t *testing.T) {
	setup(t)
	users := NewUserRepo(testDB)
	sessions := NewSessionRepo(testDB)
	snaps := NewSnapshotRepo(testDB)
	ctx := context.Background()

	u := createTestUser(t, users, "snap")
	s := createTestSession(t, sessions, u.ID)

	got, err := snaps.LoadSnapshot(ctx, s.ID)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil before first save, got %s, %v", got, err)
	}

	if err := snaps.SaveSnapshot(ctx, s.ID, 5, json.RawMessage(`{"version":5}`)); err != nil {
		t.Fatalf("save v5: %v", err)
	}
	if err := snaps.SaveSnapshot(ctx, s.ID, 3, json.RawMessage(`{"version":3}`)); err != nil {
		t.Fatalf("save v3: %v", err)
	}

	rec, err := snaps.FindRecord(ctx, s.ID)
	if err != nil {
		t.Fatalf("find record: %v", err)
	}
	if rec.Version != 5 {
		t.Fatalf("older write replaced newer snapshot: version %d", rec.Version)
	}

	snaps.SaveSnapshot(ctx, s.ID, 6, json.RawMessage(`{"version":6}`))
	data, _ := snaps.LoadSnapshot(ctx, s.ID)
	var decoded struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Version != 6 {
		t.Errorf("expected version 6, got %d", decoded.Version)
	}
}

// --- PhaseRepo Tests ---

func TestPhaseAppendAndList(t *testing.T) {
	setup(t)
	users := NewUserRepo(testDB)
	sessions := NewSessionRepo(testDB)
	phases := NewPhaseRepo(testDB)
	ctx := context.Background()

	u := createTestUser(t, users, "phase")
	s := createTestSession(t, sessions, u.ID)

	recs := []model.PhaseRecord{
		{SessionID: s.ID, Version: 9, TurnNumber: 1, OldPhase: "attack", NewPhase: "fortify", PlayerID: "p1"},
		{SessionID: s.ID, Version: 4, TurnNumber: 1, OldPhase: "deploy", NewPhase: "attack", PlayerID: "p1"},
		{SessionID: s.ID, Version: 12, TurnNumber: 1, OldPhase: "fortify", NewPhase: "deploy", PlayerID: "p2", Recovered: true},
	}
	for _, r := range recs {
		if err := phases.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := phases.ListBySession(ctx, s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].Version != 4 || got[2].Version != 12 {
		t.Errorf("expected version order, got %d..%d", got[0].Version, got[2].Version)
	}
	if !got[2].Recovered || got[2].PlayerID != "p2" {
		t.Errorf("unexpected last record: %+v", got[2])
	}
}
