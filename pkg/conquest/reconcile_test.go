package conquest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := func(id string, v uint64, ts time.Time) Snapshot {
		return Snapshot{SessionID: id, Version: v, Timestamp: ts}
	}

	cases := []struct {
		name   string
		local  Snapshot
		remote Snapshot
		want   string
	}{
		{"higher remote version", snap("local", 4, t0), snap("remote", 5, t0.Add(-time.Hour)), "remote"},
		{"higher local version", snap("local", 5, t0), snap("remote", 4, t0.Add(time.Hour)), "local"},
		{"same version later remote", snap("local", 5, t0), snap("remote", 5, t0.Add(time.Millisecond)), "remote"},
		{"same version earlier remote", snap("local", 5, t0), snap("remote", 5, t0.Add(-time.Millisecond)), "local"},
		{"full tie keeps local", snap("local", 5, t0), snap("remote", 5, t0), "local"},
	}
	var r Reconciler = VersionReconciler{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Reconcile(tc.local, tc.remote).SessionID)
			assert.Equal(t, tc.want, r.Reconcile(tc.local, tc.remote).SessionID)
			assert.Equal(t, tc.want == "remote", RemoteWins(tc.local, tc.remote))
		})
	}
}

func TestReconcileReturnsSnapshotUnmerged(t *testing.T) {
	gs := newTestState(t, "a", "b")
	fillRemaining(gs)
	local := gs.Snapshot()

	remote := local.Clone()
	remote.Version = local.Version + 1
	remote.Territories["alaska"] = TerritorySnapshot{Owner: "b", Armies: 9}
	remote.Phase = PhaseAttack

	got := Reconcile(local, remote)
	assert.Equal(t, remote, got)
	assert.NotEqual(t, local.Territories["alaska"], got.Territories["alaska"])
}

func TestSessionApplyRemote(t *testing.T) {
	s := newTestSession(t, "a", "b")
	_, err := s.Begin(SetupRandom, nil)
	require.NoError(t, err)
	local := s.Snapshot()

	older := local.Clone()
	older.Version = local.Version - 1
	got, replaced, err := s.ApplyRemote(older)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, local.Version, got.Version)

	newer := local.Clone()
	newer.Version = local.Version + 3
	for id, terr := range newer.Territories {
		if terr.Owner == "a" {
			terr.Armies += 2
			newer.Territories[id] = terr
			break
		}
	}
	got, replaced, err = s.ApplyRemote(newer)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, newer.Version, got.Version)
	assert.Equal(t, newer.TotalArmies(), got.TotalArmies())

	corrupt := newer.Clone()
	corrupt.Version++
	corrupt.TurnNumber = 0
	_, _, err = s.ApplyRemote(corrupt)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
	assert.Equal(t, newer.Version, s.Version())
}

func TestSessionRejectsForeignSnapshot(t *testing.T) {
	s := newTestSession(t, "a", "b")
	_, err := s.Begin(SetupRandom, nil)
	require.NoError(t, err)
	local := s.Snapshot()

	foreign := local.Clone()
	foreign.SessionID = "session-2"
	foreign.Version = local.Version + 5
	foreign.Players[0].Name = "intruder"

	got, replaced, err := s.ApplyRemote(foreign)
	require.ErrorIs(t, err, ErrInvalidOperation)
	assert.False(t, replaced)
	assert.Equal(t, local.Version, got.Version)

	after := s.Snapshot()
	assert.Equal(t, "session-1", after.SessionID)
	assert.Equal(t, local.Version, after.Version)
	assert.Equal(t, local.Players, after.Players)

	assert.ErrorIs(t, s.LoadInitial(foreign), ErrInvalidOperation)
	assert.ErrorIs(t, s.Restore(foreign), ErrInvalidOperation)
	assert.Equal(t, "session-1", s.Snapshot().SessionID)

	anonymous := local.Clone()
	anonymous.SessionID = ""
	anonymous.Version = local.Version + 1
	require.NoError(t, s.Restore(anonymous))
	assert.Equal(t, "session-1", s.Snapshot().SessionID)
}
