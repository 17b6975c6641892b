package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/critforge/sessiond/internal/store"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSnapshot(sessionID string) store.Snapshot {
	now := time.Now().UTC().Truncate(time.Second)
	return store.Snapshot{
		SessionID:   sessionID,
		Name:        "Dragon Hunt",
		Code:        "ABCDEF",
		HostUserID:  "u-1",
		CampaignID:  "c-1",
		Status:      "lobby",
		Round:       0,
		PlayerCount: 1,
		State:       []byte(`{"id":"` + sessionID + `"}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	snap := testSnapshot("s-1")
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, got.SessionID)
	assert.Equal(t, snap.Name, got.Name)
	assert.Equal(t, snap.Code, got.Code)
	assert.Equal(t, snap.Status, got.Status)
	assert.Equal(t, snap.State, got.State)
}

func TestGetUnknownSession(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveUpserts(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	snap := testSnapshot("s-1")
	require.NoError(t, s.Save(ctx, snap))

	snap.Status = "active"
	snap.Round = 3
	snap.PlayerCount = 4
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, 3, got.Round)
	assert.Equal(t, 4, got.PlayerCount)

	snaps, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Save(ctx, testSnapshot("s-1")))
	require.NoError(t, s.Save(ctx, testSnapshot("s-2")))

	snaps, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	require.NoError(t, s.Delete(ctx, "s-1"))
	_, err = s.Get(ctx, "s-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	snaps, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestPing(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Ping())
}
