// README: Session tracker tests.
package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"courierd/internal/docstore"
)

func TestStartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	tracker := NewTracker(store, "server", nil)

	id, err := tracker.Start(ctx, "u1", "pixel-7")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := tracker.Start(ctx, "u1", "pixel-7")
	require.NoError(t, err)
	require.Equal(t, id, again, "repeated start must return the remembered session")

	snap, err := store.Read(ctx, CollectionSessions, id)
	require.NoError(t, err)
	require.Equal(t, "u1", snap.Data[fieldUserID])
	require.Equal(t, "pixel-7", snap.Data[fieldDevice])
	require.Nil(t, snap.Data[fieldLogoutAt])
	_, hasLogin := snap.Data[fieldLoginAt].(time.Time)
	require.True(t, hasLogin, "loginAt not stamped")
	require.Equal(t, time.Now().UTC().Format("2006-01-02"), snap.Data[fieldDate])
}

func TestStartIsKeyedPerUser(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	tracker := NewTracker(store, "server", nil)

	u1ID, err := tracker.Start(ctx, "u1", "phone")
	require.NoError(t, err)
	u2ID, err := tracker.Start(ctx, "u2", "phone")
	require.NoError(t, err)
	require.NotEqual(t, u1ID, u2ID, "each user gets their own session")

	snap, err := store.Read(ctx, CollectionSessions, u2ID)
	require.NoError(t, err)
	require.Equal(t, "u2", snap.Data[fieldUserID])

	// Ending u2's session leaves u1's open.
	require.NoError(t, tracker.End(ctx, "u2", "phone"))
	snap, err = store.Read(ctx, CollectionSessions, u1ID)
	require.NoError(t, err)
	require.Nil(t, snap.Data[fieldLogoutAt], "u1's session must stay open")
	require.Equal(t, u1ID, tracker.Current("u1", "phone"))
	require.Empty(t, tracker.Current("u2", "phone"))
}

func TestStartIsKeyedPerDevice(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	tracker := NewTracker(store, "server", nil)

	phoneID, err := tracker.Start(ctx, "u1", "phone")
	require.NoError(t, err)
	tabletID, err := tracker.Start(ctx, "u1", "tablet")
	require.NoError(t, err)
	require.NotEqual(t, phoneID, tabletID, "devices keep concurrent sessions")

	// Empty device falls back to the tracker default.
	defID, err := tracker.Start(ctx, "u1", "")
	require.NoError(t, err)
	snap, err := store.Read(ctx, CollectionSessions, defID)
	require.NoError(t, err)
	require.Equal(t, "server", snap.Data[fieldDevice])
}

func TestEnd(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	tracker := NewTracker(store, "server", nil)

	// Ending with no session is a no-op.
	require.NoError(t, tracker.End(ctx, "u1", "pixel-7"))

	id, err := tracker.Start(ctx, "u1", "pixel-7")
	require.NoError(t, err)
	require.NoError(t, tracker.End(ctx, "u1", "pixel-7"))
	require.Empty(t, tracker.Current("u1", "pixel-7"))

	snap, err := store.Read(ctx, CollectionSessions, id)
	require.NoError(t, err)
	_, closed := snap.Data[fieldLogoutAt].(time.Time)
	require.True(t, closed, "logoutAt not stamped")

	// The next start opens a fresh session.
	next, err := tracker.Start(ctx, "u1", "pixel-7")
	require.NoError(t, err)
	require.NotEqual(t, id, next)
}

func TestEndAllOthers(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	tracker := NewTracker(store, "server", nil)

	// Two other devices with active sessions, one already closed, and an
	// unrelated user.
	_, err := tracker.Start(ctx, "u1", "phone")
	require.NoError(t, err)
	_, err = tracker.Start(ctx, "u1", "tablet")
	require.NoError(t, err)

	_, err = tracker.Start(ctx, "u1", "old-phone")
	require.NoError(t, err)
	require.NoError(t, tracker.End(ctx, "u1", "old-phone"))

	otherID, err := tracker.Start(ctx, "u2", "phone")
	require.NoError(t, err)

	// The caller keeps their own session.
	ownID, err := tracker.Start(ctx, "u1", "laptop")
	require.NoError(t, err)

	n, err := tracker.EndAllOthers(ctx, "u1", "laptop")
	require.NoError(t, err)
	require.Equal(t, 2, n, "exactly the two other active sessions close")

	snap, err := store.Read(ctx, CollectionSessions, ownID)
	require.NoError(t, err)
	require.Nil(t, snap.Data[fieldLogoutAt], "own session must stay open")

	snap, err = store.Read(ctx, CollectionSessions, otherID)
	require.NoError(t, err)
	require.Nil(t, snap.Data[fieldLogoutAt], "other user's session untouched")

	// Nothing left to close.
	n, err = tracker.EndAllOthers(ctx, "u1", "laptop")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestEndAllOthersExcludesOnlyTheCallersOwnSession(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	tracker := NewTracker(store, "server", nil)

	u1ID, err := tracker.Start(ctx, "u1", "phone")
	require.NoError(t, err)
	u2ID, err := tracker.Start(ctx, "u2", "phone")
	require.NoError(t, err)

	// u2's remote sign-out must not treat u1's session as its own, and must
	// not close u2's own.
	n, err := tracker.EndAllOthers(ctx, "u2", "phone")
	require.NoError(t, err)
	require.Zero(t, n, "u2 has no other sessions")

	snap, err := store.Read(ctx, CollectionSessions, u2ID)
	require.NoError(t, err)
	require.Nil(t, snap.Data[fieldLogoutAt], "u2's own session must stay open")
	snap, err = store.Read(ctx, CollectionSessions, u1ID)
	require.NoError(t, err)
	require.Nil(t, snap.Data[fieldLogoutAt], "u1's session is not u2's to close")
}
