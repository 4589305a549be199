package unread

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/cerrors"
	"chatcore/internal/recordstore"
	"chatcore/internal/rooms"
	"chatcore/internal/social"
)

func newTestService(t *testing.T) (Service, string) {
	t.Helper()
	store := recordstore.New(recordstore.NewMemoryBackend(), recordstore.DefaultOptions())
	socialSvc := social.NewService(store)
	ctx := context.Background()
	for _, id := range []string{"alice", "bob"} {
		_, err := socialSvc.CreateUser(ctx, id, "user "+id, "")
		require.NoError(t, err)
	}
	room, _, err := rooms.NewService(store).OpenDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	return NewService(store), room.ID
}

func TestCountsSeededAtZero(t *testing.T) {
	svc, roomID := newTestService(t)

	counts, err := svc.Counts(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[roomID])
}

func TestMarkReadUnknownRoom(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.MarkRead(context.Background(), "bob", "no-such-room")
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}

func TestMarkReadUnknownUser(t *testing.T) {
	svc, roomID := newTestService(t)

	err := svc.MarkRead(context.Background(), "ghost", roomID)
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}

func TestCountsUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Counts(context.Background(), "ghost")
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}
