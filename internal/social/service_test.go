package social

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/cerrors"
	"chatcore/internal/recordstore"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	store := recordstore.New(recordstore.NewMemoryBackend(), recordstore.DefaultOptions())
	return NewService(store)
}

func seedUsers(t *testing.T, svc Service, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := svc.CreateUser(context.Background(), id, "user "+id, "")
		require.NoError(t, err)
	}
}

func TestCreateUserTwiceConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "Alice", "")
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "alice", "Alice again", "")
	assert.ErrorIs(t, err, cerrors.ErrConflict)
}

func TestAddFriendIsSymmetric(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedUsers(t, svc, "alice", "bob")

	require.NoError(t, svc.AddFriend(ctx, "alice", "bob"))

	alice, err := svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := svc.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, alice.HasFriend("bob"))
	assert.True(t, bob.HasFriend("alice"))
}

func TestAddFriendTwiceConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedUsers(t, svc, "alice", "bob")

	require.NoError(t, svc.AddFriend(ctx, "alice", "bob"))
	err := svc.AddFriend(ctx, "alice", "bob")
	assert.ErrorIs(t, err, cerrors.ErrConflict)

	// The failed attempt must not have duplicated the entry.
	alice, err := svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, alice.Friends)
}

func TestAddFriendSelfRejected(t *testing.T) {
	svc := newTestService(t)
	seedUsers(t, svc, "alice")

	err := svc.AddFriend(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, cerrors.ErrValidation)
}

func TestAddFriendUnknownUser(t *testing.T) {
	svc := newTestService(t)
	seedUsers(t, svc, "alice")

	err := svc.AddFriend(context.Background(), "alice", "ghost")
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}

func TestBlockFriendRemovesBothSides(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedUsers(t, svc, "alice", "bob")
	require.NoError(t, svc.AddFriend(ctx, "alice", "bob"))

	require.NoError(t, svc.BlockFriend(ctx, "alice", "bob"))

	alice, err := svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := svc.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, alice.HasFriend("bob"))
	assert.False(t, bob.HasFriend("alice"))
	assert.True(t, alice.HasBlocked("bob"))
	assert.False(t, bob.HasBlocked("alice"))
}

func TestBlockNonFriendFails(t *testing.T) {
	svc := newTestService(t)
	seedUsers(t, svc, "alice", "bob")

	err := svc.BlockFriend(context.Background(), "alice", "bob")
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}

func TestUnblockIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedUsers(t, svc, "alice", "bob")
	require.NoError(t, svc.AddFriend(ctx, "alice", "bob"))
	require.NoError(t, svc.BlockFriend(ctx, "alice", "bob"))

	require.NoError(t, svc.UnblockUser(ctx, "alice", "bob"))
	// A second unblock of the same id commits as a no-op.
	require.NoError(t, svc.UnblockUser(ctx, "alice", "bob"))

	alice, err := svc.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, alice.HasBlocked("bob"))
	// The friendship does not come back.
	assert.False(t, alice.HasFriend("bob"))
}

func TestListFriendsPreservesOrder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedUsers(t, svc, "alice", "bob", "carol", "dave")
	require.NoError(t, svc.AddFriend(ctx, "alice", "bob"))
	require.NoError(t, svc.AddFriend(ctx, "alice", "carol"))
	require.NoError(t, svc.AddFriend(ctx, "alice", "dave"))

	friends, err := svc.ListFriends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, friends, 3)
	assert.Equal(t, "bob", friends[0].ID)
	assert.Equal(t, "carol", friends[1].ID)
	assert.Equal(t, "dave", friends[2].ID)
	assert.Equal(t, "user bob", friends[0].Name)
}

func TestUpdateProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedUsers(t, svc, "alice")

	updated, err := svc.UpdateProfile(ctx, "alice", "Alice B.", "/uploads/icon.png")
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", updated.Name)
	assert.Equal(t, "/uploads/icon.png", updated.IconURL)

	_, err = svc.UpdateProfile(ctx, "alice", "", "")
	assert.ErrorIs(t, err, cerrors.ErrValidation)
}
