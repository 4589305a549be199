package rooms

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/cerrors"
	"chatcore/internal/recordstore"
	"chatcore/internal/social"
)

func newTestService(t *testing.T, userIDs ...string) (Service, social.Service) {
	t.Helper()
	store := recordstore.New(recordstore.NewMemoryBackend(), recordstore.DefaultOptions())
	socialSvc := social.NewService(store)
	for _, id := range userIDs {
		_, err := socialSvc.CreateUser(context.Background(), id, "user "+id, "")
		require.NoError(t, err)
	}
	return NewService(store), socialSvc
}

func TestOpenDirectRoomCreatesThenFinds(t *testing.T) {
	svc, socialSvc := newTestService(t, "alice", "bob")
	ctx := context.Background()

	room, created, err := svc.OpenDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.ElementsMatch(t, []string{"alice", "bob"}, room.Members())

	// Opening again, in either order, yields the same room.
	again, created, err := svc.OpenDirectRoom(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.ID, again.ID)

	alice, err := socialSvc.GetUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := socialSvc.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{room.ID}, alice.Rooms)
	assert.Equal(t, []string{room.ID}, bob.Rooms)
}

func TestOpenDirectRoomWithSelfRejected(t *testing.T) {
	svc, _ := newTestService(t, "alice")

	_, _, err := svc.OpenDirectRoom(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, cerrors.ErrValidation)
}

func TestConcurrentOpenDirectRoomConvergesToOne(t *testing.T) {
	svc, socialSvc := newTestService(t, "alice", "bob")
	ctx := context.Background()

	const racers = 8
	ids := make([]string, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, _, err := svc.OpenDirectRoom(ctx, "alice", "bob")
			if assert.NoError(t, err) {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	alice, err := socialSvc.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice.Rooms, 1)
}

func TestDeleteDirectRoomThenRecreate(t *testing.T) {
	svc, socialSvc := newTestService(t, "alice", "bob")
	ctx := context.Background()

	room, _, err := svc.OpenDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDirectRoom(ctx, room.ID, "alice"))

	// Gone from both members.
	alice, err := socialSvc.GetUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := socialSvc.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, alice.Rooms)
	assert.Empty(t, bob.Rooms)

	_, err = svc.FindDirectRoom(ctx, "alice", "bob")
	assert.ErrorIs(t, err, cerrors.ErrNotFound)

	// The pair can be re-opened; the successor has a fresh id.
	recreated, created, err := svc.OpenDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, room.ID, recreated.ID)
}

func TestDeleteDirectRoomNonMemberRejected(t *testing.T) {
	svc, _ := newTestService(t, "alice", "bob", "mallory")
	ctx := context.Background()

	room, _, err := svc.OpenDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	err = svc.DeleteDirectRoom(ctx, room.ID, "mallory")
	assert.ErrorIs(t, err, cerrors.ErrUnauthorized)
}

func TestCreateAndJoinGroupRoom(t *testing.T) {
	svc, socialSvc := newTestService(t, "alice", "bob")
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "plans", "", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, room.Members)

	require.NoError(t, svc.JoinRoom(ctx, room.ID, "bob"))

	got, err := svc.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, got.Members)

	bob, err := socialSvc.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{room.ID}, bob.Rooms)

	err = svc.JoinRoom(ctx, room.ID, "bob")
	assert.ErrorIs(t, err, cerrors.ErrConflict)
}

func TestCreateRoomBlankNameRejected(t *testing.T) {
	svc, _ := newTestService(t, "alice")

	_, err := svc.CreateRoom(context.Background(), "", "", "alice")
	assert.ErrorIs(t, err, cerrors.ErrValidation)
}

func TestDeleteGroupRoomClearsEveryMember(t *testing.T) {
	svc, socialSvc := newTestService(t, "alice", "bob", "carol")
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "plans", "", "alice")
	require.NoError(t, err)
	require.NoError(t, svc.JoinRoom(ctx, room.ID, "bob"))
	require.NoError(t, svc.JoinRoom(ctx, room.ID, "carol"))

	require.NoError(t, svc.DeleteRoom(ctx, room.ID, "bob"))

	for _, id := range []string{"alice", "bob", "carol"} {
		user, err := socialSvc.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, user.Rooms, "user %s should have no rooms left", id)
	}
	_, err = svc.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}

func TestDeleteGroupRoomNonMemberRejected(t *testing.T) {
	svc, _ := newTestService(t, "alice", "mallory")
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "plans", "", "alice")
	require.NoError(t, err)

	err = svc.DeleteRoom(ctx, room.ID, "mallory")
	assert.ErrorIs(t, err, cerrors.ErrUnauthorized)
}

func TestListRoomsMixedKinds(t *testing.T) {
	svc, _ := newTestService(t, "alice", "bob")
	ctx := context.Background()

	direct, _, err := svc.OpenDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	group, err := svc.CreateRoom(ctx, "plans", "/uploads/g.png", "alice")
	require.NoError(t, err)

	summaries, err := svc.ListRooms(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, direct.ID, summaries[0].ID)
	assert.Equal(t, DirectKind, summaries[0].Kind)
	assert.ElementsMatch(t, []string{"alice", "bob"}, summaries[0].Members)

	assert.Equal(t, group.ID, summaries[1].ID)
	assert.Equal(t, GroupKind, summaries[1].Kind)
	assert.Equal(t, "plans", summaries[1].Name)
	assert.Equal(t, "/uploads/g.png", summaries[1].IconURL)
}

func TestMembersResolvesBothKinds(t *testing.T) {
	svc, _ := newTestService(t, "alice", "bob")
	ctx := context.Background()

	direct, _, err := svc.OpenDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	group, err := svc.CreateRoom(ctx, "plans", "", "alice")
	require.NoError(t, err)

	members, err := svc.Members(ctx, direct.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, members)

	members, err = svc.Members(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	_, err = svc.Members(ctx, "no-such-room")
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}
