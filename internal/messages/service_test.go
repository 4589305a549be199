package messages

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/cerrors"
	"chatcore/internal/chattypes"
	"chatcore/internal/recordstore"
	"chatcore/internal/rooms"
	"chatcore/internal/social"
	"chatcore/internal/unread"
)

// capturePublisher records every published room event.
type capturePublisher struct {
	mu     sync.Mutex
	events []chattypes.RoomEvent
}

func (c *capturePublisher) PublishRoomEvent(ctx context.Context, event chattypes.RoomEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) all() []chattypes.RoomEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chattypes.RoomEvent(nil), c.events...)
}

type fixture struct {
	messages Service
	rooms    rooms.Service
	social   social.Service
	unread   unread.Service
	events   *capturePublisher
}

func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()
	store := recordstore.New(recordstore.NewMemoryBackend(), recordstore.DefaultOptions())
	socialSvc := social.NewService(store)
	for _, id := range userIDs {
		_, err := socialSvc.CreateUser(context.Background(), id, "user "+id, "")
		require.NoError(t, err)
	}
	roomSvc := rooms.NewService(store)
	events := &capturePublisher{}
	return &fixture{
		messages: NewService(store, roomSvc, events),
		rooms:    roomSvc,
		social:   socialSvc,
		unread:   unread.NewService(store),
		events:   events,
	}
}

func (f *fixture) directRoom(t *testing.T, u1, u2 string) string {
	t.Helper()
	room, _, err := f.rooms.OpenDirectRoom(context.Background(), u1, u2)
	require.NoError(t, err)
	return room.ID
}

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	roomID := f.directRoom(t, "alice", "bob")

	first, err := f.messages.Append(ctx, roomID, "alice", "hello", "")
	require.NoError(t, err)
	second, err := f.messages.Append(ctx, roomID, "bob", "hi", "")
	require.NoError(t, err)
	third, err := f.messages.Append(ctx, roomID, "alice", "how are you", "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.SendSeq)
	assert.Equal(t, int64(2), second.SendSeq)
	assert.Equal(t, int64(3), third.SendSeq)

	listed, err := f.messages.List(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, first.ID, listed[0].ID)
	assert.Equal(t, second.ID, listed[1].ID)
	assert.Equal(t, third.ID, listed[2].ID)
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	roomID := f.directRoom(t, "alice", "bob")

	_, err := f.messages.Append(ctx, roomID, "alice", "", "")
	assert.ErrorIs(t, err, cerrors.ErrValidation)

	// Image-only messages are fine.
	msg, err := f.messages.Append(ctx, roomID, "alice", "", "/uploads/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/cat.png", msg.ImageURL)
}

func TestAppendNonMemberRejected(t *testing.T) {
	f := newFixture(t, "alice", "bob", "mallory")
	roomID := f.directRoom(t, "alice", "bob")

	_, err := f.messages.Append(context.Background(), roomID, "mallory", "hi", "")
	assert.ErrorIs(t, err, cerrors.ErrUnauthorized)
}

func TestAppendIncrementsRecipientsUnread(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	roomID := f.directRoom(t, "alice", "bob")

	for i := 0; i < 3; i++ {
		_, err := f.messages.Append(ctx, roomID, "alice", "ping", "")
		require.NoError(t, err)
	}

	counts, err := f.unread.Counts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[roomID])

	// The sender's own counter stays untouched.
	counts, err = f.unread.Counts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[roomID])

	require.NoError(t, f.unread.MarkRead(ctx, "bob", roomID))
	counts, err = f.unread.Counts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[roomID])

	_, err = f.messages.Append(ctx, roomID, "alice", "ping again", "")
	require.NoError(t, err)
	counts, err = f.unread.Counts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[roomID])
}

func TestEditKeepsSequenceAndPosition(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	roomID := f.directRoom(t, "alice", "bob")

	first, err := f.messages.Append(ctx, roomID, "alice", "helo", "")
	require.NoError(t, err)
	_, err = f.messages.Append(ctx, roomID, "bob", "hi", "")
	require.NoError(t, err)

	edited, err := f.messages.Edit(ctx, first.ID, "alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Content)
	assert.Equal(t, first.SendSeq, edited.SendSeq)

	// The edited message keeps its place in the feed.
	listed, err := f.messages.List(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, first.ID, listed[0].ID)
	assert.Equal(t, "hello", listed[0].Content)
}

func TestEditByNonSenderRejected(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	roomID := f.directRoom(t, "alice", "bob")

	msg, err := f.messages.Append(ctx, roomID, "alice", "mine", "")
	require.NoError(t, err)

	_, err = f.messages.Edit(ctx, msg.ID, "bob", "yours now")
	assert.ErrorIs(t, err, cerrors.ErrUnauthorized)
}

func TestToggleLikeSetSemantics(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	roomID := f.directRoom(t, "alice", "bob")

	msg, err := f.messages.Append(ctx, roomID, "alice", "like me", "")
	require.NoError(t, err)

	// liked=false means the caller saw it un-liked, so this adds.
	liked, err := f.messages.ToggleLike(ctx, msg.ID, "bob", false)
	require.NoError(t, err)
	assert.True(t, liked.LikedBy("bob"))

	// Two racing toggles with the same observed state converge on one like.
	again, err := f.messages.ToggleLike(ctx, msg.ID, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, again.Likes)

	unliked, err := f.messages.ToggleLike(ctx, msg.ID, "bob", true)
	require.NoError(t, err)
	assert.False(t, unliked.LikedBy("bob"))
}

func TestAppendAndEditPublishEvents(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	roomID := f.directRoom(t, "alice", "bob")

	msg, err := f.messages.Append(ctx, roomID, "alice", "hello", "")
	require.NoError(t, err)
	_, err = f.messages.Edit(ctx, msg.ID, "alice", "hello!")
	require.NoError(t, err)

	events := f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, chattypes.MessageAppended, events[0].Kind)
	assert.Equal(t, roomID, events[0].RoomID)
	assert.Equal(t, msg.ID, events[0].MessageID)
	assert.Equal(t, chattypes.MessageEdited, events[1].Kind)
}

func TestGroupRoomAppendFansOutUnread(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, "plans", "", "alice")
	require.NoError(t, err)
	require.NoError(t, f.rooms.JoinRoom(ctx, room.ID, "bob"))
	require.NoError(t, f.rooms.JoinRoom(ctx, room.ID, "carol"))

	_, err = f.messages.Append(ctx, room.ID, "bob", "when do we meet?", "")
	require.NoError(t, err)

	for user, want := range map[string]int64{"alice": 1, "bob": 0, "carol": 1} {
		counts, err := f.unread.Counts(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, want, counts[room.ID], "unread for %s", user)
	}
}

func TestListUnknownRoom(t *testing.T) {
	f := newFixture(t, "alice")

	_, err := f.messages.List(context.Background(), "no-such-room")
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}
