package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
	assert.Equal(t, "dpair:alice|bob", PairKey("bob", "alice"))
}

func TestCanonicalPair(t *testing.T) {
	lo, hi := CanonicalPair("bob", "alice")
	assert.Equal(t, "alice", lo)
	assert.Equal(t, "bob", hi)

	lo, hi = CanonicalPair("alice", "bob")
	assert.Equal(t, "alice", lo)
	assert.Equal(t, "bob", hi)
}

func TestRoomLogNextSeq(t *testing.T) {
	l := &RoomLog{RoomID: "r1"}
	assert.Equal(t, int64(1), l.NextSeq())
	assert.Equal(t, int64(2), l.NextSeq())
	assert.Equal(t, int64(2), l.LastSeq)
}

func TestUserRoomBookkeeping(t *testing.T) {
	u := &User{}
	u.AddRoom("r1")
	u.AddRoom("r1")
	assert.Equal(t, []string{"r1"}, u.Rooms)
	assert.Equal(t, int64(0), u.UnreadCounts["r1"])

	u.IncrementUnread("r1")
	u.IncrementUnread("r1")
	assert.Equal(t, int64(2), u.UnreadCounts["r1"])

	u.RemoveRoom("r1")
	assert.Empty(t, u.Rooms)
	_, ok := u.UnreadCounts["r1"]
	assert.False(t, ok)
}

func TestDirectRoomCanonicalOrder(t *testing.T) {
	d := &DirectRoom{UserA: "bob", UserB: "alice"}
	d.EnsureCanonicalOrder()
	assert.Equal(t, "alice", d.UserA)
	assert.Equal(t, "bob", d.UserB)
	assert.True(t, d.IsMember("alice"))
	assert.False(t, d.IsMember("carol"))
}
