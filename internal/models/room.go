package models

// DirectRoom is a 1:1 chat channel uniquely keyed by its unordered user
// pair. UserA/UserB are stored in canonical (sorted) order; the pair
// index record enforces at most one direct room per pair.
type DirectRoom struct {
	Base
	UserA string `json:"userA"`
	UserB string `json:"userB"`
}

// EnsureCanonicalOrder sets UserA to the smaller id and UserB to the
// larger one. It must be called before the room is first persisted.
func (d *DirectRoom) EnsureCanonicalOrder() {
	if d.UserA > d.UserB {
		d.UserA, d.UserB = d.UserB, d.UserA
	}
}

// Members returns both participants.
func (d *DirectRoom) Members() []string {
	return []string{d.UserA, d.UserB}
}

// IsMember reports whether userID is one of the pair.
func (d *DirectRoom) IsMember(userID string) bool {
	return userID == d.UserA || userID == d.UserB
}

// Room is a named group chat room. Members is a set stored as a slice
// and is non-empty for as long as the room exists.
type Room struct {
	Base
	Name    string   `json:"name"`
	IconURL string   `json:"iconUrl,omitempty"`
	Members []string `json:"members"`
}

// IsMember reports whether userID is in the member set.
func (r *Room) IsMember(userID string) bool {
	return contains(r.Members, userID)
}

// AddMember adds userID to the member set; adding twice is a no-op.
func (r *Room) AddMember(userID string) {
	if !r.IsMember(userID) {
		r.Members = append(r.Members, userID)
	}
}

// RemoveMember drops userID from the member set.
func (r *Room) RemoveMember(userID string) {
	r.Members = remove(r.Members, userID)
}

// PairIndex is the index slot for a direct-room pair key. Its record id
// is derived from the canonical pair; the value points at the room.
type PairIndex struct {
	RoomID string `json:"roomId"`
}

// RoomLog is the append-only ordered message log of one room (direct or
// group). MessageIDs preserves append order; LastSeq is the store-side
// monotonic sequence from which every message's ordering key is
// allocated, so messages from different senders interleave
// deterministically regardless of client clocks.
type RoomLog struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
	LastSeq    int64    `json:"lastSeq"`
}

// NextSeq allocates the next ordering key. Only valid inside the
// transaction that also persists the updated log.
func (l *RoomLog) NextSeq() int64 {
	l.LastSeq++
	return l.LastSeq
}
