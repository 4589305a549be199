package models

// User represents a registered user and the per-user state the engine
// keeps consistent: friend/block sets, the ordered room list and the
// per-room unread counters. Friends and Blocked are sets stored as
// slices; Rooms preserves insertion order.
type User struct {
	Base
	Name         string           `json:"name"`
	IconURL      string           `json:"iconUrl,omitempty"`
	Friends      []string         `json:"friends"`
	Blocked      []string         `json:"blocked"`
	Rooms        []string         `json:"rooms"`
	UnreadCounts map[string]int64 `json:"unreadCounts"`
}

// HasFriend reports whether userID is in the friend set.
func (u *User) HasFriend(userID string) bool {
	return contains(u.Friends, userID)
}

// HasBlocked reports whether userID is in the blocked set.
func (u *User) HasBlocked(userID string) bool {
	return contains(u.Blocked, userID)
}

// HasRoom reports whether roomID is in the user's room list.
func (u *User) HasRoom(roomID string) bool {
	return contains(u.Rooms, roomID)
}

// AddRoom appends roomID to the room list and seeds its unread counter.
// Adding an already-present room is a no-op.
func (u *User) AddRoom(roomID string) {
	if u.HasRoom(roomID) {
		return
	}
	u.Rooms = append(u.Rooms, roomID)
	if u.UnreadCounts == nil {
		u.UnreadCounts = make(map[string]int64)
	}
	u.UnreadCounts[roomID] = 0
}

// RemoveRoom drops roomID from the room list and its unread counter.
func (u *User) RemoveRoom(roomID string) {
	u.Rooms = remove(u.Rooms, roomID)
	delete(u.UnreadCounts, roomID)
}

// RemoveFriend drops userID from the friend set.
func (u *User) RemoveFriend(userID string) {
	u.Friends = remove(u.Friends, userID)
}

// Unblock drops userID from the blocked set.
func (u *User) Unblock(userID string) {
	u.Blocked = remove(u.Blocked, userID)
}

// IncrementUnread bumps the unread counter for roomID.
func (u *User) IncrementUnread(roomID string) {
	if u.UnreadCounts == nil {
		u.UnreadCounts = make(map[string]int64)
	}
	u.UnreadCounts[roomID]++
}

// UserBasicInfo holds minimal public information about a user,
// used when listing friends or room members.
type UserBasicInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IconURL string `json:"iconUrl,omitempty"`
}

// BasicInfo projects the user onto its public fields.
func (u *User) BasicInfo() *UserBasicInfo {
	return &UserBasicInfo{ID: u.ID, Name: u.Name, IconURL: u.IconURL}
}

// Credential binds a login email to a user id and password hash. It is a
// collaborator record for the session layer, not part of the engine core.
// Credential records are only ever read and written by the auth service,
// never serialized into an HTTP response.
type Credential struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
