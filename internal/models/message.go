package models

// Message is one entry in a room's ordered log. SendSeq is the ordering
// key assigned by the store at append time and never changes afterwards,
// even when the content is edited. Likes is a set of user ids, toggled
// by membership rather than counted.
type Message struct {
	Base
	RoomID   string   `json:"roomId"`
	SenderID string   `json:"senderId"`
	Content  string   `json:"content"`
	ImageURL string   `json:"imageUrl,omitempty"`
	Likes    []string `json:"likes"`
	SendSeq  int64    `json:"sendSeq"`
}

// LikedBy reports whether userID is in the like set.
func (m *Message) LikedBy(userID string) bool {
	return contains(m.Likes, userID)
}

// AddLike adds userID to the like set; adding twice is a no-op, so the
// final state stays set membership even under racing toggles.
func (m *Message) AddLike(userID string) {
	if !m.LikedBy(userID) {
		m.Likes = append(m.Likes, userID)
	}
}

// RemoveLike drops userID from the like set.
func (m *Message) RemoveLike(userID string) {
	m.Likes = remove(m.Likes, userID)
}
