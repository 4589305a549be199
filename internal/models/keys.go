package models

// Record key scheme. Every record lives in one flat keyspace; the prefix
// names the record type and the rest identifies the instance. The pair
// key is derived from the canonically ordered user pair so that both
// orderings of (u1,u2) address the same index slot.

const (
	userKeyPrefix       = "user:"
	directRoomKeyPrefix = "droom:"
	roomKeyPrefix       = "room:"
	pairKeyPrefix       = "dpair:"
	roomLogKeyPrefix    = "log:"
	messageKeyPrefix    = "msg:"
	credentialKeyPrefix = "cred:"
)

// UserKey returns the record key for a user id.
func UserKey(userID string) string { return userKeyPrefix + userID }

// DirectRoomKey returns the record key for a direct room id.
func DirectRoomKey(roomID string) string { return directRoomKeyPrefix + roomID }

// RoomKey returns the record key for a group room id.
func RoomKey(roomID string) string { return roomKeyPrefix + roomID }

// RoomLogKey returns the record key for a room's message log.
func RoomLogKey(roomID string) string { return roomLogKeyPrefix + roomID }

// MessageKey returns the record key for a message id.
func MessageKey(messageID string) string { return messageKeyPrefix + messageID }

// CredentialKey returns the record key for a login email.
func CredentialKey(email string) string { return credentialKeyPrefix + email }

// CanonicalPair returns the two user ids sorted into canonical order.
func CanonicalPair(u1, u2 string) (string, string) {
	if u1 > u2 {
		return u2, u1
	}
	return u1, u2
}

// PairKey returns the direct-room index key for an unordered user pair.
func PairKey(u1, u2 string) string {
	lo, hi := CanonicalPair(u1, u2)
	return pairKeyPrefix + lo + "|" + hi
}
