package rooms

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"chatcore/internal/cerrors"
	"chatcore/internal/models"
	"chatcore/internal/recordstore"
)

// fanOutLimit bounds the parallel room lookups behind ListRooms.
const fanOutLimit = 8

// errStaleMembers aborts a transaction whose locked record set no longer
// matches the room's member set; the caller re-resolves and retries.
var errStaleMembers = errors.New("room member set changed since resolve")

// memberResolveAttempts bounds those re-resolve retries.
const memberResolveAttempts = 3

// RoomKind distinguishes the two room record types behind one room id
// space.
type RoomKind string

const (
	DirectKind RoomKind = "direct"
	GroupKind  RoomKind = "group"
)

// RoomSummary is the listing projection for a user's room list.
type RoomSummary struct {
	ID          string   `json:"id"`
	Kind        RoomKind `json:"kind"`
	Name        string   `json:"name,omitempty"`
	IconURL     string   `json:"iconUrl,omitempty"`
	Members     []string `json:"members"`
	UnreadCount int64    `json:"unreadCount"`
}

// Service is the room directory: the direct-room pairing index plus
// group-room membership. Every mutation runs as one record store
// transaction, so a pair can never map to two direct rooms and room
// lists stay symmetric with membership.
type Service interface {
	FindDirectRoom(ctx context.Context, u1, u2 string) (*models.DirectRoom, error)
	CreateDirectRoom(ctx context.Context, u1, u2 string) (*models.DirectRoom, error)
	OpenDirectRoom(ctx context.Context, u1, u2 string) (*models.DirectRoom, bool, error)
	DeleteDirectRoom(ctx context.Context, roomID, actorID string) error

	CreateRoom(ctx context.Context, name, iconURL, creatorID string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	JoinRoom(ctx context.Context, roomID, userID string) error
	DeleteRoom(ctx context.Context, roomID, actorID string) error

	ListRooms(ctx context.Context, userID string) ([]*RoomSummary, error)

	// Members resolves the member set of any room id, direct or group.
	Members(ctx context.Context, roomID string) ([]string, error)
}

type service struct {
	store *recordstore.Store
}

// NewService creates a new room directory service over the record store.
func NewService(store *recordstore.Store) Service {
	return &service{store: store}
}

// FindDirectRoom looks the pair up in the index; O(1), no scan.
func (s *service) FindDirectRoom(ctx context.Context, u1, u2 string) (*models.DirectRoom, error) {
	var slot models.PairIndex
	if err := s.store.GetJSON(ctx, models.PairKey(u1, u2), &slot); err != nil {
		return nil, err
	}
	var room models.DirectRoom
	if err := s.store.GetJSON(ctx, models.DirectRoomKey(slot.RoomID), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateDirectRoom creates the unique direct room for the pair. The
// transaction spans both users, the pair-index slot, the room and its
// log; an occupied slot means a concurrent creator won and the caller
// gets a conflict error; re-read via FindDirectRoom for the winner.
func (s *service) CreateDirectRoom(ctx context.Context, u1, u2 string) (*models.DirectRoom, error) {
	if u1 == u2 {
		return nil, cerrors.Validationf("cannot open a direct room with yourself")
	}
	room := &models.DirectRoom{
		Base:  models.Base{ID: uuid.NewString()},
		UserA: u1,
		UserB: u2,
	}
	room.EnsureCanonicalOrder()

	pairKey := models.PairKey(u1, u2)
	roomKey := models.DirectRoomKey(room.ID)
	logKey := models.RoomLogKey(room.ID)
	aKey, bKey := models.UserKey(room.UserA), models.UserKey(room.UserB)

	err := s.store.Transact(ctx, []string{aKey, bKey, pairKey, roomKey, logKey}, func(tx *recordstore.Tx) error {
		var a, b models.User
		if err := tx.Get(aKey, &a); err != nil {
			return cerrors.NotFoundf("user %s", room.UserA)
		}
		if err := tx.Get(bKey, &b); err != nil {
			return cerrors.NotFoundf("user %s", room.UserB)
		}
		if tx.Exists(pairKey) {
			return cerrors.Conflictf("direct room for this pair already exists")
		}
		room.Touch(tx.Now())
		if err := tx.Put(roomKey, room); err != nil {
			return err
		}
		if err := tx.Put(pairKey, &models.PairIndex{RoomID: room.ID}); err != nil {
			return err
		}
		if err := tx.Put(logKey, &models.RoomLog{RoomID: room.ID, MessageIDs: []string{}}); err != nil {
			return err
		}
		a.AddRoom(room.ID)
		a.Touch(tx.Now())
		b.AddRoom(room.ID)
		b.Touch(tx.Now())
		if err := tx.Put(aKey, &a); err != nil {
			return err
		}
		return tx.Put(bKey, &b)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// OpenDirectRoom finds the pair's room or creates it, reporting whether
// it was created. A creation race resolves to the winner's room.
func (s *service) OpenDirectRoom(ctx context.Context, u1, u2 string) (*models.DirectRoom, bool, error) {
	room, err := s.FindDirectRoom(ctx, u1, u2)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, cerrors.ErrNotFound) {
		return nil, false, err
	}
	room, err = s.CreateDirectRoom(ctx, u1, u2)
	if err == nil {
		return room, true, nil
	}
	if errors.Is(err, cerrors.ErrConflict) {
		// Lost the creation race; the winner's room is there now.
		room, err = s.FindDirectRoom(ctx, u1, u2)
		if err != nil {
			return nil, false, err
		}
		return room, false, nil
	}
	return nil, false, err
}

// DeleteDirectRoom removes the room, clears the pair-index slot and
// drops the room id from both members' lists in one transaction, so a
// later CreateDirectRoom for the same pair succeeds with a fresh id.
func (s *service) DeleteDirectRoom(ctx context.Context, roomID, actorID string) error {
	var room models.DirectRoom
	roomKey := models.DirectRoomKey(roomID)
	if err := s.store.GetJSON(ctx, roomKey, &room); err != nil {
		return err
	}
	if !room.IsMember(actorID) {
		return cerrors.Unauthorizedf("user %s is not a member of room %s", actorID, roomID)
	}

	pairKey := models.PairKey(room.UserA, room.UserB)
	logKey := models.RoomLogKey(roomID)
	aKey, bKey := models.UserKey(room.UserA), models.UserKey(room.UserB)

	return s.store.Transact(ctx, []string{roomKey, pairKey, logKey, aKey, bKey}, func(tx *recordstore.Tx) error {
		var current models.DirectRoom
		if err := tx.Get(roomKey, &current); err != nil {
			return err // already gone
		}
		tx.Delete(roomKey)
		tx.Delete(logKey)
		// Only clear the slot if it still points at this room; a
		// delete+recreate race must not destroy the successor's index.
		var slot models.PairIndex
		if err := tx.Get(pairKey, &slot); err == nil && slot.RoomID == roomID {
			tx.Delete(pairKey)
		}
		for _, key := range []string{aKey, bKey} {
			var user models.User
			if err := tx.Get(key, &user); err != nil {
				continue
			}
			user.RemoveRoom(roomID)
			user.Touch(tx.Now())
			if err := tx.Put(key, &user); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateRoom creates a group room with the creator as sole member.
func (s *service) CreateRoom(ctx context.Context, name, iconURL, creatorID string) (*models.Room, error) {
	if name == "" {
		return nil, cerrors.Validationf("room name must not be empty")
	}
	room := &models.Room{
		Base:    models.Base{ID: uuid.NewString()},
		Name:    name,
		IconURL: iconURL,
		Members: []string{creatorID},
	}
	roomKey := models.RoomKey(room.ID)
	logKey := models.RoomLogKey(room.ID)
	creatorKey := models.UserKey(creatorID)

	err := s.store.Transact(ctx, []string{roomKey, logKey, creatorKey}, func(tx *recordstore.Tx) error {
		var creator models.User
		if err := tx.Get(creatorKey, &creator); err != nil {
			return cerrors.NotFoundf("user %s", creatorID)
		}
		room.Touch(tx.Now())
		if err := tx.Put(roomKey, room); err != nil {
			return err
		}
		if err := tx.Put(logKey, &models.RoomLog{RoomID: room.ID, MessageIDs: []string{}}); err != nil {
			return err
		}
		creator.AddRoom(room.ID)
		creator.Touch(tx.Now())
		return tx.Put(creatorKey, &creator)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom reads one group room record.
func (s *service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	if err := s.store.GetJSON(ctx, models.RoomKey(roomID), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// JoinRoom adds userID to the member set and the room to the user's
// list. ConflictError if already a member.
func (s *service) JoinRoom(ctx context.Context, roomID, userID string) error {
	roomKey := models.RoomKey(roomID)
	userKey := models.UserKey(userID)
	return s.store.Transact(ctx, []string{roomKey, userKey}, func(tx *recordstore.Tx) error {
		var room models.Room
		if err := tx.Get(roomKey, &room); err != nil {
			return cerrors.NotFoundf("room %s", roomID)
		}
		var user models.User
		if err := tx.Get(userKey, &user); err != nil {
			return cerrors.NotFoundf("user %s", userID)
		}
		if room.IsMember(userID) {
			return cerrors.Conflictf("user %s is already a member of room %s", userID, roomID)
		}
		room.AddMember(userID)
		room.Touch(tx.Now())
		user.AddRoom(roomID)
		user.Touch(tx.Now())
		if err := tx.Put(roomKey, &room); err != nil {
			return err
		}
		return tx.Put(userKey, &user)
	})
}

// DeleteRoom removes the room, its log, and the room id from every
// member's list in one transaction. The actor must be a member. The
// member set is resolved before the transaction and re-checked inside
// it; if membership moved in between, the whole operation re-resolves.
func (s *service) DeleteRoom(ctx context.Context, roomID, actorID string) error {
	roomKey := models.RoomKey(roomID)
	logKey := models.RoomLogKey(roomID)

	for attempt := 0; attempt < memberResolveAttempts; attempt++ {
		var room models.Room
		if err := s.store.GetJSON(ctx, roomKey, &room); err != nil {
			return err
		}
		if !room.IsMember(actorID) {
			return cerrors.Unauthorizedf("user %s is not a member of room %s", actorID, roomID)
		}

		members := room.Members
		ids := []string{roomKey, logKey}
		for _, m := range members {
			ids = append(ids, models.UserKey(m))
		}

		err := s.store.Transact(ctx, ids, func(tx *recordstore.Tx) error {
			var current models.Room
			if err := tx.Get(roomKey, &current); err != nil {
				return err
			}
			if !sameMembers(current.Members, members) {
				return errStaleMembers
			}
			tx.Delete(roomKey)
			tx.Delete(logKey)
			for _, m := range members {
				key := models.UserKey(m)
				var user models.User
				if err := tx.Get(key, &user); err != nil {
					continue
				}
				user.RemoveRoom(roomID)
				user.Touch(tx.Now())
				if err := tx.Put(key, &user); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, errStaleMembers) {
			continue
		}
		return err
	}
	return cerrors.TxAbortedf("room %s membership kept changing during delete", roomID)
}

// ListRooms resolves the user's ordered room list with bounded-parallel
// lookups; results keep the list order and carry the user's unread
// counters. Rooms that fail to resolve are logged and skipped.
func (s *service) ListRooms(ctx context.Context, userID string) ([]*RoomSummary, error) {
	var user models.User
	if err := s.store.GetJSON(ctx, models.UserKey(userID), &user); err != nil {
		return nil, err
	}

	results := make([]*RoomSummary, len(user.Rooms))
	sem := make(chan struct{}, fanOutLimit)
	var wg sync.WaitGroup
	for i, roomID := range user.Rooms {
		wg.Add(1)
		go func(i int, roomID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			summary, err := s.summarize(ctx, roomID)
			if err != nil {
				log.Printf("rooms: failed to load room %s for user %s: %v", roomID, userID, err)
				return
			}
			summary.UnreadCount = user.UnreadCounts[roomID]
			results[i] = summary
		}(i, roomID)
	}
	wg.Wait()

	summaries := make([]*RoomSummary, 0, len(user.Rooms))
	for _, summary := range results {
		if summary != nil {
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}

// Members resolves the member set of any room id, direct or group.
func (s *service) Members(ctx context.Context, roomID string) ([]string, error) {
	var direct models.DirectRoom
	err := s.store.GetJSON(ctx, models.DirectRoomKey(roomID), &direct)
	if err == nil {
		return direct.Members(), nil
	}
	if !errors.Is(err, cerrors.ErrNotFound) {
		return nil, err
	}
	var room models.Room
	if err := s.store.GetJSON(ctx, models.RoomKey(roomID), &room); err != nil {
		return nil, err
	}
	return room.Members, nil
}

func (s *service) summarize(ctx context.Context, roomID string) (*RoomSummary, error) {
	var direct models.DirectRoom
	err := s.store.GetJSON(ctx, models.DirectRoomKey(roomID), &direct)
	if err == nil {
		return &RoomSummary{ID: roomID, Kind: DirectKind, Members: direct.Members()}, nil
	}
	if !errors.Is(err, cerrors.ErrNotFound) {
		return nil, err
	}
	var room models.Room
	if err := s.store.GetJSON(ctx, models.RoomKey(roomID), &room); err != nil {
		return nil, err
	}
	return &RoomSummary{
		ID:      roomID,
		Kind:    GroupKind,
		Name:    room.Name,
		IconURL: room.IconURL,
		Members: room.Members,
	}, nil
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
