package messages

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"chatcore/internal/cerrors"
	"chatcore/internal/chattypes"
	"chatcore/internal/models"
	"chatcore/internal/recordstore"
)

// fanOutLimit bounds the parallel message lookups behind List.
const fanOutLimit = 8

// errStaleMembers aborts an append whose locked user records no longer
// match the room's member set; the append re-resolves and retries.
var errStaleMembers = errors.New("room member set changed since resolve")

const memberResolveAttempts = 3

// MemberResolver resolves a room id to its current member set. The room
// directory implements it.
type MemberResolver interface {
	Members(ctx context.Context, roomID string) ([]string, error)
}

// Service is the message log: an append-only ordered, editable, likable
// message stream per room. Appending a message and incrementing every
// other member's unread counter is one transaction; the ordering key is
// allocated from the room log inside that same transaction, so it is
// store-assigned and strictly monotonic per room.
type Service interface {
	Append(ctx context.Context, roomID, senderID, content, imageURL string) (*models.Message, error)
	Edit(ctx context.Context, messageID, actorID, newContent string) (*models.Message, error)
	ToggleLike(ctx context.Context, messageID, actorID string, liked bool) (*models.Message, error)
	Get(ctx context.Context, messageID string) (*models.Message, error)
	List(ctx context.Context, roomID string) ([]*models.Message, error)
}

type service struct {
	store     *recordstore.Store
	resolver  MemberResolver
	publisher chattypes.EventPublisher
}

// NewService creates a new message log service. publisher may be nil
// when no live delivery is wired.
func NewService(store *recordstore.Store, resolver MemberResolver, publisher chattypes.EventPublisher) Service {
	if publisher == nil {
		publisher = chattypes.NopPublisher{}
	}
	return &service{store: store, resolver: resolver, publisher: publisher}
}

// Append writes a message into the room's log. In the same transaction
// it allocates the ordering key from the log's sequence and increments
// the unread counter of every member except the sender. Fails with
// ValidationError when both content and imageURL are empty and with
// AuthorizationError when the sender is not a member.
func (s *service) Append(ctx context.Context, roomID, senderID, content, imageURL string) (*models.Message, error) {
	if content == "" && imageURL == "" {
		return nil, cerrors.Validationf("message needs content or an image")
	}

	logKey := models.RoomLogKey(roomID)
	directKey := models.DirectRoomKey(roomID)
	groupKey := models.RoomKey(roomID)

	for attempt := 0; attempt < memberResolveAttempts; attempt++ {
		members, err := s.resolver.Members(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if !containsID(members, senderID) {
			return nil, cerrors.Unauthorizedf("user %s is not a member of room %s", senderID, roomID)
		}
		recipients := withoutID(members, senderID)

		msg := &models.Message{
			Base:     models.Base{ID: uuid.NewString()},
			RoomID:   roomID,
			SenderID: senderID,
			Content:  content,
			ImageURL: imageURL,
			Likes:    []string{},
		}
		msgKey := models.MessageKey(msg.ID)

		// The room record rides along so membership drift between the
		// resolve above and the commit is caught by the version check.
		ids := []string{logKey, msgKey, directKey, groupKey}
		for _, m := range recipients {
			ids = append(ids, models.UserKey(m))
		}

		err = s.store.Transact(ctx, ids, func(tx *recordstore.Tx) error {
			current, err := membersInTx(tx, directKey, groupKey)
			if err != nil {
				return cerrors.NotFoundf("room %s", roomID)
			}
			if !sameMembers(current, members) {
				return errStaleMembers
			}

			var roomLog models.RoomLog
			if err := tx.Get(logKey, &roomLog); err != nil {
				return cerrors.NotFoundf("room %s", roomID)
			}
			msg.SendSeq = roomLog.NextSeq()
			roomLog.MessageIDs = append(roomLog.MessageIDs, msg.ID)
			if err := tx.Put(logKey, &roomLog); err != nil {
				return err
			}

			msg.Touch(tx.Now())
			if err := tx.Put(msgKey, msg); err != nil {
				return err
			}

			for _, m := range recipients {
				key := models.UserKey(m)
				var user models.User
				if err := tx.Get(key, &user); err != nil {
					continue
				}
				user.IncrementUnread(roomID)
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
		if err != nil {
			return nil, err
		}

		s.publish(ctx, chattypes.RoomEvent{
			RoomID:    roomID,
			Kind:      chattypes.MessageAppended,
			MessageID: msg.ID,
			SendSeq:   msg.SendSeq,
			Timestamp: msg.CreatedAt,
		})
		return msg, nil
	}
	return nil, cerrors.TxAbortedf("room %s membership kept changing during append", roomID)
}

// Edit replaces the content of the actor's own message. The ordering
// key is frozen at append time, so the message keeps its feed position.
func (s *service) Edit(ctx context.Context, messageID, actorID, newContent string) (*models.Message, error) {
	msgKey := models.MessageKey(messageID)
	var msg models.Message
	err := s.store.Transact(ctx, []string{msgKey}, func(tx *recordstore.Tx) error {
		if err := tx.Get(msgKey, &msg); err != nil {
			return cerrors.NotFoundf("message %s", messageID)
		}
		if msg.SenderID != actorID {
			return cerrors.Unauthorizedf("only the sender can edit a message")
		}
		if newContent == "" && msg.ImageURL == "" {
			return cerrors.Validationf("edited message needs content or an image")
		}
		msg.Content = newContent
		msg.Touch(tx.Now())
		return tx.Put(msgKey, &msg)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, chattypes.RoomEvent{
		RoomID:    msg.RoomID,
		Kind:      chattypes.MessageEdited,
		MessageID: msg.ID,
		SendSeq:   msg.SendSeq,
		Timestamp: msg.UpdatedAt,
	})
	return &msg, nil
}

// ToggleLike flips the actor's membership in the message's like set.
// liked is the state the caller observed: true removes, false adds.
// The final state is set membership, so two racing toggles with the
// same observed state converge instead of double-counting.
func (s *service) ToggleLike(ctx context.Context, messageID, actorID string, liked bool) (*models.Message, error) {
	msgKey := models.MessageKey(messageID)
	var msg models.Message
	err := s.store.Transact(ctx, []string{msgKey}, func(tx *recordstore.Tx) error {
		if err := tx.Get(msgKey, &msg); err != nil {
			return cerrors.NotFoundf("message %s", messageID)
		}
		if liked {
			msg.RemoveLike(actorID)
		} else {
			msg.AddLike(actorID)
		}
		msg.Touch(tx.Now())
		return tx.Put(msgKey, &msg)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, chattypes.RoomEvent{
		RoomID:    msg.RoomID,
		Kind:      chattypes.MessageLiked,
		MessageID: msg.ID,
		SendSeq:   msg.SendSeq,
		Timestamp: msg.UpdatedAt,
	})
	return &msg, nil
}

// Get reads one message.
func (s *service) Get(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	if err := s.store.GetJSON(ctx, models.MessageKey(messageID), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// List returns the room's messages ordered by their sequence. The log
// names the ids; the message records are fetched with bounded-parallel,
// order-independent lookups and sorted afterwards.
func (s *service) List(ctx context.Context, roomID string) ([]*models.Message, error) {
	var roomLog models.RoomLog
	if err := s.store.GetJSON(ctx, models.RoomLogKey(roomID), &roomLog); err != nil {
		return nil, err
	}

	results := make([]*models.Message, len(roomLog.MessageIDs))
	sem := make(chan struct{}, fanOutLimit)
	var wg sync.WaitGroup
	for i, id := range roomLog.MessageIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			var msg models.Message
			if err := s.store.GetJSON(ctx, models.MessageKey(id), &msg); err != nil {
				log.Printf("messages: failed to load message %s in room %s: %v", id, roomID, err)
				return
			}
			results[i] = &msg
		}(i, id)
	}
	wg.Wait()

	msgs := make([]*models.Message, 0, len(results))
	for _, msg := range results {
		if msg != nil {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].SendSeq < msgs[j].SendSeq })
	return msgs, nil
}

// publish sends the event best-effort; delivery failures must not undo
// a committed write.
func (s *service) publish(ctx context.Context, event chattypes.RoomEvent) {
	if err := s.publisher.PublishRoomEvent(ctx, event); err != nil {
		log.Printf("messages: failed to publish %s event for room %s: %v", event.Kind, event.RoomID, err)
	}
}

func membersInTx(tx *recordstore.Tx, directKey, groupKey string) ([]string, error) {
	var direct models.DirectRoom
	if err := tx.Get(directKey, &direct); err == nil {
		return direct.Members(), nil
	}
	var room models.Room
	if err := tx.Get(groupKey, &room); err == nil {
		return room.Members, nil
	}
	return nil, cerrors.NotFoundf("room record")
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func withoutID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
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
