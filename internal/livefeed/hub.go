package livefeed

import (
	"context"
	"log"
	"sync"

	"chatcore/internal/chattypes"
	"chatcore/internal/models"
)

// SnapshotLoader loads the full ordered message list of a room. The
// message log service provides it; the hub never reads the store
// directly.
type SnapshotLoader func(ctx context.Context, roomID string) ([]*models.Message, error)

// Subscription is one observer of one room's live feed. Snapshots
// delivers complete ordered message lists; each delivered snapshot is
// internally consistent, delivery is single-threaded per subscription,
// and because every snapshot is the whole log sorted by sequence, a
// re-delivered edit sits at its original position. Slow consumers are
// coalesced to the latest snapshot rather than ever blocking the hub.
type Subscription struct {
	RoomID string

	snapshots chan []*models.Message
	hub       *Hub
	once      sync.Once
}

// Snapshots is the delivery channel. It is closed after Cancel.
func (s *Subscription) Snapshots() <-chan []*models.Message {
	return s.snapshots
}

// Cancel unsubscribes and stops further delivery. It is idempotent and
// affects no other subscriber and no in-flight write.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.unregister <- s
	})
}

// Hub fans committed room changes out to subscriptions. It runs a
// single goroutine owning all subscriber state, in the manner of a
// websocket hub: register/unregister/notify are channels into the run
// loop, so no locking is needed around the room map.
type Hub struct {
	loader SnapshotLoader

	register   chan *Subscription
	unregister chan *Subscription
	notify     chan string

	// rooms maps room id to its active subscriptions. Owned by Run.
	rooms map[string]map[*Subscription]struct{}
}

// NewHub creates a hub delivering snapshots produced by loader.
func NewHub(loader SnapshotLoader) *Hub {
	return &Hub{
		loader:     loader,
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription, 64),
		notify:     make(chan string, 256),
		rooms:      make(map[string]map[*Subscription]struct{}),
	}
}

// Run owns all subscription state; it returns when ctx is canceled,
// closing every remaining subscription.
func (h *Hub) Run(ctx context.Context) {
	log.Println("Live feed hub run loop started.")
	for {
		select {
		case sub := <-h.register:
			subs, ok := h.rooms[sub.RoomID]
			if !ok {
				subs = make(map[*Subscription]struct{})
				h.rooms[sub.RoomID] = subs
			}
			subs[sub] = struct{}{}
			// New subscribers get the current state right away, the way
			// a snapshot listener does.
			h.deliver(ctx, sub)

		case sub := <-h.unregister:
			if subs, ok := h.rooms[sub.RoomID]; ok {
				if _, ok := subs[sub]; ok {
					delete(subs, sub)
					close(sub.snapshots)
					if len(subs) == 0 {
						delete(h.rooms, sub.RoomID)
					}
				}
			}

		case roomID := <-h.notify:
			for sub := range h.rooms[roomID] {
				h.deliver(ctx, sub)
			}

		case <-ctx.Done():
			for roomID, subs := range h.rooms {
				for sub := range subs {
					close(sub.snapshots)
				}
				delete(h.rooms, roomID)
			}
			log.Println("Live feed hub run loop stopped.")
			return
		}
	}
}

// Subscribe registers a new subscription for roomID.
func (h *Hub) Subscribe(roomID string) *Subscription {
	sub := &Subscription{
		RoomID:    roomID,
		snapshots: make(chan []*models.Message, 1),
		hub:       h,
	}
	h.register <- sub
	return sub
}

// Notify schedules delivery of a fresh snapshot to the room's
// subscribers. Non-blocking: if the queue is full the notification is
// dropped with a warning, and the next one re-reads the full log anyway.
func (h *Hub) Notify(roomID string) {
	select {
	case h.notify <- roomID:
	default:
		log.Printf("Warning: live feed notify queue is full, dropping notification for room %s", roomID)
	}
}

// PublishRoomEvent implements chattypes.EventPublisher so the message
// service can feed the hub directly in single-process deployments.
func (h *Hub) PublishRoomEvent(ctx context.Context, event chattypes.RoomEvent) error {
	h.Notify(event.RoomID)
	return nil
}

// deliver loads the room's snapshot and hands it to one subscription,
// replacing any undelivered older snapshot. Only called from Run.
func (h *Hub) deliver(ctx context.Context, sub *Subscription) {
	snapshot, err := h.loader(ctx, sub.RoomID)
	if err != nil {
		log.Printf("livefeed: failed to load snapshot for room %s: %v", sub.RoomID, err)
		return
	}
	select {
	case sub.snapshots <- snapshot:
	default:
		// Latest wins: drop the stale pending snapshot.
		select {
		case <-sub.snapshots:
		default:
		}
		select {
		case sub.snapshots <- snapshot:
		default:
		}
	}
}
