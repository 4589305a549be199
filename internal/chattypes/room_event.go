package chattypes

import (
	"context"
	"time"
)

// RoomEventKind names what happened to a room's message log.
type RoomEventKind string

const (
	MessageAppended RoomEventKind = "appended"
	MessageEdited   RoomEventKind = "edited"
	MessageLiked    RoomEventKind = "liked"
)

// RoomEvent is the delta notification emitted after a message-log
// transaction commits. It carries enough to route (room id) and to
// debug (message id, sequence); subscribers re-read the log for the
// actual snapshot, so the event itself never has to be consistent with
// anything.
type RoomEvent struct {
	RoomID    string        `json:"roomId"`
	Kind      RoomEventKind `json:"kind"`
	MessageID string        `json:"messageId"`
	SendSeq   int64         `json:"sendSeq"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventPublisher carries committed room events toward live-feed
// subscribers. Implemented by the Kafka producer (cross-process) and by
// the live-feed hub itself (in-process).
type EventPublisher interface {
	PublishRoomEvent(ctx context.Context, event RoomEvent) error
}

// NopPublisher discards events; used where no live delivery is wired.
type NopPublisher struct{}

// PublishRoomEvent implements EventPublisher.
func (NopPublisher) PublishRoomEvent(ctx context.Context, event RoomEvent) error { return nil }
