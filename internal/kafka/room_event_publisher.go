package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"chatcore/internal/chattypes"
)

// roomEventPublisher bridges the domain services to Kafka: room events
// are serialized as JSON and keyed by room ID so all events for one
// room land on the same partition, in order.
type roomEventPublisher struct {
	producer MessageProducer
	topic    string
}

// NewRoomEventPublisher wraps producer as a chattypes.EventPublisher
// publishing to the given topic.
func NewRoomEventPublisher(producer MessageProducer, topic string) chattypes.EventPublisher {
	return &roomEventPublisher{producer: producer, topic: topic}
}

func (p *roomEventPublisher) PublishRoomEvent(ctx context.Context, event chattypes.RoomEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal room event for room %s: %w", event.RoomID, err)
	}
	return p.producer.SendMessage(ctx, p.topic, []byte(event.RoomID), payload)
}
