package kafkahandlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"chatcore/internal/chattypes"
	"chatcore/internal/livefeed"
)

// RoomEventConsumerLogic turns room events arriving on Kafka into hub
// notifications so feed subscribers receive a fresh snapshot.
type RoomEventConsumerLogic struct {
	hub *livefeed.Hub
}

// NewRoomEventConsumerLogic creates the consumer logic for the feed server.
func NewRoomEventConsumerLogic(hub *livefeed.Hub) *RoomEventConsumerLogic {
	if hub == nil {
		log.Panic("livefeed hub cannot be nil")
	}
	return &RoomEventConsumerLogic{hub: hub}
}

// HandleRoomEvent processes a single Kafka message carrying a room event.
// Malformed payloads are logged and skipped (not retried): the offset is
// committed so one bad message cannot wedge the partition.
func (h *RoomEventConsumerLogic) HandleRoomEvent(ctx context.Context, msg *kafka.Message) error {
	var event chattypes.RoomEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("Error unmarshalling room event (Topic: %s, Offset: %v, Value: '%s'): %v. Skipping.",
			*msg.TopicPartition.Topic, msg.TopicPartition.Offset, string(msg.Value), err)
		return nil
	}
	if event.RoomID == "" {
		log.Printf("Room event with empty room ID (Offset: %v). Skipping.", msg.TopicPartition.Offset)
		return nil
	}

	h.hub.Notify(event.RoomID)
	return nil
}
