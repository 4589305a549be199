package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"chatcore/internal/config"
)

// MessageProducer is the interface for publishing raw payloads to a topic.
type MessageProducer interface {
	SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error
	Close()
}

type confluentKafkaProducer struct {
	producer *kafka.Producer
	cfg      config.KafkaConfig
}

// NewConfluentKafkaProducer creates a Kafka producer backed by confluent-kafka-go.
func NewConfluentKafkaProducer(cfg config.KafkaConfig) (MessageProducer, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.Brokers, ","),
		"security.protocol": cfg.Protocol,
	}
	if cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", cfg.ClientID)
	}

	p, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &confluentKafkaProducer{producer: p, cfg: cfg}, nil
}

// SendMessage publishes one message and waits for its delivery report.
func (p *confluentKafkaProducer) SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error {
	deliveryChan := make(chan kafka.Event, 1)
	defer close(deliveryChan)

	kafkaMsg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          payload,
		Timestamp:      time.Now(),
	}

	if err := p.producer.Produce(kafkaMsg, deliveryChan); err != nil {
		// Local enqueue failure (e.g. producer queue full); delivery
		// errors arrive on deliveryChan instead.
		return fmt.Errorf("kafka producer: enqueue message for topic %s: %w", topic, err)
	}

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("kafka producer: unexpected event type on delivery channel: %T %v", e, e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka producer: delivery failed for topic %s: %w", topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka producer: context canceled waiting for delivery report for topic %s: %w", topic, ctx.Err())
	}
}

// Close flushes outstanding messages and releases the producer.
func (p *confluentKafkaProducer) Close() {
	if p.producer != nil {
		log.Println("Closing Kafka producer...")
		remaining := p.producer.Flush(15 * 1000)
		if remaining > 0 {
			log.Printf("Warning: %d messages still outstanding after flush, producer closing.", remaining)
		}
		p.producer.Close()
		log.Println("Kafka producer closed.")
	}
}
