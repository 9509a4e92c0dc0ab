// Package events publishes entity change notifications to Kafka so other
// services can follow inventory, invoice and shipment changes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Op is the kind of mutation an Event describes.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Event is one committed change. Data holds the entity in application form
// and is empty for deletes.
type Event struct {
	Collection string         `json:"collection"`
	Op         Op             `json:"op"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
}

// Publisher delivers change events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Writer is the subset of *kafka.Writer used here, so tests can substitute a fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by entity id, so every
// change to one entity lands on the same partition in order.
type KafkaPublisher struct {
	writer Writer
}

// Each Publish is a single message, so batches are flushed almost at once and
// an unreachable broker fails the write within a few seconds.
const (
	batchTimeout = 5 * time.Millisecond
	writeTimeout = 3 * time.Second
	maxAttempts  = 2
)

// NewKafkaPublisher connects to brokers and publishes to topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		MaxAttempts:            maxAttempts,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Collection, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.ID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "collection", Value: []byte(ev.Collection)},
			{Key: "op", Value: []byte(ev.Op)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("events: kafka write failed for %s %s: %v", ev.Collection, ev.ID, err)
		return fmt.Errorf("publish %s event: %w", ev.Collection, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards every event. It is the default when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
