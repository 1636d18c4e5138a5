// Package kafka publishes bundle lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

// Event types
const (
	EventBundleCreated   = "bundle.created"
	EventBundleRetrieved = "bundle.retrieved"
	EventBundleDeleted   = "bundle.deleted"
)

// Event is the JSON message value. Content bodies are never published.
type Event struct {
	Type       string                    `json:"type"`
	Key        string                    `json:"key"`
	OccurredAt time.Time                 `json:"occurred_at"`
	ExpiresAt  *time.Time                `json:"expires_at,omitempty"`
	Items      []simpleshare.ItemOutcome `json:"items,omitempty"`
	Kinds      []simpleshare.Kind        `json:"kinds,omitempty"`
}

// MessageWriter is the subset of *kafka.Writer the sink uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DefaultPublishTimeout bounds a single publish on the request path
const DefaultPublishTimeout = 2 * time.Second

// Sink implements simpleshare.EventSink
type Sink struct {
	writer  MessageWriter
	now     func() time.Time
	timeout time.Duration
}

// NewWriter builds the writer used in production. It is asynchronous:
// WriteMessages only enqueues, and delivery failures are logged from the
// completion callback.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Warn("kafka delivery failed", "topic", topic, "messages", len(messages), "error", err)
			}
		},
	}
}

// New creates a sink. Messages are keyed by bundle key so the events of one
// bundle stay ordered within a partition.
func New(writer MessageWriter) *Sink {
	return &Sink{
		writer:  writer,
		now:     func() time.Time { return time.Now().UTC() },
		timeout: DefaultPublishTimeout,
	}
}

func (s *Sink) publish(ctx context.Context, ev Event) error {
	ev.OccurredAt = s.now()
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Key),
		Value: b,
		Time:  ev.OccurredAt,
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (s *Sink) BundleCreated(ctx context.Context, result *simpleshare.CreateResult) error {
	exp := result.ExpiresAt
	return s.publish(ctx, Event{
		Type:      EventBundleCreated,
		Key:       result.Key,
		ExpiresAt: &exp,
		Items:     result.Items,
	})
}

func (s *Sink) BundleRetrieved(ctx context.Context, bundle *simpleshare.Bundle) error {
	exp := bundle.ExpiresAt
	return s.publish(ctx, Event{
		Type:      EventBundleRetrieved,
		Key:       bundle.Key,
		ExpiresAt: &exp,
		Kinds:     bundle.Kinds,
	})
}

func (s *Sink) BundleDeleted(ctx context.Context, key string) error {
	return s.publish(ctx, Event{Type: EventBundleDeleted, Key: key})
}

// Close closes the underlying writer
func (s *Sink) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

var _ simpleshare.EventSink = (*Sink)(nil)
