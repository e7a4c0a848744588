// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Event types.
const (
	OrderPlaced        = "order.placed"
	OrderCancelled     = "order.cancelled"
	OrderStatusChanged = "order.status_changed"
	PaymentInitiated   = "payment.initiated"
	PaymentCompleted   = "payment.completed"
	PaymentFailed      = "payment.failed"
)

// Envelope is the versioned wrapper around every published payload.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Publisher emits domain events after the state change is committed.
// Publishing is best effort: failures are logged, never returned.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) {}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes envelopes to a single topic keyed by aggregate ID.
type KafkaPublisher struct {
	w        messageWriter
	producer string
	timeout  time.Duration
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic, producer string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		producer: producer,
		timeout:  5 * time.Second,
	}
}

// Encode builds the wire form of an event.
func Encode(ctx context.Context, producer, eventType, key string, payload any, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	env := Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      producer,
		CorrelationID: key,
		Payload:       raw,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return b, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType, key string, payload any) {
	lg := zctx.From(ctx).With(zap.String("event_type", eventType), zap.String("key", key))

	value, err := Encode(ctx, p.producer, eventType, key, payload, time.Now())
	if err != nil {
		lg.Error("Encode event", zap.Error(err))
		return
	}

	// The request context may already be cancelled once the response is
	// written, so the write gets its own deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.w.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}); err != nil {
		lg.Warn("Publish event", zap.Error(err))
	}
}

// Close flushes pending writes and releases the connection.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
