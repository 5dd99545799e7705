package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const envelopeVersion = 1

// Bus publishes enveloped events, one async producer per topic.
type Bus struct {
	producers map[string]*Producer
	service   string
	now       func() time.Time
}

func NewBus(brokers []string, service string, log *zap.Logger, topics ...string) *Bus {
	b := &Bus{producers: make(map[string]*Producer, len(topics)), service: service, now: time.Now}
	for _, t := range topics {
		b.producers[t] = NewProducer(brokers, t, 1024, log)
	}
	return b
}

func (b *Bus) Start() {
	for _, p := range b.producers {
		p.Start()
	}
}

// Publish keys the message by correlationID so events of one aggregate stay ordered.
func (b *Bus) Publish(ctx context.Context, topic, eventType, correlationID string, payload any) error {
	p, ok := b.producers[topic]
	if !ok {
		return fmt.Errorf("no producer for topic %q", topic)
	}
	env := NewEnvelope(ctx, b.service, eventType, correlationID, payload, b.now())
	return p.Publish(ctx, []byte(correlationID), MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(envelopeVersion))},
	)
}

func (b *Bus) Close() {
	for _, p := range b.producers {
		p.Close()
	}
	for _, p := range b.producers {
		p.WaitClosed()
	}
}

// NewEnvelope stamps the trace id of the active span, if any.
func NewEnvelope(ctx context.Context, producer, eventType, correlationID string, payload any, at time.Time) Envelope {
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	return env
}
