package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

// Emitter wraps domain events in an orders.Envelope and publishes them on the
// topic for their type, keyed by aggregate id.
type Emitter struct {
	p        publisher
	producer string
	log      *zap.Logger
	now      func() time.Time
}

var _ orders.Emitter = (*Emitter)(nil)

func NewEmitter(p publisher, producer string, log *zap.Logger) *Emitter {
	return &Emitter{p: p, producer: producer, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (e *Emitter) Emit(ctx context.Context, eventType, key string, payload any) {
	value, err := e.envelope(ctx, eventType, key, payload)
	if err != nil {
		e.log.Error("encode event", zap.String("event_type", eventType), zap.String("key", key), zap.Error(err))
		return
	}
	headers := []kafka.Header{{Key: "event_type", Value: []byte(eventType)}}
	if err := e.p.Publish(ctx, orders.TopicFor(eventType), orders.PartitionKey(key), value, headers...); err != nil {
		e.log.Warn("event not published", zap.String("event_type", eventType), zap.String("key", key), zap.Error(err))
	}
}

func (e *Emitter) envelope(ctx context.Context, eventType, key string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    e.now(),
		Producer:      e.producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: key,
		Payload:       body,
	})
}
