package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// NotificationQueue hands resolved payment notifications to the payments
// worker instead of applying them in the webhook request.
type NotificationQueue struct {
	w   messageWriter
	env *Emitter
}

func NewNotificationQueue(brokers []string, producer string, log *zap.Logger) *NotificationQueue {
	return newNotificationQueue(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  orders.TopicPaymentNotifications,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, producer, log)
}

func newNotificationQueue(w messageWriter, producer string, log *zap.Logger) *NotificationQueue {
	return &NotificationQueue{w: w, env: NewEmitter(nil, producer, log)}
}

// Enqueue writes synchronously: once it returns nil the notification is durable.
func (q *NotificationQueue) Enqueue(ctx context.Context, n gateway.Notification) error {
	value, err := q.env.envelope(ctx, orders.EventPaymentNotificationIn, n.OrderID, orders.PaymentNotificationPayload{
		PaymentID:      n.PaymentID,
		ExternalStatus: n.ExternalStatus,
		OrderID:        n.OrderID,
	})
	if err != nil {
		return err
	}
	return q.w.WriteMessages(ctx, kafka.Message{
		Key:   orders.PartitionKey(n.OrderID),
		Value: value,
	})
}

func (q *NotificationQueue) Close() error { return q.w.Close() }

// NotificationHandler decodes queued notifications and applies them. Messages
// that cannot be decoded are logged and committed so they do not block the
// partition.
func NotificationHandler(apply func(context.Context, gateway.Notification) error, log *zap.Logger) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		env, err := DecodeEnvelope(m.Value)
		if err != nil {
			log.Error("dropping undecodable notification", zap.Int64("offset", m.Offset), zap.Error(err))
			return nil
		}
		if env.EventType != orders.EventPaymentNotificationIn {
			log.Warn("unexpected event on notifications topic", zap.String("event_type", env.EventType))
			return nil
		}
		p, err := UnwrapPayload[orders.PaymentNotificationPayload](env.Payload)
		if err != nil {
			log.Error("dropping undecodable notification", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		return apply(ctx, gateway.Notification{
			PaymentID:      p.PaymentID,
			ExternalStatus: p.ExternalStatus,
			OrderID:        p.OrderID,
		})
	}
}
