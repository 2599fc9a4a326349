package orders

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCreated          = "OrderCreated"
	EventOrderStatusChanged    = "OrderStatusChanged"
	EventPaymentStatusChanged  = "PaymentStatusChanged"
	EventOrderDeleted          = "OrderDeleted"
	EventStockMoved            = "StockMoved"
	EventReservationCreated    = "ReservationCreated"
	EventReservationConverted  = "ReservationConverted"
	EventReservationCancelled  = "ReservationCancelled"
	EventPaymentNotificationIn = "PaymentNotificationReceived"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order, product or reservation id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     string      `json:"order_id"`
	CustomerID  string      `json:"customer_id"`
	Source      Source      `json:"order_source"`
	StockPolicy StockPolicy `json:"stock_policy"`
	Items       []ItemQty   `json:"items"`
	TotalAmount string      `json:"total_amount"`
}

type OrderStatusChangedPayload struct {
	OrderID        string `json:"order_id"`
	From           Status `json:"from"`
	To             Status `json:"to"`
	StockRestored  bool   `json:"stock_restored,omitempty"`
	StockCommitted bool   `json:"stock_committed"`
}

type PaymentStatusChangedPayload struct {
	OrderID          string        `json:"order_id"`
	From             PaymentStatus `json:"from"`
	To               PaymentStatus `json:"to"`
	Source           string        `json:"source"` // admin | gateway
	StockRestored    bool          `json:"stock_restored,omitempty"`
	StockRecommitted bool          `json:"stock_recommitted,omitempty"`
}

type OrderDeletedPayload struct {
	OrderID       string `json:"order_id"`
	StockRestored bool   `json:"stock_restored,omitempty"`
}

type StockMovedPayload struct {
	ProductID   string       `json:"product_id"`
	Type        MovementType `json:"movement_type"`
	Delta       int          `json:"delta"`
	StockBefore int          `json:"stock_before"`
	StockAfter  int          `json:"stock_after"`
	Reference   string       `json:"reference,omitempty"`
}

type ReservationPayload struct {
	ReservationID string            `json:"reservation_id"`
	UserID        string            `json:"user_id"`
	ProductID     string            `json:"product_id"`
	Quantity      int               `json:"quantity"`
	Status        ReservationStatus `json:"status"`
	OrderID       string            `json:"order_id,omitempty"`
}

// PaymentNotificationPayload is a gateway notification queued for the payments worker.
type PaymentNotificationPayload struct {
	PaymentID      string `json:"payment_id"`
	ExternalStatus string `json:"external_status"`
	OrderID        string `json:"order_id"`
}

// Emitter publishes domain events after the state they describe is committed.
// Delivery is best effort; implementations log their own failures.
type Emitter interface {
	Emit(ctx context.Context, eventType, key string, payload any)
}

type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, string, any) {}
