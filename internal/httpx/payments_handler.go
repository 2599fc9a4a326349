package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
)

type paymentLookup interface {
	GetPayment(ctx context.Context, paymentID string) (gateway.Payment, error)
}

// NotificationSink receives resolved notifications: applied inline or queued.
type NotificationSink interface {
	Enqueue(ctx context.Context, n gateway.Notification) error
}

// Inline applies notifications within the webhook request.
type Inline func(ctx context.Context, n gateway.Notification) error

func (f Inline) Enqueue(ctx context.Context, n gateway.Notification) error { return f(ctx, n) }

type PaymentsHandler struct {
	Gateway paymentLookup
	Sink    NotificationSink
	Log     *zap.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments/webhook", h.webhook)
}

type webhookBody struct {
	Type   string          `json:"type"`
	Topic  string          `json:"topic"`
	Action string          `json:"action"`
	ID     json.RawMessage `json:"id"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// webhook always answers 200 so the provider does not keep retrying; failures
// are logged.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	defer writeJSON(w, http.StatusOK, map[string]bool{"received": true})

	kind, paymentID := parseWebhook(r)
	log := h.Log.With(zap.String("type", kind), zap.String("payment_id", paymentID))
	if kind != "payment" || paymentID == "" {
		log.Debug("ignoring webhook")
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	p, err := h.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		log.Error("payment lookup failed", zap.Error(err))
		return
	}
	n := gateway.Notification{PaymentID: p.ID, ExternalStatus: p.Status, OrderID: p.ExternalReference}
	if n.PaymentID == "" {
		n.PaymentID = paymentID
	}
	if err := h.Sink.Enqueue(ctx, n); err != nil {
		log.Error("payment notification not processed",
			zap.String("order_id", n.OrderID),
			zap.String("external_status", n.ExternalStatus),
			zap.Error(err),
		)
	}
}

// parseWebhook reads the notification kind and payment id from the JSON body,
// falling back to the query string (type/topic and data.id/id).
func parseWebhook(r *http.Request) (kind, id string) {
	var body webhookBody
	if b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)); err == nil && len(b) > 0 {
		_ = json.Unmarshal(b, &body)
	}
	q := r.URL.Query()

	kind = firstNonEmpty(body.Type, body.Topic, q.Get("type"), q.Get("topic"))
	id = firstNonEmpty(rawID(body.Data.ID), rawID(body.ID), q.Get("data.id"), q.Get("id"))
	return kind, id
}

func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
