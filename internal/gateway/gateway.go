// Package gateway talks to the external payment provider.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

var (
	ErrNotConfigured = errors.New("payment gateway not configured")
	ErrUpstream      = errors.New("payment gateway request failed")
)

type Item struct {
	ProductID string
	Title     string
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
}

type Payer struct {
	Name  string
	Email string
}

type IntentRequest struct {
	OrderID    string
	CustomerID string
	Items      []Item
	Payer      Payer
}

type Intent struct {
	ID          string `json:"preference_id"`
	RedirectURL string `json:"init_point"`
	SandboxURL  string `json:"sandbox_init_point,omitempty"`
}

type Payment struct {
	ID                string
	Status            string
	ExternalReference string
}

// Notification is a resolved webhook call: the payment, its external status and
// the order it belongs to.
type Notification struct {
	PaymentID      string `json:"payment_id"`
	ExternalStatus string `json:"external_status"`
	OrderID        string `json:"order_id"`
}

// Client is the contract the order lifecycle expects from a payment provider.
type Client interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
}

// MapStatus translates the provider's payment status. ok is false for statuses
// that must be ignored.
func MapStatus(external string) (status orders.PaymentStatus, ok bool) {
	switch external {
	case "approved":
		return orders.PaymentPaid, true
	case "rejected", "cancelled":
		return orders.PaymentFailed, true
	case "pending":
		return orders.PaymentPending, true
	}
	return "", false
}

// Disabled is used when no provider credentials are configured.
type Disabled struct{}

func (Disabled) CreatePaymentIntent(context.Context, IntentRequest) (Intent, error) {
	return Intent{}, ErrNotConfigured
}

func (Disabled) GetPayment(context.Context, string) (Payment, error) {
	return Payment{}, ErrNotConfigured
}
