package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func (f *fixture) notify(paymentID, status, orderID string) {
	f.t.Helper()
	require.NoError(f.t, f.svc.HandleNotification(f.ctx, gateway.Notification{
		PaymentID:      paymentID,
		ExternalStatus: status,
		OrderID:        orderID,
	}))
}

func TestGatewayApprovalMarksOrderPaid(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 2))

	f.notify("pay-1", "approved", o.ID)

	got := f.order(o.ID)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Equal(t, "mercadopago", got.PaymentMethod)
	assert.Equal(t, 5, f.stock("p1"), "payment alone never moves stock")
}

func TestLateRejectionRestoresCommittedStock(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 2))
	f.notify("pay-1", "approved", o.ID)
	_, err := f.setStatus(o.ID, orders.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock("p1"))

	f.notify("pay-1", "rejected", o.ID)

	got := f.order(o.ID)
	assert.Equal(t, orders.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, orders.StatusConfirmed, got.Status)
	assert.False(t, got.StockCommitted)
	assert.Equal(t, 5, f.stock("p1"))

	ms := f.movements("p1")
	require.Len(t, ms, 2)
	assert.Equal(t, orders.MovementReturn, ms[0].Type)
	assert.Equal(t, 2, ms[0].Quantity)

	last := f.events.events[len(f.events.events)-1]
	payload, ok := last.Payload.(orders.PaymentStatusChangedPayload)
	require.True(t, ok)
	assert.True(t, payload.StockRestored)
	assert.Equal(t, "gateway", payload.Source)
}

func TestRepaymentAfterRestoreRecommitsStock(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 2))
	f.notify("pay-1", "approved", o.ID)
	_, err := f.setStatus(o.ID, orders.StatusConfirmed)
	require.NoError(t, err)
	f.notify("pay-1", "rejected", o.ID)
	require.Equal(t, 5, f.stock("p1"))

	f.notify("pay-2", "approved", o.ID)

	got := f.order(o.ID)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)
	assert.True(t, got.StockCommitted)
	assert.Equal(t, 3, f.stock("p1"))

	last := f.events.events[len(f.events.events)-1]
	payload, ok := last.Payload.(orders.PaymentStatusChangedPayload)
	require.True(t, ok)
	assert.True(t, payload.StockRecommitted)

	_, err = f.setStatus(o.ID, orders.StatusShipped)
	require.NoError(t, err)
	_, err = f.setStatus(o.ID, orders.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock("p1"))
}

func TestOrderWithRestoredStockCannotShip(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 5))
	f.notify("pay-1", "approved", o.ID)
	_, err := f.setStatus(o.ID, orders.StatusConfirmed)
	require.NoError(t, err)
	f.notify("pay-1", "rejected", o.ID)

	_, err = f.setStatus(o.ID, orders.StatusShipped)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))
	assert.Equal(t, orders.StatusConfirmed, f.order(o.ID).Status)

	// The returned units can be sold to someone else exactly once.
	other := f.place(item("p1", 5))
	f.pay(other.ID)
	_, err = f.setStatus(other.ID, orders.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock("p1"))

	// Repayment finds no stock left, so the first order stays unshippable.
	f.notify("pay-2", "approved", o.ID)
	got := f.order(o.ID)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)
	assert.False(t, got.StockCommitted)
	assert.Equal(t, 0, f.stock("p1"))
	_, err = f.setStatus(o.ID, orders.StatusShipped)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))

	_, err = f.setStatus(o.ID, orders.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock("p1"), "nothing committed, nothing returned")
}

func TestAdminRepaymentRecordsManualPayment(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 1))
	f.notify("pay-1", "approved", o.ID)
	_, err := f.setStatus(o.ID, orders.StatusConfirmed)
	require.NoError(t, err)
	f.notify("pay-1", "rejected", o.ID)
	require.Equal(t, 5, f.stock("p1"))

	got, err := f.svc.UpdatePaymentStatus(f.ctx, admin, o.ID, PaymentUpdate{
		PaymentStatus:    orders.PaymentPaid,
		PaymentMethod:    "bank_transfer",
		PaymentReference: " TRX-42 ",
	})
	require.NoError(t, err)
	assert.True(t, got.StockCommitted)
	assert.Equal(t, 4, f.stock("p1"))

	stored := f.order(o.ID)
	assert.Equal(t, "bank_transfer", stored.PaymentMethod)
	assert.Equal(t, "TRX-42", stored.PaymentReference)
}

func TestDuplicateNotificationIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 1))
	f.notify("pay-1", "approved", o.ID)
	_, err := f.setStatus(o.ID, orders.StatusConfirmed)
	require.NoError(t, err)

	f.notify("pay-1", "rejected", o.ID)
	events := len(f.events.types())
	f.notify("pay-1", "rejected", o.ID)

	assert.Len(t, f.events.types(), events)
	assert.Equal(t, 5, f.stock("p1"))
	assert.Len(t, f.movements("p1"), 2)
}

func TestUnknownNotificationsAreAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 1))
	events := len(f.events.types())

	f.notify("pay-1", "in_process", o.ID)
	f.notify("pay-2", "approved", "no-such-order")
	f.notify("pay-3", "approved", "")

	assert.Equal(t, orders.PaymentPending, f.order(o.ID).PaymentStatus)
	assert.Len(t, f.events.types(), events)
}

func TestNotificationNotAllowedByPaymentTableIsDropped(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 1))
	f.pay(o.ID)
	_, err := f.svc.UpdatePaymentStatus(f.ctx, admin, o.ID, PaymentUpdate{PaymentStatus: orders.PaymentRefunded})
	require.NoError(t, err)

	f.notify("pay-1", "approved", o.ID)

	assert.Equal(t, orders.PaymentRefunded, f.order(o.ID).PaymentStatus)
}

func TestNotificationStorageFailureReleasesDedupKey(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 1))
	f.store.FailNext("GetOrder", errors.New("connection refused"))

	err := f.svc.HandleNotification(f.ctx, gateway.Notification{PaymentID: "pay-1", ExternalStatus: "approved", OrderID: o.ID})
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.Equal(t, orders.PaymentPending, f.order(o.ID).PaymentStatus)

	f.notify("pay-1", "approved", o.ID)
	assert.Equal(t, orders.PaymentPaid, f.order(o.ID).PaymentStatus)
}

func TestAdminPaymentTransitions(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 1))

	_, err := f.svc.UpdatePaymentStatus(f.ctx, admin, o.ID, PaymentUpdate{PaymentStatus: orders.PaymentRefunded})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeInvalidTransition, ae.Code)
	assert.Equal(t, "Allowed: paid, failed", ae.Details)

	_, err = f.svc.UpdatePaymentStatus(f.ctx, admin, o.ID, PaymentUpdate{PaymentStatus: "lost"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = f.svc.UpdatePaymentStatus(f.ctx, shopper, o.ID, PaymentUpdate{PaymentStatus: orders.PaymentPaid})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	failed, err := f.svc.UpdatePaymentStatus(f.ctx, admin, o.ID, PaymentUpdate{PaymentStatus: orders.PaymentFailed})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentFailed, failed.PaymentStatus)

	retry, err := f.svc.UpdatePaymentStatus(f.ctx, admin, o.ID, PaymentUpdate{PaymentStatus: orders.PaymentPending})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPending, retry.PaymentStatus)
	assert.Equal(t, 5, f.stock("p1"))
}

func TestCheckoutOpensPaymentIntent(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)

	res, err := f.svc.Checkout(f.ctx, shopper, CreateOrderRequest{Items: []LineItem{item("p1", 2)}})
	require.NoError(t, err)
	assert.Equal(t, "pref-"+res.Order.ID, res.Intent.ID)
	assert.Equal(t, "pref-"+res.Order.ID, res.Order.PaymentReference)
	assert.Equal(t, "mercadopago", res.Order.PaymentMethod)
	assert.False(t, res.Order.StockCommitted)
	assert.Equal(t, 5, f.stock("p1"))

	require.Len(t, f.gw.calls, 1)
	call := f.gw.calls[0]
	assert.Equal(t, res.Order.ID, call.OrderID)
	assert.Equal(t, "ana@example.com", call.Payer.Email)
	assert.Equal(t, "Ana Ruiz", call.Payer.Name)
	require.Len(t, call.Items, 1)
	assert.Equal(t, "Desk Lamp", call.Items[0].Title)
	assert.True(t, dec("20").Equal(call.Items[0].UnitPrice))

	stored := f.order(res.Order.ID)
	assert.Equal(t, "pref-"+res.Order.ID, stored.PaymentReference)
}

func TestCheckoutGatewayFailureKeepsPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	f.gw.err = gateway.ErrUpstream

	res, err := f.svc.Checkout(f.ctx, shopper, CreateOrderRequest{Items: []LineItem{item("p1", 1)}})
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	require.NotEmpty(t, res.Order.ID)

	stored := f.order(res.Order.ID)
	assert.Equal(t, orders.StatusPending, stored.Status)
	assert.Empty(t, stored.PaymentReference)

	f.gw.err = nil
	intent, err := f.svc.CreatePaymentIntent(f.ctx, shopper, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pref-"+res.Order.ID, intent.ID)
	assert.Equal(t, intent.ID, f.order(res.Order.ID).PaymentReference)
}

func TestCheckoutRules(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)

	_, err := f.svc.Checkout(f.ctx, admin, CreateOrderRequest{CustomerID: "c1", Items: []LineItem{item("p1", 1)}})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = f.svc.Checkout(f.ctx, shopper, CreateOrderRequest{Items: []LineItem{item("p1", 6)}})
	assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(err))
	assert.Empty(t, f.gw.calls)
}

func TestCreatePaymentIntentGuards(t *testing.T) {
	f := newFixture(t)
	f.product("p1", "Desk Lamp", "20.00", 5)
	o := f.place(item("p1", 1))

	_, err := f.svc.CreatePaymentIntent(f.ctx, stranger, o.ID)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	f.pay(o.ID)
	_, err = f.svc.CreatePaymentIntent(f.ctx, shopper, o.ID)
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))

	_, err = f.svc.CreatePaymentIntent(f.ctx, shopper, "missing")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	assert.Empty(t, f.gw.calls)
}
