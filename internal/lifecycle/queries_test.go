package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func TestDashboardReadsAreAdminOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.OrderSummary(f.ctx, seller)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
	_, err = f.svc.WeeklySales(f.ctx, shopper)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
	_, err = f.svc.RecentActivity(f.ctx, shopper, 5)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestOrderSummaryCountsPendingReservations(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(orders.Order{ID: "o1", CustomerID: "c1", Status: orders.StatusPending, PaymentStatus: orders.PaymentPending})
	f.store.PutOrder(orders.Order{ID: "o2", CustomerID: "c1", Status: orders.StatusDelivered, PaymentStatus: orders.PaymentPaid})
	f.store.PutOrder(orders.Order{ID: "o3", CustomerID: "c1", Status: orders.StatusCancelled, PaymentStatus: orders.PaymentFailed})
	f.store.PutReservation(orders.Reservation{ID: "live", Status: orders.ReservationPending, ExpiresAt: f.now.Add(time.Hour)})
	f.store.PutReservation(orders.Reservation{ID: "stale", Status: orders.ReservationPending, ExpiresAt: f.now.Add(-time.Minute)})

	got, err := f.svc.OrderSummary(f.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, OrderSummary{Total: 4, Pending: 2, Delivered: 1, Cancelled: 2, Paid: 1}, got)
}

func TestWeeklySalesFillsEmptyDays(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(orders.Order{ID: "today", TotalAmount: dec("12.50"), CreatedAt: f.now.Add(-time.Hour)})
	f.store.PutOrder(orders.Order{ID: "today-2", TotalAmount: dec("7.50"), CreatedAt: f.now})
	f.store.PutOrder(orders.Order{ID: "first-day", TotalAmount: dec("3.00"), CreatedAt: time.Date(2026, 4, 25, 0, 0, 0, 0, time.UTC)})
	f.store.PutOrder(orders.Order{ID: "too-old", TotalAmount: dec("99.00"), CreatedAt: time.Date(2026, 4, 24, 23, 59, 0, 0, time.UTC)})

	got, err := f.svc.WeeklySales(f.ctx, admin)
	require.NoError(t, err)
	require.Len(t, got, 7)
	assert.Equal(t, "2026-04-25", got[0].Date)
	assert.True(t, dec("3.00").Equal(got[0].Sales))
	for _, d := range got[1:6] {
		assert.True(t, d.Sales.IsZero(), d.Date)
	}
	assert.Equal(t, "2026-05-01", got[6].Date)
	assert.True(t, dec("20.00").Equal(got[6].Sales))
}

func TestRecentActivityNamesCustomers(t *testing.T) {
	f := newFixture(t)
	for i, id := range []string{"a", "b", "c"} {
		f.store.PutOrder(orders.Order{ID: id, CustomerID: "c1", Status: orders.StatusPending, TotalAmount: dec("5"), CreatedAt: f.now.Add(time.Duration(i) * time.Minute)})
	}
	f.store.PutOrder(orders.Order{ID: "orphan", CustomerID: "gone", Status: orders.StatusConfirmed, CreatedAt: f.now.Add(time.Hour)})

	got, err := f.svc.RecentActivity(f.ctx, admin, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "orphan", got[0].OrderID)
	assert.Empty(t, got[0].Customer)
	assert.Equal(t, "c", got[1].OrderID)
	assert.Equal(t, "Ana Ruiz", got[1].Customer)
	assert.True(t, dec("5").Equal(got[1].Total))

	all, err := f.svc.RecentActivity(f.ctx, admin, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
