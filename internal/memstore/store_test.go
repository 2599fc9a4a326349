package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func TestInTxDiscardsWritesOnError(t *testing.T) {
	s := New()
	s.PutProduct(orders.Product{ID: "p1", Name: "Lamp", Stock: 5})
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(r orders.Repository) error {
		after, err := r.AddStock(ctx, "p1", -2)
		require.NoError(t, err)
		assert.Equal(t, 3, after)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestAddStockRefusesNegative(t *testing.T) {
	s := New()
	s.PutProduct(orders.Product{ID: "p1", Stock: 1})

	_, err := s.AddStock(context.Background(), "p1", -2)
	assert.ErrorIs(t, err, orders.ErrNegativeStock)

	_, err = s.AddStock(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestFailNextFiresOnce(t *testing.T) {
	s := New()
	s.PutProduct(orders.Product{ID: "p1", Stock: 1})
	boom := errors.New("disk full")
	s.FailNext("GetProduct", boom)

	_, err := s.GetProduct(context.Background(), "p1")
	assert.ErrorIs(t, err, boom)
	_, err = s.GetProduct(context.Background(), "p1")
	assert.NoError(t, err)
}

func TestExpireAndTransitionReservations(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	s.PutReservation(orders.Reservation{ID: "r1", Status: orders.ReservationPending, ExpiresAt: now.Add(-time.Second)})
	s.PutReservation(orders.Reservation{ID: "r2", Status: orders.ReservationPending, ExpiresAt: now.Add(time.Hour)})
	ctx := context.Background()

	n, err := s.ExpireReservations(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := s.TransitionReservation(ctx, "r1", orders.ReservationPending, orders.ReservationConverted, "o1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.TransitionReservation(ctx, "r2", orders.ReservationPending, orders.ReservationConverted, "o1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := s.GetReservation(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "o1", r.OrderID)
}

func TestListActiveOffersScopesUserOffers(t *testing.T) {
	s := New()
	s.PutOffer(orders.Offer{ID: "g", ProductID: "p1", Active: true})
	s.PutOffer(orders.Offer{ID: "mine", ProductID: "p1", UserID: "u1", Active: true})
	s.PutOffer(orders.Offer{ID: "theirs", ProductID: "p1", UserID: "u2", Active: true})
	s.PutOffer(orders.Offer{ID: "off", ProductID: "p1", Active: false})

	got, err := s.ListActiveOffers(context.Background(), []string{"p1"}, "u1")
	require.NoError(t, err)
	ids := []string{}
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []string{"g", "mine"}, ids)
}

func TestInTxSerializesConcurrentWriters(t *testing.T) {
	s := New()
	s.PutProduct(orders.Product{ID: "p1", Stock: 10})
	ctx := context.Background()

	var wg sync.WaitGroup
	var sold atomic.Int32
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(r orders.Repository) error {
				p, err := r.LockProduct(ctx, "p1")
				if err != nil {
					return err
				}
				if p.Stock < 1 {
					return orders.ErrNegativeStock
				}
				_, err = r.AddStock(ctx, "p1", -1)
				return err
			})
			if err == nil {
				sold.Add(1)
			}
		}()
	}
	wg.Wait()

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, int32(10), sold.Load())
}

func TestReadsReturnCopies(t *testing.T) {
	s := New()
	s.PutOrder(orders.Order{ID: "o1", Status: orders.StatusPending})
	ctx := context.Background()

	o, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	o.Status = orders.StatusCancelled

	again, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, again.Status)
}

func TestListMovementsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, pid := range []string{"p1", "p2", "p1", "p1"} {
		require.NoError(t, s.InsertMovement(ctx, &orders.InventoryMovement{ID: fmt.Sprintf("m%d", i), ProductID: pid}))
	}

	got, err := s.ListMovements(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)

	all, err := s.ListMovements(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "m3", all[0].ID)
}

func TestFindCustomerByEmailIgnoresCase(t *testing.T) {
	s := New()
	s.PutCustomer(orders.Customer{ID: "c1", Email: "Ana@Shop.test"})

	c, err := s.FindCustomerByEmail(context.Background(), " ana@shop.TEST ")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)

	_, err = s.FindCustomerByEmail(context.Background(), "other@shop.test")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestOrderItemsKeepLineOrder(t *testing.T) {
	s := New()
	s.PutOrder(orders.Order{ID: "o1", Items: []orders.OrderItem{{ID: "a"}, {ID: "b"}}})
	ctx := context.Background()
	require.NoError(t, s.InsertOrderItems(ctx, "o1", []orders.OrderItem{{ID: "c"}}))

	items, err := s.ListOrderItems(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].ID, items[1].ID, items[2].ID})

	require.NoError(t, s.DeleteOrderItems(ctx, "o1"))
	assert.Equal(t, 0, s.CountOrderItems())
}

func TestDashboardCounts(t *testing.T) {
	s := New()
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	s.PutOrder(orders.Order{ID: "o1", Status: orders.StatusPending, PaymentStatus: orders.PaymentPending, TotalAmount: decimal.NewFromInt(100), CreatedAt: day})
	s.PutOrder(orders.Order{ID: "o2", Status: orders.StatusDelivered, PaymentStatus: orders.PaymentPaid, TotalAmount: decimal.NewFromInt(50), CreatedAt: day.Add(2 * time.Hour)})
	s.PutOrder(orders.Order{ID: "o3", Status: orders.StatusCancelled, PaymentStatus: orders.PaymentRefunded, TotalAmount: decimal.NewFromInt(30), CreatedAt: day.AddDate(0, 0, 1)})
	s.PutOrder(orders.Order{ID: "old", Status: orders.StatusPending, TotalAmount: decimal.NewFromInt(999), CreatedAt: day.AddDate(0, 0, -5)})
	s.PutReservation(orders.Reservation{ID: "r1", Status: orders.ReservationPending})
	s.PutReservation(orders.Reservation{ID: "r2", Status: orders.ReservationCancelled})
	s.PutReservation(orders.Reservation{ID: "r3", Status: orders.ReservationConverted})
	ctx := context.Background()

	oc, err := s.CountOrdersByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, orders.OrderCounts{Total: 4, Pending: 2, Delivered: 1, Cancelled: 1, Paid: 1}, oc)

	rc, err := s.CountReservationsByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, orders.ReservationCounts{Pending: 1, Cancelled: 1}, rc)

	sales, err := s.SalesByDay(ctx, day.Truncate(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "2026-03-10", sales[0].Date)
	assert.True(t, decimal.NewFromInt(150).Equal(sales[0].Sales))
	assert.Equal(t, "2026-03-11", sales[1].Date)
	assert.True(t, decimal.NewFromInt(30).Equal(sales[1].Sales))
}
