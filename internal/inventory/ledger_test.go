package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func seeded(stock int) *memstore.Store {
	s := memstore.New()
	s.PutProduct(orders.Product{ID: "p1", Name: "Desk Lamp", Stock: stock, Active: true})
	return s
}

func apply(t *testing.T, s *memstore.Store, l *Ledger, c Change) (orders.InventoryMovement, error) {
	t.Helper()
	var m orders.InventoryMovement
	err := s.InTx(context.Background(), func(r orders.Repository) error {
		var err error
		m, err = l.ApplyDelta(context.Background(), r, c)
		return err
	})
	return m, err
}

func stockOf(t *testing.T, s *memstore.Store) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	return p.Stock
}

func movements(t *testing.T, s *memstore.Store) []orders.InventoryMovement {
	t.Helper()
	ms, err := s.ListMovements(context.Background(), "p1", 0)
	require.NoError(t, err)
	return ms
}

func TestApplyDeltaRecordsExactlyOneMovement(t *testing.T) {
	s := seeded(5)
	l := NewLedger(nil)

	m, err := apply(t, s, l, Change{ProductID: "p1", Delta: -3, Type: orders.MovementOut, Reason: "order", Reference: "o-1"})
	require.NoError(t, err)

	assert.Equal(t, 2, stockOf(t, s))
	assert.Equal(t, 5, m.StockBefore)
	assert.Equal(t, 2, m.StockAfter)
	assert.Equal(t, -3, m.Quantity)
	assert.Equal(t, m.StockAfter-m.StockBefore, m.Quantity)
	assert.Len(t, movements(t, s), 1)
}

func TestApplyDeltaInsufficientStockLeavesNoTrace(t *testing.T) {
	s := seeded(0)
	l := NewLedger(nil)

	_, err := apply(t, s, l, Change{ProductID: "p1", Delta: -1, Type: orders.MovementOut, Reason: "order"})

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeInsufficientStock, ae.Code)
	assert.Equal(t, "insufficient stock for Desk Lamp", ae.Message)
	assert.Equal(t, "Available: 0, Requested: 1", ae.Details)
	assert.Equal(t, 0, stockOf(t, s))
	assert.Empty(t, movements(t, s))
}

func TestApplyDeltaRollsBackStockWhenMovementFails(t *testing.T) {
	s := seeded(5)
	l := NewLedger(nil)
	s.FailNext("InsertMovement", errors.New("connection reset"))

	_, err := apply(t, s, l, Change{ProductID: "p1", Delta: -2, Type: orders.MovementOut, Reason: "order"})

	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.Equal(t, 5, stockOf(t, s))
	assert.Empty(t, movements(t, s))
}

func TestApplyDeltaValidation(t *testing.T) {
	s := seeded(5)
	l := NewLedger(nil)

	_, err := apply(t, s, l, Change{ProductID: "p1", Delta: 0, Type: orders.MovementIn})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = apply(t, s, l, Change{ProductID: "p1", Delta: 1, Type: "teleport"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = apply(t, s, l, Change{ProductID: "nope", Delta: 1, Type: orders.MovementIn})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestAdjustAbsolute(t *testing.T) {
	s := seeded(7)
	l := NewLedger(nil)
	ctx := context.Background()

	var m orders.InventoryMovement
	err := s.InTx(ctx, func(r orders.Repository) error {
		var err error
		m, err = l.AdjustAbsolute(ctx, r, "p1", 3, "stock count", "")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, orders.MovementAdjustment, m.Type)
	assert.Equal(t, -4, m.Quantity)
	assert.Equal(t, 3, stockOf(t, s))

	err = s.InTx(ctx, func(r orders.Repository) error {
		var err error
		m, err = l.AdjustAbsolute(ctx, r, "p1", 3, "recount", "")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Quantity)
	assert.Len(t, movements(t, s), 2)
}

func TestConcurrentDecrementsNeverLoseUpdates(t *testing.T) {
	const stock, workers = 30, 50
	s := seeded(stock)
	l := NewLedger(nil)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := apply(t, s, l, Change{ProductID: "p1", Delta: -1, Type: orders.MovementOut, Reason: "order"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if apperr.Is(err, apperr.CodeInsufficientStock) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, ok)
	assert.Equal(t, workers-stock, rejected)
	assert.Equal(t, 0, stockOf(t, s))
	assert.Len(t, movements(t, s), stock)
}
