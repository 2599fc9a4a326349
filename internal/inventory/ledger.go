package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// Change is one signed stock delta and the movement it produces.
type Change struct {
	ProductID   string
	Delta       int
	Type        orders.MovementType
	Reason      string
	Description string
	Reference   string
}

// Ledger is the only code that writes products.stock_quantity. Every write is
// paired with exactly one movement, so callers must run it inside Store.InTx.
type Ledger struct {
	now func() time.Time
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{now: now}
}

// ApplyDelta adds c.Delta to the product's stock using the store's atomic
// increment-and-return, then appends the movement. A result below zero fails
// with InsufficientStock and writes nothing.
func (l *Ledger) ApplyDelta(ctx context.Context, repo orders.Repository, c Change) (orders.InventoryMovement, error) {
	if c.ProductID == "" {
		return orders.InventoryMovement{}, apperr.NewValidation("product_id is required", "product_id")
	}
	if c.Delta == 0 {
		return orders.InventoryMovement{}, apperr.NewValidation("quantity must be non-zero", "quantity")
	}
	if !c.Type.Valid() {
		return orders.InventoryMovement{}, apperr.NewValidation("invalid movement type", "movement_type")
	}

	after, err := repo.AddStock(ctx, c.ProductID, c.Delta)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return orders.InventoryMovement{}, apperr.NewNotFound("product", c.ProductID)
	case errors.Is(err, orders.ErrNegativeStock):
		p, gerr := repo.GetProduct(ctx, c.ProductID)
		if gerr != nil {
			return orders.InventoryMovement{}, apperr.Wrap("load product", gerr)
		}
		return orders.InventoryMovement{}, apperr.NewInsufficientStock(p.Name, p.Stock, -c.Delta)
	case err != nil:
		return orders.InventoryMovement{}, apperr.Wrap("update stock", err)
	}

	return l.record(ctx, repo, c, after-c.Delta, after)
}

// AdjustAbsolute sets the stock to newQuantity. The delta is computed against
// the locked row so a concurrent change cannot slip in between.
func (l *Ledger) AdjustAbsolute(ctx context.Context, repo orders.Repository, productID string, newQuantity int, reason, description string) (orders.InventoryMovement, error) {
	if newQuantity < 0 {
		return orders.InventoryMovement{}, apperr.NewValidation("quantity cannot be negative", "quantity")
	}
	p, err := repo.LockProduct(ctx, productID)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.InventoryMovement{}, apperr.NewNotFound("product", productID)
	}
	if err != nil {
		return orders.InventoryMovement{}, apperr.Wrap("lock product", err)
	}

	c := Change{
		ProductID:   productID,
		Delta:       newQuantity - p.Stock,
		Type:        orders.MovementAdjustment,
		Reason:      reason,
		Description: description,
	}
	if c.Delta == 0 {
		return l.record(ctx, repo, c, p.Stock, p.Stock)
	}
	return l.ApplyDelta(ctx, repo, c)
}

func (l *Ledger) record(ctx context.Context, repo orders.Repository, c Change, before, after int) (orders.InventoryMovement, error) {
	m := orders.InventoryMovement{
		ID:          uuid.NewString(),
		ProductID:   c.ProductID,
		Type:        c.Type,
		Quantity:    after - before,
		StockBefore: before,
		StockAfter:  after,
		Reason:      c.Reason,
		Description: c.Description,
		Reference:   c.Reference,
		CreatedAt:   l.now(),
	}
	if err := repo.InsertMovement(ctx, &m); err != nil {
		return orders.InventoryMovement{}, apperr.Wrap("record movement", err)
	}
	return m, nil
}
