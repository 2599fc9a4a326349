package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const productCols = `id, sku, name, price, stock_quantity, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, notFound(err)
}

func (r *repo) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return scanProduct(r.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
}

func (r *repo) LockProduct(ctx context.Context, id string) (orders.Product, error) {
	return scanProduct(r.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id))
}

// AddStock is a single guarded UPDATE so concurrent writers never lose an
// update and stock never goes below zero.
func (r *repo) AddStock(ctx context.Context, productID string, delta int) (int, error) {
	var stock int
	err := r.q.QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id=$1 AND stock_quantity + $2 >= 0
		RETURNING stock_quantity`, productID, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, orders.ErrNotFound
	}
	return 0, orders.ErrNegativeStock
}

func (r *repo) InsertMovement(ctx context.Context, m *orders.InventoryMovement) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inventory_movements(id, product_id, movement_type, quantity, stock_before, stock_after,
		                                reason, description, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''),$10)`,
		m.ID, m.ProductID, m.Type, m.Quantity, m.StockBefore, m.StockAfter,
		m.Reason, m.Description, m.Reference, m.CreatedAt,
	)
	return err
}

func (r *repo) ListMovements(ctx context.Context, productID string, limit int) ([]orders.InventoryMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, movement_type, quantity, stock_before, stock_after,
		       reason, COALESCE(description,''), COALESCE(reference,''), created_at
		FROM inventory_movements
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.InventoryMovement
	for rows.Next() {
		var m orders.InventoryMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.StockBefore, &m.StockAfter,
			&m.Reason, &m.Description, &m.Reference, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repo) ListActiveOffers(ctx context.Context, productIDs []string, userID string) ([]orders.Offer, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, COALESCE(user_id,''), discount_percent, is_active, valid_from, valid_to
		FROM product_offers
		WHERE is_active AND product_id = ANY($1)
		  AND (user_id IS NULL OR user_id = NULLIF($2,''))`, productIDs, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Offer
	for rows.Next() {
		var o orders.Offer
		if err := rows.Scan(&o.ID, &o.ProductID, &o.UserID, &o.DiscountPercent, &o.Active, &o.ValidFrom, &o.ValidTo); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
