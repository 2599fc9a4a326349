package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const orderCols = `id, customer_id, status, payment_status, subtotal, tax_amount, shipping_amount, total_amount,
	shipping_address, billing_address, COALESCE(payment_method,''), COALESCE(payment_reference,''),
	COALESCE(tracking_number,''), COALESCE(notes,''), order_source, COALESCE(assigned_user_id,''),
	stock_committed, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o                 orders.Order
		shipping, billing []byte
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.TaxAmount, &o.ShippingAmount, &o.TotalAmount,
		&shipping, &billing, &o.PaymentMethod, &o.PaymentReference,
		&o.TrackingNumber, &o.Notes, &o.Source, &o.AssignedUserID,
		&o.StockCommitted, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return orders.Order{}, notFound(err)
	}
	o.ShippingAddress, o.BillingAddress = shipping, billing
	return o, nil
}

func (r *repo) InsertOrder(ctx context.Context, o *orders.Order) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO orders(id, customer_id, status, payment_status, subtotal, tax_amount, shipping_amount,
		                   total_amount, shipping_address, billing_address, payment_method, payment_reference,
		                   tracking_number, notes, order_source, assigned_user_id, stock_committed,
		                   created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),NULLIF($13,''),NULLIF($14,''),
		        $15,NULLIF($16,''),$17,$18,$19)`,
		o.ID, o.CustomerID, o.Status, o.PaymentStatus, o.Subtotal, o.TaxAmount, o.ShippingAmount,
		o.TotalAmount, nullJSON(o.ShippingAddress), nullJSON(o.BillingAddress), o.PaymentMethod,
		o.PaymentReference, o.TrackingNumber, o.Notes, o.Source, o.AssignedUserID, o.StockCommitted,
		o.CreatedAt, o.UpdatedAt,
	)
	return err
}

// InsertOrderItems keeps the request's line order in line_no.
func (r *repo) InsertOrderItems(ctx context.Context, orderID string, items []orders.OrderItem) error {
	for i, it := range items {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO order_items(id, order_id, line_no, product_id, product_name, quantity, unit_price, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, orderID, i, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.TotalPrice,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return scanOrder(r.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
}

func (r *repo) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return scanOrder(r.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id))
}

func (r *repo) ListOrderItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price
		FROM order_items WHERE order_id=$1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.OrderItem
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repo) ListOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.AssignedUserID != "" {
		add("assigned_user_id = $%d", f.AssignedUserID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}

	sql := `SELECT ` + orderCols + ` FROM orders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *repo) UpdateOrder(ctx context.Context, o *orders.Order) error {
	ct, err := r.q.Exec(ctx, `
		UPDATE orders SET
			status=$2, payment_status=$3, payment_method=NULLIF($4,''), payment_reference=NULLIF($5,''),
			tracking_number=NULLIF($6,''), notes=NULLIF($7,''), stock_committed=$8, updated_at=$9
		WHERE id=$1`,
		o.ID, o.Status, o.PaymentStatus, o.PaymentMethod, o.PaymentReference,
		o.TrackingNumber, o.Notes, o.StockCommitted, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteOrderItems(ctx context.Context, orderID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, orderID)
	return err
}

func (r *repo) DeleteOrder(ctx context.Context, orderID string) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM orders WHERE id=$1`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrNotFound
	}
	return nil
}

func (r *repo) CountOrdersByState(ctx context.Context) (orders.OrderCounts, error) {
	var c orders.OrderCounts
	err := r.q.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'pending'),
		       count(*) FILTER (WHERE status = 'delivered'),
		       count(*) FILTER (WHERE status = 'cancelled'),
		       count(*) FILTER (WHERE payment_status = 'paid')
		FROM orders`).Scan(&c.Total, &c.Pending, &c.Delivered, &c.Cancelled, &c.Paid)
	return c, err
}

func (r *repo) SalesByDay(ctx context.Context, from time.Time) ([]orders.DaySales, error) {
	rows, err := r.q.Query(ctx, `
		SELECT to_char((created_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day,
		       COALESCE(sum(total_amount), 0)
		FROM orders
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.DaySales
	for rows.Next() {
		var d orders.DaySales
		if err := rows.Scan(&d.Date, &d.Sales); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
