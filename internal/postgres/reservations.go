package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const reservationCols = `id, user_id, product_id, quantity, status, COALESCE(notes,''), COALESCE(order_id,''),
	expires_at, created_at, updated_at`

func scanReservation(row pgx.Row) (orders.Reservation, error) {
	var r orders.Reservation
	err := row.Scan(&r.ID, &r.UserID, &r.ProductID, &r.Quantity, &r.Status, &r.Notes, &r.OrderID,
		&r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
	return r, notFound(err)
}

func (r *repo) InsertReservation(ctx context.Context, res *orders.Reservation) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO product_reservations(id, user_id, product_id, quantity, status, notes, order_id,
		                                 expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),$8,$9,$10)`,
		res.ID, res.UserID, res.ProductID, res.Quantity, res.Status, res.Notes, res.OrderID,
		res.ExpiresAt, res.CreatedAt, res.UpdatedAt,
	)
	return err
}

func (r *repo) GetReservation(ctx context.Context, id string) (orders.Reservation, error) {
	return scanReservation(r.q.QueryRow(ctx, `SELECT `+reservationCols+` FROM product_reservations WHERE id=$1`, id))
}

func (r *repo) LockReservation(ctx context.Context, id string) (orders.Reservation, error) {
	return scanReservation(r.q.QueryRow(ctx, `SELECT `+reservationCols+` FROM product_reservations WHERE id=$1 FOR UPDATE`, id))
}

func (r *repo) TransitionReservation(ctx context.Context, id string, from, to orders.ReservationStatus, orderID string, at time.Time) (bool, error) {
	ct, err := r.q.Exec(ctx, `
		UPDATE product_reservations
		SET status=$3, order_id=COALESCE(NULLIF($4,''), order_id), updated_at=$5
		WHERE id=$1 AND status=$2`, id, from, to, orderID, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *repo) ExpireReservations(ctx context.Context, now time.Time) (int, error) {
	ct, err := r.q.Exec(ctx, `
		UPDATE product_reservations
		SET status='cancelled', updated_at=$1
		WHERE status='pending' AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (r *repo) ListReservations(ctx context.Context, f orders.ReservationFilter) ([]orders.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	sql := `SELECT ` + reservationCols + ` FROM product_reservations`
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

	var out []orders.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *repo) CountReservationsByState(ctx context.Context) (orders.ReservationCounts, error) {
	var c orders.ReservationCounts
	err := r.q.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status = 'pending'),
		       count(*) FILTER (WHERE status = 'cancelled')
		FROM product_reservations`).Scan(&c.Pending, &c.Cancelled)
	return c, err
}
