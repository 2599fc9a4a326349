package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const customerCols = `id, COALESCE(user_id,''), first_name, last_name, email, is_active, created_at, updated_at`

func scanCustomer(row pgx.Row) (orders.Customer, error) {
	var c orders.Customer
	err := row.Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, notFound(err)
}

func (r *repo) GetProfile(ctx context.Context, userID string) (orders.Profile, error) {
	var p orders.Profile
	err := r.q.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, role, is_active
		FROM profiles WHERE id=$1`, userID,
	).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role, &p.Active)
	return p, notFound(err)
}

func (r *repo) GetCustomer(ctx context.Context, id string) (orders.Customer, error) {
	return scanCustomer(r.q.QueryRow(ctx, `SELECT `+customerCols+` FROM customers WHERE id=$1`, id))
}

func (r *repo) FindCustomerByUserID(ctx context.Context, userID string) (orders.Customer, error) {
	if userID == "" {
		return orders.Customer{}, orders.ErrNotFound
	}
	return scanCustomer(r.q.QueryRow(ctx, `SELECT `+customerCols+` FROM customers WHERE user_id=$1`, userID))
}

func (r *repo) FindCustomerByEmail(ctx context.Context, email string) (orders.Customer, error) {
	if email == "" {
		return orders.Customer{}, orders.ErrNotFound
	}
	return scanCustomer(r.q.QueryRow(ctx, `
		SELECT `+customerCols+` FROM customers
		WHERE lower(email) = lower($1)
		ORDER BY created_at
		LIMIT 1`, email))
}

func (r *repo) LinkCustomerUser(ctx context.Context, customerID, userID string) error {
	ct, err := r.q.Exec(ctx, `UPDATE customers SET user_id=$2, updated_at=now() WHERE id=$1`, customerID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrNotFound
	}
	return nil
}

func (r *repo) InsertCustomer(ctx context.Context, c *orders.Customer) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO customers(id, user_id, first_name, last_name, email, is_active, created_at, updated_at)
		VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.FirstName, c.LastName, c.Email, c.Active, c.CreatedAt, c.UpdatedAt,
	)
	return err
}
