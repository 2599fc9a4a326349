// Package postgres is the orders.Store backed by PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// querier is what a pool and a transaction have in common.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	*repo
	DB *pgxpool.Pool
}

var _ orders.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{repo: &repo{q: db}, DB: db}
}

// InTx runs fn in one transaction. Row locks taken by Lock* methods are held
// until fn returns.
func (s *Store) InTx(ctx context.Context, fn func(orders.Repository) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type repo struct{ q querier }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.ErrNotFound
	}
	return err
}

// nullJSON keeps empty addresses as SQL NULL instead of a JSON null literal.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
