// Package postgres implements repository.Store on PostgreSQL via pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/database"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// Store runs repository transactions against Postgres.
type Store struct {
	db *database.DB
}

// NewStore creates a Store over an open pool.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in a SERIALIZABLE transaction; conflicts are retried by
// the database layer.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// txRepo implements every repository interface over one pgx transaction.
type txRepo struct {
	tx pgx.Tx
}

var _ repository.Tx = (*txRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}
