// Package store is the persistent relational state layer: feeds, episodes,
// keywords, mentions, and app-settings, exposed as typed read/write
// operations consumed by every pipeline stage.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgx's query surface PostgresStore needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so withTx can bind the same query
// methods to a transaction. BulkRequeue runs its select and update on its
// own pool.Begin transaction; every other method, CreateMention included,
// issues single statements against the pool.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is the Store implementation backed by PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   DB
}

// NewPostgresStore creates a PostgresStore around a connection pool. Callers
// must call Migrate before issuing queries against a fresh database.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// withTx returns a PostgresStore bound to an open transaction instead of the
// pool, so the CRUD methods on Store can be reused verbatim inside a
// transactional compound operation.
func (s *PostgresStore) withTx(tx pgx.Tx) *PostgresStore {
	return &PostgresStore{pool: s.pool, db: tx}
}

// Migrate executes Schema against the database, creating tables and indexes
// if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
