package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same query methods
// serve transactional and non-transactional calls.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AccessRepository is the concrete implementation for a PostgreSQL database.
type AccessRepository struct {
	db *sql.DB
	q  querier
}

// NewAccessRepository creates a new repository instance.
func NewAccessRepository(db *sql.DB) Repository {
	return &AccessRepository{db: db, q: db}
}

// WithTx wraps fn in a single database transaction so a partial failure
// (e.g. binding insert failing after the audit row) rolls back as one unit.
func (r *AccessRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txRepo := &AccessRepository{db: r.db, q: tx}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}
