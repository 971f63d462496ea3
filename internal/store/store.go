package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pasar/db"
	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/promo"
)

var (
	// ErrNotFound is returned when a requested row does not exist. It wraps
	// common.ErrNotFound so handlers outside the store can match it.
	ErrNotFound = fmt.Errorf("store: %w", common.ErrNotFound)
	// ErrUsageLimitReached indicates a discount has exhausted its usage quota.
	ErrUsageLimitReached = errors.New("store: discount usage limit reached")
	// ErrCodeTaken indicates a discount code is already in use. It wraps
	// promo.ErrCodeTaken so callers above the store can match it too.
	ErrCodeTaken = fmt.Errorf("store: %w", promo.ErrCodeTaken)
)

// Store bundles all persistence operations over a single pgx pool.
type Store struct {
	Pool *pgxpool.Pool
}

// New wraps the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// InTx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) InTx(ctx context.Context, fn func(tx pgxv5.Tx) error) error {
	if s == nil || s.Pool == nil {
		return errors.New("store: pool not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgxv5.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Migrate applies the embedded schema migrations. The database URL is
// rewritten to the pgx5 driver scheme migrate expects.
func Migrate(databaseURL string) error {
	src, err := iofs.New(db.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("open migrate: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func migrateURL(databaseURL string) string {
	if rest, ok := strings.CutPrefix(databaseURL, "postgresql://"); ok {
		return "pgx5://" + rest
	}
	if rest, ok := strings.CutPrefix(databaseURL, "postgres://"); ok {
		return "pgx5://" + rest
	}
	return databaseURL
}
