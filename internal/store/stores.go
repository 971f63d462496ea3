package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Storefront is a seller's shop inside the marketplace.
type Storefront struct {
	ID        string
	Slug      string
	Name      string
	CreatedAt time.Time
}

// GetStorefront loads a storefront by id.
func (s *Store) GetStorefront(ctx context.Context, id string) (Storefront, error) {
	return s.scanStorefront(ctx, `SELECT id, slug, name, created_at FROM stores WHERE id = $1`, id)
}

// GetStorefrontBySlug loads a storefront by its subdomain slug.
func (s *Store) GetStorefrontBySlug(ctx context.Context, slug string) (Storefront, error) {
	return s.scanStorefront(ctx, `SELECT id, slug, name, created_at FROM stores WHERE slug = $1`, slug)
}

// ResolveStorefront accepts either a storefront id or a slug and returns the
// canonical id. Used by the storefront middleware.
func (s *Store) ResolveStorefront(ctx context.Context, idOrSlug string) (string, error) {
	sf, err := s.scanStorefront(ctx,
		`SELECT id, slug, name, created_at FROM stores WHERE id = $1 OR slug = $1`, idOrSlug)
	if err != nil {
		return "", err
	}
	return sf.ID, nil
}

// CreateStorefront inserts a storefront row.
func (s *Store) CreateStorefront(ctx context.Context, sf Storefront) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO stores (id, slug, name) VALUES ($1, $2, $3)`,
		sf.ID, sf.Slug, sf.Name)
	return err
}

func (s *Store) scanStorefront(ctx context.Context, query string, arg any) (Storefront, error) {
	var sf Storefront
	err := s.Pool.QueryRow(ctx, query, arg).Scan(&sf.ID, &sf.Slug, &sf.Name, &sf.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Storefront{}, ErrNotFound
		}
		return Storefront{}, err
	}
	return sf, nil
}
