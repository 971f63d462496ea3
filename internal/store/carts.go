package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-pasar/internal/cart"
)

// GetCart loads a cart header by id.
func (s *Store) GetCart(ctx context.Context, cartID string) (cart.Cart, error) {
	var c cart.Cart
	err := s.Pool.QueryRow(ctx,
		`SELECT id, customer_id, currency FROM carts WHERE id = $1`, cartID).
		Scan(&c.ID, &c.CustomerID, &c.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.Cart{}, ErrNotFound
		}
		return cart.Cart{}, err
	}
	return c, nil
}

// ListCartItems loads the cart's lines in insertion order as checkout items.
func (s *Store) ListCartItems(ctx context.Context, cartID string) ([]cart.Item, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT ci.id, ci.listing_id, ci.variant_id, ci.store_id, ci.name,
		        ci.unit_price, ci.quantity, c.currency
		 FROM cart_items ci
		 JOIN carts c ON c.id = ci.cart_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.created_at`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []cart.Item
	for rows.Next() {
		var it cart.Item
		if err := rows.Scan(&it.ID, &it.ListingID, &it.VariantID, &it.StoreID, &it.Name,
			&it.UnitPrice, &it.Quantity, &it.Currency); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CreateCart inserts an empty cart header.
func (s *Store) CreateCart(ctx context.Context, c cart.Cart) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO carts (id, customer_id, currency) VALUES ($1, $2, $3)`,
		c.ID, c.CustomerID, c.Currency)
	return err
}

// UpsertCartItem inserts a line or, when the cart already carries the same
// listing and variant, adds to its quantity.
func (s *Store) UpsertCartItem(ctx context.Context, cartID string, it cart.Item) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE cart_items SET quantity = quantity + $1
		 WHERE cart_id = $2 AND listing_id = $3 AND variant_id IS NOT DISTINCT FROM $4`,
		it.Quantity, cartID, it.ListingID, it.VariantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return s.touchCart(ctx, cartID)
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO cart_items (id, cart_id, listing_id, variant_id, store_id, name, unit_price, quantity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		it.ID, cartID, it.ListingID, it.VariantID, it.StoreID, it.Name, it.UnitPrice, it.Quantity)
	if err != nil {
		return err
	}
	return s.touchCart(ctx, cartID)
}

// UpdateCartItemQuantity sets a line's quantity. Returns ErrNotFound when the
// line is not part of the cart.
func (s *Store) UpdateCartItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND id = $2`,
		cartID, itemID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return s.touchCart(ctx, cartID)
}

// DeleteCartItem removes a line from the cart.
func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID string) error {
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return s.touchCart(ctx, cartID)
}

func (s *Store) touchCart(ctx context.Context, cartID string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID)
	return err
}
