package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-pasar/internal/order"
)

// CreateOrderBundle writes the order, its items, and the discount records in
// the caller's transaction so the whole placement is atomic.
func (s *Store) CreateOrderBundle(ctx context.Context, tx pgx.Tx, bundle order.Bundle) error {
	o := bundle.Order
	_, err := tx.Exec(ctx,
		`INSERT INTO orders (id, customer_id, status, currency, subtotal, discount_total, tax_total, total, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.CustomerID, o.Status, o.Currency, o.Subtotal, o.DiscountTotal, o.TaxTotal, o.Total, o.CreatedAt)
	if err != nil {
		return err
	}
	for _, it := range bundle.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, cart_item_id, listing_id, variant_id, store_id, name,
			                          unit_price, quantity, subtotal, discount_amount, tax_amount, line_total)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			it.ID, it.OrderID, it.CartItemID, it.ListingID, it.VariantID, it.StoreID, it.Name,
			it.UnitPrice, it.Quantity, it.Subtotal, it.DiscountAmount, it.TaxAmount, it.LineTotal)
		if err != nil {
			return err
		}
	}
	if bundle.Discount != nil {
		d := bundle.Discount
		_, err = tx.Exec(ctx,
			`INSERT INTO order_discounts (id, order_id, discount_id, code, value_type, value, total_amount, currency)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			d.ID, d.OrderID, d.DiscountID, d.Code, string(d.ValueType), d.Value, d.TotalAmount, d.Currency)
		if err != nil {
			return err
		}
	}
	for _, id := range bundle.ItemDiscounts {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_item_discounts (id, order_item_id, order_discount_id, discount_id, amount)
			 VALUES ($1,$2,$3,$4,$5)`,
			id.ID, id.OrderItemID, id.OrderDiscountID, id.DiscountID, id.Amount)
		if err != nil {
			return err
		}
	}
	return nil
}

// PlaceOrder writes the bundle and, when a discount was applied, bumps its
// usage counter, all in one transaction. Returns ErrUsageLimitReached when
// the applied discount's quota is exhausted; nothing is written in that case.
func (s *Store) PlaceOrder(ctx context.Context, bundle order.Bundle) error {
	return s.InTx(ctx, func(tx pgx.Tx) error {
		if bundle.Discount != nil {
			if err := s.IncrementDiscountUsage(ctx, tx, bundle.Discount.DiscountID); err != nil {
				return err
			}
		}
		return s.CreateOrderBundle(ctx, tx, bundle)
	})
}

// GetOrder loads one order header owned by the given customer.
func (s *Store) GetOrder(ctx context.Context, orderID, customerID string) (order.Order, error) {
	var o order.Order
	err := s.Pool.QueryRow(ctx,
		`SELECT id, customer_id, status, currency, subtotal, discount_total, tax_total, total, created_at
		 FROM orders WHERE id = $1 AND customer_id = $2`, orderID, customerID).
		Scan(&o.ID, &o.CustomerID, &o.Status, &o.Currency, &o.Subtotal, &o.DiscountTotal, &o.TaxTotal, &o.Total, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, ErrNotFound
		}
		return order.Order{}, err
	}
	return o, nil
}

// ListOrderItems loads the lines of one order.
func (s *Store) ListOrderItems(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, order_id, cart_item_id, listing_id, variant_id, store_id, name,
		        unit_price, quantity, subtotal, discount_amount, tax_amount, line_total
		 FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.CartItemID, &it.ListingID, &it.VariantID, &it.StoreID, &it.Name,
			&it.UnitPrice, &it.Quantity, &it.Subtotal, &it.DiscountAmount, &it.TaxAmount, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListOrdersByCustomer returns a page of the customer's orders, newest first.
func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID string, limit, offset int) ([]order.Order, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, customer_id, status, currency, subtotal, discount_total, tax_total, total, created_at
		 FROM orders WHERE customer_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Status, &o.Currency, &o.Subtotal, &o.DiscountTotal, &o.TaxTotal, &o.Total, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CountOrdersByCustomer returns how many orders the customer has placed.
func (s *Store) CountOrdersByCustomer(ctx context.Context, customerID string) (int64, error) {
	var n int64
	err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE customer_id = $1`, customerID).Scan(&n)
	return n, err
}

// GetOrderDiscount loads the discount snapshot applied to an order, or nil
// when the order was placed without one.
func (s *Store) GetOrderDiscount(ctx context.Context, orderID string) (*order.AppliedDiscount, error) {
	var d order.AppliedDiscount
	err := s.Pool.QueryRow(ctx,
		`SELECT id, order_id, discount_id, code, value_type, value, total_amount, currency
		 FROM order_discounts WHERE order_id = $1`, orderID).
		Scan(&d.ID, &d.OrderID, &d.DiscountID, &d.Code, &d.ValueType, &d.Value, &d.TotalAmount, &d.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// UpdateOrderStatus moves an order from one status to another. Returns
// ErrNotFound when the order does not exist or is no longer in the expected
// status.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, from, to string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`, orderID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOrderStatus loads just the status of an order, without ownership
// filtering. Used by the admin endpoints.
func (s *Store) GetOrderStatus(ctx context.Context, orderID string) (string, error) {
	var status string
	err := s.Pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return status, nil
}
