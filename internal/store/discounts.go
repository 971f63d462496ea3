package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/backend-pasar/internal/promo"
)

const discountColumns = `id, code, active, starts_at, ends_at, value_type, value,
	owner_type, owner_store_id, min_purchase_amount, min_purchase_quantity,
	eligibility, customer_ids, all_products, listing_ids, usage_limit, usage_count`

// GetDiscountByCode loads a single discount definition by its code.
func (s *Store) GetDiscountByCode(ctx context.Context, code string) (promo.Discount, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM discounts WHERE code = $1`, code)
	return scanDiscount(row)
}

// GetDiscountByID loads a single discount definition by id.
func (s *Store) GetDiscountByID(ctx context.Context, id string) (promo.Discount, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id)
	return scanDiscount(row)
}

// ListCandidateDiscounts returns the discounts that could address a cart
// spanning the given stores: every admin discount plus the seller discounts
// owned by those stores. Window and activity filtering stays with the engine;
// only plainly disabled rows are excluded here.
func (s *Store) ListCandidateDiscounts(ctx context.Context, storeIDs []string) ([]promo.Discount, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+discountColumns+` FROM discounts
		 WHERE active AND (owner_type = 'admin' OR owner_store_id = ANY($1))
		 ORDER BY created_at`, storeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var discounts []promo.Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	return discounts, rows.Err()
}

// ListDiscountsByOwner returns all discounts owned by one seller store.
func (s *Store) ListDiscountsByOwner(ctx context.Context, storeID string) ([]promo.Discount, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+discountColumns+` FROM discounts
		 WHERE owner_type = 'seller' AND owner_store_id = $1
		 ORDER BY created_at`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var discounts []promo.Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	return discounts, rows.Err()
}

// CreateDiscount inserts a new discount definition.
func (s *Store) CreateDiscount(ctx context.Context, d promo.Discount) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO discounts (
			id, code, active, starts_at, ends_at, value_type, value,
			owner_type, owner_store_id, min_purchase_amount, min_purchase_quantity,
			eligibility, customer_ids, all_products, listing_ids, usage_limit
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		d.ID, d.Code, d.Active, d.StartsAt, d.EndsAt, string(d.ValueType), d.Value,
		string(d.OwnerType), nullable(d.OwnerStoreID), d.MinPurchaseAmount, d.MinPurchaseQuantity,
		string(d.Eligibility), textArray(d.CustomerIDs), targetsAllProducts(d.Targets), targetListingIDs(d.Targets), d.UsageLimit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

// UpdateDiscount rewrites an existing definition in place. Past orders keep
// their snapshots; only future evaluations see the change.
func (s *Store) UpdateDiscount(ctx context.Context, d promo.Discount) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE discounts SET
			active = $2, starts_at = $3, ends_at = $4, value_type = $5, value = $6,
			min_purchase_amount = $7, min_purchase_quantity = $8,
			eligibility = $9, customer_ids = $10, all_products = $11, listing_ids = $12,
			usage_limit = $13, updated_at = $14
		 WHERE id = $1`,
		d.ID, d.Active, d.StartsAt, d.EndsAt, string(d.ValueType), d.Value,
		d.MinPurchaseAmount, d.MinPurchaseQuantity,
		string(d.Eligibility), textArray(d.CustomerIDs), targetsAllProducts(d.Targets), targetListingIDs(d.Targets),
		d.UsageLimit, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDiscountUsage bumps the usage counter inside the caller's
// transaction. The row lock serialises concurrent checkouts on the same
// discount so the limit is never overshot.
func (s *Store) IncrementDiscountUsage(ctx context.Context, tx pgx.Tx, discountID string) error {
	var usageLimit *int32
	var usageCount int32
	err := tx.QueryRow(ctx,
		`SELECT usage_limit, usage_count FROM discounts WHERE id = $1 FOR UPDATE`,
		discountID).Scan(&usageLimit, &usageCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if usageLimit != nil && usageCount >= *usageLimit {
		return ErrUsageLimitReached
	}
	_, err = tx.Exec(ctx,
		`UPDATE discounts SET usage_count = usage_count + 1, updated_at = now() WHERE id = $1`,
		discountID)
	return err
}

func scanDiscount(row pgx.Row) (promo.Discount, error) {
	var d promo.Discount
	var valueType, ownerType, eligibility string
	var ownerStoreID *string
	var allProducts bool
	var listingIDs, customerIDs []string
	err := row.Scan(&d.ID, &d.Code, &d.Active, &d.StartsAt, &d.EndsAt, &valueType, &d.Value,
		&ownerType, &ownerStoreID, &d.MinPurchaseAmount, &d.MinPurchaseQuantity,
		&eligibility, &customerIDs, &allProducts, &listingIDs, &d.UsageLimit, &d.UsageCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promo.Discount{}, ErrNotFound
		}
		return promo.Discount{}, err
	}
	d.ValueType = promo.ValueType(valueType)
	d.OwnerType = promo.OwnerType(ownerType)
	d.Eligibility = promo.EligibilityMode(eligibility)
	d.CustomerIDs = customerIDs
	if ownerStoreID != nil {
		d.OwnerStoreID = *ownerStoreID
	}
	if allProducts {
		d.Targets = []promo.Target{{AllProducts: true}}
	} else if len(listingIDs) > 0 {
		d.Targets = []promo.Target{{ListingIDs: listingIDs}}
	}
	return d, nil
}

func targetsAllProducts(targets []promo.Target) bool {
	for _, t := range targets {
		if t.AllProducts {
			return true
		}
	}
	return false
}

func targetListingIDs(targets []promo.Target) []string {
	var ids []string
	for _, t := range targets {
		if !t.AllProducts {
			ids = append(ids, t.ListingIDs...)
		}
	}
	if ids == nil {
		return []string{}
	}
	return ids
}

func textArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
