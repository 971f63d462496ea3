package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// DailySalesRow summarises completed orders for one calendar day.
type DailySalesRow struct {
	Day           time.Time `json:"day"`
	Orders        int64     `json:"orders"`
	Subtotal      float64   `json:"subtotal"`
	DiscountTotal float64   `json:"discountTotal"`
	TaxTotal      float64   `json:"taxTotal"`
	Total         float64   `json:"total"`
}

// DiscountUsageRow summarises how often a discount code was applied and what it cost.
type DiscountUsageRow struct {
	DiscountID  string  `json:"discountId"`
	Code        string  `json:"code"`
	ValueType   string  `json:"valueType"`
	Uses        int64   `json:"uses"`
	TotalAmount float64 `json:"totalAmount"`
}

// Querier defines the database access required for analytics queries.
type Querier interface {
	DailySales(ctx context.Context, from, to time.Time) ([]DailySalesRow, error)
	TopDiscounts(ctx context.Context, from, to time.Time, limit, offset int) ([]DiscountUsageRow, error)
}

// NewQuerier constructs a Querier backed by a pgx connection pool.
func NewQuerier(pool *pgxpool.Pool) Querier {
	return &pgQuerier{pool: pool}
}

type pgQuerier struct {
	pool *pgxpool.Pool
}

func (q *pgQuerier) DailySales(ctx context.Context, from, to time.Time) ([]DailySalesRow, error) {
	rows, err := q.pool.Query(ctx, `SELECT date_trunc('day', created_at) AS day,
       COUNT(*),
       COALESCE(SUM(subtotal), 0),
       COALESCE(SUM(discount_total), 0),
       COALESCE(SUM(tax_total), 0),
       COALESCE(SUM(total), 0)
FROM orders
WHERE created_at >= $1 AND created_at < $2
GROUP BY 1
ORDER BY 1`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailySalesRow
	for rows.Next() {
		var row DailySalesRow
		if err := rows.Scan(&row.Day, &row.Orders, &row.Subtotal, &row.DiscountTotal, &row.TaxTotal, &row.Total); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *pgQuerier) TopDiscounts(ctx context.Context, from, to time.Time, limit, offset int) ([]DiscountUsageRow, error) {
	rows, err := q.pool.Query(ctx, `SELECT od.discount_id, od.code, od.value_type,
       COUNT(*),
       COALESCE(SUM(od.total_amount), 0)
FROM order_discounts od
JOIN orders o ON o.id = od.order_id
WHERE o.created_at >= $1 AND o.created_at < $2
GROUP BY od.discount_id, od.code, od.value_type
ORDER BY SUM(od.total_amount) DESC
LIMIT $3 OFFSET $4`, from, to, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DiscountUsageRow
	for rows.Next() {
		var row DiscountUsageRow
		if err := rows.Scan(&row.DiscountID, &row.Code, &row.ValueType, &row.Uses, &row.TotalAmount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Service provides cached access to order and discount aggregates.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// SalesRange returns daily sales between from inclusive and to exclusive.
func (s *Service) SalesRange(ctx context.Context, from, to time.Time) ([]DailySalesRow, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "sales", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached []DailySalesRow
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Q.DailySales(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// TopDiscounts returns discount usage ordered by total amount granted.
func (s *Service) TopDiscounts(ctx context.Context, from, to time.Time, limit, offset int) ([]DiscountUsageRow, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	key := cacheKey("an", "topdisc", from.Format("2006-01-02"), to.Format("2006-01-02"), limit, offset)
	var cached []DiscountUsageRow
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Q.TopDiscounts(ctx, from, to, limit, offset)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

func (s *Service) fromCache(ctx context.Context, key string, dest any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
