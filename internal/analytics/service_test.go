package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pasar/internal/analytics"
)

type countingQuerier struct {
	salesCalls int
	topCalls   int
}

func (q *countingQuerier) DailySales(_ context.Context, from, _ time.Time) ([]analytics.DailySalesRow, error) {
	q.salesCalls++
	return []analytics.DailySalesRow{{Day: from, Orders: 3, Subtotal: 30, DiscountTotal: 5, Total: 25}}, nil
}

func (q *countingQuerier) TopDiscounts(_ context.Context, _, _ time.Time, _, _ int) ([]analytics.DiscountUsageRow, error) {
	q.topCalls++
	return []analytics.DiscountUsageRow{{DiscountID: "d-1", Code: "SAVE10", ValueType: "percentage", Uses: 4, TotalAmount: 12.5}}, nil
}

func TestSalesRangeUsesCache(t *testing.T) {
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := &countingQuerier{}
	svc := &analytics.Service{Q: q, R: client, TTL: time.Minute}

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	first, err := svc.SalesRange(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.SalesRange(context.Background(), from, to)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, q.salesCalls)
}

func TestTopDiscountsDefaultsLimit(t *testing.T) {
	q := &countingQuerier{}
	svc := &analytics.Service{Q: q}

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rows, err := svc.TopDiscounts(context.Background(), from, from.AddDate(0, 0, 30), 0, -1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "SAVE10", rows[0].Code)
	require.Equal(t, 1, q.topCalls)
}
