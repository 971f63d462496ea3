package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLimiterSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := Limiter{Client: client, Prefix: "rl:"}
	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		verdict, err := limiter.Allow(ctx, "preview:c:cust-1", window, max)
		require.NoError(t, err)
		require.True(t, verdict.Allowed, "request %d should pass", i)
		require.Equal(t, max-(i+1), verdict.Remaining)
	}

	verdict, err := limiter.Allow(ctx, "preview:c:cust-1", window, max)
	require.NoError(t, err)
	require.False(t, verdict.Allowed)
	require.Zero(t, verdict.Remaining)

	mr.FastForward(window)

	verdict, err = limiter.Allow(ctx, "preview:c:cust-1", window, max)
	require.NoError(t, err)
	require.True(t, verdict.Allowed, "window slid past the burst")
}

func TestLimiterWithoutClientAdmits(t *testing.T) {
	verdict, err := Limiter{}.Allow(context.Background(), "any", time.Second, 5)
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.Equal(t, 5, verdict.Remaining)
}
