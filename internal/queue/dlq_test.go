package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExhaustedTaskParksInDeadStore(t *testing.T) {
	client := newTestRedis(t)
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enq := Enqueuer{R: client, Prefix: "dq", MaxAttempts: 2}
	require.NoError(t, enq.Enqueue(ctx, Task{Kind: "webhook", IdempotencyKey: "delivery-9", Payload: []byte(`{"deliveryId":"delivery-9"}`)}))

	var attempts atomic.Int32
	worker := Worker{
		R:                 client,
		Prefix:            "dq",
		Kind:              "webhook",
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		Store:             store,
		Handler: func(_ context.Context, task Task) error {
			if attempts.Add(1) >= 2 {
				defer cancel()
			}
			return errors.New("endpoint gone")
		},
	}
	_ = worker.Run(ctx)

	require.Eventually(t, func() bool {
		return len(store.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	dead := store.all()[0]
	require.Equal(t, "webhook", dead.Kind)
	require.Equal(t, "delivery-9", dead.DedupKey)
	require.Equal(t, 2, dead.Attempts)
	require.NotNil(t, dead.LastError)
	require.Contains(t, *dead.LastError, "endpoint gone")

	// dedup key released so a replay with the same key is accepted again
	exists, err := client.Exists(context.Background(), "dq:dedup:webhook:delivery-9").Result()
	require.NoError(t, err)
	require.EqualValues(t, 0, exists)
}

func TestParkFallsBackToRedisWithoutStore(t *testing.T) {
	client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enq := Enqueuer{R: client, Prefix: "dq", MaxAttempts: 1}
	require.NoError(t, enq.Enqueue(ctx, Task{Kind: "webhook", Payload: []byte(`{}`)}))

	worker := Worker{
		R:                 client,
		Prefix:            "dq",
		Kind:              "webhook",
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		Handler: func(_ context.Context, _ Task) error {
			defer cancel()
			return errors.New("endpoint gone")
		},
	}
	_ = worker.Run(ctx)

	require.Eventually(t, func() bool {
		n, err := client.LLen(context.Background(), "dq:webhook:dlq").Result()
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}
