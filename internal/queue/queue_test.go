package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnqueueDeduplicatesByKey(t *testing.T) {
	client := newTestRedis(t)
	enq := Enqueuer{R: client, Prefix: "wq", DedupTTL: time.Minute, MaxAttempts: 3}
	ctx := context.Background()

	task := Task{Kind: "webhook", IdempotencyKey: "delivery-1", Payload: []byte(`{"deliveryId":"delivery-1"}`)}
	require.NoError(t, enq.Enqueue(ctx, task))
	require.NoError(t, enq.Enqueue(ctx, task))

	depth, err := client.ZCard(ctx, "wq:queue:webhook").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, depth)
}

func TestEnqueueRejectsBadKind(t *testing.T) {
	client := newTestRedis(t)
	enq := Enqueuer{R: client, Prefix: "wq"}

	err := enq.Enqueue(context.Background(), Task{Kind: "web hook"})
	require.Error(t, err)
}

func TestWorkerDeliversTask(t *testing.T) {
	client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enq := Enqueuer{R: client, Prefix: "wq", MaxAttempts: 3}
	require.NoError(t, enq.Enqueue(ctx, Task{Kind: "webhook", IdempotencyKey: "delivery-2", Payload: []byte(`{"deliveryId":"delivery-2"}`)}))

	var got atomic.Value
	worker := Worker{
		R:                 client,
		Prefix:            "wq",
		Kind:              "webhook",
		VisibilityTimeout: time.Second,
		Handler: func(_ context.Context, task Task) error {
			got.Store(string(task.Payload))
			cancel()
			return nil
		},
	}
	_ = worker.Run(ctx)

	require.Eventually(t, func() bool {
		payload, _ := got.Load().(string)
		return payload == `{"deliveryId":"delivery-2"}`
	}, time.Second, 10*time.Millisecond)

	depth, err := client.ZCard(context.Background(), "wq:queue:webhook").Result()
	require.NoError(t, err)
	require.EqualValues(t, 0, depth)
}

func TestWorkerRetriesFailedTask(t *testing.T) {
	client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enq := Enqueuer{R: client, Prefix: "wq", MaxAttempts: 5}
	require.NoError(t, enq.Enqueue(ctx, Task{Kind: "webhook", IdempotencyKey: "delivery-3", Payload: []byte(`{}`)}))

	var attempts atomic.Int32
	worker := Worker{
		R:                 client,
		Prefix:            "wq",
		Kind:              "webhook",
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		Handler: func(_ context.Context, task Task) error {
			n := attempts.Add(1)
			if n < 2 {
				return errors.New("endpoint unreachable")
			}
			cancel()
			return nil
		},
	}
	_ = worker.Run(ctx)

	require.GreaterOrEqual(t, attempts.Load(), int32(2))
}
