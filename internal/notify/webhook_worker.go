package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/backend-pasar/internal/lock"
)

// DeliveryWorker consumes webhook delivery tasks: each task payload is a
// delivery id, executed under a per-delivery lock so redelivered tasks never
// run concurrently.
type DeliveryWorker struct {
	Dispatcher *Dispatcher
	Locker     lock.Locker
	LockTTL    time.Duration
}

func (w DeliveryWorker) Handle(ctx context.Context, payload []byte) error {
	if w.Dispatcher == nil {
		return errors.New("webhook worker: dispatcher not configured")
	}
	deliveryID := strings.TrimSpace(string(payload))
	if deliveryID == "" {
		return nil
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return w.Locker.WithLock(ctx, "lock:delivery:"+deliveryID, ttl, func(ctx context.Context) error {
		return w.Dispatcher.DeliverByID(ctx, deliveryID)
	})
}
