package notify

import (
	"context"
	"strings"
	"time"

	"github.com/noah-isme/backend-pasar/internal/queue"
)

const webhookDeliveryTask = "webhook-delivery"

// WebhookDeliveryTask returns the queue kind webhook deliveries run under.
func WebhookDeliveryTask() string {
	return webhookDeliveryTask
}

// EnqueueDelivery schedules a delivery attempt on the task queue. Without a
// configured queue the call is a no-op; the delivery row stays pending and
// can be replayed through the admin API.
func (d *Dispatcher) EnqueueDelivery(ctx context.Context, deliveryID string, delay time.Duration, maxAttempts int) error {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" || d.Queue.R == nil {
		return nil
	}
	if maxAttempts <= 0 {
		if maxAttempts = d.DefaultMaxAttempts; maxAttempts <= 0 {
			maxAttempts = 6
		}
	}
	return d.Queue.Enqueue(ctx, queue.Task{
		Kind:           webhookDeliveryTask,
		Payload:        []byte(deliveryID),
		IdempotencyKey: deliveryID,
		MaxAttempts:    maxAttempts,
		Delay:          delay,
	})
}
