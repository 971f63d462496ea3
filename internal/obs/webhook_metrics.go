package obs

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhookDispatchAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_dispatch_attempts_total",
			Help: "Total webhook delivery attempts",
		},
	)
	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery outcomes",
		},
		[]string{"status"},
	)
	WebhookAttemptLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_attempt_latency_ms",
			Help:    "Webhook delivery attempt latency in milliseconds",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)
	WebhookDispatchDLQ = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_dispatch_dlq_total",
			Help: "Webhook deliveries exhausted into the DLQ",
		},
	)
)

func init() {
	prometheus.MustRegister(WebhookDispatchAttempts, WebhookDeliveriesTotal, WebhookAttemptLatency, WebhookDispatchDLQ)
}
