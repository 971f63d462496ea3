package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	// Depth tracks ready tasks per kind, refreshed by the admin stats endpoint.
	Depth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pasar",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Approximate number of ready tasks per kind",
		},
		[]string{"kind"},
	)
	// ProcessedTotal counts finished attempts per kind and outcome (ok, retry, dead).
	ProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasar",
			Subsystem: "queue",
			Name:      "processed_total",
			Help:      "Total task attempts grouped by outcome",
		},
		[]string{"kind", "outcome"},
	)
	// DeadSize tracks parked dead tasks per kind.
	DeadSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pasar",
			Subsystem: "queue",
			Name:      "dead_tasks",
			Help:      "Number of tasks parked in the dead letter store",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(Depth, ProcessedTotal, DeadSize)
}
