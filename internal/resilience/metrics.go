package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pasar",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Breaker state per target: 0=closed, 1=open, 2=half-open.",
		},
		[]string{"target"},
	)
	breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasar",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Breaker state transitions per target.",
		},
		[]string{"target", "from", "to"},
	)
	breakerOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasar",
			Subsystem: "breaker",
			Name:      "opened_total",
			Help:      "Times a breaker opened per target.",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(breakerState, breakerTransitions, breakerOpened)
}
