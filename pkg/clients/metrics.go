package clients

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 0=closed, 1=half-open, 2=open
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nova_circuit_breaker_state",
		Help: "Current state of each upstream circuit breaker.",
	}, []string{"name"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nova_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions.",
	}, []string{"name", "from", "to"})
)
