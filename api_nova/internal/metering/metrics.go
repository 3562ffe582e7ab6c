package metering

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	usageFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "usage_flushes_total",
			Help:      "Usage buffer flushes by outcome",
		},
		[]string{"status"},
	)

	usageBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nova",
			Name:      "usage_buffered_records",
			Help:      "Usage records waiting to be persisted",
		},
	)

	usageDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "usage_dropped_total",
			Help:      "Usage records dropped because the buffer was full",
		},
	)
)
