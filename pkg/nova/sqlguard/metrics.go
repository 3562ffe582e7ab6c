package sqlguard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sqlRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "sql_rejections_total",
			Help:      "Model-generated SQL statements rejected by the validator",
		},
		[]string{"reason"},
	)

	sqlExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "sql_executions_total",
			Help:      "Validated SQL statements handed to tenant data sources",
		},
		[]string{"status"},
	)

	sqlDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nova",
			Name:      "sql_execution_duration_seconds",
			Help:      "Duration of tenant data source queries in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)
)
