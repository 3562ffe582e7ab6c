package nova

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "llm_calls_total",
			Help:      "Total LLM API calls",
		},
		[]string{"tenant", "status"},
	)

	llmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nova",
			Name:      "llm_duration_seconds",
			Help:      "Duration of LLM API calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"tenant"},
	)

	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"tenant", "direction"}, // "input", "output"
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations requested by the model",
		},
		[]string{"tenant", "tool", "status"},
	)

	chatIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nova",
			Name:      "chat_iterations",
			Help:      "Tool rounds used per chat call",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
		},
	)
)
