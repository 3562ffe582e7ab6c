package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "nova",
		Name:      "cache_events_total",
		Help:      "Cache lookups and stores by outcome",
	},
	[]string{"cache", "event"}, // hit, miss, stale, store, error
)

// PrometheusHooks counts cache events under the given cache name. Keys are
// not used as labels.
func PrometheusHooks(name string) MetricsHooks {
	count := func(event string) func(string) {
		counter := cacheEventsTotal.WithLabelValues(name, event)
		return func(string) { counter.Inc() }
	}
	return MetricsHooks{
		OnHit:   count("hit"),
		OnMiss:  count("miss"),
		OnStale: count("stale"),
		OnStore: func(string, bool) { cacheEventsTotal.WithLabelValues(name, "store").Inc() },
		OnError: count("error"),
	}
}
