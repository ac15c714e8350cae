// internal/service/cache/metrics.go
package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_guard_hits_total",
		Help: "Cache reads served from Redis.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_guard_misses_total",
		Help: "Cache reads that fell through to a loader.",
	})

	loaderCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_guard_loader_calls_total",
		Help: "Origin loads executed (lock winners, fallbacks and refreshes).",
	})

	earlyRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_guard_early_refreshes_total",
		Help: "Probabilistic early refreshes completed.",
	})
)
