// internal/service/coupon/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	issuanceResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_issuance_results_total",
		Help: "Issuance attempts by outcome.",
	}, []string{"result"})

	enqueueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_waiting_enqueue_total",
		Help: "Users admitted into the waiting queue.",
	})

	drainIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_drain_issued_total",
		Help: "Issuances completed by the drain loop.",
	})

	drainCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_drain_cycles_total",
		Help: "Drain cycles executed.",
	})
)
