package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vcond",
		Subsystem: "service",
		Name:      "operations_total",
		Help:      "Lifecycle operations by name and outcome.",
	}, []string{"operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vcond",
		Subsystem: "service",
		Name:      "operation_duration_seconds",
		Help:      "Lifecycle operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	hookVetoesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vcond",
		Subsystem: "service",
		Name:      "hook_vetoes_total",
		Help:      "Operations rejected by a plugin, by operation.",
	}, []string{"operation"})

	searchResultCount = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vcond",
		Subsystem: "service",
		Name:      "search_results",
		Help:      "Result-set sizes by search mode.",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	}, []string{"mode"})
)

// observe records one finished operation.
func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if IsKind(err, KindHookVetoed) {
			hookVetoesTotal.WithLabelValues(op).Inc()
		}
	}
	operationsTotal.WithLabelValues(op, outcome).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
