package evaluator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torchcompat_evals_total",
		Help: "Evaluated operations by name and outcome",
	}, []string{"op", "status"})

	evalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "torchcompat_eval_duration_seconds",
		Help:    "Time spent evaluating one operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	rowNormsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torchcompat_row_norms_total",
		Help: "Row vectors whose norm was computed",
	})
)
