package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torchcompat_primitive_cache_hits_total",
		Help: "Total number of primitive instances served from the cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torchcompat_primitive_cache_misses_total",
		Help: "Total number of primitive instances constructed",
	})
)
