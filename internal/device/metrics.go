package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torchcompat_device_ops_total",
		Help: "Total number of primitive operations executed, by backend and op",
	}, []string{"backend", "op"})
)

func countOp(b Backend, op string) {
	opsTotal.WithLabelValues(b.Name(), op).Inc()
}
