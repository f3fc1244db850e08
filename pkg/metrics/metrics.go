package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StorageOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "recordbase", Name: "storage_operations_total", Help: "Storage contract operations by operation, backend and status."},
		[]string{"op", "backend", "status"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "recordbase", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "recordbase", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(StorageOperations)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}

// ObserveStorage records one storage operation outcome.
func ObserveStorage(op, backend string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StorageOperations.WithLabelValues(op, backend, status).Inc()
}
