package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	EscrowOperationCreate   = "create"
	EscrowOperationApprove  = "approve"
	EscrowOperationWithdraw = "withdraw"
	EscrowOperationReturn   = "return"
	EscrowOperationCount    = "count"
	EscrowOperationDetails  = "details"

	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
)

var (
	EscrowOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_deposit_escrow_operations_total",
			Help: "Total number of escrow operations",
		},
		[]string{"operation", "status"},
	)

	EscrowOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rental_deposit_escrow_operation_duration_seconds",
			Help:    "Duration of escrow operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"operation"},
	)

	CustodyHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rental_deposit_custody_held",
			Help: "Value currently held in escrow custody, in the smallest currency unit",
		},
	)

	CustodyTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_deposit_custody_transfers_total",
			Help: "Total number of custody transfers",
		},
		[]string{"direction", "status"},
	)

	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_deposit_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "status"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rental_deposit_rate_limited_requests_total",
			Help: "Total number of requests rejected by the per-account rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(EscrowOperations)
	prometheus.MustRegister(EscrowOperationDuration)
	prometheus.MustRegister(CustodyHeld)
	prometheus.MustRegister(CustodyTransfers)
	prometheus.MustRegister(CacheOperations)
	prometheus.MustRegister(RateLimited)
}
