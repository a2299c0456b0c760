package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP surface metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cached_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"handler", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cached_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"handler"},
	)

	// Cache operation metrics, labeled by operation (put, get, delete, ...)
	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cached_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	CacheOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cached_operation_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"},
	)

	// Ledger counters, published as gauges from periodic snapshots
	CacheHits = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cached_hits",
			Help: "Cache hits recorded by the statistics ledger",
		},
		[]string{"tier"}, // tier: memory, disk
	)

	CacheMisses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cached_misses",
			Help: "Cache misses recorded by the statistics ledger",
		},
	)

	CacheEvictions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cached_evictions",
			Help: "Evictions recorded by the statistics ledger",
		},
		[]string{"tier"},
	)

	CacheOperations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cached_operations",
			Help: "Operations recorded by the statistics ledger",
		},
		[]string{"operation"}, // operation: put, get, delete
	)

	// Current tier state
	CacheItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cached_items",
			Help: "Current number of items per tier",
		},
		[]string{"tier"},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cached_size_bytes",
			Help: "Current total stored bytes (disk tier)",
		},
	)
)
