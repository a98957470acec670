package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts point-query permission evaluations by outcome reason.
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boteco_permission_checks_total",
			Help: "Total number of permission point queries",
		},
		[]string{"result", "reason"},
	)

	// SnapshotBuilds counts full permission snapshot rebuilds.
	SnapshotBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boteco_snapshot_builds_total",
			Help: "Total number of permission snapshot rebuilds",
		},
		[]string{"result"},
	)

	// SnapshotCache tracks snapshot cache hits, stale entries and misses.
	SnapshotCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boteco_snapshot_cache_total",
			Help: "Snapshot cache lookups by outcome (hit|stale|miss)",
		},
		[]string{"outcome"},
	)

	// CacheInvalidations counts tenant-wide snapshot invalidations.
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boteco_cache_invalidations_total",
			Help: "Tenant snapshot invalidations by trigger (mutation|pubsub)",
		},
		[]string{"trigger"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boteco_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
