package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crosscount_query_duration_seconds",
		Help:    "Latency of analytics query operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosscount_query_errors_total",
		Help: "Analytics queries that returned an error",
	}, []string{"operation"})

	RetentionDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosscount_retention_deleted_total",
		Help: "Counting events removed by the retention sweep",
	})

	OccupancyCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosscount_occupancy_cache_total",
		Help: "Occupancy snapshot cache lookups",
	}, []string{"result"}) // hit, miss, error
)
