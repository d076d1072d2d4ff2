// Package observability holds the prometheus metric vectors shared by
// the serving path, the cache, and the catalog builder.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	tileQuerySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_query_duration_seconds",
			Help:    "Latency of tile function calls against Postgres.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"source", "outcome"},
	)

	catalogFunctions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_functions",
			Help: "Function sources by resolution status in the current snapshot.",
		},
		[]string{"status"},
	)

	catalogVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_snapshot_version",
			Help: "Version counter of the published catalog snapshot.",
		},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Tile cache results by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Latency of cache store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveTileQuery(source string, err error, durationSeconds float64) {
	tileQuerySeconds.WithLabelValues(source, outcome(err)).Observe(durationSeconds)
}

// SetCatalog records the size and version of a freshly published
// snapshot.
func SetCatalog(accepted, rejected int, version uint64) {
	catalogFunctions.WithLabelValues("accepted").Set(float64(accepted))
	catalogFunctions.WithLabelValues("rejected").Set(float64(rejected))
	catalogVersion.Set(float64(version))
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOpSeconds.WithLabelValues(op, outcome(err)).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
