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

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	sourcesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_sources_total",
			Help: "Sources processed by the ingest pipeline, by format and outcome.",
		},
		[]string{"format", "status", "kind"},
	)

	droppedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_dropped_rows_total",
			Help: "Rows or features excluded during normalization.",
		},
		[]string{"format"},
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_stage_duration_seconds",
			Help:    "Duration of pipeline stages per source.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"stage"},
	)

	exportBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_bytes_total",
			Help: "Bytes of combined CSV written.",
		},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Catalog cache results by outcome.",
		},
		[]string{"outcome"},
	)

	kafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_total",
			Help: "Kafka messages by direction and result.",
		},
		[]string{"direction", "result"},
	)
)

// Collectors returns the service collectors so they can also be registered
// on a dedicated registry. Build info is left out; the dedicated registry
// carries its own.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		sourcesTotal,
		droppedRowsTotal,
		stageDurationSeconds,
		exportBytesTotal,
		cacheResults,
		kafkaMessagesTotal,
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamLatencySeconds.WithLabelValues(upstream, outcome).Observe(durationSeconds)
}

func ObserveSource(format, status, kind string) {
	if format == "" {
		format = "none"
	}
	sourcesTotal.WithLabelValues(format, status, kind).Inc()
}

func AddDroppedRows(format string, n int) {
	if n <= 0 {
		return
	}
	droppedRowsTotal.WithLabelValues(format).Add(float64(n))
}

func ObserveStage(stage string, durationSeconds float64) {
	stageDurationSeconds.WithLabelValues(stage).Observe(durationSeconds)
}

func AddExportBytes(n int64) {
	if n > 0 {
		exportBytesTotal.Add(float64(n))
	}
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }
func IncCacheError() {
	cacheResults.WithLabelValues("error").Inc()
}

func IncKafka(direction string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	kafkaMessagesTotal.WithLabelValues(direction, result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
