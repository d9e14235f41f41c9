// Package metrics exposes Prometheus instruments for the import pipeline.
// Helpers are no-ops until Init is called.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fleetimport_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	rowsTotal       *prometheus.CounterVec
	chunksTotal     *prometheus.CounterVec
	chunkLatency    *prometheus.HistogramVec
	commitsTotal    *prometheus.CounterVec
	commitLatency   *prometheus.HistogramVec
	activeCommits   prometheus.Gauge
	advisorTotal    *prometheus.CounterVec
	advisorLatency  *prometheus.HistogramVec
	advisorCacheHit *prometheus.CounterVec
	decodeTotal     *prometheus.CounterVec
)

// Init registers the import metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		rowsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_total",
				Help: "Rows processed by commit outcome",
			},
			[]string{"entity", "outcome"},
		)
		chunksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "chunks_total",
				Help: "Persisted chunks by final tier and result",
			},
			[]string{"entity", "tier", "result"},
		)
		chunkLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "chunk_latency_seconds",
				Help:    "Chunk persistence latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity", "tier"},
		)
		commitsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commits_total",
				Help: "Finished commits by terminal status",
			},
			[]string{"entity", "status"},
		)
		commitLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "commit_latency_seconds",
				Help:    "Commit duration in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"entity", "status"},
		)
		activeCommits = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_commits",
				Help: "Commits currently holding a limiter slot",
			},
		)
		advisorTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "advisor_requests_total",
				Help: "Assisted mapping calls by provider and result",
			},
			[]string{"provider", "result"},
		)
		advisorLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "advisor_latency_seconds",
				Help:    "Assisted mapping latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		)
		advisorCacheHit = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "advisor_cache_total",
				Help: "Suggestion cache lookups by result",
			},
			[]string{"result"},
		)
		decodeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decode_total",
				Help: "Decoded files by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			rowsTotal,
			chunksTotal,
			chunkLatency,
			commitsTotal,
			commitLatency,
			activeCommits,
			advisorTotal,
			advisorLatency,
			advisorCacheHit,
			decodeTotal,
		)
	})
}

// AddRows increments the row counter for an outcome bucket.
func AddRows(entity, outcome string, n int) {
	if n <= 0 {
		return
	}
	if rowsTotal != nil {
		rowsTotal.WithLabelValues(entity, outcome).Add(float64(n))
	}
}

// ObserveChunk records one chunk's final tier, result and latency.
func ObserveChunk(entity, tier, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if chunksTotal != nil {
		chunksTotal.WithLabelValues(entity, tier, result).Inc()
	}
	if chunkLatency != nil {
		chunkLatency.WithLabelValues(entity, tier).Observe(duration.Seconds())
	}
}

// ObserveCommit records a finished commit.
func ObserveCommit(entity, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	if commitsTotal != nil {
		commitsTotal.WithLabelValues(entity, status).Inc()
	}
	if commitLatency != nil {
		commitLatency.WithLabelValues(entity, status).Observe(duration.Seconds())
	}
}

// SetActiveCommits sets the active commit gauge.
func SetActiveCommits(n int) {
	if activeCommits != nil {
		activeCommits.Set(float64(n))
	}
}

// ObserveAdvisor records an assisted mapping call.
func ObserveAdvisor(provider, result string, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if advisorTotal != nil {
		advisorTotal.WithLabelValues(provider, result).Inc()
	}
	if advisorLatency != nil {
		advisorLatency.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

// IncAdvisorCache counts a suggestion cache hit or miss.
func IncAdvisorCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	if advisorCacheHit != nil {
		advisorCacheHit.WithLabelValues(result).Inc()
	}
}

// IncDecode counts a decoded file.
func IncDecode(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if decodeTotal != nil {
		decodeTotal.WithLabelValues(format, result).Inc()
	}
}
