// Package metrics provides Prometheus metrics export for the memory engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "mnemo"
	subsystem = "memory"
)

// Job outcomes reported by the embedding worker.
const (
	OutcomeDone      = "done"
	OutcomeStale     = "stale"
	OutcomeDuplicate = "duplicate"
	OutcomeRetry     = "retry"
	OutcomeDead      = "dead"
	OutcomeLeaseLost = "lease_lost"
)

// PrometheusExporter exports memory metrics in Prometheus format.
// All Record methods are safe to call on a nil exporter.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Store metrics
	writes          *prometheus.CounterVec
	enqueueFailures *prometheus.CounterVec

	// Worker metrics
	jobs         *prometheus.CounterVec
	embedLatency *prometheus.HistogramVec
	queueDepth   *prometheus.GaugeVec

	// Search metrics
	searchLatency prometheus.Histogram
	searchResults prometheus.Histogram
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec

	// Curation metrics
	ingestTurns *prometheus.CounterVec
	toolCalls   *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.writes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "writes_total",
			Help:      "Total number of memory writes",
		},
		[]string{"category", "status"},
	)

	e.enqueueFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "enqueue_failures_total",
			Help:      "Embedding jobs that could not be enqueued after a committed write",
		},
		[]string{"category"},
	)

	e.jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "embedding_jobs_total",
			Help:      "Embedding jobs processed by outcome",
		},
		[]string{"outcome"},
	)

	e.embedLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "embed_latency_seconds",
			Help:      "Embedding provider latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"source"},
	)

	e.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "embedding_queue_jobs",
			Help:      "Embedding jobs by status at the last poll",
		},
		[]string{"status"},
	)

	e.searchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "search_latency_seconds",
			Help:      "Semantic search latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.searchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "search_results",
			Help:      "Number of results returned by semantic search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	e.ingestTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ingest_turns_total",
			Help:      "Conversation turns offered to auto-ingest",
		},
		[]string{"result"},
	)

	e.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tool_calls_total",
			Help:      "Total number of memory tool calls",
		},
		[]string{"tool_name", "status"},
	)

	e.toolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tool_latency_seconds",
			Help:      "Memory tool latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"tool_name"},
	)

	registry.MustRegister(
		e.writes,
		e.enqueueFailures,
		e.jobs,
		e.embedLatency,
		e.queueDepth,
		e.searchLatency,
		e.searchResults,
		e.cacheHits,
		e.cacheMisses,
		e.ingestTurns,
		e.toolCalls,
		e.toolLatency,
	)

	return e
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordWrite records a memory write.
func (e *PrometheusExporter) RecordWrite(category string, success bool) {
	if e == nil {
		return
	}
	e.writes.WithLabelValues(category, status(success)).Inc()
}

// RecordEnqueueFailure records a job that was lost after its entry committed.
func (e *PrometheusExporter) RecordEnqueueFailure(category string) {
	if e == nil {
		return
	}
	e.enqueueFailures.WithLabelValues(category).Inc()
}

// RecordJob records the outcome of one embedding job.
func (e *PrometheusExporter) RecordJob(outcome string) {
	if e == nil {
		return
	}
	e.jobs.WithLabelValues(outcome).Inc()
}

// RecordEmbedLatency records a provider call; source is "worker" or "search".
func (e *PrometheusExporter) RecordEmbedLatency(source string, latency time.Duration) {
	if e == nil {
		return
	}
	e.embedLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// SetQueueDepth publishes job counts by status.
func (e *PrometheusExporter) SetQueueDepth(counts map[string]int) {
	if e == nil {
		return
	}
	for s, n := range counts {
		e.queueDepth.WithLabelValues(s).Set(float64(n))
	}
}

// RecordSearch records a semantic search.
func (e *PrometheusExporter) RecordSearch(latency time.Duration, results int) {
	if e == nil {
		return
	}
	e.searchLatency.Observe(latency.Seconds())
	e.searchResults.Observe(float64(results))
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit(cacheType string) {
	if e == nil {
		return
	}
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(cacheType string) {
	if e == nil {
		return
	}
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordIngest records an auto-ingest turn; dropped turns hit a full queue.
func (e *PrometheusExporter) RecordIngest(dropped bool) {
	if e == nil {
		return
	}
	result := "accepted"
	if dropped {
		result = "dropped"
	}
	e.ingestTurns.WithLabelValues(result).Inc()
}

// RecordToolCall records a tool call metric.
func (e *PrometheusExporter) RecordToolCall(toolName string, latency time.Duration, success bool) {
	if e == nil {
		return
	}
	e.toolCalls.WithLabelValues(toolName, status(success)).Inc()
	e.toolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
}

// Handler returns the HTTP handler for Prometheus metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
