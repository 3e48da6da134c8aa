// Package metrics provides Prometheus metrics for the keel recommendation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the keel service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Core business metrics - the visit-to-recommendation pipeline
	visitsAccepted  prometheus.Counter
	visitsDuplicate prometheus.Counter
	resolveOutcomes *prometheus.CounterVec
	resolveLatency  prometheus.Histogram
	resolveFallback prometheus.Counter
	recommendations prometheus.Counter
	rankingLatency  prometheus.Histogram

	// Upstream cache metrics
	placeCacheHits   prometheus.Counter
	placeCacheMisses prometheus.Counter

	// Operational health metrics
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	workerCount     prometheus.Gauge
	idempotencyKeys prometheus.Gauge

	// HTTP performance metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Quality metrics
	pipelineErrors prometheus.Counter
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "keel",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.visitsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "visits_accepted_total",
		Help:      "Total number of visit events accepted for processing",
	})

	m.visitsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "visits_duplicate_total",
		Help:      "Total number of visit events rejected as duplicates",
	})

	m.resolveOutcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolve_outcomes_total",
		Help:      "Merchant resolution outcomes by result (resolved, fallback, not_found, error)",
	}, []string{"outcome"})

	m.resolveLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolve_latency_milliseconds",
		Help:      "Histogram of merchant resolution latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.resolveFallback = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolve_fallback_total",
		Help:      "Total number of category-only fallback lookups",
	})

	m.recommendations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recommendations_total",
		Help:      "Total number of card recommendations produced",
	})

	m.rankingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_latency_milliseconds",
		Help:      "Histogram of card ranking latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.placeCacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "place_cache_hits_total",
		Help:      "Total number of place lookups served from cache",
	})

	m.placeCacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "place_cache_misses_total",
		Help:      "Total number of place lookups that went upstream",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current number of visit events waiting in the queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured capacity of the visit event queue",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of pipeline workers",
	})

	m.idempotencyKeys = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "idempotency_keys",
		Help:      "Approximate number of live idempotency records",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Histogram of HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})

	m.pipelineErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pipeline_errors_total",
		Help:      "Total number of pipeline executions that ended in an error",
	})
}

// RecordVisitAccepted increments the accepted visits counter.
func RecordVisitAccepted() {
	globalManager.visitsAccepted.Inc()
}

// RecordVisitDuplicate increments the duplicate visits counter.
func RecordVisitDuplicate() {
	globalManager.visitsDuplicate.Inc()
}

// RecordResolveOutcome counts a merchant resolution outcome.
func RecordResolveOutcome(outcome string) {
	globalManager.resolveOutcomes.WithLabelValues(outcome).Inc()
}

// RecordResolveLatency records merchant resolution latency in milliseconds.
func RecordResolveLatency(latencyMs float64) {
	globalManager.resolveLatency.Observe(latencyMs)
}

// RecordResolveFallback increments the fallback lookup counter.
func RecordResolveFallback() {
	globalManager.resolveFallback.Inc()
}

// RecordRecommendation increments the recommendations counter.
func RecordRecommendation() {
	globalManager.recommendations.Inc()
}

// RecordRankingLatency records card ranking latency in milliseconds.
func RecordRankingLatency(latencyMs float64) {
	globalManager.rankingLatency.Observe(latencyMs)
}

// RecordPlaceCacheHit increments the place cache hit counter.
func RecordPlaceCacheHit() {
	globalManager.placeCacheHits.Inc()
}

// RecordPlaceCacheMiss increments the place cache miss counter.
func RecordPlaceCacheMiss() {
	globalManager.placeCacheMisses.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the configured queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateIdempotencyKeys sets the live idempotency record estimate.
func UpdateIdempotencyKeys(count int64) {
	globalManager.idempotencyKeys.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordPipelineError increments the pipeline error counter.
func RecordPipelineError() {
	globalManager.pipelineErrors.Inc()
}

// GetRegistry returns the custom Prometheus registry used by the service.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
