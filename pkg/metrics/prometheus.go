// Package metrics provides Prometheus metrics for the worthrank service.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the worthrank service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Core business metrics
	submissions      prometheus.Counter
	duplicates       *prometheus.CounterVec
	rankComputations *prometheus.CounterVec
	degraded         *prometheus.CounterVec

	// Histogram store
	histogramIncrements      prometheus.Counter
	histogramIncrementErrors prometheus.Counter
	histogramBucketCount     prometheus.Gauge
	histogramTotal           prometheus.Gauge

	// Authoritative store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec
	storeSamples prometheus.Gauge

	// Deduplication guard
	durableCheckFailures prometheus.Counter
	recencyCacheSize     prometheus.Gauge
	recencyEvictions     prometheus.Counter

	// Fold pipeline
	foldQueueSize          prometheus.Gauge
	foldQueueCapacity      prometheus.Gauge
	foldQueueUtilization   prometheus.Gauge
	foldQueueEnqueueErrors prometheus.Counter
	workerActiveCount      prometheus.Gauge
	workerErrors           prometheus.Counter
	workerLatency          prometheus.Histogram

	// Reconciliation
	rebuildRuns     prometheus.Counter
	rebuildDrift    prometheus.Gauge
	rebuildDuration prometheus.Histogram
	rebuildLastUnix prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager atomic.Pointer[Manager] //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager.Store(NewManager(WithPrometheusRegistry(customRegistry)))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "worthrank",
		subsystem:        "rank",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// SetGlobal swaps the manager the package-level recorders write to.
func SetGlobal(m *Manager) error {
	if m == nil {
		return ErrNoManager
	}
	globalManager.Store(m)
	return nil
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.submissions = m.counter("submissions_total", "Total number of novel submissions persisted")
	m.duplicates = m.counterVec("duplicates_total", "Requests short-circuited by the deduplication guard", "layer")
	m.rankComputations = m.counterVec("rank_computations_total", "Rank computations by statistics backend", "backend")
	m.degraded = m.counterVec("degraded_computations_total", "Rank computations that degraded to a zero result", "backend")

	m.histogramIncrements = m.counter("histogram_increments_total", "Scores folded into the histogram store")
	m.histogramIncrementErrors = m.counter("histogram_increment_errors_total", "Failed histogram increments (sample persisted, histogram lagging)")
	m.histogramBucketCount = m.gauge("histogram_buckets", "Number of distinct rounded score buckets")
	m.histogramTotal = m.gauge("histogram_total", "Total count held by the histogram store")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Authoritative store operation latency in milliseconds", "operation")
	m.storeErrors = m.counterVec("store_errors_total", "Authoritative store failures by operation", "operation")
	m.storeSamples = m.gauge("store_samples", "Number of samples held by the authoritative store")

	m.durableCheckFailures = m.counter("durable_check_failures_total", "Durable duplicate checks that failed open")
	m.recencyCacheSize = m.gauge("recency_cache_size", "Entries held by the process-local recency cache")
	m.recencyEvictions = m.counter("recency_evictions_total", "Entries evicted from the recency cache")

	m.foldQueueSize = m.gauge("fold_queue_size", "Pending histogram fold events")
	m.foldQueueCapacity = m.gauge("fold_queue_capacity", "Maximum fold queue capacity")
	m.foldQueueUtilization = m.gauge("fold_queue_utilization_ratio", "Fold queue utilization ratio (size / capacity)")
	m.foldQueueEnqueueErrors = m.counter("fold_queue_enqueue_errors_total", "Fold events rejected by the queue")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of fold workers")
	m.workerErrors = m.counter("worker_errors_total", "Fold worker failures")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Fold worker processing latency in milliseconds", m.histogramBuckets)

	m.rebuildRuns = m.counter("histogram_rebuilds_total", "Histogram reconciliation runs")
	m.rebuildDrift = m.gauge("histogram_rebuild_drift", "Store total minus histogram total observed by the last rebuild")
	m.rebuildDuration = m.histogram("histogram_rebuild_duration_milliseconds", "Histogram rebuild duration in milliseconds", m.histogramBuckets)
	m.rebuildLastUnix = m.gauge("histogram_rebuild_last_unix", "Unix timestamp of the last successful rebuild")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func g() *Manager { return globalManager.Load() }

// Global returns the manager the package-level recorders currently write to.
func Global() *Manager { return g() }

// RecordSubmission increments the novel submissions counter.
func RecordSubmission() { g().submissions.Inc() }

// RecordDuplicate records a guard short-circuit for the given layer ("fast" or "durable").
func RecordDuplicate(layer string) { g().duplicates.WithLabelValues(layer).Inc() }

// RecordRankComputation records a rank computation against backend.
func RecordRankComputation(backend string) { g().rankComputations.WithLabelValues(backend).Inc() }

// RecordDegraded records a degraded computation against backend.
func RecordDegraded(backend string) { g().degraded.WithLabelValues(backend).Inc() }

// RecordHistogramIncrement counts a successful histogram fold.
func RecordHistogramIncrement() { g().histogramIncrements.Inc() }

// RecordHistogramIncrementError counts a failed histogram fold.
func RecordHistogramIncrementError() { g().histogramIncrementErrors.Inc() }

// UpdateHistogramShape sets the bucket count and total gauges.
func UpdateHistogramShape(buckets int, total int64) {
	g().histogramBucketCount.Set(float64(buckets))
	g().histogramTotal.Set(float64(total))
}

// RecordStoreLatency records authoritative store operation latency.
func RecordStoreLatency(operation string, latencyMs float64) {
	g().storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreError counts an authoritative store failure.
func RecordStoreError(operation string) { g().storeErrors.WithLabelValues(operation).Inc() }

// UpdateStoreSamples sets the number of stored samples.
func UpdateStoreSamples(count int64) { g().storeSamples.Set(float64(count)) }

// RecordDurableCheckFailure counts a durable duplicate check that failed open.
func RecordDurableCheckFailure() { g().durableCheckFailures.Inc() }

// UpdateRecencyCacheSize sets the recency cache size.
func UpdateRecencyCacheSize(size int64) { g().recencyCacheSize.Set(float64(size)) }

// RecordRecencyEvictions adds n evicted recency entries.
func RecordRecencyEvictions(n int) { g().recencyEvictions.Add(float64(n)) }

// UpdateFoldQueue sets the fold queue size, capacity and utilization.
func UpdateFoldQueue(size, capacity int) {
	g().foldQueueSize.Set(float64(size))
	g().foldQueueCapacity.Set(float64(capacity))
	if capacity > 0 {
		g().foldQueueUtilization.Set(float64(size) / float64(capacity))
	}
}

// RecordFoldEnqueueError counts a rejected fold event.
func RecordFoldEnqueueError() { g().foldQueueEnqueueErrors.Inc() }

// UpdateWorkerActiveCount sets the number of fold workers.
func UpdateWorkerActiveCount(count int) { g().workerActiveCount.Set(float64(count)) }

// RecordWorkerError counts a fold worker failure.
func RecordWorkerError() { g().workerErrors.Inc() }

// RecordWorkerProcessingLatency records fold worker latency.
func RecordWorkerProcessingLatency(latencyMs float64) { g().workerLatency.Observe(latencyMs) }

// RecordRebuild records a completed histogram rebuild.
func RecordRebuild(drift int64, durationMs float64, unix int64) {
	g().rebuildRuns.Inc()
	g().rebuildDrift.Set(float64(drift))
	g().rebuildDuration.Observe(durationMs)
	g().rebuildLastUnix.Set(float64(unix))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	g().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	g().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	g().errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	g().errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	g().errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// ErrorsByEndpoint exposes one errors_by_endpoint series for inspection.
func ErrorsByEndpoint(endpoint, method, errorType string) prometheus.Counter {
	return g().errorRateByEndpoint.WithLabelValues(endpoint, method, errorType)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { g().systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { g().systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { g().systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
