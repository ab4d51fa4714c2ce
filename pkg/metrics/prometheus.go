// Package metrics provides Prometheus metrics for the rivalry forecast service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Forecast request outcomes used as label values.
const (
	OutcomeCacheHit  = "cache_hit"
	OutcomeComputed  = "computed"
	OutcomeWaitedHit = "waited_hit"
	OutcomeFailed    = "failed"
)

// Context lookup outcomes used as label values.
const (
	LookupSuccess  = "success"
	LookupMemoized = "memoized"
	LookupFailure  = "failure"
	LookupTimeout  = "timeout"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Forecast request handling
	forecastRequests      *prometheus.CounterVec
	orchestrationDuration prometheus.Histogram
	stageDuration         *prometheus.HistogramVec

	// Prediction cache
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheEntries prometheus.Gauge

	// In-flight dedup
	inflightClaims   prometheus.Gauge
	claimWaits       prometheus.Counter
	claimWaitTimeout prometheus.Counter
	claimTakeovers   prometheus.Counter
	claimWaitLatency prometheus.Histogram

	// External context fan-out
	contextLookups       *prometheus.CounterVec
	contextLookupLatency prometheus.Histogram
	locationCacheSize    prometheus.Gauge

	// Forecast generator
	generatorLatency prometheus.Histogram
	generatorErrors  prometheus.Counter

	// Progress stream
	progressPublished prometheus.Counter
	progressDropped   prometheus.Counter

	// Ranked dataset
	participantsTotal      prometheus.Gauge
	repositoryQueryLatency *prometheus.HistogramVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeStreams       prometheus.Gauge

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rivalry",
		subsystem:        "forecast",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// name applies the configured prefix to a metric name.
func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	reg := m.registry
	if !m.enabled {
		reg = nil
	}
	auto := promauto.With(reg)
	labels := prometheus.Labels(m.customLabels)

	m.forecastRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("requests_total"),
		Help:        "Forecast requests by outcome",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.orchestrationDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("orchestration_duration_milliseconds"),
		Help:        "End-to-end duration of a computed forecast",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("stage_duration_milliseconds"),
		Help:        "Duration of each orchestration stage",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"stage"})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("cache_hits_total"),
		Help:        "Prediction cache hits",
		ConstLabels: labels,
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("cache_misses_total"),
		Help:        "Prediction cache misses, including expired entries",
		ConstLabels: labels,
	})

	m.cacheEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("cache_entries"),
		Help:        "Entries currently held by the prediction cache",
		ConstLabels: labels,
	})

	m.inflightClaims = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("inflight_claims"),
		Help:        "Forecast computations currently holding a claim",
		ConstLabels: labels,
	})

	m.claimWaits = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("claim_waits_total"),
		Help:        "Requests that lost the claim race and waited",
		ConstLabels: labels,
	})

	m.claimWaitTimeout = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("claim_wait_timeouts_total"),
		Help:        "Waits that timed out before the claim was released",
		ConstLabels: labels,
	})

	m.claimTakeovers = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("claim_takeovers_total"),
		Help:        "Stale claims replaced by a waiting request",
		ConstLabels: labels,
	})

	m.claimWaitLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("claim_wait_milliseconds"),
		Help:        "Time spent waiting for another request's claim",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})

	m.contextLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("context_lookups_total"),
		Help:        "External context lookups by outcome",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.contextLookupLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("context_lookup_latency_milliseconds"),
		Help:        "Latency of remote context lookups",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})

	m.locationCacheSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("location_cache_entries"),
		Help:        "Entries in the per-location context cache",
		ConstLabels: labels,
	})

	m.generatorLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("generator_latency_milliseconds"),
		Help:        "Latency of forecast generator calls",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})

	m.generatorErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("generator_errors_total"),
		Help:        "Forecast generator failures",
		ConstLabels: labels,
	})

	m.progressPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("progress_events_total"),
		Help:        "Progress events accepted by a stream",
		ConstLabels: labels,
	})

	m.progressDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("progress_events_dropped_total"),
		Help:        "Progress events dropped because the stream was full or closed",
		ConstLabels: labels,
	})

	m.participantsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("participants_total"),
		Help:        "Participants in the most recent ranked snapshot",
		ConstLabels: labels,
	})

	m.repositoryQueryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("repository_query_latency_milliseconds"),
		Help:        "Ranked dataset query latency by backend and operation",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"backend", "operation"})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds (user experience)",
			Buckets:     m.histogramBuckets,
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.activeStreams = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("active_streams"),
		Help:        "Open forecast progress streams",
		ConstLabels: labels,
	})

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_component_total"),
			Help:        "Total number of errors by component",
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_type_total"),
			Help:        "Total number of errors by type",
			ConstLabels: labels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_endpoint_total"),
			Help:        "Total number of errors by endpoint",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("error_latency_milliseconds"),
			Help:        "Latency of operations that resulted in errors",
			Buckets:     m.histogramBuckets,
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: labels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: labels,
	})
}

// Forecast request functions.

// RecordForecastRequest counts a finished forecast request by outcome.
func RecordForecastRequest(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.forecastRequests.WithLabelValues(outcome).Inc()
}

// RecordOrchestrationDuration records the duration of a computed forecast.
func RecordOrchestrationDuration(latencyMs float64) {
	globalManager.orchestrationDuration.Observe(latencyMs)
}

// RecordStageDuration records how long one orchestration stage took.
func RecordStageDuration(stage string, latencyMs float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(latencyMs)
}

// Cache functions.

// RecordCacheHit increments the prediction cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the prediction cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// UpdateCacheEntries sets the number of entries in the prediction cache.
func UpdateCacheEntries(count int) {
	globalManager.cacheEntries.Set(float64(count))
}

// In-flight functions.

// UpdateInflightClaims sets the number of held claims.
func UpdateInflightClaims(count int) {
	globalManager.inflightClaims.Set(float64(count))
}

// RecordClaimWait records a request that waited on another claim.
func RecordClaimWait(waitMs float64, timedOut bool) {
	globalManager.claimWaits.Inc()
	globalManager.claimWaitLatency.Observe(waitMs)
	if timedOut {
		globalManager.claimWaitTimeout.Inc()
	}
}

// RecordClaimTakeover counts a stale claim replaced by a waiter.
func RecordClaimTakeover() {
	globalManager.claimTakeovers.Inc()
}

// Context lookup functions.

// RecordContextLookup counts one context lookup by outcome.
func RecordContextLookup(outcome string) {
	globalManager.contextLookups.WithLabelValues(outcome).Inc()
}

// RecordContextLookupLatency records the latency of one remote lookup.
func RecordContextLookupLatency(latencyMs float64) {
	globalManager.contextLookupLatency.Observe(latencyMs)
}

// UpdateLocationCacheSize sets the number of memoized locations.
func UpdateLocationCacheSize(count int) {
	globalManager.locationCacheSize.Set(float64(count))
}

// Generator functions.

// RecordGeneratorLatency records a forecast generator call latency.
func RecordGeneratorLatency(latencyMs float64) {
	globalManager.generatorLatency.Observe(latencyMs)
}

// RecordGeneratorError increments the generator error counter.
func RecordGeneratorError() {
	globalManager.generatorErrors.Inc()
}

// Progress functions.

// RecordProgressPublished counts an accepted progress event.
func RecordProgressPublished() {
	globalManager.progressPublished.Inc()
}

// RecordProgressDropped counts a dropped progress event.
func RecordProgressDropped() {
	globalManager.progressDropped.Inc()
}

// Repository functions.

// UpdateParticipantsTotal sets the participant count of the last snapshot.
func UpdateParticipantsTotal(count int) {
	globalManager.participantsTotal.Set(float64(count))
}

// RecordRepositoryQueryLatency records a dataset query latency.
func RecordRepositoryQueryLatency(backend, operation string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(backend, operation).Observe(latencyMs)
}

// HTTP functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateActiveStreams adjusts the open stream gauge by delta.
func UpdateActiveStreams(delta int) {
	globalManager.activeStreams.Add(float64(delta))
}

// Enhanced Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// Configure rebuilds the global manager from opts on a fresh registry. It is
// meant for process startup, before any handler reads GetRegistry.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithRegistry(reg))...)
	customRegistry = reg
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RefreshInterval returns how often periodic gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
