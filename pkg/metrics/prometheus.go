// Package metrics provides Prometheus metrics for the Pulse pricing engine.
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

// Manager manages all Prometheus metrics for the Pulse service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Tick Engine Metrics - the heart of the pricing loop
	ticksTotal        prometheus.Counter
	tickErrors        prometheus.Counter
	tickSkipped       prometheus.Counter
	tickDuration      prometheus.Histogram
	computeLatency    prometheus.Histogram
	snapshotsWritten  prometheus.Counter
	commitConflicts   prometheus.Counter
	opportunitiesOpen prometheus.Gauge
	closuresPerformed prometheus.Counter

	// Registry Metrics - hot-reloadable config reads
	registryLoads      prometheus.Counter
	registryLoadErrors prometheus.Counter

	// Queue Metrics - tick job queue health
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	queueDequeues      prometheus.Counter

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerErrors            prometheus.Counter
	workerProcessingLatency prometheus.Histogram

	// Distribution Metrics - websocket fan-out
	subscriberCount       prometheus.Gauge
	priceUpdatesPublished prometheus.Counter
	updatesCoalesced      prometheus.Counter

	// Notification Metrics
	notificationsSent       *prometheus.CounterVec
	notificationsSuppressed prometheus.Counter
	notificationErrors      *prometheus.CounterVec
	pushSubscriptionsPruned prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pulse",
		subsystem:        "pricing",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Tick Engine Metrics
	m.ticksTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ticks_total",
		Help:      "Total number of tick runs that committed at least one opportunity",
	})
	m.tickErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tick_errors_total",
		Help:      "Total number of per-opportunity tick failures (caught and skipped)",
	})
	m.tickSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ticks_skipped_total",
		Help:      "Total number of ticks skipped because a previous tick was still in flight",
	})
	m.tickDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tick_duration_milliseconds",
		Help:      "Duration of one full scheduled tick across all opportunities",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})
	m.computeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "compute_latency_milliseconds",
		Help:      "Latency of one opportunity's signal gathering and price computation",
		Buckets:   m.histogramBuckets,
	})
	m.snapshotsWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshots_written_total",
		Help:      "Total number of immutable price snapshots appended",
	})
	m.commitConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "commit_conflicts_total",
		Help:      "Total number of optimistic version conflicts on tick commit",
	})
	m.opportunitiesOpen = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "opportunities_open",
		Help:      "Number of open opportunities eligible for ticking",
	})
	m.closuresPerformed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "closures_total",
		Help:      "Total number of terminal closures performed by the deadline sweep",
	})

	// Registry Metrics
	m.registryLoads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "registry_loads_total",
		Help:      "Total number of registry/config snapshot loads",
	})
	m.registryLoadErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "registry_load_errors_total",
		Help:      "Total number of failed registry/config snapshot loads",
	})

	// Queue Metrics
	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current number of queued tick jobs",
	})
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured capacity of the tick job queue",
	})
	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization",
		Help:      "Tick job queue utilization ratio (0-1)",
	})
	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueues_total",
		Help:      "Total number of tick jobs enqueued",
	})
	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Total number of rejected enqueues (backpressure, closed queue)",
	})
	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeues_total",
		Help:      "Total number of tick jobs dequeued by workers",
	})

	// Worker Metrics
	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of tick workers",
	})
	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of worker processing errors",
	})
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "End-to-end latency of one tick job inside a worker",
		Buckets:   m.histogramBuckets,
	})

	// Distribution Metrics
	m.subscriberCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_subscribers",
		Help:      "Number of connected price stream subscribers",
	})
	m.priceUpdatesPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "price_updates_published_total",
		Help:      "Total number of committed price updates published to the hub",
	})
	m.updatesCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "price_updates_coalesced_total",
		Help:      "Total number of undelivered updates replaced by a newer price",
	})

	// Notification Metrics
	m.notificationsSent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_sent_total",
		Help:      "Total notifications dispatched, by template and channel",
	}, []string{"template", "channel"})
	m.notificationsSuppressed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_suppressed_total",
		Help:      "Total notifications suppressed by the idempotency ledger",
	})
	m.notificationErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notification_errors_total",
		Help:      "Total notification delivery failures, by channel",
	}, []string{"channel"})
	m.pushSubscriptionsPruned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "push_subscriptions_pruned_total",
		Help:      "Total dead push subscriptions removed after delivery failures",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration by endpoint, method and status code",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// Tick Engine Metrics Functions.

// RecordTickCommitted increments the committed ticks counter.
func RecordTickCommitted() {
	globalManager.ticksTotal.Inc()
}

// RecordTickError increments the per-opportunity tick error counter.
func RecordTickError() {
	globalManager.tickErrors.Inc()
}

// RecordTickSkipped increments the in-flight skip counter.
func RecordTickSkipped() {
	globalManager.tickSkipped.Inc()
}

// RecordTickDuration records one full tick's duration in milliseconds.
func RecordTickDuration(latencyMs float64) {
	globalManager.tickDuration.Observe(latencyMs)
}

// RecordComputeLatency records one opportunity's compute latency in milliseconds.
func RecordComputeLatency(latencyMs float64) {
	globalManager.computeLatency.Observe(latencyMs)
}

// RecordSnapshotWritten increments the snapshot append counter.
func RecordSnapshotWritten() {
	globalManager.snapshotsWritten.Inc()
}

// RecordCommitConflict increments the optimistic version conflict counter.
func RecordCommitConflict() {
	globalManager.commitConflicts.Inc()
}

// UpdateOpenOpportunities sets the open opportunity gauge.
func UpdateOpenOpportunities(count int) {
	globalManager.opportunitiesOpen.Set(float64(count))
}

// RecordClosures adds to the sweep closure counter.
func RecordClosures(count int) {
	globalManager.closuresPerformed.Add(float64(count))
}

// Registry Metrics Functions.

// RecordRegistryLoad increments the registry load counter.
func RecordRegistryLoad() {
	globalManager.registryLoads.Inc()
}

// RecordRegistryLoadError increments the registry load error counter.
func RecordRegistryLoadError() {
	globalManager.registryLoadErrors.Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the configured queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueEnqueueError increments the rejected enqueue counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordWorkerProcessingLatency records one tick job's latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// Distribution Metrics Functions.

// UpdateSubscriberCount sets the connected subscriber gauge.
func UpdateSubscriberCount(count int) {
	globalManager.subscriberCount.Set(float64(count))
}

// RecordPriceUpdatePublished increments the published update counter.
func RecordPriceUpdatePublished() {
	globalManager.priceUpdatesPublished.Inc()
}

// RecordUpdateCoalesced increments the coalesced update counter.
func RecordUpdateCoalesced() {
	globalManager.updatesCoalesced.Inc()
}

// Notification Metrics Functions.

// RecordNotificationSent increments the sent counter for a template/channel.
func RecordNotificationSent(template, channel string) {
	globalManager.notificationsSent.WithLabelValues(template, channel).Inc()
}

// RecordNotificationSuppressed increments the ledger suppression counter.
func RecordNotificationSuppressed() {
	globalManager.notificationsSuppressed.Inc()
}

// RecordNotificationError increments the delivery failure counter for a channel.
func RecordNotificationError(channel string) {
	globalManager.notificationErrors.WithLabelValues(channel).Inc()
}

// RecordPushSubscriptionPruned increments the pruned subscription counter.
func RecordPushSubscriptionPruned() {
	globalManager.pushSubscriptionsPruned.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used for serving /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
