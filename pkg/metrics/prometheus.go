// Package metrics provides Prometheus metrics for the forecast engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every forecast metric.
type Manager struct {
	namespace         string
	subsystem         string
	latencyBuckets    []float64
	confidenceBuckets []float64
	multiplierBuckets []float64
	registry          prometheus.Registerer

	// Log processing
	logsProcessed         *prometheus.CounterVec
	creditEventViolations prometheus.Counter
	seedEventsGenerated   prometheus.Counter

	// Dashboards
	dashboardsBuilt        prometheus.Counter
	dashboardBuildDuration prometheus.Histogram
	confidenceScore        prometheus.Histogram
	confidenceBand         *prometheus.CounterVec

	// Deal closes and calibration
	dealCloses            prometheus.Counter
	dealClosesDuplicate   prometheus.Counter
	attributionRuns       prometheus.Counter
	attributionEmpty      prometheus.Counter
	calibrationSteps      prometheus.Counter
	calibrationSkipped    prometheus.Counter
	calibrationMultiplier prometheus.Histogram

	// Calibration store
	storeRecords       prometheus.Gauge
	storeUpdateLatency prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActive            prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:         "kpiforecast",
		subsystem:         "engine",
		latencyBuckets:    []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		confidenceBuckets: prometheus.LinearBuckets(10, 10, 10),
		multiplierBuckets: prometheus.LinearBuckets(0.5, 0.1, 11),
		registry:          prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.logsProcessed = m.counterVec("logs_processed_total", "Activity logs turned into side effects, by KPI type", "kpi_type")
	m.creditEventViolations = m.counter("credit_event_violations_total", "Credit events that failed contract validation")
	m.seedEventsGenerated = m.counter("seed_events_generated_total", "Synthetic onboarding credit events generated")

	m.dashboardsBuilt = m.counter("dashboards_built_total", "Dashboard payloads built")
	m.dashboardBuildDuration = m.histogram("dashboard_build_duration_milliseconds", "Dashboard build time in milliseconds", m.latencyBuckets)
	m.confidenceScore = m.histogram("confidence_score", "Distribution of confidence scores", m.confidenceBuckets)
	m.confidenceBand = m.counterVec("confidence_band_total", "Confidence assessments by band", "band")

	m.dealCloses = m.counter("deal_closes_total", "Deal closes applied to calibration")
	m.dealClosesDuplicate = m.counter("deal_closes_duplicate_total", "Deal closes skipped as already applied")
	m.attributionRuns = m.counter("attribution_runs_total", "Attribution runs")
	m.attributionEmpty = m.counter("attribution_empty_total", "Attribution runs with nothing live at close")
	m.calibrationSteps = m.counter("calibration_steps_total", "Per-KPI calibration steps applied")
	m.calibrationSkipped = m.counter("calibration_skipped_total", "Per-KPI calibration steps skipped for lack of signal")
	m.calibrationMultiplier = m.histogram("calibration_multiplier", "Distribution of multipliers after a step", m.multiplierBuckets)

	m.storeRecords = m.gauge("calibration_store_records", "Calibration rows held by the store")
	m.storeUpdateLatency = m.histogram("calibration_store_update_latency_milliseconds", "Calibration store update latency in milliseconds", m.latencyBuckets)

	m.queueSize = m.gauge("queue_size", "Recompute jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Recompute queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Recompute jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Recompute jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Recompute jobs rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Configured recompute workers")
	m.workerActive = m.gauge("worker_active", "Workers currently processing a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per-job processing time in milliseconds", m.latencyBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Jobs that failed in a worker")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Live goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds", m.latencyBuckets)

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "type")
}

// RecordLogProcessed counts one processed activity log.
func RecordLogProcessed(kpiType string) {
	globalManager.logsProcessed.WithLabelValues(kpiType).Inc()
}

// RecordCreditEventViolation counts one credit event that failed validation.
func RecordCreditEventViolation() {
	globalManager.creditEventViolations.Inc()
}

// RecordSeedEvents counts generated onboarding seeds.
func RecordSeedEvents(n int) {
	globalManager.seedEventsGenerated.Add(float64(n))
}

// RecordDashboardBuilt records one built dashboard and its confidence.
func RecordDashboardBuilt(durationMs, score float64, band string) {
	globalManager.dashboardsBuilt.Inc()
	globalManager.dashboardBuildDuration.Observe(durationMs)
	globalManager.confidenceScore.Observe(score)
	globalManager.confidenceBand.WithLabelValues(band).Inc()
}

// RecordDealClose counts an applied deal close.
func RecordDealClose() {
	globalManager.dealCloses.Inc()
}

// RecordDealCloseDuplicate counts a deal close skipped by the deduper.
func RecordDealCloseDuplicate() {
	globalManager.dealClosesDuplicate.Inc()
}

// RecordAttribution counts an attribution run.
func RecordAttribution(empty bool) {
	globalManager.attributionRuns.Inc()
	if empty {
		globalManager.attributionEmpty.Inc()
	}
}

// RecordCalibrationStep records the multiplier produced by one step.
func RecordCalibrationStep(multiplier float64) {
	globalManager.calibrationSteps.Inc()
	globalManager.calibrationMultiplier.Observe(multiplier)
}

// RecordCalibrationSkipped counts a step skipped for lack of prediction.
func RecordCalibrationSkipped() {
	globalManager.calibrationSkipped.Inc()
}

// UpdateStoreRecords sets the calibration row count.
func UpdateStoreRecords(count int) {
	globalManager.storeRecords.Set(float64(count))
}

// RecordStoreUpdateLatency records a store update in milliseconds.
func RecordStoreUpdateLatency(latencyMs float64) {
	globalManager.storeUpdateLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueued job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued job.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActive sets how many workers are busy.
func UpdateWorkerActive(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerProcessingLatency records one job in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records an average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RecordErrorByComponent counts an error for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the custom registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
