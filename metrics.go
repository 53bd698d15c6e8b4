package telemetry_pipeline

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "rr_telemetry_pipeline"
)

// DiscardReason says why an event never reached the ingestion endpoint
type DiscardReason string

const (
	// ReasonSampleRate indicates the event was dropped by the sampling gate.
	ReasonSampleRate DiscardReason = "sample_rate"

	// ReasonBeforeSend indicates the event was vetoed by the beforeSend hook.
	ReasonBeforeSend DiscardReason = "before_send"

	// ReasonRateLimitBackoff indicates a 429 window swallowed the batch.
	ReasonRateLimitBackoff DiscardReason = "ratelimit_backoff"

	// ReasonQueueOverflow indicates the pending queue hit its configured cap.
	ReasonQueueOverflow DiscardReason = "queue_overflow"

	// ReasonSendError indicates the server rejected the batch with a non-2xx status.
	ReasonSendError DiscardReason = "send_error"
)

// metricsCollector implements prometheus.Collector interface
type metricsCollector struct {
	// Atomic counters for thread-safe metric updates
	capturedEvents  *uint64 // Total events accepted into the pending queue
	sentEvents      *uint64 // Total events delivered in a 2xx batch
	requeuedBatches *uint64 // Total batches pushed back after a transport failure
	discardedTotal  *uint64 // Total discarded events across all reasons

	// Prometheus metric descriptors
	capturedEventsDesc  *prometheus.Desc
	sentEventsDesc      *prometheus.Desc
	requeuedBatchesDesc *prometheus.Desc

	// Vector metric for discarded events by reason
	discardedEvents *prometheus.CounterVec
}

// newMetricsCollector creates a new metrics collector
func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		// Initialize atomic counters
		capturedEvents:  ptrTo(uint64(0)),
		sentEvents:      ptrTo(uint64(0)),
		requeuedBatches: ptrTo(uint64(0)),
		discardedTotal:  ptrTo(uint64(0)),

		// Create metric descriptors
		capturedEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "captured_events_total"),
			"Total number of events accepted into the pending queue",
			nil, nil),

		sentEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sent_events_total"),
			"Total number of events delivered to the ingestion endpoint",
			nil, nil),

		requeuedBatchesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requeued_batches_total"),
			"Total number of batches re-queued after a transport failure",
			nil, nil),

		// Vector metric with discard reason label
		discardedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prometheus.BuildFQName(namespace, "", "discarded_events_total"),
				Help: "Total number of discarded events by reason",
			},
			[]string{"reason"}),
	}
}

// Public methods for updating metrics (called from business logic)

// IncCapturedEvents increments the captured events counter
func (mc *metricsCollector) IncCapturedEvents() {
	atomic.AddUint64(mc.capturedEvents, 1)
}

// AddSentEvents adds to the sent events counter
func (mc *metricsCollector) AddSentEvents(n int) {
	atomic.AddUint64(mc.sentEvents, uint64(n))
}

// IncRequeuedBatches increments the requeued batches counter
func (mc *metricsCollector) IncRequeuedBatches() {
	atomic.AddUint64(mc.requeuedBatches, 1)
}

// AddDiscardedEvents adds to the discarded events counter for a reason
func (mc *metricsCollector) AddDiscardedEvents(reason DiscardReason, n int) {
	atomic.AddUint64(mc.discardedTotal, uint64(n))
	mc.discardedEvents.WithLabelValues(string(reason)).Add(float64(n))
}

// Snapshot returns the current counter values
func (mc *metricsCollector) Snapshot() TransportMetrics {
	return TransportMetrics{
		EventsCaptured:  int64(atomic.LoadUint64(mc.capturedEvents)),
		EventsSent:      int64(atomic.LoadUint64(mc.sentEvents)),
		EventsDiscarded: int64(atomic.LoadUint64(mc.discardedTotal)),
		BatchesRequeued: int64(atomic.LoadUint64(mc.requeuedBatches)),
	}
}

// Implement prometheus.Collector interface

// Describe sends all metric descriptions to Prometheus
func (mc *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.capturedEventsDesc
	ch <- mc.sentEventsDesc
	ch <- mc.requeuedBatchesDesc

	// Vector metric handles its own description
	mc.discardedEvents.Describe(ch)
}

// Collect sends current metric values to Prometheus
func (mc *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		mc.capturedEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.capturedEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.sentEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.sentEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.requeuedBatchesDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.requeuedBatches)))

	// Vector metric collects itself
	mc.discardedEvents.Collect(ch)
}

// Helper function for pointer creation
func ptrTo[T any](v T) *T {
	return &v
}
