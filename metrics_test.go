package telemetry_pipeline

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	mc := newMetricsCollector()

	mc.IncCapturedEvents()
	mc.IncCapturedEvents()
	mc.AddSentEvents(2)
	mc.IncRequeuedBatches()
	mc.AddDiscardedEvents(ReasonSampleRate, 3)
	mc.AddDiscardedEvents(ReasonSendError, 1)

	snap := mc.Snapshot()
	assert.Equal(t, int64(2), snap.EventsCaptured)
	assert.Equal(t, int64(2), snap.EventsSent)
	assert.Equal(t, int64(4), snap.EventsDiscarded)
	assert.Equal(t, int64(1), snap.BatchesRequeued)
}

func TestMetricsCollectorRegisters(t *testing.T) {
	mc := newMetricsCollector()
	mc.AddDiscardedEvents(ReasonRateLimitBackoff, 5)

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(mc))

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["rr_telemetry_pipeline_captured_events_total"])
	assert.True(t, names["rr_telemetry_pipeline_sent_events_total"])
	assert.True(t, names["rr_telemetry_pipeline_requeued_batches_total"])
	assert.True(t, names["rr_telemetry_pipeline_discarded_events_total"])
}
