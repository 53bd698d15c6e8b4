package telemetry_pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewSamplerValidatesRate(t *testing.T) {
	logger := zaptest.NewLogger(t)

	for _, rate := range []float64{0.0, 0.5, 1.0} {
		_, err := NewSampler(rate, nil, logger)
		assert.NoError(t, err, "rate %g", rate)
	}

	for _, rate := range []float64{-0.1, 1.1, 42} {
		_, err := NewSampler(rate, nil, logger)
		assert.Error(t, err, "rate %g", rate)
	}
}

func TestSamplerRateZeroRejectsEverything(t *testing.T) {
	s, err := NewSampler(0.0, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		event, reason := s.ShouldSend(NewEvent(LevelError))
		assert.Nil(t, event)
		assert.Equal(t, ReasonSampleRate, reason)
	}
}

func TestSamplerRateOneAcceptsEverything(t *testing.T) {
	s, err := NewSampler(1.0, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	// Force the draw to its worst case: a rate of exactly 1.0 must still pass
	s.draw = func() float64 { return 0.9999999 }

	for i := 0; i < 100; i++ {
		event, _ := s.ShouldSend(NewEvent(LevelError))
		assert.NotNil(t, event)
	}
}

func TestSamplerRateGate(t *testing.T) {
	s, err := NewSampler(0.5, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	s.draw = func() float64 { return 0.4 }
	event, _ := s.ShouldSend(NewEvent(LevelError))
	assert.NotNil(t, event)

	s.draw = func() float64 { return 0.5 }
	event, reason := s.ShouldSend(NewEvent(LevelError))
	assert.Nil(t, event)
	assert.Equal(t, ReasonSampleRate, reason)
}

func TestSamplerBeforeSendVeto(t *testing.T) {
	s, err := NewSampler(1.0, func(*Event) *Event { return nil }, zaptest.NewLogger(t))
	require.NoError(t, err)

	event, reason := s.ShouldSend(NewEvent(LevelError))
	assert.Nil(t, event)
	assert.Equal(t, ReasonBeforeSend, reason)
}

func TestSamplerBeforeSendReplacesEvent(t *testing.T) {
	replacement := NewEvent(LevelWarning)
	replacement.Transaction = "scrubbed"

	s, err := NewSampler(1.0, func(*Event) *Event { return replacement }, zaptest.NewLogger(t))
	require.NoError(t, err)

	event, _ := s.ShouldSend(NewEvent(LevelError))
	require.NotNil(t, event)
	assert.Same(t, replacement, event)
}

func TestSamplerHookRunsAfterSampling(t *testing.T) {
	hookCalls := 0
	s, err := NewSampler(0.0, func(e *Event) *Event { hookCalls++; return e }, zaptest.NewLogger(t))
	require.NoError(t, err)

	event, _ := s.ShouldSend(NewEvent(LevelError))
	assert.Nil(t, event)
	assert.Zero(t, hookCalls, "sampled-out events must not reach the hook")
}
