package telemetry_pipeline

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"
)

// BeforeSendHook may replace or veto an event prior to dispatch. Returning
// nil suppresses the event.
type BeforeSendHook func(event *Event) *Event

// Sampler decides whether a captured event survives into the pending queue.
// Two independent gates run in order: the probabilistic sampling gate, then
// the optional user hook. Sampling runs first so its cost is paid before
// the hook's.
type Sampler struct {
	rate       float64
	beforeSend BeforeSendHook
	draw       func() float64
	logger     *zap.Logger
}

// NewSampler creates a sampler. The rate must lie in [0.0, 1.0]; anything
// else is a configuration error.
func NewSampler(rate float64, beforeSend BeforeSendHook, logger *zap.Logger) (*Sampler, error) {
	if rate < 0.0 || rate > 1.0 {
		return nil, fmt.Errorf("sample rate must be in [0.0, 1.0], got %g", rate)
	}
	return &Sampler{
		rate:       rate,
		beforeSend: beforeSend,
		draw:       rand.Float64,
		logger:     logger,
	}, nil
}

// SetBeforeSend installs the user hook. Install it before the pipeline
// starts serving; it is not safe to swap while captures are running.
func (s *Sampler) SetBeforeSend(hook BeforeSendHook) {
	s.beforeSend = hook
}

// ShouldSend applies both gates. It returns the (possibly replaced) event,
// or nil with the reason the event was discarded.
func (s *Sampler) ShouldSend(event *Event) (*Event, DiscardReason) {
	// A rate of exactly 1.0 always passes regardless of the draw, 0.0
	// always rejects.
	if s.rate <= 0.0 || (s.rate < 1.0 && s.draw() >= s.rate) {
		s.logger.Debug("event sampled out",
			zap.String("event_id", event.ID.String()),
			zap.Float64("sample_rate", s.rate))
		return nil, ReasonSampleRate
	}

	if s.beforeSend != nil {
		replaced := s.beforeSend(event)
		if replaced == nil {
			s.logger.Debug("event vetoed by before-send hook",
				zap.String("event_id", event.ID.String()))
			return nil, ReasonBeforeSend
		}
		event = replaced
	}

	return event, ""
}
