package telemetry_pipeline

import (
	"context"

	"go.uber.org/zap"
)

// RPC exposes the pipeline to out-of-process producers
type RPC struct {
	plugin *Plugin
	logger *zap.Logger
}

// NewRPC creates a new RPC instance
func NewRPC(plugin *Plugin, logger *zap.Logger) *RPC {
	return &RPC{
		plugin: plugin,
		logger: logger,
	}
}

// Capture enqueues a single event, fire-and-forget
func (r *RPC) Capture(event *Event, result *SendResult) error {
	r.logger.Debug("received event via RPC",
		zap.String("event_id", event.ID.String()),
		zap.String("level", string(event.Level)))

	if err := r.plugin.Capture(event); err != nil {
		*result = SendResult{
			Success: false,
			EventID: event.ID.String(),
			Error:   err.Error(),
		}
		return nil
	}

	*result = SendResult{
		Success: true,
		EventID: event.ID.String(),
	}
	return nil
}

// CaptureBatch enqueues a batch of events, fire-and-forget
func (r *RPC) CaptureBatch(events []*Event, result *[]*SendResult) error {
	if len(events) == 0 {
		*result = []*SendResult{}
		return nil
	}

	r.logger.Debug("received batch of events via RPC",
		zap.Int("count", len(events)))

	results := make([]*SendResult, len(events))
	for i, event := range events {
		results[i] = &SendResult{EventID: event.ID.String()}
		if err := r.plugin.Capture(event); err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].Success = true
	}

	*result = results
	return nil
}

// SendEvent delivers one event synchronously over the store endpoint and
// reports the identifier the server acknowledged, in canonical dashed form
func (r *RPC) SendEvent(event *Event, result *SendResult) error {
	r.logger.Debug("received synchronous send via RPC",
		zap.String("event_id", event.ID.String()))

	id, err := r.plugin.SendEventSync(context.Background(), event)
	if err != nil {
		*result = SendResult{
			Success:   false,
			EventID:   event.ID.String(),
			Error:     err.Error(),
			RateLimit: err == ErrRateLimited,
		}
		return nil
	}

	*result = SendResult{
		Success: true,
		EventID: id.DashedString(),
	}
	return nil
}

// Flush triggers a drain of the pending queue
func (r *RPC) Flush(_ bool, result *bool) error {
	r.plugin.Flush(context.Background())
	*result = true
	return nil
}
