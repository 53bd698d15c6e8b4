package telemetry_pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// Transporter is the transport surface the dispatcher drives
type Transporter interface {
	EnvelopeSender
	SendEvent(ctx context.Context, event *Event) (*TransportResponse, error)
}

// Custom errors
var (
	ErrQueueFull   = errors.Str("pending queue is full")
	ErrRateLimited = errors.Str("sends are rate limited")
)

// Dispatcher owns the pending-event queue and orchestrates
// capture -> filter -> batch -> send -> requeue-on-failure. All mutable
// shared state (queue, rate-limit window, in-flight counter) lives behind
// one mutex so queue mutations and limiter reads never interleave
// inconsistently.
type Dispatcher struct {
	mu       sync.Mutex
	queue    []*Event
	inFlight atomic.Int64

	config     *QueueConfig
	sampler    *Sampler
	limiter    *RateLimiter
	transport  Transporter
	logger     *zap.Logger
	metrics    *metricsCollector
	dsnString  string
	serverName string
}

// NewDispatcher creates a dispatcher over the given transport
func NewDispatcher(config *QueueConfig, sampler *Sampler, limiter *RateLimiter, transport Transporter, logger *zap.Logger, metrics *metricsCollector) *Dispatcher {
	d := &Dispatcher{
		config:    config,
		sampler:   sampler,
		limiter:   limiter,
		transport: transport,
		logger:    logger,
		metrics:   metrics,
	}
	if ht, ok := transport.(*HTTPTransport); ok {
		d.dsnString = ht.DSN().String()
	}
	d.serverName, _ = os.Hostname()
	return d
}

// RateLimiter returns the limiter shared across send paths
func (d *Dispatcher) RateLimiter() *RateLimiter {
	return d.limiter
}

// Capture runs the filter chain and, if the event survives, appends it to
// the tail of the pending queue. It never blocks on I/O and never surfaces
// transport problems to the caller; sampled-out and vetoed events are
// silent, intentional drops.
func (d *Dispatcher) Capture(event *Event) error {
	if event.ServerName == "" {
		event.ServerName = d.serverName
	}

	filtered, reason := d.sampler.ShouldSend(event)
	if filtered == nil {
		d.metrics.AddDiscardedEvents(reason, 1)
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.config.MaxSize > 0 && len(d.queue) >= d.config.MaxSize {
		d.metrics.AddDiscardedEvents(ReasonQueueOverflow, 1)
		d.logger.Warn("pending queue is full, dropping event",
			zap.String("event_id", filtered.ID.String()),
			zap.Int("max_size", d.config.MaxSize))
		return ErrQueueFull
	}

	d.queue = append(d.queue, filtered)
	d.metrics.IncCapturedEvents()
	return nil
}

// QueueLength returns the number of pending events
func (d *Dispatcher) QueueLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// InFlight returns the number of outstanding send operations
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

// Flush drains the queue and talks to the network. An empty queue or an
// active rate-limit window makes it a no-op; otherwise the entire queue is
// swapped out as one batch so new captures accumulate concurrently. A
// second concurrent flush observes the emptied queue and does nothing, so
// a batch can never be double-sent.
func (d *Dispatcher) Flush(ctx context.Context) {
	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	if d.limiter.IsBlocked(time.Now()) {
		// Queue stays intact for the next trigger
		d.mu.Unlock()
		d.logger.Debug("flush skipped, rate limit window active",
			zap.Time("blocked_until", d.limiter.BlockedUntil()))
		return
	}
	batch := d.queue
	d.queue = nil
	d.inFlight.Add(1)
	d.mu.Unlock()

	defer d.inFlight.Add(-1)
	d.sendBatch(ctx, batch)
}

// sendBatch encodes and delivers one drained batch
func (d *Dispatcher) sendBatch(ctx context.Context, batch []*Event) {
	env, err := d.buildEnvelope(batch)
	if err != nil {
		// Encoding cannot succeed on a retry, drop the batch
		d.logger.Error("failed to encode batch, dropping it",
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		d.metrics.AddDiscardedEvents(ReasonSendError, len(batch))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	resp, err := d.transport.SendEnvelope(sendCtx, env)
	if err != nil {
		// Transient transport failure: re-insert the whole batch at the
		// front, ahead of anything captured during the attempt, so nothing
		// is lost and relative order survives the retry.
		d.requeueFront(batch)
		d.metrics.IncRequeuedBatches()
		d.logger.Warn("batch send failed, re-queued for retry",
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		return
	}

	switch {
	case resp.RateLimited():
		d.limiter.HandleResponse(resp.StatusCode, resp.Header, time.Now())
		d.metrics.AddDiscardedEvents(ReasonRateLimitBackoff, len(batch))
		d.logger.Warn("batch rate limited by server",
			zap.Int("batch_size", len(batch)),
			zap.Time("blocked_until", d.limiter.BlockedUntil()))

	case resp.Success():
		d.metrics.AddSentEvents(len(batch))
		d.logger.Debug("batch delivered",
			zap.Int("batch_size", len(batch)),
			zap.Int("status_code", resp.StatusCode))

	default:
		// The server processed and rejected the batch; retrying a semantic
		// rejection would only repeat it, so the batch is dropped.
		d.metrics.AddDiscardedEvents(ReasonSendError, len(batch))
		d.logger.Error("batch rejected by server",
			zap.Int("batch_size", len(batch)),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response", resp.Body))
	}
}

// requeueFront pushes a failed batch back ahead of newer captures
func (d *Dispatcher) requeueFront(batch []*Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(batch, d.queue...)
}

// SendEventSync delivers one event over the store endpoint and returns the
// identifier the server acknowledged. Unlike Capture this is a
// request/response operation: transport and protocol errors are surfaced to
// the caller.
func (d *Dispatcher) SendEventSync(ctx context.Context, event *Event) (EventID, error) {
	if d.limiter.IsBlocked(time.Now()) {
		return EventID{}, ErrRateLimited
	}

	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	resp, err := d.transport.SendEvent(sendCtx, event)
	if err != nil {
		return EventID{}, fmt.Errorf("failed to send event %s: %w", event.ID, err)
	}

	if resp.RateLimited() {
		d.limiter.HandleResponse(resp.StatusCode, resp.Header, time.Now())
		return EventID{}, ErrRateLimited
	}
	if !resp.Success() {
		return EventID{}, fmt.Errorf("event %s rejected with status %d", event.ID, resp.StatusCode)
	}

	// A success status with an absent or undecodable body is a delivery
	// error on this path
	id, err := resp.EventID()
	if err != nil {
		return EventID{}, fmt.Errorf("event %s delivery unconfirmed: %w", event.ID, err)
	}
	return id, nil
}

// ShutdownFlush waits, best effort, for outstanding sends to finish. It
// polls the in-flight counter at a short fixed interval until it reaches
// zero or the timeout elapses. An issued HTTP request is never cancelled.
func (d *Dispatcher) ShutdownFlush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for d.inFlight.Load() > 0 {
		if time.Now().After(deadline) {
			d.logger.Warn("shutdown flush timed out",
				zap.Int64("in_flight", d.inFlight.Load()),
				zap.Int("pending", d.QueueLength()))
			return false
		}
		time.Sleep(d.config.ShutdownPollInterval)
	}
	return true
}

// buildEnvelope batches events into one envelope. The envelope header names
// the event when the batch holds exactly one.
func (d *Dispatcher) buildEnvelope(batch []*Event) (*Envelope, error) {
	env := &Envelope{
		Header: EnvelopeHeader{
			DSN: d.dsnString,
			SDK: sdkDescriptor,
		},
	}
	if len(batch) == 1 {
		id := batch[0].ID
		env.Header.EventID = &id
	}

	for _, event := range batch {
		if err := env.AddEvent(event); err != nil {
			return nil, err
		}
	}
	return env, nil
}
