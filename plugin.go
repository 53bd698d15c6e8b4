package telemetry_pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roadrunner-server/endure/v2/dep"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

const PluginName = "telemetry_pipeline"

// Plugin represents the main plugin structure
type Plugin struct {
	config     *Config
	logger     *zap.Logger
	sampler    *Sampler
	dispatcher *Dispatcher
	transport  *HTTPTransport
	recovery   *CrashLogRecovery
	metrics    *metricsCollector

	// Lifecycle
	stopCh chan struct{}
	doneCh chan struct{}
}

// Configurer interface for config plugin
type Configurer interface {
	UnmarshalKey(name string, out interface{}) error
	Has(name string) bool
}

// Logger interface for logger plugin
type Logger interface {
	NamedLogger(name string) *zap.Logger
}

// Init initializes the plugin
func (p *Plugin) Init(cfg Configurer, log Logger) error {
	const op = errors.Op("telemetry_pipeline_init")

	// Check if configuration section exists
	if !cfg.Has(PluginName) {
		return errors.E(op, errors.Disabled)
	}

	// Unmarshal configuration
	config := &Config{}
	if err := cfg.UnmarshalKey(PluginName, config); err != nil {
		return errors.E(op, err)
	}

	// Initialize defaults and validate
	config.InitDefaults()
	if err := config.Validate(); err != nil {
		return errors.E(op, err)
	}

	// Check if plugin is enabled
	if !config.Enabled {
		return errors.E(op, errors.Disabled)
	}

	p.config = config
	p.logger = log.NamedLogger(PluginName)
	p.metrics = newMetricsCollector()

	sampler, err := NewSampler(*config.SampleRate, nil, p.logger)
	if err != nil {
		return errors.E(op, err)
	}
	p.sampler = sampler

	limiter := NewRateLimiter(p.logger)

	// Initialize HTTP transport if a DSN is provided
	var transport Transporter
	if config.DSN != "" {
		httpTransport, err := NewHTTPTransport(&config.Transport, config.DSN, p.logger)
		if err != nil {
			return errors.E(op, err)
		}
		p.transport = httpTransport
		transport = httpTransport
	} else {
		p.logger.Warn("no DSN configured, events will be captured but not transmitted")
		transport = &noopTransport{logger: p.logger}
	}

	p.dispatcher = NewDispatcher(&config.Queue, p.sampler, limiter, transport, p.logger, p.metrics)

	if config.CrashLog.Path != "" {
		p.recovery = NewCrashLogRecovery(config.CrashLog.Path, p.logger)
	}

	// Initialize lifecycle channels
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	p.logger.Info("telemetry pipeline initialized",
		zap.Bool("dsn_configured", config.DSN != ""),
		zap.Float64("sample_rate", *config.SampleRate),
		zap.Duration("flush_interval", config.Queue.FlushInterval),
		zap.String("crash_log", config.CrashLog.Path))

	return nil
}

// Serve starts the plugin
func (p *Plugin) Serve() chan error {
	errCh := make(chan error, 1)

	if p.config == nil {
		errCh <- errors.E("telemetry_pipeline_serve", errors.Str("plugin not initialized"))
		return errCh
	}

	go func() {
		defer close(p.doneCh)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Recover whatever the crash handler left behind before the
		// periodic flush loop starts
		p.recoverCrashLog()

		ticker := time.NewTicker(p.config.Queue.FlushInterval)
		defer ticker.Stop()

		p.logger.Info("telemetry pipeline started")

		for {
			select {
			case <-ticker.C:
				p.dispatcher.Flush(ctx)

			case <-p.stopCh:
				p.logger.Info("telemetry pipeline stopping")
				p.drain(ctx)
				return

			case <-ctx.Done():
				return
			}
		}
	}()

	return errCh
}

// drain performs the final flush and waits for outstanding sends
func (p *Plugin) drain(ctx context.Context) {
	p.dispatcher.Flush(ctx)
	if !p.dispatcher.ShutdownFlush(p.config.ShutdownTimeout) {
		p.logger.Warn("some sends were still outstanding at shutdown")
	}

	if p.transport != nil {
		if err := p.transport.Close(); err != nil {
			p.logger.Error("error closing transport", zap.Error(err))
		}
	}

	p.logger.Info("telemetry pipeline stopped")
}

// Stop stops the plugin
func (p *Plugin) Stop(ctx context.Context) error {
	if p.stopCh != nil {
		close(p.stopCh)
	}

	// Wait for graceful shutdown with timeout
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		p.logger.Warn("plugin stop timed out")
		return ctx.Err()
	}
}

// Name returns the plugin name
func (p *Plugin) Name() string {
	return PluginName
}

// RPC returns the RPC interface
func (p *Plugin) RPC() interface{} {
	return NewRPC(p, p.logger)
}

// Provides returns the dependencies this plugin provides
func (p *Plugin) Provides() []*dep.Out {
	return []*dep.Out{
		dep.Bind((*Telemeter)(nil), p.Telemeter),
	}
}

// MetricsCollector returns the prometheus collectors for the metrics plugin
func (p *Plugin) MetricsCollector() []prometheus.Collector {
	return []prometheus.Collector{p.metrics}
}

// Telemeter returns the capture interface
func (p *Plugin) Telemeter() Telemeter {
	return p
}

// SetBeforeSend installs the user veto/transform hook. Call before Serve.
func (p *Plugin) SetBeforeSend(hook BeforeSendHook) {
	p.sampler.SetBeforeSend(hook)
}

// Capture implements Telemeter
func (p *Plugin) Capture(event *Event) error {
	if p.dispatcher == nil {
		return errors.E("telemetry_pipeline_capture", errors.Str("plugin not initialized"))
	}
	return p.dispatcher.Capture(event)
}

// CaptureBatch implements Telemeter
func (p *Plugin) CaptureBatch(events []*Event) error {
	for _, event := range events {
		if err := p.Capture(event); err != nil {
			return err
		}
	}
	return nil
}

// SendEventSync implements Telemeter
func (p *Plugin) SendEventSync(ctx context.Context, event *Event) (EventID, error) {
	if p.dispatcher == nil {
		return EventID{}, errors.E("telemetry_pipeline_send", errors.Str("plugin not initialized"))
	}
	return p.dispatcher.SendEventSync(ctx, event)
}

// Flush implements Telemeter
func (p *Plugin) Flush(ctx context.Context) {
	p.dispatcher.Flush(ctx)
}

// Metrics implements Telemeter
func (p *Plugin) Metrics() TransportMetrics {
	m := p.metrics.Snapshot()
	m.QueueLength = p.dispatcher.QueueLength()
	return m
}

// recoverCrashLog captures any crash reports left by a previous run
func (p *Plugin) recoverCrashLog() {
	if p.recovery == nil {
		return
	}

	events, err := p.recovery.Recover()
	if err != nil {
		p.logger.Error("crash log recovery failed", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.Capture(event); err != nil {
			p.logger.Warn("failed to capture recovered crash event",
				zap.String("event_id", event.ID.String()),
				zap.Error(err))
		}
	}
}

// Telemeter is the capture interface other plugins consume
type Telemeter interface {
	Capture(event *Event) error
	CaptureBatch(events []*Event) error
	SendEventSync(ctx context.Context, event *Event) (EventID, error)
	Flush(ctx context.Context)
	Metrics() TransportMetrics
}

// noopTransport stands in when no DSN is configured: batches are accepted
// and acknowledged locally so the rest of the pipeline behaves normally.
type noopTransport struct {
	logger *zap.Logger
}

// SendEnvelope implements Transporter
func (n *noopTransport) SendEnvelope(_ context.Context, env *Envelope) (*TransportResponse, error) {
	n.logger.Info("dry-run: would send envelope",
		zap.Int("items", len(env.Items)))
	return &TransportResponse{StatusCode: 200}, nil
}

// SendEvent implements Transporter
func (n *noopTransport) SendEvent(_ context.Context, event *Event) (*TransportResponse, error) {
	n.logger.Info("dry-run: would send event",
		zap.String("event_id", event.ID.String()))
	return &TransportResponse{
		StatusCode: 200,
		Body:       []byte(`{"id":"` + event.ID.String() + `"}`),
	}, nil
}
