package telemetry_pipeline

import (
	"fmt"
	"time"
)

// Config represents the plugin configuration
type Config struct {
	// Enable/disable the plugin
	Enabled bool `mapstructure:"enabled"`

	// Ingestion DSN
	DSN string `mapstructure:"dsn"`

	// Probability in [0.0, 1.0] that a captured event is retained.
	// Unset means 1.0 (keep everything).
	SampleRate *float64 `mapstructure:"sample_rate"`

	// HTTP transport settings
	Transport TransportConfig `mapstructure:"transport"`

	// Pending queue settings
	Queue QueueConfig `mapstructure:"queue"`

	// Crash log recovery settings
	CrashLog CrashLogConfig `mapstructure:"crash_log"`

	// How long Stop waits for outstanding sends
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TransportConfig contains HTTP transport settings
type TransportConfig struct {
	// Request timeout
	Timeout time.Duration `mapstructure:"timeout"`
	// Skip TLS certificate verification
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
	// Proxy URL
	Proxy string `mapstructure:"proxy"`
}

// QueueConfig contains pending queue settings
type QueueConfig struct {
	// Maximum queue length; 0 means unbounded. An unreachable endpoint
	// grows an unbounded queue without limit, so deployments that care
	// should set a cap and accept drop-newest on overflow.
	MaxSize int `mapstructure:"max_size"`
	// Interval between automatic flushes
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// Per-batch send timeout
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	// Interval at which the shutdown drain polls the in-flight counter
	ShutdownPollInterval time.Duration `mapstructure:"shutdown_poll_interval"`
}

// CrashLogConfig contains crash log recovery settings
type CrashLogConfig struct {
	// Path to the file the crash handler writes; empty disables recovery
	Path string `mapstructure:"path"`
}

// InitDefaults initializes default configuration values
func (cfg *Config) InitDefaults() {
	if cfg.SampleRate == nil {
		rate := 1.0
		cfg.SampleRate = &rate
	}

	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = 30 * time.Second
	}

	if cfg.Queue.FlushInterval == 0 {
		cfg.Queue.FlushInterval = 5 * time.Second
	}
	if cfg.Queue.SendTimeout == 0 {
		cfg.Queue.SendTimeout = 30 * time.Second
	}
	if cfg.Queue.ShutdownPollInterval == 0 {
		cfg.Queue.ShutdownPollInterval = 10 * time.Millisecond
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
}

// Validate validates the configuration
func (cfg *Config) Validate() error {
	if cfg.SampleRate != nil && (*cfg.SampleRate < 0.0 || *cfg.SampleRate > 1.0) {
		return fmt.Errorf("sample_rate must be in [0.0, 1.0], got %g", *cfg.SampleRate)
	}

	if cfg.Queue.MaxSize < 0 {
		return fmt.Errorf("queue.max_size must not be negative, got %d", cfg.Queue.MaxSize)
	}

	if cfg.DSN != "" {
		if _, err := ParseDSN(cfg.DSN); err != nil {
			return err
		}
	}

	return nil
}
