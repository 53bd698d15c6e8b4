package telemetry_pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roadrunner-server/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type mockConfigurer struct {
	cfg *Config
}

func (m *mockConfigurer) Has(string) bool {
	return m.cfg != nil
}

func (m *mockConfigurer) UnmarshalKey(_ string, out interface{}) error {
	*out.(*Config) = *m.cfg
	return nil
}

type mockLogger struct {
	logger *zap.Logger
}

func (m *mockLogger) NamedLogger(string) *zap.Logger {
	return m.logger
}

func newTestPlugin(t *testing.T, cfg *Config) *Plugin {
	t.Helper()

	p := &Plugin{}
	err := p.Init(&mockConfigurer{cfg: cfg}, &mockLogger{logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return p
}

func TestPluginInitDisabledWithoutSection(t *testing.T) {
	p := &Plugin{}
	err := p.Init(&mockConfigurer{}, &mockLogger{logger: zaptest.NewLogger(t)})
	assert.True(t, errors.Is(errors.Disabled, err))
}

func TestPluginInitDisabledWhenNotEnabled(t *testing.T) {
	p := &Plugin{}
	err := p.Init(&mockConfigurer{cfg: &Config{Enabled: false}}, &mockLogger{logger: zaptest.NewLogger(t)})
	assert.True(t, errors.Is(errors.Disabled, err))
}

func TestPluginInitRejectsBadSampleRate(t *testing.T) {
	rate := 2.0
	p := &Plugin{}
	err := p.Init(
		&mockConfigurer{cfg: &Config{Enabled: true, SampleRate: &rate}},
		&mockLogger{logger: zaptest.NewLogger(t)})
	assert.Error(t, err)
}

func TestPluginInitRejectsBadDSN(t *testing.T) {
	p := &Plugin{}
	err := p.Init(
		&mockConfigurer{cfg: &Config{Enabled: true, DSN: "ftp://nope"}},
		&mockLogger{logger: zaptest.NewLogger(t)})
	assert.Error(t, err)
}

func TestPluginDryRunLifecycle(t *testing.T) {
	p := newTestPlugin(t, &Config{
		Enabled: true,
		Queue:   QueueConfig{FlushInterval: 10 * time.Millisecond},
	})

	errCh := p.Serve()
	select {
	case err := <-errCh:
		t.Fatalf("serve failed: %v", err)
	default:
	}

	require.NoError(t, p.Capture(NewEvent(LevelError)))

	// The flush ticker drains the queue through the dry-run transport
	require.Eventually(t, func() bool {
		return p.Metrics().EventsSent == 1
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
}

func TestPluginRecoversCrashLogOnServe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.log")
	require.NoError(t, os.WriteFile(path, []byte("Fatal error: boom\n0x0001\n"), 0o644))

	p := newTestPlugin(t, &Config{
		Enabled:  true,
		Queue:    QueueConfig{FlushInterval: time.Hour},
		CrashLog: CrashLogConfig{Path: path},
	})

	p.Serve()

	require.Eventually(t, func() bool {
		return p.Metrics().QueueLength == 1
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))

	// The crash text is consumed exactly once
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPluginBeforeSendHook(t *testing.T) {
	p := newTestPlugin(t, &Config{Enabled: true})
	p.SetBeforeSend(func(*Event) *Event { return nil })

	require.NoError(t, p.Capture(NewEvent(LevelError)))
	assert.Zero(t, p.Metrics().QueueLength)
}

func TestPluginName(t *testing.T) {
	p := &Plugin{}
	assert.Equal(t, PluginName, p.Name())
}

func TestRPCCapture(t *testing.T) {
	p := newTestPlugin(t, &Config{Enabled: true})
	rpc := NewRPC(p, zaptest.NewLogger(t))

	event := NewEvent(LevelWarning)
	var result SendResult
	require.NoError(t, rpc.Capture(event, &result))

	assert.True(t, result.Success)
	assert.Equal(t, event.ID.String(), result.EventID)
	assert.Equal(t, 1, p.Metrics().QueueLength)
}

func TestRPCCaptureBatch(t *testing.T) {
	p := newTestPlugin(t, &Config{Enabled: true})
	rpc := NewRPC(p, zaptest.NewLogger(t))

	events := []*Event{NewEvent(LevelError), NewEvent(LevelInfo)}
	var results []*SendResult
	require.NoError(t, rpc.CaptureBatch(events, &results))

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
	}
	assert.Equal(t, 2, p.Metrics().QueueLength)
}

func TestRPCSendEventReportsDashedID(t *testing.T) {
	p := newTestPlugin(t, &Config{Enabled: true})
	rpc := NewRPC(p, zaptest.NewLogger(t))

	event := NewEvent(LevelError)
	var result SendResult
	require.NoError(t, rpc.SendEvent(event, &result))

	assert.True(t, result.Success)
	assert.Equal(t, event.ID.DashedString(), result.EventID)
}

func TestRPCFlush(t *testing.T) {
	p := newTestPlugin(t, &Config{Enabled: true})
	rpc := NewRPC(p, zaptest.NewLogger(t))

	require.NoError(t, p.Capture(NewEvent(LevelError)))

	var ok bool
	require.NoError(t, rpc.Flush(true, &ok))
	assert.True(t, ok)
	assert.Zero(t, p.Metrics().QueueLength)
	assert.Equal(t, int64(1), p.Metrics().EventsSent)
}
