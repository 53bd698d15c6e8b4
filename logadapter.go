package telemetry_pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap/zapcore"
)

// CaptureCore is a zapcore.Core that feeds the hosting application's log
// calls into the pipeline. Severity maps onto the five-level taxonomy,
// structured fields become string tags and the call site becomes a
// single-frame stacktrace on the event.
type CaptureCore struct {
	zapcore.LevelEnabler
	dispatcher *Dispatcher
	fields     []zapcore.Field
}

// NewCaptureCore creates a capture core over the dispatcher. Tee it with
// the application's own core so log output still reaches its usual sinks.
func NewCaptureCore(dispatcher *Dispatcher, enab zapcore.LevelEnabler) *CaptureCore {
	return &CaptureCore{
		LevelEnabler: enab,
		dispatcher:   dispatcher,
	}
}

// With implements zapcore.Core
func (c *CaptureCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &CaptureCore{
		LevelEnabler: c.LevelEnabler,
		dispatcher:   c.dispatcher,
		fields:       make([]zapcore.Field, 0, len(c.fields)+len(fields)),
	}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

// Check implements zapcore.Core
func (c *CaptureCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write implements zapcore.Core by capturing the log record as an event
func (c *CaptureCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	event := NewEvent(levelFromZap(ent.Level))
	event.Logger = ent.LoggerName
	event.Message = Message(ent.Message)
	event.Timestamp = ent.Time.UTC()
	event.Tags = c.tags(fields)

	if ent.Caller.Defined {
		event.Stacktrace = &Stacktrace{Frames: []Frame{{
			Filename: filepath.Base(ent.Caller.File),
			AbsPath:  ent.Caller.File,
			Function: ent.Caller.Function,
			Lineno:   ent.Caller.Line,
		}}}
	}

	return c.dispatcher.Capture(event)
}

// Sync implements zapcore.Core by flushing the pending queue
func (c *CaptureCore) Sync() error {
	c.dispatcher.Flush(context.Background())
	return nil
}

// tags flattens accumulated and per-call fields into string tags
func (c *CaptureCore) tags(fields []zapcore.Field) map[string]string {
	if len(c.fields) == 0 && len(fields) == 0 {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	tags := make(map[string]string, len(enc.Fields))
	for k, v := range enc.Fields {
		tags[k] = fmt.Sprint(v)
	}
	return tags
}

// levelFromZap maps zap severities onto the five-level taxonomy
func levelFromZap(level zapcore.Level) Level {
	switch {
	case level >= zapcore.DPanicLevel:
		return LevelFatal
	case level == zapcore.ErrorLevel:
		return LevelError
	case level == zapcore.WarnLevel:
		return LevelWarning
	case level == zapcore.InfoLevel:
		return LevelInfo
	default:
		return LevelDebug
	}
}
