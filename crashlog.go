package telemetry_pipeline

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// CrashLogRecovery turns the plain-text crash log written by the low-level
// crash handler into fatal events. The file is truncated after a successful
// read so the same crash text is never re-ingested on a later run.
type CrashLogRecovery struct {
	path   string
	logger *zap.Logger
}

// NewCrashLogRecovery creates a recovery reader for the given file
func NewCrashLogRecovery(path string, logger *zap.Logger) *CrashLogRecovery {
	return &CrashLogRecovery{path: path, logger: logger}
}

// Recover reads and clears the crash log, returning one fatal event per
// recovered report. A missing file means no crash happened and yields no
// events and no error.
func (c *CrashLogRecovery) Recover() ([]*Event, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read crash log %s: %w", c.path, err)
	}

	reports := ParseStacktraces(string(data))

	if err := os.Truncate(c.path, 0); err != nil {
		return nil, fmt.Errorf("failed to truncate crash log %s: %w", c.path, err)
	}

	if len(reports) == 0 {
		return nil, nil
	}

	events := make([]*Event, 0, len(reports))
	for _, report := range reports {
		events = append(events, crashEvent(report))
	}

	c.logger.Info("recovered crash reports",
		zap.String("path", c.path),
		zap.Int("count", len(events)))

	return events, nil
}

// crashEvent converts one recovered report into a fatal event
func crashEvent(report CrashReport) *Event {
	event := NewEvent(LevelFatal)
	event.Logger = "crash_handler"

	exc := Exception{
		Type:  "FatalError",
		Value: report.Message,
	}
	if len(report.Stacktrace.Frames) > 0 {
		st := report.Stacktrace
		exc.Stacktrace = &st
	}
	event.Exceptions = []Exception{exc}

	return event
}
