package telemetry_pipeline

import (
	"strconv"
	"strings"
)

// Frame is one stack position. All fields are optional; a frame carries at
// least the instruction address when no symbol information was recoverable.
type Frame struct {
	Filename        string `json:"filename,omitempty"`
	Function        string `json:"function,omitempty"`
	RawFunction     string `json:"raw_function,omitempty"`
	Lineno          int    `json:"lineno,omitempty"`
	Colno           int    `json:"colno,omitempty"`
	AbsPath         string `json:"abs_path,omitempty"`
	InstructionAddr string `json:"instruction_addr,omitempty"`
}

// Stacktrace is an ordered sequence of frames, caller to callee: the oldest
// frame comes first, the frame that raised comes last. Crash handlers print
// the innermost frame first, so frames recovered from crash text are
// front-inserted to restore this order.
type Stacktrace struct {
	Frames []Frame `json:"frames"`
}

// CrashReport is one message/stacktrace pair recovered from crash text
type CrashReport struct {
	Message    string
	Stacktrace Stacktrace
}

// ParseStacktraces reconstructs structured crash reports from the free-form
// text written by the crash handler. It is total: malformed input degrades
// to bare-address frames or header-only reports, it never fails.
//
// A trimmed line starting with "0x" is a stack line, anything else is header
// text for the current report. A header line following one or more stack
// lines closes the current report and opens the next one. Blank lines are
// skipped and never delimit anything.
func ParseStacktraces(input string) []CrashReport {
	var (
		reports []CrashReport
		headers []string
		frames  []Frame
		inStack bool
	)

	flush := func() {
		if len(headers) == 0 && len(frames) == 0 {
			return
		}
		reports = append(reports, CrashReport{
			Message:    strings.Join(headers, "\n"),
			Stacktrace: Stacktrace{Frames: frames},
		})
		headers = nil
		frames = nil
		inStack = false
	}

	for _, raw := range strings.Split(input, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "0x") {
			// Crash output lists the innermost frame first; prepend so the
			// finished trace reads caller to callee.
			frames = append([]Frame{parseStackLine(line)}, frames...)
			inStack = true
			continue
		}

		if inStack {
			flush()
		}
		headers = append(headers, line)
	}

	flush()
	return reports
}

// parseStackLine parses a single stack line. The symbolicated form is
//
//	ADDR, FUNCTION at /ABS/PATH:LINE
//
// detected by the first comma, the " at /" marker and the last colon
// appearing in that order. Anything else is kept as a bare address.
func parseStackLine(line string) Frame {
	comma := strings.Index(line, ",")
	at := strings.Index(line, " at /")
	colon := strings.LastIndex(line, ":")

	if comma < 0 || at < 0 || colon < 0 || comma >= at || at >= colon {
		return Frame{InstructionAddr: line}
	}

	frame := Frame{
		InstructionAddr: line[:comma],
		Function:        line[comma+2 : at],
		AbsPath:         line[at+4 : colon],
	}
	if lineno, err := strconv.Atoi(line[colon+1:]); err == nil {
		frame.Lineno = lineno
	}
	return frame
}
