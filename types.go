package telemetry_pipeline

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a captured event
type Level string

const (
	LevelFatal   Level = "fatal"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// EventID is a 128-bit event identifier. On the wire it is always the
// 32-character lowercase hex form without separators.
type EventID [16]byte

// NewEventID generates a random event identifier
func NewEventID() EventID {
	return EventID(uuid.New())
}

// ParseEventID parses the 32-character hex wire form
func ParseEventID(s string) (EventID, error) {
	var id EventID
	if len(s) != 32 {
		return id, fmt.Errorf("event id must be 32 hex characters, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid event id %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}

// String returns the wire form (32 lowercase hex characters, no dashes)
func (id EventID) String() string {
	return hex.EncodeToString(id[:])
}

// DashedString returns the canonical dashed UUID form
func (id EventID) DashedString() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the identifier is unset
func (id EventID) IsZero() bool {
	return id == EventID{}
}

// MarshalJSON implements json.Marshaler
func (id EventID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (id *EventID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEventID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// LogMessage is either a raw message string or a templated message with
// parameters. Raw messages encode as a bare JSON string, templated ones as
// an object carrying the template and its params.
type LogMessage struct {
	Raw      string
	Template string
	Params   []any
}

// Message creates a raw log message
func Message(raw string) *LogMessage {
	return &LogMessage{Raw: raw}
}

// Messagef creates a templated log message
func Messagef(template string, params ...any) *LogMessage {
	return &LogMessage{Template: template, Params: params}
}

// IsTemplated reports whether the templated variant is populated
func (m *LogMessage) IsTemplated() bool {
	return m.Template != ""
}

// MarshalJSON implements json.Marshaler
func (m *LogMessage) MarshalJSON() ([]byte, error) {
	if m.IsTemplated() {
		return json.Marshal(struct {
			Message string `json:"message"`
			Params  []any  `json:"params,omitempty"`
		}{Message: m.Template, Params: m.Params})
	}
	return json.Marshal(m.Raw)
}

// UnmarshalJSON implements json.Unmarshaler
func (m *LogMessage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*m = LogMessage{Raw: raw}
		return nil
	}
	var templated struct {
		Message string `json:"message"`
		Params  []any  `json:"params"`
	}
	if err := json.Unmarshal(data, &templated); err != nil {
		return err
	}
	*m = LogMessage{Template: templated.Message, Params: templated.Params}
	return nil
}

// Exception is one link of a chained exception list
type Exception struct {
	Type       string      `json:"type,omitempty"`
	Value      string      `json:"value,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Breadcrumb is a timestamped contextual note preceding an event
type Breadcrumb struct {
	Timestamp time.Time         `json:"timestamp"`
	Category  string            `json:"category,omitempty"`
	Message   string            `json:"message,omitempty"`
	Level     Level             `json:"level,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// User identifies the affected user, if known
type User struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// Event represents a single error/log record to be delivered. An event is
// treated as immutable once captured; the beforeSend hook may replace it
// wholesale but nothing mutates it in place after enqueue.
type Event struct {
	ID          EventID           `json:"event_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Level       Level             `json:"level"`
	Logger      string            `json:"logger,omitempty"`
	Transaction string            `json:"transaction,omitempty"`
	ServerName  string            `json:"server_name,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Message     *LogMessage       `json:"logentry,omitempty"`
	Exceptions  []Exception       `json:"exception,omitempty"`
	Breadcrumbs []Breadcrumb      `json:"breadcrumbs,omitempty"`
	User        *User             `json:"user,omitempty"`

	// Source location of the originating log call when the event came in
	// through the log adapter. A single frame.
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// NewEvent creates an event with a fresh identifier and timestamp
func NewEvent(level Level) *Event {
	return &Event{
		ID:        NewEventID(),
		Timestamp: time.Now().UTC(),
		Level:     level,
	}
}

// SendResult represents the outcome of a capture or send operation
type SendResult struct {
	Success   bool   `json:"success"`
	EventID   string `json:"event_id"`
	Error     string `json:"error,omitempty"`
	RateLimit bool   `json:"rate_limit,omitempty"`
}

// TransportMetrics is a point-in-time snapshot of pipeline counters
type TransportMetrics struct {
	EventsCaptured  int64
	EventsSent      int64
	EventsDiscarded int64
	BatchesRequeued int64
	QueueLength     int
}
