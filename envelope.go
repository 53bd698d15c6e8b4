package telemetry_pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Item type tags understood by the ingestion endpoint
const (
	ItemTypeEvent      = "event"
	ItemTypeAttachment = "attachment"
)

// EnvelopeHeader is the first line of an envelope
type EnvelopeHeader struct {
	EventID *EventID       `json:"event_id,omitempty"`
	DSN     string         `json:"dsn,omitempty"`
	SDK     *SDKDescriptor `json:"sdk,omitempty"`
}

// SDKDescriptor identifies the producing SDK
type SDKDescriptor struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ItemHeader describes the payload that follows it on the wire. The length
// lets a receiver take the payload without requiring it to be
// self-delimiting JSON, so binary attachments work.
type ItemHeader struct {
	Type        string `json:"type"`
	Length      int    `json:"length"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// EnvelopeItem is one item header plus its raw payload bytes
type EnvelopeItem struct {
	Header  ItemHeader
	Payload []byte
}

// Envelope is the multi-part wire container batching events and attachments
// into one HTTP request. Item order is preserved on the wire.
type Envelope struct {
	Header EnvelopeHeader
	Items  []EnvelopeItem
}

// AddEvent appends a JSON-encoded event item
func (e *Envelope) AddEvent(event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}
	e.Items = append(e.Items, EnvelopeItem{
		Header: ItemHeader{
			Type:        ItemTypeEvent,
			Length:      len(payload),
			ContentType: "application/json",
		},
		Payload: payload,
	})
	return nil
}

// AddAttachment appends a raw binary attachment item
func (e *Envelope) AddAttachment(filename, contentType string, data []byte) {
	e.Items = append(e.Items, EnvelopeItem{
		Header: ItemHeader{
			Type:        ItemTypeAttachment,
			Length:      len(data),
			Filename:    filename,
			ContentType: contentType,
		},
		Payload: data,
	})
}

// WriteTo serializes the envelope in the newline-delimited wire format: one
// JSON header line, then per item one JSON item-header line followed by the
// raw payload bytes, each segment terminated by a newline.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	header, err := json.Marshal(e.Header)
	if err != nil {
		return 0, fmt.Errorf("failed to encode envelope header: %w", err)
	}
	buf.Write(header)
	buf.WriteByte('\n')

	for i, item := range e.Items {
		itemHeader, err := json.Marshal(item.Header)
		if err != nil {
			return 0, fmt.Errorf("failed to encode item header %d: %w", i, err)
		}
		buf.Write(itemHeader)
		buf.WriteByte('\n')
		buf.Write(item.Payload)
		buf.WriteByte('\n')
	}

	return buf.WriteTo(w)
}

// Bytes returns the serialized wire form
func (e *Envelope) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseEnvelope decodes the wire form back into an envelope. The pipeline
// only produces envelopes; decoding exists to verify the format is exactly
// reproducible against the receiving service.
func ParseEnvelope(data []byte) (*Envelope, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	headerLine, err := r.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read envelope header: %w", err)
	}

	env := &Envelope{}
	if err := json.Unmarshal(bytes.TrimSuffix(headerLine, []byte("\n")), &env.Header); err != nil {
		return nil, fmt.Errorf("invalid envelope header: %w", err)
	}

	for {
		itemLine, err := r.ReadBytes('\n')
		if err == io.EOF && len(bytes.TrimSpace(itemLine)) == 0 {
			break
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read item header: %w", err)
		}

		var item EnvelopeItem
		if err := json.Unmarshal(bytes.TrimSuffix(itemLine, []byte("\n")), &item.Header); err != nil {
			return nil, fmt.Errorf("invalid item header: %w", err)
		}

		payload := make([]byte, item.Header.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("truncated item payload: %w", err)
		}
		item.Payload = payload

		// Consume the newline terminating the payload segment
		if b, err := r.ReadByte(); err == nil && b != '\n' {
			return nil, fmt.Errorf("item payload not newline-terminated")
		}

		env.Items = append(env.Items, item)
	}

	return env, nil
}
