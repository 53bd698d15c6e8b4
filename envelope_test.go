package telemetry_pipeline

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeWireFormat(t *testing.T) {
	id := NewEventID()
	env := &Envelope{Header: EnvelopeHeader{EventID: &id, SDK: sdkDescriptor}}
	env.AddAttachment("crash.log", "text/plain", []byte("raw crash text"))

	data, err := env.Bytes()
	require.NoError(t, err)

	// One header line, one item-header line, one payload segment, each
	// newline-terminated
	lines := bytes.Split(data, []byte("\n"))
	require.Len(t, lines, 4)
	assert.Empty(t, lines[3])

	var header EnvelopeHeader
	require.NoError(t, json.Unmarshal(lines[0], &header))
	assert.Equal(t, id, *header.EventID)
	assert.Equal(t, sdkName, header.SDK.Name)

	var itemHeader ItemHeader
	require.NoError(t, json.Unmarshal(lines[1], &itemHeader))
	assert.Equal(t, ItemTypeAttachment, itemHeader.Type)
	assert.Equal(t, "crash.log", itemHeader.Filename)
	assert.Equal(t, len("raw crash text"), itemHeader.Length)

	assert.Equal(t, []byte("raw crash text"), lines[2])
}

func TestEnvelopeRoundTrip(t *testing.T) {
	event := NewEvent(LevelError)
	event.Message = Message("boom")

	env := &Envelope{Header: EnvelopeHeader{DSN: "https://key@ingest.example.com/42", SDK: sdkDescriptor}}
	require.NoError(t, env.AddEvent(event))
	env.AddAttachment("core.bin", "application/octet-stream", []byte{0x00, 0x0a, 0xff, 0x0a})
	require.NoError(t, env.AddEvent(NewEvent(LevelWarning)))

	data, err := env.Bytes()
	require.NoError(t, err)

	decoded, err := ParseEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, env.Header, decoded.Header)
	require.Len(t, decoded.Items, 3)
	for i, item := range env.Items {
		assert.Equal(t, item.Header, decoded.Items[i].Header)
		assert.Equal(t, item.Payload, decoded.Items[i].Payload)
	}
}

func TestEnvelopeBinaryPayloadWithNewlines(t *testing.T) {
	// The declared length, not newline scanning, must delimit payloads
	payload := []byte("line1\nline2\n\nline3")
	env := &Envelope{}
	env.AddAttachment("notes.txt", "text/plain", payload)

	data, err := env.Bytes()
	require.NoError(t, err)

	decoded, err := ParseEnvelope(data)
	require.NoError(t, err)
	require.Len(t, decoded.Items, 1)
	assert.Equal(t, payload, decoded.Items[0].Payload)
}

func TestParseEnvelopeTruncatedPayload(t *testing.T) {
	_, err := ParseEnvelope([]byte("{}\n{\"type\":\"attachment\",\"length\":100}\nshort\n"))
	assert.Error(t, err)
}

func TestEnvelopeEmptyItems(t *testing.T) {
	env := &Envelope{Header: EnvelopeHeader{DSN: "https://key@ingest.example.com/1"}}

	data, err := env.Bytes()
	require.NoError(t, err)

	decoded, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Empty(t, decoded.Items)
	assert.Equal(t, env.Header, decoded.Header)
}
