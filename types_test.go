package telemetry_pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIDWireForm(t *testing.T) {
	id := NewEventID()

	hex := id.String()
	assert.Len(t, hex, 32)
	assert.NotContains(t, hex, "-")
	assert.Equal(t, hex, id.DashedString()[:8]+id.DashedString()[9:13]+
		id.DashedString()[14:18]+id.DashedString()[19:23]+id.DashedString()[24:])

	parsed, err := ParseEventID(hex)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseEventIDRejectsBadInput(t *testing.T) {
	for _, s := range []string{
		"",
		"abc",
		"fc6d8c0c43fc4630ad850ee518f1b9d",  // 31 chars
		"zc6d8c0c43fc4630ad850ee518f1b9d0", // not hex
		"fc6d8c0c-43fc-4630-ad85-0ee518f1b9d0",
	} {
		_, err := ParseEventID(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestEventIDJSON(t *testing.T) {
	id, err := ParseEventID("fc6d8c0c43fc4630ad850ee518f1b9d0")
	require.NoError(t, err)

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"fc6d8c0c43fc4630ad850ee518f1b9d0"`, string(data))

	var decoded EventID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)

	assert.Equal(t, "fc6d8c0c-43fc-4630-ad85-0ee518f1b9d0", id.DashedString())
}

func TestLogMessageVariants(t *testing.T) {
	raw, err := json.Marshal(Message("plain text"))
	require.NoError(t, err)
	assert.Equal(t, `"plain text"`, string(raw))

	templated, err := json.Marshal(Messagef("user %s failed %d times", "bob", 3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"user %s failed %d times","params":["bob",3]}`, string(templated))

	var decoded LogMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.False(t, decoded.IsTemplated())
	assert.Equal(t, "plain text", decoded.Raw)

	require.NoError(t, json.Unmarshal(templated, &decoded))
	assert.True(t, decoded.IsTemplated())
	assert.Equal(t, "user %s failed %d times", decoded.Template)
}

func TestEventJSONOmitsEmptyFields(t *testing.T) {
	event := NewEvent(LevelError)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Contains(t, decoded, "event_id")
	assert.Contains(t, decoded, "level")
	assert.NotContains(t, decoded, "logentry")
	assert.NotContains(t, decoded, "exception")
	assert.NotContains(t, decoded, "user")
	assert.NotContains(t, decoded, "tags")
}
