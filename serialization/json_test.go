package serialization

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/eventbus/core"
)

func TestJSON_RoundTrip(t *testing.T) {
	sent := time.Now().UTC().Truncate(time.Millisecond)

	original := &core.RawContext{
		Id:             "evt-1",
		RequestId:      "req-1",
		CorrelationId:  "corr-1",
		ConversationId: "conv-1",
		InitiatorId:    "user-1",
		Sent:           &sent,
		Headers:        core.Headers{"custom": "value"},
		Event:          []byte(`{"make":"TESLA"}`),
	}

	var buf bytes.Buffer
	contentType, err := JSON.Serialize(&buf, original, core.HostInfo{ApplicationName: "eventbus-tests"})
	require.NoError(t, err)
	assert.Equal(t, JSONContentType, contentType)

	decoded, err := JSON.Deserialize(&buf, contentType)
	require.NoError(t, err)

	assert.Equal(t, original.Id, decoded.Id)
	assert.Equal(t, original.RequestId, decoded.RequestId)
	assert.Equal(t, original.CorrelationId, decoded.CorrelationId)
	assert.Equal(t, original.ConversationId, decoded.ConversationId)
	assert.Equal(t, original.InitiatorId, decoded.InitiatorId)
	assert.Equal(t, original.Sent.Unix(), decoded.Sent.Unix())
	assert.JSONEq(t, string(original.Event), string(decoded.Event))
	assert.Equal(t, "value", decoded.Headers["custom"])
	assert.Contains(t, decoded.Headers, core.HeaderHostInfo)
}

func TestJSON_MissingFieldsDecodeEmpty(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"Id":"evt-2","Event":null}`)

	decoded, err := JSON.Deserialize(&buf, JSONContentType)
	require.NoError(t, err)

	assert.Equal(t, "evt-2", decoded.Id)
	assert.Empty(t, decoded.CorrelationId)
	assert.NotNil(t, decoded.Headers)
}
