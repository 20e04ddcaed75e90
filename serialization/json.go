package serialization

import (
	"encoding/json"
	"io"

	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/core"
)

// JSONContentType is the content type the default serializer declares and
// expects on Deserialize.
const JSONContentType = "application/json; charset=utf-8"

// jsonSerializer is a thin wrapper around core.RawContext's own json tags,
// adding the host-info header write on the way out.
type jsonSerializer struct{}

// JSON is the default serializer: a self-describing JSON envelope with
// fields Id, RequestId, CorrelationId, ConversationId, InitiatorId, Sent,
// Expires, Headers, Event.
var JSON Serializer = jsonSerializer{}

func (jsonSerializer) Name() string { return "json" }

func (jsonSerializer) Serialize(w io.Writer, raw *core.RawContext, hostInfo core.HostInfo) (string, error) {
	if raw.Headers == nil {
		raw.Headers = core.Headers{}
	}
	if info, err := json.Marshal(hostInfo); err == nil {
		raw.Headers[core.HeaderHostInfo] = string(info)
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(raw); err != nil {
		return "", busfault.ErrSerialization("publish", err)
	}
	return JSONContentType, nil
}

func (jsonSerializer) Deserialize(r io.Reader, contentType string) (*core.RawContext, error) {
	var raw core.RawContext
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, busfault.ErrSerialization("consume", err)
	}
	if raw.Headers == nil {
		raw.Headers = core.Headers{}
	}
	return &raw, nil
}
