package core

import (
	"encoding/json"
	"time"
)

// RawContext is the type-erased envelope the serializer contract operates
// on. Event stays as json.RawMessage until a registration's decode closure
// unmarshals it into the concrete payload type; everything else is already
// in its final shape.
type RawContext struct {
	Id             string          `json:"Id"`
	RequestId      string          `json:"RequestId,omitempty"`
	CorrelationId  string          `json:"CorrelationId,omitempty"`
	ConversationId string          `json:"ConversationId,omitempty"`
	InitiatorId    string          `json:"InitiatorId,omitempty"`
	Sent           *time.Time      `json:"Sent,omitempty"`
	Expires        *time.Time      `json:"Expires,omitempty"`
	Headers        Headers         `json:"Headers,omitempty"`
	Event          json.RawMessage `json:"Event"`
}

// ToRaw erases ec's payload type, marshaling Event to JSON. Used on the
// publish side before handing the envelope to a serializer.
func ToRaw[T any](ec *EventContext[T]) (*RawContext, error) {
	payload, err := json.Marshal(ec.Event)
	if err != nil {
		return nil, err
	}
	return &RawContext{
		Id:             ec.Id,
		RequestId:      ec.RequestId,
		CorrelationId:  ec.CorrelationId,
		ConversationId: ec.ConversationId,
		InitiatorId:    ec.InitiatorId,
		Sent:           ec.Sent,
		Expires:        ec.Expires,
		Headers:        ec.Headers,
		Event:          payload,
	}, nil
}

// FromRaw reconstructs a concrete EventContext[T] from a type-erased
// envelope, unmarshaling Event into T. Called by a registration's captured
// decode closure on the consume side.
func FromRaw[T any](raw *RawContext) (*EventContext[T], error) {
	var event T
	if len(raw.Event) > 0 {
		if err := json.Unmarshal(raw.Event, &event); err != nil {
			return nil, err
		}
	}
	return &EventContext[T]{
		Id:             raw.Id,
		RequestId:      raw.RequestId,
		CorrelationId:  raw.CorrelationId,
		ConversationId: raw.ConversationId,
		InitiatorId:    raw.InitiatorId,
		Sent:           raw.Sent,
		Expires:        raw.Expires,
		Headers:        raw.Headers,
		Event:          event,
	}, nil
}
