// Package core defines the types that flow through every transport: the
// envelope carried between publisher and consumer, the consumer contract,
// and the headers/host-info shapes the serializer and transports share.
package core

import (
	"context"
	"time"
)

// Headers carries transport-agnostic metadata alongside an event. Insertion
// order is never significant; lookups are by key only.
type Headers map[string]any

// Clone returns a shallow copy, safe to hand to a new EventContext without
// aliasing the source's map.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Reserved header keys. Transports that expose a native header/property
// channel (Service Bus application properties, SNS message attributes,
// RabbitMQ basic properties) carry these natively; transports that don't
// (Queue Storage) fall back to the JSON envelope.
const (
	HeaderActivityId    = "ActivityId"
	HeaderId            = "Id"
	HeaderCorrelationId = "CorrelationId"
	HeaderSequenceNumber = "SequenceNumber"
	HeaderContentType   = "ContentType"
	HeaderHostInfo      = "X-Host-Info"
)

// HostInfo identifies the process publishing or consuming an event. The
// default serializer embeds it in the reserved X-Host-Info header; readers
// must tolerate its absence.
type HostInfo struct {
	ApplicationName    string `json:"applicationName"`
	ApplicationVersion string `json:"applicationVersion"`
	EnvironmentName    string `json:"environmentName"`
	MachineName        string `json:"machineName"`
	LibraryVersion     string `json:"libraryVersion"`
}

// Binder is implemented by the bus façade. EventContext holds one after a
// consume-side deserialization so a handler can republish through the same
// bus without the call site re-threading a bus reference everywhere.
type Binder interface {
	Republish(ctx context.Context, correlationId string, event any) error
}

// EventContext carries one event payload plus the correlation/identity
// metadata that travels with it end to end. Id is assigned by the bus on
// publish if unset; Sent likewise. Mutation after publish is the bus's job
// alone — user code should treat a context handed to a consumer as
// read-only and construct a fresh one (via New or Reply) to republish.
type EventContext[T any] struct {
	Id             string
	CorrelationId  string
	RequestId      string
	ConversationId string
	InitiatorId    string
	Expires        *time.Time
	Sent           *time.Time
	Headers        Headers
	Event          T

	bus Binder
}

// New wraps a payload into a fresh context with no carried correlation.
func New[T any](event T) *EventContext[T] {
	return &EventContext[T]{Event: event, Headers: Headers{}}
}

// Bind attaches a Binder to ec so Republish can reach the bus that produced
// it. Called once by the registry's decode closure right after
// deserialization; never by user code.
func Bind[T any](ec *EventContext[T], b Binder) {
	ec.bus = b
}

// Republish publishes a new event correlated to ec via the bus bound to ec
// by Bind. It never mutates ec: the new context's CorrelationId is ec.Id,
// nothing else is carried over.
func (ec *EventContext[T]) Republish(ctx context.Context, event any) error {
	if ec.bus == nil {
		return errContextNotBound
	}
	return ec.bus.Republish(ctx, ec.Id, event)
}

// Reply builds the EventContext a Republish would construct, without
// actually publishing it — useful when the caller wants to inspect or
// further decorate the context before handing it to a publisher.
func Reply[U any](source IdentifiedContext, event U) *EventContext[U] {
	ec := New(event)
	ec.CorrelationId = source.SourceId()
	return ec
}

// IdentifiedContext is the minimal surface Reply needs from a source
// context, letting it work across EventContext[T] for any T.
type IdentifiedContext interface {
	SourceId() string
}

// SourceId implements IdentifiedContext.
func (ec *EventContext[T]) SourceId() string {
	return ec.Id
}
