// Package registry binds application event and consumer types to stable
// on-the-wire names and to exactly one transport, and captures the
// registration-time dispatch closure the receive loop invokes without any
// runtime reflection.
package registry

import (
	"context"
	"reflect"

	eventbus "github.com/xraph/eventbus"
	"github.com/xraph/eventbus/core"
)

// EntityKind distinguishes a broadcast destination (topic/exchange/fan-out)
// from a point-to-point one (queue).
type EntityKind int

const (
	EntityTopic EntityKind = iota
	EntityQueue
)

func (k EntityKind) String() string {
	if k == EntityQueue {
		return "queue"
	}
	return "topic"
}

// ErrorBehavior selects what a transport's receive loop does when a
// consumer returns an error.
type ErrorBehavior int

const (
	BehaviorDeadletter ErrorBehavior = iota
	BehaviorDiscard
	BehaviorFail
)

// Overrides holds the attribute-driven metadata a RegistrationOption
// populates at build time, applied before naming's convention pipeline runs.
type Overrides struct {
	EventName     string
	ConsumerName  string
	Serializer    string
	TransportName string
}

// RegistrationOption mutates Overrides at registration time.
type RegistrationOption func(*Overrides)

// WithEventName overrides the type-derived event name.
func WithEventName(name string) RegistrationOption {
	return func(o *Overrides) { o.EventName = name }
}

// WithConsumerName overrides the type-derived consumer name.
func WithConsumerName(name string) RegistrationOption {
	return func(o *Overrides) { o.ConsumerName = name }
}

// WithSerializer selects a non-default serializer by name.
func WithSerializer(name string) RegistrationOption {
	return func(o *Overrides) { o.Serializer = name }
}

// DispatchFunc is the registration-time closure RegisterConsumer builds. It
// carries T and C baked in, so invoking it needs no reflection: it resolves
// the consumer instance from scope, decodes raw into EventContext[T], binds
// bus for in-consumer republish, and calls Consume.
type DispatchFunc func(ctx context.Context, scope eventbus.Scope, raw *core.RawContext, bus core.Binder) error

// EventRegistration binds one event payload type to a transport and a
// sequence of consumers. EventName is derived once by Freeze and never
// recomputed afterward.
type EventRegistration struct {
	EventType     reflect.Type
	EventName     string
	TransportName string
	EntityKind    EntityKind
	Serializer    string
	Overrides     Overrides
	Consumers     []*EventConsumerRegistration
}

// EventConsumerRegistration binds one consumer type to a parent
// EventRegistration.
type EventConsumerRegistration struct {
	ConsumerType           reflect.Type
	ConsumerName           string
	UnhandledErrorBehavior ErrorBehavior
	Overrides              Overrides
	Dispatch               DispatchFunc
}
