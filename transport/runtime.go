// Package transport holds the pipeline every broker package shares:
// publish/consume steps, the readiness gate, the single-flight client
// cache, and the BrokerOps capability interface concrete transports
// implement. transport.Runtime is composed into each broker package's
// constructor rather than subclassed.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	eventbus "github.com/xraph/eventbus"
	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/core"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/observability"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/serialization"
)

// Decision is what ConsumeEntry tells a receive loop to do once a
// consumer's dispatch closure returns. The loop, not the pipeline,
// executes the broker-specific action for it.
type Decision int

const (
	// Ack means complete/delete the message; it was handled successfully.
	Ack Decision = iota
	// Deadletter means route the message to its dead-letter destination
	// (broker-native if available, a shadow queue otherwise).
	Deadletter
	// Discard means ack the message and drop it silently.
	Discard
	// Requeue means negative-ack with redelivery if the broker supports
	// it, otherwise re-raise to the caller.
	Requeue
)

func (d Decision) String() string {
	switch d {
	case Deadletter:
		return "deadletter"
	case Discard:
		return "discard"
	case Requeue:
		return "requeue"
	default:
		return "ack"
	}
}

// BrokerOps is the capability interface a concrete broker package provides.
// Runtime calls these verbs; the broker-specific implementation never needs
// to reimplement the shared pipeline around them.
type BrokerOps interface {
	// SendOne publishes one already-serialized message. scheduled is nil
	// for immediate delivery. Returns the transport's scheduled marker
	// (empty when the broker doesn't support scheduling).
	SendOne(ctx context.Context, reg *registry.EventRegistration, body []byte, contentType string, scheduled *time.Time) (marker string, err error)

	// SendMany publishes a batch, natively if the broker supports it.
	SendMany(ctx context.Context, reg *registry.EventRegistration, bodies [][]byte, contentType string) (markers []string, err error)

	// Cancel cancels a previously scheduled publish. Returns a
	// busfault.ErrNotSupported fault if the broker doesn't support it.
	Cancel(ctx context.Context, reg *registry.EventRegistration, marker string) error

	// StartReceive begins dispatching incoming messages for reg to handle,
	// blocking until ctx is cancelled or the loop otherwise stops.
	StartReceive(ctx context.Context, reg *registry.EventRegistration, handle HandleFunc) error

	// StopReceive stops this transport's receive loops, bounded by ctx.
	// Transports whose loops end when the context passed to StartReceive is
	// cancelled (which Bus.Stop does first) return at once; the others wait
	// for their in-flight dispatches to finish.
	StopReceive(ctx context.Context) error

	// CheckHealth reports whether this transport's broker connection is
	// usable right now.
	CheckHealth(ctx context.Context) error

	// ProvisionForRegistration creates whatever broker-side entities reg
	// needs (topic/subscription, queue, exchange/binding) when entity
	// creation is enabled.
	ProvisionForRegistration(ctx context.Context, reg *registry.EventRegistration) error
}

// HandleFunc is what a receive loop calls for every incoming message; it
// returns the Decision the loop must then execute.
type HandleFunc func(ctx context.Context, body []byte, contentType string, headers core.Headers) Decision

// Runtime holds everything the shared pipeline needs to publish and
// consume for one transport instance: its name, the broker capability
// implementation, the registration store, the serializer registry, the DI
// container, the ambient stack, and the readiness gate.
type Runtime struct {
	Name        string
	Ops         BrokerOps
	Store       *registry.Store
	Serializers *serialization.Registry
	Container   eventbus.Container
	Logger      logger.Logger
	Tracer      observability.Tracer
	Metrics     observability.Metrics
	HostInfo    core.HostInfo
	Gate        *Gate
	Bus         core.Binder
}

// Publish runs the shared publish pipeline (§4.E) for one EventContext:
// assign Id/Sent if unset, resolve the serializer, start a producer span,
// inject ActivityId, serialize, then call the broker's SendOne.
func Publish[T any](ctx context.Context, rt *Runtime, reg *registry.EventRegistration, ec *core.EventContext[T], scheduled *time.Time) (string, error) {
	if ec.Id == "" {
		ec.Id = uuid.NewString()
	}
	if ec.Sent == nil {
		now := time.Now().UTC()
		ec.Sent = &now
	}

	ser, ok := rt.Serializers.Get(reg.Serializer)
	if !ok {
		return "", busfault.ErrConfiguration("unknown serializer "+reg.Serializer, nil)
	}

	ctx, span := rt.Tracer.StartSpan(ctx, "publish "+reg.EventName, observability.WithSpanKind(observability.SpanKindProducer))
	defer span.End()
	span.SetAttribute("messaging.system", rt.Name)
	span.SetAttribute("messaging.destination", reg.EventName)

	ec.Headers = InjectActivityId(ec.Headers.Clone(), span.Context().TraceID().String())

	raw, err := core.ToRaw(ec)
	if err != nil {
		span.RecordError(err)
		return "", busfault.ErrSerialization("publish", err)
	}

	var buf bytes.Buffer
	contentType, err := ser.Serialize(&buf, raw, rt.HostInfo)
	if err != nil {
		span.RecordError(err)
		rt.Metrics.PublishTotal(rt.Name, reg.EventName, "serialization-error").Inc()
		return "", err
	}

	marker, err := rt.Ops.SendOne(ctx, reg, buf.Bytes(), contentType, scheduled)
	if err != nil {
		span.RecordError(err)
		rt.Metrics.PublishTotal(rt.Name, reg.EventName, "error").Inc()
		rt.Logger.Error("publish failed",
			logger.String("transport", rt.Name),
			logger.String("event", reg.EventName),
			logger.String("id", ec.Id),
			logger.Error(err),
		)
		return "", err
	}

	rt.Metrics.PublishTotal(rt.Name, reg.EventName, "ok").Inc()
	rt.Logger.Debug("published",
		logger.String("transport", rt.Name),
		logger.String("event", reg.EventName),
		logger.String("id", ec.Id),
	)

	return marker, nil
}

// PublishMany runs Publish's serialization/tracing steps over a batch and
// hands the result to SendMany so the broker can use its native batch API.
func PublishMany[T any](ctx context.Context, rt *Runtime, reg *registry.EventRegistration, ecs []*core.EventContext[T]) ([]string, error) {
	ser, ok := rt.Serializers.Get(reg.Serializer)
	if !ok {
		return nil, busfault.ErrConfiguration("unknown serializer "+reg.Serializer, nil)
	}

	ctx, span := rt.Tracer.StartSpan(ctx, "publish-many "+reg.EventName, observability.WithSpanKind(observability.SpanKindProducer))
	defer span.End()

	bodies := make([][]byte, 0, len(ecs))
	var contentType string

	for _, ec := range ecs {
		if ec.Id == "" {
			ec.Id = uuid.NewString()
		}
		if ec.Sent == nil {
			now := time.Now().UTC()
			ec.Sent = &now
		}
		ec.Headers = InjectActivityId(ec.Headers.Clone(), span.Context().TraceID().String())

		raw, err := core.ToRaw(ec)
		if err != nil {
			return nil, busfault.ErrSerialization("publish", err)
		}

		var buf bytes.Buffer
		ct, err := ser.Serialize(&buf, raw, rt.HostInfo)
		if err != nil {
			return nil, err
		}
		contentType = ct
		bodies = append(bodies, buf.Bytes())
	}

	markers, err := rt.Ops.SendMany(ctx, reg, bodies, contentType)
	if err != nil {
		span.RecordError(err)
		rt.Metrics.PublishTotal(rt.Name, reg.EventName, "error").Add(float64(len(ecs)))
		return nil, err
	}

	rt.Metrics.PublishTotal(rt.Name, reg.EventName, "ok").Add(float64(len(ecs)))
	return markers, nil
}

// PublishRaw runs the same pipeline as Publish without a compile-time T,
// marshaling event directly; used only by the bus façade's Republish, whose
// core.Binder signature receives event as `any` and must resolve its
// registration by reflect.Type rather than by generic instantiation.
func PublishRaw(ctx context.Context, rt *Runtime, reg *registry.EventRegistration, correlationId string, event any, scheduled *time.Time) (string, error) {
	ser, ok := rt.Serializers.Get(reg.Serializer)
	if !ok {
		return "", busfault.ErrConfiguration("unknown serializer "+reg.Serializer, nil)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", busfault.ErrSerialization("republish", err)
	}

	now := time.Now().UTC()
	raw := &core.RawContext{
		Id:            uuid.NewString(),
		CorrelationId: correlationId,
		Sent:          &now,
		Event:         payload,
	}

	ctx, span := rt.Tracer.StartSpan(ctx, "publish "+reg.EventName, observability.WithSpanKind(observability.SpanKindProducer))
	defer span.End()
	raw.Headers = InjectActivityId(core.Headers{}, span.Context().TraceID().String())

	var buf bytes.Buffer
	contentType, err := ser.Serialize(&buf, raw, rt.HostInfo)
	if err != nil {
		span.RecordError(err)
		rt.Metrics.PublishTotal(rt.Name, reg.EventName, "serialization-error").Inc()
		return "", err
	}

	marker, err := rt.Ops.SendOne(ctx, reg, buf.Bytes(), contentType, scheduled)
	if err != nil {
		span.RecordError(err)
		rt.Metrics.PublishTotal(rt.Name, reg.EventName, "error").Inc()
		return "", err
	}

	rt.Metrics.PublishTotal(rt.Name, reg.EventName, "ok").Inc()
	return marker, nil
}

// Cancel delegates to the broker's Cancel, surfacing NotSupported when the
// broker has none.
func Cancel(ctx context.Context, rt *Runtime, reg *registry.EventRegistration, marker string) error {
	if marker == "" {
		return busfault.ErrNotSupported("Cancel", rt.Name)
	}
	return rt.Ops.Cancel(ctx, reg, marker)
}

// ConsumeEntry runs the shared consume pipeline (§4.E) for one incoming
// message: wait for the readiness gate, deserialize, read ActivityId from
// the envelope headers, start a consumer span that records it as the
// "messaging.activity_id" attribute (the span is not parented on it), open
// a DI scope, invoke the matched consumer's dispatch closure, and translate
// the outcome into a Decision.
func ConsumeEntry(ctx context.Context, rt *Runtime, reg *registry.EventRegistration, consumer *registry.EventConsumerRegistration, body []byte, contentType string) Decision {
	select {
	case <-rt.Gate.Done():
	case <-ctx.Done():
		return Requeue
	}

	ser, ok := rt.Serializers.Get(reg.Serializer)
	if !ok {
		rt.Logger.Error("unknown serializer on consume", logger.String("transport", rt.Name), logger.String("event", reg.EventName))
		return behaviorDecision(consumer.UnhandledErrorBehavior)
	}

	raw, err := ser.Deserialize(bytes.NewReader(body), contentType)
	if err != nil {
		rt.Logger.Error("deserialize failed", logger.String("transport", rt.Name), logger.String("event", reg.EventName), logger.Error(err))
		return behaviorDecision(consumer.UnhandledErrorBehavior)
	}

	activityId := ExtractActivityId(raw.Headers)
	ctx, span := rt.Tracer.StartSpan(ctx, "consume "+reg.EventName, observability.WithSpanKind(observability.SpanKindConsumer))
	defer span.End()
	if activityId != "" {
		span.SetAttribute("messaging.activity_id", activityId)
	}

	timer := rt.Metrics.DispatchDuration(rt.Name, reg.EventName, consumer.ConsumerName).Timer()
	defer timer.ObserveDuration()

	scope, err := rt.Container.NewScope(ctx)
	if err != nil {
		span.RecordError(err)
		rt.Logger.Error("failed to open scope", logger.Error(err))
		return behaviorDecision(consumer.UnhandledErrorBehavior)
	}
	defer scope.Close()

	err = consumer.Dispatch(ctx, scope, raw, rt.Bus)
	if err != nil {
		span.RecordError(err)
		decision := behaviorDecision(consumer.UnhandledErrorBehavior)
		rt.Metrics.ConsumeTotal(rt.Name, reg.EventName, consumer.ConsumerName, decision.String()).Inc()
		if decision == Deadletter {
			rt.Metrics.DeadletterTotal(rt.Name, reg.EventName, consumer.ConsumerName).Inc()
		}
		rt.Logger.Error("consumer failed",
			logger.String("transport", rt.Name),
			logger.String("event", reg.EventName),
			logger.String("consumer", consumer.ConsumerName),
			logger.String("id", raw.Id),
			logger.Error(err),
		)
		return decision
	}

	rt.Metrics.ConsumeTotal(rt.Name, reg.EventName, consumer.ConsumerName, "ack").Inc()
	return Ack
}

func behaviorDecision(behavior registry.ErrorBehavior) Decision {
	switch behavior {
	case registry.BehaviorDiscard:
		return Discard
	case registry.BehaviorFail:
		return Requeue
	default:
		return Deadletter
	}
}
