// Package memory is the in-memory BrokerOps implementation used for tests
// and local development: no network, no broker process, dispatch happens
// directly out of SendOne on a goroutine per consumer.
package memory

import (
	"bytes"
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/core"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/transport"
)

// Name is the transport name every registration must use to route through
// this package.
const Name = "memory"

// publishedEntry records one call to SendOne, regardless of how many (if
// any) consumers end up matching it.
type publishedEntry struct {
	EventType    reflect.Type
	Raw          *core.RawContext
	ScheduledFor *time.Time
}

// consumedEntry records one successful dispatch.
type consumedEntry struct {
	EventType    reflect.Type
	ConsumerName string
	Raw          *core.RawContext
}

// failedEntry records one dispatch whose consumer returned an error.
type failedEntry struct {
	EventType    reflect.Type
	ConsumerName string
	Raw          *core.RawContext
	Err          error
}

// Transport is the in-memory harness: it records every publish and, after
// any requested delay, invokes every matching consumer directly rather than
// going through a broker round-trip.
type Transport struct {
	rt *transport.Runtime

	mu        sync.Mutex
	published []publishedEntry
	consumed  []consumedEntry
	failed    []failedEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the in-memory transport, wired to rt for its serializer
// registry, DI container, and ambient stack. The caller is expected to set
// rt.Ops to the returned value immediately afterward.
func New(rt *transport.Runtime) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{rt: rt, ctx: ctx, cancel: cancel}
}

// SendOne records the publish and schedules one dispatch goroutine per
// matching consumer. It never blocks on delivery: it returns as soon as the
// entry is recorded and the goroutines are started.
func (t *Transport) SendOne(ctx context.Context, reg *registry.EventRegistration, body []byte, contentType string, scheduled *time.Time) (string, error) {
	ser, ok := t.rt.Serializers.Get(reg.Serializer)
	if !ok {
		return "", busfault.ErrConfiguration("unknown serializer "+reg.Serializer, nil)
	}

	raw, err := ser.Deserialize(bytes.NewReader(body), contentType)
	if err != nil {
		return "", busfault.ErrSerialization("memory-publish", err)
	}

	t.mu.Lock()
	t.published = append(t.published, publishedEntry{EventType: reg.EventType, Raw: raw, ScheduledFor: scheduled})
	t.mu.Unlock()

	for _, consumer := range reg.Consumers {
		t.wg.Add(1)
		go t.dispatch(reg, consumer, raw, scheduled)
	}

	return "", nil
}

// SendMany calls SendOne once per body; the memory transport has no native
// batch API to delegate to.
func (t *Transport) SendMany(ctx context.Context, reg *registry.EventRegistration, bodies [][]byte, contentType string) ([]string, error) {
	markers := make([]string, 0, len(bodies))
	for _, body := range bodies {
		marker, err := t.SendOne(ctx, reg, body, contentType, nil)
		if err != nil {
			return markers, err
		}
		markers = append(markers, marker)
	}
	return markers, nil
}

// Cancel is never supported: dispatch goroutines are already scheduled by
// the time a caller could have a marker to cancel with, and SendOne never
// returns one.
func (t *Transport) Cancel(ctx context.Context, reg *registry.EventRegistration, marker string) error {
	return busfault.ErrNotSupported("Cancel", Name)
}

// StartReceive has nothing to poll: dispatch already happens out of
// SendOne. It blocks until ctx is done so callers that treat every
// transport's StartReceive as a long-running loop behave consistently.
func (t *Transport) StartReceive(ctx context.Context, reg *registry.EventRegistration, handle transport.HandleFunc) error {
	<-ctx.Done()
	return nil
}

// StopReceive cancels the transport's internal context and waits for every
// in-flight dispatch goroutine to finish, bounded by ctx's deadline.
func (t *Transport) StopReceive(ctx context.Context) error {
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return busfault.ErrTimeout("memory-stop", 0)
	}
}

// CheckHealth always succeeds: there is no broker connection to lose.
func (t *Transport) CheckHealth(ctx context.Context) error {
	return nil
}

// ProvisionForRegistration is a no-op: the memory transport has no broker
// entities to create.
func (t *Transport) ProvisionForRegistration(ctx context.Context, reg *registry.EventRegistration) error {
	return nil
}

func (t *Transport) dispatch(reg *registry.EventRegistration, consumer *registry.EventConsumerRegistration, raw *core.RawContext, scheduled *time.Time) {
	defer t.wg.Done()

	if scheduled != nil {
		if d := time.Until(*scheduled); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-t.ctx.Done():
				return
			}
		}
	}

	clone := *raw
	clone.Id = uuid.NewString()
	clone.CorrelationId = raw.Id

	scope, err := t.rt.Container.NewScope(t.ctx)
	if err != nil {
		t.recordFailure(reg.EventType, consumer.ConsumerName, &clone, err)
		return
	}
	defer scope.Close()

	if err := consumer.Dispatch(t.ctx, scope, &clone, t.rt.Bus); err != nil {
		t.recordFailure(reg.EventType, consumer.ConsumerName, &clone, err)
		return
	}

	t.mu.Lock()
	t.consumed = append(t.consumed, consumedEntry{EventType: reg.EventType, ConsumerName: consumer.ConsumerName, Raw: &clone})
	t.mu.Unlock()

	t.rt.Metrics.ConsumeTotal(Name, reg.EventName, consumer.ConsumerName, "ack").Inc()
}

func (t *Transport) recordFailure(eventType reflect.Type, consumerName string, raw *core.RawContext, err error) {
	t.mu.Lock()
	t.failed = append(t.failed, failedEntry{EventType: eventType, ConsumerName: consumerName, Raw: raw, Err: err})
	t.mu.Unlock()

	t.rt.Logger.Error("in-memory consumer failed",
		logger.String("consumer", consumerName),
		logger.Error(err),
	)
	t.rt.Metrics.ConsumeTotal(Name, eventType.Name(), consumerName, "deadletter").Inc()
}

// FailedDelivery pairs a decoded EventContext with the error its consumer
// returned.
type FailedDelivery[T any] struct {
	Context *core.EventContext[T]
	Err     error
}

// Consumed returns every successfully dispatched EventContext[T], decoded
// from its recorded RawContext, in dispatch order.
func Consumed[T any](t *Transport) []*core.EventContext[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	want := reflect.TypeOf((*T)(nil)).Elem()
	var out []*core.EventContext[T]
	for _, entry := range t.consumed {
		if entry.EventType != want {
			continue
		}
		ec, err := core.FromRaw[T](entry.Raw)
		if err != nil {
			continue
		}
		out = append(out, ec)
	}
	return out
}

// Failed returns every dispatch of T whose consumer returned an error.
func Failed[T any](t *Transport) []FailedDelivery[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	want := reflect.TypeOf((*T)(nil)).Elem()
	var out []FailedDelivery[T]
	for _, entry := range t.failed {
		if entry.EventType != want {
			continue
		}
		ec, err := core.FromRaw[T](entry.Raw)
		if err != nil {
			continue
		}
		out = append(out, FailedDelivery[T]{Context: ec, Err: entry.Err})
	}
	return out
}

// Published returns every recorded publish of T, regardless of whether any
// consumer matched it.
func Published[T any](t *Transport) []*core.EventContext[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	want := reflect.TypeOf((*T)(nil)).Elem()
	var out []*core.EventContext[T]
	for _, entry := range t.published {
		if entry.EventType != want {
			continue
		}
		ec, err := core.FromRaw[T](entry.Raw)
		if err != nil {
			continue
		}
		out = append(out, ec)
	}
	return out
}
