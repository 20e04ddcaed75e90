package registry

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	eventbus "github.com/xraph/eventbus"
	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/core"
	"github.com/xraph/eventbus/naming"
	"github.com/xraph/eventbus/serialization"
	"github.com/xraph/vessel"
)

// Store holds every EventRegistration for the lifetime of one bus. It is
// writable only until Freeze succeeds; afterward every method that would
// mutate it fails with a configuration error.
type Store struct {
	mu     sync.Mutex
	byType map[reflect.Type]*EventRegistration
	order  []*EventRegistration
	frozen bool
}

// NewStore creates an empty, writable registration store.
func NewStore() *Store {
	return &Store{byType: make(map[reflect.Type]*EventRegistration)}
}

// Register binds event type T to transportName, creating the registration
// on first call and returning the existing one on every subsequent call for
// the same T (idempotent per event type).
func Register[T any](store *Store, transportName string, kind EntityKind, opts ...RegistrationOption) (*EventRegistration, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.frozen {
		return nil, busfault.ErrConfiguration("cannot register after freeze", nil)
	}

	t := reflect.TypeOf((*T)(nil)).Elem()
	if existing, ok := store.byType[t]; ok {
		return existing, nil
	}

	var overrides Overrides
	for _, opt := range opts {
		opt(&overrides)
	}

	reg := &EventRegistration{
		EventType:     t,
		TransportName: transportName,
		EntityKind:    kind,
		Overrides:     overrides,
	}
	store.byType[t] = reg
	store.order = append(store.order, reg)
	return reg, nil
}

// RegisterConsumer appends a consumer registration to reg, capturing a
// dispatch closure that bakes in T and C at this call site. C must
// implement core.Consumer[T]; resolution happens per-message from the
// scope handed to Dispatch, via vessel's generic Inject.
func RegisterConsumer[T any, C core.Consumer[T]](store *Store, reg *EventRegistration, behavior ErrorBehavior, opts ...RegistrationOption) (*EventConsumerRegistration, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.frozen {
		return nil, busfault.ErrConfiguration("cannot register consumer after freeze", nil)
	}

	var overrides Overrides
	for _, opt := range opts {
		opt(&overrides)
	}

	consumerType := reflect.TypeOf((*C)(nil)).Elem()

	ecr := &EventConsumerRegistration{
		ConsumerType:           consumerType,
		UnhandledErrorBehavior: behavior,
		Overrides:              overrides,
	}

	ecr.Dispatch = func(ctx context.Context, scope eventbus.Scope, raw *core.RawContext, bus core.Binder) error {
		consumer, err := vessel.Inject[C](scope)
		if err != nil {
			return busfault.ErrLifecycle("resolve-consumer", err)
		}

		ec, err := core.FromRaw[T](raw)
		if err != nil {
			return busfault.ErrSerialization("consume", err)
		}
		core.Bind(ec, bus)

		return consumer.Consume(ctx, ec)
	}

	reg.Consumers = append(reg.Consumers, ecr)
	return ecr, nil
}

// GetByReflectType looks up the registration bound to t directly, for call
// sites that only have a dynamic type at hand (Republish, which receives an
// event as `any`) rather than a compile-time T.
func GetByReflectType(store *Store, t reflect.Type) (*EventRegistration, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	reg, ok := store.byType[t]
	if !ok {
		return nil, busfault.ErrUnknownEvent(t.Name())
	}
	return reg, nil
}

// GetByEventType looks up the registration bound to T.
func GetByEventType[T any](store *Store) (*EventRegistration, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	t := reflect.TypeOf((*T)(nil)).Elem()
	reg, ok := store.byType[t]
	if !ok {
		return nil, busfault.ErrUnknownEvent(t.Name())
	}
	return reg, nil
}

// GetByTransport returns every registration bound to transportName, in
// registration order.
func (s *Store) GetByTransport(transportName string) []*EventRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*EventRegistration
	for _, reg := range s.order {
		if reg.TransportName == transportName {
			out = append(out, reg)
		}
	}
	return out
}

// Freeze derives EventName/ConsumerName for every registration using cfg,
// binds each registration's Serializer (falling back to
// defaultSerializer), validates that the bound serializer name actually
// resolves against serializers, and validates name uniqueness. After Freeze
// succeeds the store rejects further registration. A nil serializers
// registry skips serializer validation, which a test exercising only naming
// or transport wiring may pass.
func (s *Store) Freeze(cfg naming.Config, defaultSerializer string, serializers *serialization.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return nil
	}

	seenEventNames := make(map[string]reflect.Type)

	for _, reg := range s.order {
		t := reg.EventType
		if reg.TransportName == "" {
			return busfault.ErrConfiguration(fmt.Sprintf("registration for %s has no transport", t.Name()), nil)
		}

		reg.EventName = naming.EventName(t, cfg, reg.Overrides.EventName)

		key := reg.TransportName + "/" + reg.EventName
		if other, ok := seenEventNames[key]; ok {
			return busfault.ErrConfiguration(
				fmt.Sprintf("duplicate event name %q on transport %q (types %s and %s)", reg.EventName, reg.TransportName, other.Name(), t.Name()),
				nil,
			)
		}
		seenEventNames[key] = t

		if reg.Serializer == "" {
			reg.Serializer = defaultSerializer
		}
		if reg.Overrides.Serializer != "" {
			reg.Serializer = reg.Overrides.Serializer
		}

		if serializers != nil {
			if _, ok := serializers.Get(reg.Serializer); !ok {
				return busfault.ErrConfiguration(
					fmt.Sprintf("event %q is bound to unregistered serializer %q", reg.EventName, reg.Serializer),
					nil,
				)
			}
		}

		seenConsumerNames := make(map[string]bool)
		for _, c := range reg.Consumers {
			c.ConsumerName = naming.ConsumerName(c.ConsumerType, reg.EventName, cfg, c.Overrides.ConsumerName)
			if seenConsumerNames[c.ConsumerName] {
				return busfault.ErrConfiguration(
					fmt.Sprintf("duplicate consumer name %q under event %q", c.ConsumerName, reg.EventName),
					nil,
				)
			}
			seenConsumerNames[c.ConsumerName] = true
		}
	}

	s.frozen = true
	return nil
}

// Frozen reports whether Freeze has already succeeded.
func (s *Store) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}
