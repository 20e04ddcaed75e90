// Package bus provides the façade that routes publish and cancel calls to
// the transport owning each event's registration, and aggregates
// start/stop/health across every wired transport.
package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/eventbus/busconfig"
	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/core"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/serialization"
	"github.com/xraph/eventbus/transport"
)

// Bus owns the registration store and every transport.Runtime it routes to.
// It implements core.Binder so a consumer's EventContext.Republish reaches
// back through the same bus that delivered it.
type Bus struct {
	store      *registry.Store
	transports map[string]*transport.Runtime
	cfg        busconfig.Config
	log        logger.Logger
	gate       *transport.Gate

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Bus over store and the already-constructed transport
// runtimes, pointing every runtime's Gate at one shared instance and its Bus
// field back at the returned *Bus so Republish can route through it.
func New(store *registry.Store, cfg busconfig.Config, log logger.Logger, runtimes ...*transport.Runtime) *Bus {
	b := &Bus{
		store:      store,
		transports: make(map[string]*transport.Runtime, len(runtimes)),
		cfg:        cfg,
		log:        log,
		gate:       transport.NewGate(),
	}

	for _, rt := range runtimes {
		rt.Gate = b.gate
		rt.Bus = b
		b.transports[rt.Name] = rt
	}

	return b
}

// Publish looks up T's registration and delegates to its transport.
func Publish[T any](ctx context.Context, b *Bus, ec *core.EventContext[T], scheduled *time.Time) (string, error) {
	rt, reg, err := resolve[T](b)
	if err != nil {
		return "", err
	}
	return transport.Publish(ctx, rt, reg, ec, scheduled)
}

// PublishMany looks up T's registration and delegates the batch to its
// transport.
func PublishMany[T any](ctx context.Context, b *Bus, ecs []*core.EventContext[T]) ([]string, error) {
	rt, reg, err := resolve[T](b)
	if err != nil {
		return nil, err
	}
	return transport.PublishMany(ctx, rt, reg, ecs)
}

// Cancel looks up T's registration and delegates the cancel to its
// transport.
func Cancel[T any](ctx context.Context, b *Bus, marker string) error {
	rt, reg, err := resolve[T](b)
	if err != nil {
		return err
	}
	return transport.Cancel(ctx, rt, reg, marker)
}

func resolve[T any](b *Bus) (*transport.Runtime, *registry.EventRegistration, error) {
	reg, err := registry.GetByEventType[T](b.store)
	if err != nil {
		return nil, nil, err
	}
	rt, ok := b.transports[reg.TransportName]
	if !ok {
		return nil, nil, busfault.ErrConfiguration(fmt.Sprintf("no transport registered as %q", reg.TransportName), nil)
	}
	return rt, reg, nil
}

// Republish implements core.Binder. It receives event as `any` because
// EventContext.Republish has no generic parameter of its own to carry T, so
// it resolves the registration by dynamic reflect.Type instead of the
// generic lookup every other entry point uses.
func (b *Bus) Republish(ctx context.Context, correlationId string, event any) error {
	t := reflect.TypeOf(event)
	reg, err := registry.GetByReflectType(b.store, t)
	if err != nil {
		return err
	}
	rt, ok := b.transports[reg.TransportName]
	if !ok {
		return busfault.ErrConfiguration(fmt.Sprintf("no transport registered as %q", reg.TransportName), nil)
	}
	_, err = transport.PublishRaw(ctx, rt, reg, correlationId, event, nil)
	return err
}

// Start freezes the registration store, provisions broker entities if
// configured to, launches one receive loop per (registration, consumer)
// pair, and opens the readiness gate once every loop has been started.
func (b *Bus) Start(ctx context.Context) error {
	var serializers *serialization.Registry
	for _, rt := range b.transports {
		serializers = rt.Serializers
		break
	}

	if err := b.store.Freeze(b.cfg.Naming.ToNamingConfig(), b.cfg.DefaultSerializer, serializers); err != nil {
		return err
	}

	ctx, b.cancel = context.WithCancel(ctx)

	for name, rt := range b.transports {
		for _, reg := range b.store.GetByTransport(name) {
			if b.cfg.EnableEntityCreation {
				if err := rt.Ops.ProvisionForRegistration(ctx, reg); err != nil {
					return busfault.ErrConfiguration(fmt.Sprintf("provisioning %q on transport %q", reg.EventName, name), err)
				}
			}

			for _, consumer := range reg.Consumers {
				b.startReceiveLoop(ctx, rt, reg, consumer)
			}
		}
	}

	b.gate.Open()
	b.log.Info("bus started", logger.Int("transports", len(b.transports)))
	return nil
}

func (b *Bus) startReceiveLoop(ctx context.Context, rt *transport.Runtime, reg *registry.EventRegistration, consumer *registry.EventConsumerRegistration) {
	handle := func(ctx context.Context, body []byte, contentType string, headers core.Headers) transport.Decision {
		return transport.ConsumeEntry(ctx, rt, reg, consumer, body, contentType)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := rt.Ops.StartReceive(ctx, reg, handle); err != nil {
			b.log.Error("receive loop exited",
				logger.String("transport", rt.Name),
				logger.String("event", reg.EventName),
				logger.String("consumer", consumer.ConsumerName),
				logger.Error(err),
			)
		}
	}()
}

// Stop cancels the context every receive loop was started with, signals
// every transport to stop receiving, and waits for the receive loops to
// exit, bounded by grace.
func (b *Bus) Stop(ctx context.Context, grace time.Duration) error {
	stopCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if b.cancel != nil {
		b.cancel()
	}

	var errs []error
	for _, rt := range b.transports {
		if err := rt.Ops.StopReceive(stopCtx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-stopCtx.Done():
		errs = append(errs, busfault.ErrTimeout("bus-stop", grace))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CheckHealth aggregates every transport's CheckHealth as all(ok).
func (b *Bus) CheckHealth(ctx context.Context) error {
	var errs []error
	for name, rt := range b.transports {
		if err := rt.Ops.CheckHealth(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
