package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventbus "github.com/xraph/eventbus"
	"github.com/xraph/eventbus/bus"
	"github.com/xraph/eventbus/busconfig"
	"github.com/xraph/eventbus/core"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/observability"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/serialization"
	"github.com/xraph/eventbus/transport"
	"github.com/xraph/eventbus/transport/memory"
)

type orderPlaced struct {
	OrderID string
}

type orderPlacedConsumer struct {
	republished chan string
}

func (c orderPlacedConsumer) Consume(ctx context.Context, ec *core.EventContext[orderPlaced]) error {
	if c.republished != nil {
		c.republished <- ec.CorrelationId
	}
	return nil
}

func buildBus(t *testing.T) (*bus.Bus, *memory.Transport, chan string) {
	t.Helper()

	store := registry.NewStore()
	reg, err := registry.Register[orderPlaced](store, memory.Name, registry.EntityTopic)
	require.NoError(t, err)

	republished := make(chan string, 1)
	_, err = registry.RegisterConsumer[orderPlaced, orderPlacedConsumer](store, reg, registry.BehaviorDeadletter)
	require.NoError(t, err)

	container := eventbus.NewContainer()
	require.NoError(t, eventbus.ProvideValue[orderPlacedConsumer](container, orderPlacedConsumer{republished: republished}))

	metrics, err := observability.NewMetrics(observability.MetricsConfig{Enabled: false})
	require.NoError(t, err)
	tracer, err := observability.NewTracer(observability.TracingConfig{Enabled: false})
	require.NoError(t, err)

	cfg := busconfig.DefaultConfig()
	cfg.Naming.Scope = "dev"

	rt := &transport.Runtime{
		Name:        memory.Name,
		Store:       store,
		Serializers: serialization.NewRegistry(cfg.DefaultSerializer, serialization.JSON),
		Container:   container,
		Logger:      logger.NewDevelopmentLogger(),
		Tracer:      tracer,
		Metrics:     metrics,
		HostInfo:    core.HostInfo{ApplicationName: "bus-test"},
	}
	mt := memory.New(rt)
	rt.Ops = mt

	b := bus.New(store, cfg, logger.NewDevelopmentLogger(), rt)
	return b, mt, republished
}

func TestBus_StartPublishStop(t *testing.T) {
	b, mt, consumed := buildBus(t)

	require.NoError(t, b.Start(context.Background()))

	ec := core.New(orderPlaced{OrderID: "abc-123"})
	_, err := bus.Publish(context.Background(), b, ec, nil)
	require.NoError(t, err)

	select {
	case correlationId := <-consumed:
		assert.Equal(t, ec.Id, correlationId)
	case <-time.After(time.Second):
		t.Fatal("consumer never ran")
	}

	assert.NoError(t, b.CheckHealth(context.Background()))
	assert.NoError(t, b.Stop(context.Background(), 2*time.Second))
	assert.Empty(t, memory.Failed[orderPlaced](mt))
}

func TestBus_Republish_ResolvesByDynamicType(t *testing.T) {
	b, _, consumed := buildBus(t)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop(context.Background(), 2*time.Second)

	err := b.Republish(context.Background(), "corr-1", orderPlaced{OrderID: "xyz-789"})
	require.NoError(t, err)

	select {
	case <-consumed:
	case <-time.After(time.Second):
		t.Fatal("republished event never consumed")
	}
}

func TestBus_Publish_UnknownTransport_Errors(t *testing.T) {
	store := registry.NewStore()
	_, err := registry.Register[orderPlaced](store, "nonexistent", registry.EntityTopic)
	require.NoError(t, err)
	require.NoError(t, store.Freeze(busconfig.DefaultConfig().Naming.ToNamingConfig(), "json", serialization.NewRegistry("json", serialization.JSON)))

	cfg := busconfig.DefaultConfig()
	b := bus.New(store, cfg, logger.NewDevelopmentLogger())

	_, err = bus.Publish(context.Background(), b, core.New(orderPlaced{OrderID: "1"}), nil)
	assert.Error(t, err)
}
