package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventbus "github.com/xraph/eventbus"
	"github.com/xraph/eventbus/core"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/naming"
	"github.com/xraph/eventbus/observability"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/serialization"
	"github.com/xraph/eventbus/transport"
	"github.com/xraph/eventbus/transport/memory"
)

type sampleEvent struct {
	Make         string
	Model        string
	Registration string
	VIN          string
	Year         int
}

type sampleEventConsumer struct{}

func (sampleEventConsumer) Consume(ctx context.Context, ec *core.EventContext[sampleEvent]) error {
	return nil
}

func buildRuntime(t *testing.T) (*transport.Runtime, *memory.Transport, *registry.Store) {
	t.Helper()

	store := registry.NewStore()
	reg, err := registry.Register[sampleEvent](store, memory.Name, registry.EntityTopic)
	require.NoError(t, err)
	_, err = registry.RegisterConsumer[sampleEvent, sampleEventConsumer](store, reg, registry.BehaviorDeadletter)
	require.NoError(t, err)

	require.NoError(t, store.Freeze(naming.Config{Scope: "dev", Convention: naming.KebabCase}, "json", serialization.NewRegistry("json", serialization.JSON)))

	container := eventbus.NewContainer()
	require.NoError(t, eventbus.ProvideValue[sampleEventConsumer](container, sampleEventConsumer{}))

	metrics, err := observability.NewMetrics(observability.MetricsConfig{Enabled: false})
	require.NoError(t, err)
	tracer, err := observability.NewTracer(observability.TracingConfig{Enabled: false})
	require.NoError(t, err)

	rt := &transport.Runtime{
		Name:        memory.Name,
		Store:       store,
		Serializers: serialization.NewRegistry("json", serialization.JSON),
		Container:   container,
		Logger:      logger.NewDevelopmentLogger(),
		Tracer:      tracer,
		Metrics:     metrics,
		HostInfo:    core.HostInfo{ApplicationName: "memory-test"},
		Gate:        transport.NewGate(),
	}
	mt := memory.New(rt)
	rt.Ops = mt
	rt.Gate.Open()

	return rt, mt, store
}

func TestMemoryTransport_PublishConsume(t *testing.T) {
	rt, mt, store := buildRuntime(t)

	reg, err := registry.GetByEventType[sampleEvent](store)
	require.NoError(t, err)

	ec := core.New(sampleEvent{
		Make:         "TESLA",
		Model:        "Roadster 2.0",
		Registration: "1234567890",
		VIN:          "5YJ3E1EA5KF328931",
		Year:         2021,
	})

	_, err = transport.Publish(context.Background(), rt, reg, ec, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(memory.Consumed[sampleEvent](mt)) == 1
	}, time.Second, 10*time.Millisecond)

	consumed := memory.Consumed[sampleEvent](mt)
	require.Len(t, consumed, 1)
	assert.Equal(t, "TESLA", consumed[0].Event.Make)
	assert.Equal(t, "Roadster 2.0", consumed[0].Event.Model)
	assert.Equal(t, ec.Id, consumed[0].CorrelationId)
	assert.Empty(t, memory.Failed[sampleEvent](mt))
}

func TestMemoryTransport_Cancel_NotSupported(t *testing.T) {
	rt, _, store := buildRuntime(t)
	reg, err := registry.GetByEventType[sampleEvent](store)
	require.NoError(t, err)

	err = transport.Cancel(context.Background(), rt, reg, "")
	assert.Error(t, err)
}

func TestMemoryTransport_ScheduledDispatchWaits(t *testing.T) {
	rt, mt, store := buildRuntime(t)
	reg, err := registry.GetByEventType[sampleEvent](store)
	require.NoError(t, err)

	scheduled := time.Now().Add(150 * time.Millisecond)
	ec := core.New(sampleEvent{Make: "FORD"})
	_, err = transport.Publish(context.Background(), rt, reg, ec, &scheduled)
	require.NoError(t, err)

	assert.Empty(t, memory.Consumed[sampleEvent](mt))

	require.Eventually(t, func() bool {
		return len(memory.Consumed[sampleEvent](mt)) == 1
	}, time.Second, 10*time.Millisecond)
}
