package publisher_test

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
	"github.com/xraph/eventbus/publisher"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/serialization"
	"github.com/xraph/eventbus/transport"
	"github.com/xraph/eventbus/transport/memory"
)

type invoiceIssued struct {
	InvoiceID string
	Amount    int
}

type invoiceIssuedConsumer struct{}

func (invoiceIssuedConsumer) Consume(ctx context.Context, ec *core.EventContext[invoiceIssued]) error {
	return nil
}

func buildPublisher(t *testing.T) (*publisher.Publisher, *bus.Bus, *memory.Transport) {
	t.Helper()

	store := registry.NewStore()
	reg, err := registry.Register[invoiceIssued](store, memory.Name, registry.EntityTopic)
	require.NoError(t, err)
	_, err = registry.RegisterConsumer[invoiceIssued, invoiceIssuedConsumer](store, reg, registry.BehaviorDeadletter)
	require.NoError(t, err)

	container := eventbus.NewContainer()
	require.NoError(t, eventbus.ProvideValue[invoiceIssuedConsumer](container, invoiceIssuedConsumer{}))

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
		HostInfo:    core.HostInfo{ApplicationName: "publisher-test"},
	}
	mt := memory.New(rt)
	rt.Ops = mt

	b := bus.New(store, cfg, logger.NewDevelopmentLogger(), rt)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Stop(context.Background(), 2*time.Second) })

	return publisher.New(b), b, mt
}

func TestPublisher_Publish(t *testing.T) {
	pub, _, mt := buildPublisher(t)

	_, err := publisher.Publish(context.Background(), pub, invoiceIssued{InvoiceID: "INV-1", Amount: 4200}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(memory.Consumed[invoiceIssued](mt)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_PublishBatch_Unscheduled(t *testing.T) {
	pub, _, mt := buildPublisher(t)

	markers, err := publisher.PublishBatch(context.Background(), pub, []invoiceIssued{
		{InvoiceID: "INV-2", Amount: 100},
		{InvoiceID: "INV-3", Amount: 200},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, markers, 2)

	require.Eventually(t, func() bool {
		return len(memory.Consumed[invoiceIssued](mt)) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_PublishBatch_Scheduled_PerItem(t *testing.T) {
	pub, _, mt := buildPublisher(t)

	scheduled := time.Now().Add(100 * time.Millisecond)
	markers, err := publisher.PublishBatch(context.Background(), pub, []invoiceIssued{
		{InvoiceID: "INV-4", Amount: 50},
	}, &scheduled)
	require.NoError(t, err)
	assert.Len(t, markers, 1)

	assert.Empty(t, memory.Consumed[invoiceIssued](mt))

	require.Eventually(t, func() bool {
		return len(memory.Consumed[invoiceIssued](mt)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_Cancel_NotSupportedOnMemory(t *testing.T) {
	pub, _, _ := buildPublisher(t)
	err := publisher.Cancel[invoiceIssued](context.Background(), pub, "")
	assert.Error(t, err)
}
