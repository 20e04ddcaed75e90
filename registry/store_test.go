package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/eventbus/core"
	"github.com/xraph/eventbus/naming"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/serialization"
)

type widgetCreated struct{ Name string }
type widgetCreatedConsumer struct{}

func (widgetCreatedConsumer) Consume(ctx context.Context, ec *core.EventContext[widgetCreated]) error {
	return nil
}

func TestRegister_IsIdempotentPerType(t *testing.T) {
	store := registry.NewStore()
	first, err := registry.Register[widgetCreated](store, "memory", registry.EntityTopic)
	require.NoError(t, err)
	second, err := registry.Register[widgetCreated](store, "memory", registry.EntityTopic)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestFreeze_RejectsRegistrationAfterward(t *testing.T) {
	store := registry.NewStore()
	_, err := registry.Register[widgetCreated](store, "memory", registry.EntityTopic)
	require.NoError(t, err)
	require.NoError(t, store.Freeze(naming.Config{Scope: "dev", Convention: naming.KebabCase}, "json", serialization.NewRegistry("json", serialization.JSON)))

	_, err = registry.Register[widgetCreated](store, "memory", registry.EntityTopic)
	assert.Error(t, err)
}

func TestFreeze_IsIdempotent(t *testing.T) {
	store := registry.NewStore()
	_, err := registry.Register[widgetCreated](store, "memory", registry.EntityTopic)
	require.NoError(t, err)

	cfg := naming.Config{Scope: "dev", Convention: naming.KebabCase}
	serializers := serialization.NewRegistry("json", serialization.JSON)
	require.NoError(t, store.Freeze(cfg, "json", serializers))
	reg, err := registry.GetByEventType[widgetCreated](store)
	require.NoError(t, err)
	firstName := reg.EventName

	require.NoError(t, store.Freeze(cfg, "json", serializers))
	assert.Equal(t, firstName, reg.EventName)
}

func TestFreeze_RejectsDuplicateEventNameOnSameTransport(t *testing.T) {
	store := registry.NewStore()
	_, err := registry.Register[widgetCreated](store, "memory", registry.EntityTopic, registry.WithEventName("dup"))
	require.NoError(t, err)

	type otherEvent struct{ Name string }
	_, err = registry.Register[otherEvent](store, "memory", registry.EntityTopic, registry.WithEventName("dup"))
	require.NoError(t, err)

	err = store.Freeze(naming.Config{Scope: "dev", Convention: naming.KebabCase}, "json", serialization.NewRegistry("json", serialization.JSON))
	assert.Error(t, err)
}

func TestFreeze_RejectsUnknownSerializer(t *testing.T) {
	store := registry.NewStore()
	_, err := registry.Register[widgetCreated](store, "memory", registry.EntityTopic, registry.WithSerializer("protobuf"))
	require.NoError(t, err)

	err = store.Freeze(naming.Config{Scope: "dev", Convention: naming.KebabCase}, "json", serialization.NewRegistry("json", serialization.JSON))
	assert.Error(t, err)
}

func TestGetByTransport_PreservesRegistrationOrder(t *testing.T) {
	store := registry.NewStore()

	type eventA struct{}
	type eventB struct{}
	type eventC struct{}

	regB, err := registry.Register[eventB](store, "memory", registry.EntityTopic)
	require.NoError(t, err)
	regA, err := registry.Register[eventA](store, "memory", registry.EntityTopic)
	require.NoError(t, err)
	_, err = registry.Register[eventC](store, "other", registry.EntityTopic)
	require.NoError(t, err)

	got := store.GetByTransport("memory")
	require.Len(t, got, 2)
	assert.Same(t, regB, got[0])
	assert.Same(t, regA, got[1])
}

func TestGetByReflectType_MatchesGenericLookup(t *testing.T) {
	store := registry.NewStore()
	reg, err := registry.Register[widgetCreated](store, "memory", registry.EntityTopic)
	require.NoError(t, err)

	byReflect, err := registry.GetByReflectType(store, reg.EventType)
	require.NoError(t, err)
	assert.Same(t, reg, byReflect)
}

func TestRegisterConsumer_AppendsConsumerRegistration(t *testing.T) {
	store := registry.NewStore()
	reg, err := registry.Register[widgetCreated](store, "memory", registry.EntityTopic)
	require.NoError(t, err)
	_, err = registry.RegisterConsumer[widgetCreated, widgetCreatedConsumer](store, reg, registry.BehaviorDeadletter)
	require.NoError(t, err)
	require.Len(t, reg.Consumers, 1)
}
