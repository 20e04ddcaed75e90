package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/transport"
)

func TestQueueName(t *testing.T) {
	reg := &registry.EventRegistration{EventName: "order-placed"}
	assert.Equal(t, "order-placed.billing-consumer", queueName(reg, "billing-consumer"))
}

func TestExponentialBackoff_GroundsReconnectDelay(t *testing.T) {
	assert.Equal(t, time.Second, transport.ExponentialBackoff(0))
	assert.Equal(t, 2*time.Second, transport.ExponentialBackoff(1))
	assert.Equal(t, 4*time.Second, transport.ExponentialBackoff(2))
}
