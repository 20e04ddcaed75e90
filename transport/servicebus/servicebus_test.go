package servicebus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/eventbus/registry"
)

func TestSubscriptionName(t *testing.T) {
	reg := &registry.EventRegistration{EventName: "order-placed"}
	assert.Equal(t, "order-placed-billing-consumer", subscriptionName(reg, "billing-consumer"))
}

func TestProvisionForRegistration_RejectsOversizedNames(t *testing.T) {
	longName := strings.Repeat("x", maxNameLength+1)
	reg := &registry.EventRegistration{EventName: longName}

	tr := &Transport{}
	err := tr.ProvisionForRegistration(nil, reg)
	assert.Error(t, err)
}
