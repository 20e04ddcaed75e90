package snssqs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeadletterName(t *testing.T) {
	assert.Equal(t, "order-placed-deadletter", deadletterName("order-placed"))
}

func TestHasSuffix(t *testing.T) {
	assert.True(t, hasSuffix("arn:aws:sns:us-east-1:123456789012:order-placed", "order-placed"))
	assert.False(t, hasSuffix("arn:aws:sns:us-east-1:123456789012:order-placed", "order-shipped"))
	assert.False(t, hasSuffix("short", "longer-than-short"))
}
