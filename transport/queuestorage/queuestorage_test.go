package queuestorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeadletterName(t *testing.T) {
	assert.Equal(t, "order-placed-deadletter", deadletterName("order-placed"))
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(fakeErr("RequestId: abc, QueueAlreadyExists")))
	assert.False(t, isAlreadyExists(fakeErr("RequestId: abc, QueueNotFound")))
	assert.False(t, isAlreadyExists(nil))
}

func TestMessageIDString(t *testing.T) {
	assert.Equal(t, "", messageIDString(nil))
	v := "abc123"
	assert.Equal(t, "abc123", messageIDString(&v))
}

type stringErr string

func (e stringErr) Error() string { return string(e) }

func fakeErr(s string) error {
	if s == "" {
		return nil
	}
	return stringErr(s)
}
