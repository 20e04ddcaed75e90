package kinesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionKey_DefaultsToEnvelopeID(t *testing.T) {
	tr := &Transport{cfg: Config{StreamName: "orders"}}
	assert.Equal(t, "abc-123", tr.partitionKey("order-placed", []byte(`{"Id":"abc-123","Event":{}}`)))
}

func TestPartitionKey_DefaultsToFreshID_WhenBodyHasNoId(t *testing.T) {
	tr := &Transport{cfg: Config{StreamName: "orders"}}
	key := tr.partitionKey("order-placed", []byte("not-json"))
	assert.NotEmpty(t, key)
}

func TestPartitionKey_OverrideHook(t *testing.T) {
	tr := &Transport{cfg: Config{
		StreamName: "orders",
		PartitionKeyFunc: func(eventName string, body []byte) string {
			return eventName + ":" + string(body)
		},
	}}
	assert.Equal(t, "order-placed:body", tr.partitionKey("order-placed", []byte("body")))
}
