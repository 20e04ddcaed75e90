// Package kinesis implements transport.BrokerOps over an Amazon Kinesis
// stream. Kinesis is publish-only in this core (no consume loop is
// wired): scheduled publish and cancel are unsupported, and the partition
// key defaults to the event's Id with an override hook for callers that
// need ordered streams.
package kinesis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/google/uuid"

	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/transport"
)

// Name identifies this transport in registry.Register's transportName
// argument and in EventRegistration.TransportName.
const Name = "kinesis"

// PartitionKeyFunc lets a caller override the default (envelope Id)
// partition key derivation for streams that need specific ordering
// guarantees, e.g. grouping by an aggregate id embedded in the event.
// eventName is the registration's wire name; body is the serialized
// envelope.
type PartitionKeyFunc func(eventName string, body []byte) string

// Config holds Kinesis stream settings.
type Config struct {
	StreamName       string
	PartitionKeyFunc PartitionKeyFunc
}

// envelopeID pulls out the "Id" field a RawContext serializes to. Falls
// back to a fresh uuid when the body isn't the default JSON envelope
// shape, so a custom serializer never breaks partitioning.
func envelopeID(body []byte) string {
	var probe struct {
		Id string `json:"Id"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Id != "" {
		return probe.Id
	}
	return uuid.NewString()
}

// Transport implements transport.BrokerOps over one kinesis.Client. It
// assumes the stream already exists; ProvisionForRegistration is a no-op.
type Transport struct {
	cfg    Config
	rt     *transport.Runtime
	client *kinesis.Client
}

// New constructs a Transport from an already-built Kinesis client.
func New(cfg Config, rt *transport.Runtime, client *kinesis.Client) *Transport {
	return &Transport{cfg: cfg, rt: rt, client: client}
}

// ProvisionForRegistration is a no-op: the stream is assumed to exist.
func (t *Transport) ProvisionForRegistration(ctx context.Context, reg *registry.EventRegistration) error {
	return nil
}

func (t *Transport) partitionKey(eventName string, body []byte) string {
	if t.cfg.PartitionKeyFunc != nil {
		return t.cfg.PartitionKeyFunc(eventName, body)
	}
	return envelopeID(body)
}

// SendOne puts one record onto the stream. scheduled is ignored with a
// logged warning: Kinesis has no delayed-delivery verb. The returned
// marker is always empty.
func (t *Transport) SendOne(ctx context.Context, reg *registry.EventRegistration, body []byte, contentType string, scheduled *time.Time) (string, error) {
	if scheduled != nil {
		t.rt.Logger.Warn("kinesis does not support scheduled publish; sending immediately", logger.String("event", reg.EventName))
	}

	_, err := t.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(t.cfg.StreamName),
		Data:         body,
		PartitionKey: aws.String(t.partitionKey(reg.EventName, body)),
	})
	if err != nil {
		return "", busfault.ErrTransient("kinesis-put", err)
	}
	return "", nil
}

// SendMany puts the batch via Kinesis's native PutRecords, exercising the
// "Native" batch column in the transport table.
func (t *Transport) SendMany(ctx context.Context, reg *registry.EventRegistration, bodies [][]byte, contentType string) ([]string, error) {
	records := make([]types.PutRecordsRequestEntry, len(bodies))
	for i, body := range bodies {
		records[i] = types.PutRecordsRequestEntry{
			Data:         body,
			PartitionKey: aws.String(t.partitionKey(reg.EventName, body)),
		}
	}

	out, err := t.client.PutRecords(ctx, &kinesis.PutRecordsInput{
		StreamName: aws.String(t.cfg.StreamName),
		Records:    records,
	})
	if err != nil {
		return nil, busfault.ErrTransient("kinesis-putrecords", err)
	}

	markers := make([]string, len(out.Records))
	for i, r := range out.Records {
		markers[i] = aws.ToString(r.SequenceNumber)
	}
	return markers, nil
}

// Cancel is not supported: a record already written to a Kinesis shard
// cannot be withdrawn.
func (t *Transport) Cancel(ctx context.Context, reg *registry.EventRegistration, marker string) error {
	return busfault.ErrNotSupported("Cancel", Name)
}

// StartReceive is not supported: this core treats Kinesis as publish-only,
// per the transport table's "n/a" dead-letter/consume entry.
func (t *Transport) StartReceive(ctx context.Context, reg *registry.EventRegistration, handle transport.HandleFunc) error {
	return busfault.ErrNotSupported("StartReceive", Name)
}

// StopReceive is a no-op since no receive loop ever starts.
func (t *Transport) StopReceive(ctx context.Context) error {
	return nil
}

// CheckHealth verifies the stream is describable.
func (t *Transport) CheckHealth(ctx context.Context) error {
	if _, err := t.client.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{StreamName: aws.String(t.cfg.StreamName)}); err != nil {
		return busfault.ErrLifecycle("kinesis-health", err)
	}
	return nil
}
