// Package eventhubs implements transport.BrokerOps over Azure Event Hubs:
// a partitioned stream publisher and a blob-checkpointed consumer. Event
// Hubs has no scheduled publish or broker-native cancel/dead-letter, so
// those verbs degrade to a logged warning and a shadow publish
// respectively.
package eventhubs

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs/checkpoints"

	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/transport"
	"github.com/xraph/eventbus/transport/cache"
)

// Name identifies this transport in registry.Register's transportName
// argument and in EventRegistration.TransportName.
const Name = "eventhubs"

// Config holds Event Hubs connection and checkpoint-store settings.
type Config struct {
	ConnectionString  string
	EventHubName      string
	ConsumerGroup     string
	CheckpointStoreConnectionString string
	CheckpointStoreContainer        string
}

// Transport implements transport.BrokerOps over one azeventhubs producer
// client and, lazily, one processor per consumer group backed by a blob
// checkpoint store.
type Transport struct {
	cfg             Config
	rt              *transport.Runtime
	producers       *cache.Single[string, *azeventhubs.ProducerClient]
	consumers       *cache.Single[string, *azeventhubs.ConsumerClient]
	checkpointStore *checkpoints.BlobStore
}

// New constructs a Transport. Connect must run before publish or receive.
func New(cfg Config, rt *transport.Runtime) *Transport {
	t := &Transport{
		cfg:       cfg,
		rt:        rt,
		producers: cache.NewSingle[string, *azeventhubs.ProducerClient](),
		consumers: cache.NewSingle[string, *azeventhubs.ConsumerClient](),
	}
	t.producers.OnCreate(func(string) { rt.Metrics.CacheCreatedTotal(Name).Inc() })
	t.consumers.OnCreate(func(string) { rt.Metrics.CacheCreatedTotal(Name).Inc() })
	return t
}

// Connect warms the producer client for the configured event hub. All
// event types multiplex onto this single hub; Event Hubs has no per-topic
// entity the way Service Bus does.
func (t *Transport) Connect(ctx context.Context) error {
	_, err := t.producer(t.cfg.EventHubName)
	return err
}

func (t *Transport) producer(hubName string) (*azeventhubs.ProducerClient, error) {
	return t.producers.GetOrCreate(hubName, func() (*azeventhubs.ProducerClient, error) {
		p, err := azeventhubs.NewProducerClientFromConnectionString(t.cfg.ConnectionString, hubName, nil)
		if err != nil {
			return nil, busfault.ErrLifecycle("eventhubs-connect", err)
		}
		return p, nil
	})
}

// ProvisionForRegistration is a no-op: Event Hubs assumes the hub already
// exists.
func (t *Transport) ProvisionForRegistration(ctx context.Context, reg *registry.EventRegistration) error {
	return nil
}

// SendOne publishes one event into a new event-data batch. scheduled is
// ignored with a logged warning; Event Hubs has no delayed-delivery verb.
func (t *Transport) SendOne(ctx context.Context, reg *registry.EventRegistration, body []byte, contentType string, scheduled *time.Time) (string, error) {
	if scheduled != nil {
		t.rt.Logger.Warn("eventhubs does not support scheduled publish; sending immediately", logger.String("event", reg.EventName))
	}

	producer, err := t.producer(t.cfg.EventHubName)
	if err != nil {
		return "", err
	}

	batch, err := producer.NewEventDataBatch(ctx, nil)
	if err != nil {
		return "", busfault.ErrTransient("eventhubs-batch", err)
	}

	if err := batch.AddEventData(&azeventhubs.EventData{Body: body, ContentType: &contentType}, nil); err != nil {
		return "", busfault.ErrTransient("eventhubs-batch-add", err)
	}

	if err := producer.SendEventDataBatch(ctx, batch, nil); err != nil {
		return "", busfault.ErrTransient("eventhubs-send", err)
	}
	return "", nil
}

// SendMany packs every body into as many native batches as needed and
// sends each, exercising Event Hubs' native batching.
func (t *Transport) SendMany(ctx context.Context, reg *registry.EventRegistration, bodies [][]byte, contentType string) ([]string, error) {
	markers := make([]string, 0, len(bodies))

	producer, err := t.producer(t.cfg.EventHubName)
	if err != nil {
		return nil, err
	}

	batch, err := producer.NewEventDataBatch(ctx, nil)
	if err != nil {
		return nil, busfault.ErrTransient("eventhubs-batch", err)
	}

	flush := func() error {
		if batch.NumEvents() == 0 {
			return nil
		}
		if err := producer.SendEventDataBatch(ctx, batch, nil); err != nil {
			return busfault.ErrTransient("eventhubs-send", err)
		}
		return nil
	}

	for _, body := range bodies {
		ct := contentType
		err := batch.AddEventData(&azeventhubs.EventData{Body: body, ContentType: &ct}, nil)
		if err != nil {
			if flushErr := flush(); flushErr != nil {
				return markers, flushErr
			}
			batch, err = producer.NewEventDataBatch(ctx, nil)
			if err != nil {
				return markers, busfault.ErrTransient("eventhubs-batch", err)
			}
			if err := batch.AddEventData(&azeventhubs.EventData{Body: body, ContentType: &ct}, nil); err != nil {
				return markers, busfault.ErrTransient("eventhubs-batch-add", err)
			}
		}
		markers = append(markers, "")
	}

	if err := flush(); err != nil {
		return markers, err
	}
	return markers, nil
}

// Cancel is not supported: Event Hubs has no scheduled-publish verb to
// withdraw.
func (t *Transport) Cancel(ctx context.Context, reg *registry.EventRegistration, marker string) error {
	return busfault.ErrNotSupported("Cancel", Name)
}

// StartReceive processes events for reg's consumer group via the
// checkpoint-store-backed partition processor, dispatching each to handle.
// Event Hubs has no broker-native dead-letter, so a Deadletter decision is
// published to a shadow "<hub>-deadletter" event hub instead, named after
// the configured EventHubName.
func (t *Transport) StartReceive(ctx context.Context, reg *registry.EventRegistration, handle transport.HandleFunc) error {
	checkpointStore, err := t.ensureCheckpointStore(ctx)
	if err != nil {
		return err
	}

	consumer, err := t.consumers.GetOrCreate(t.cfg.ConsumerGroup, func() (*azeventhubs.ConsumerClient, error) {
		return azeventhubs.NewConsumerClientFromConnectionString(t.cfg.ConnectionString, t.cfg.EventHubName, t.cfg.ConsumerGroup, nil)
	})
	if err != nil {
		return busfault.ErrLifecycle("eventhubs-consumer", err)
	}

	processor, err := azeventhubs.NewProcessor(consumer, checkpointStore, nil)
	if err != nil {
		return busfault.ErrLifecycle("eventhubs-processor", err)
	}

	go func() {
		for {
			partitionClient := processor.NextPartitionClient(ctx)
			if partitionClient == nil {
				return
			}
			go t.processPartition(ctx, partitionClient, handle, reg)
		}
	}()

	return processor.Run(ctx)
}

func (t *Transport) ensureCheckpointStore(ctx context.Context) (*checkpoints.BlobStore, error) {
	if t.checkpointStore != nil {
		return t.checkpointStore, nil
	}

	store, err := checkpoints.NewBlobStoreFromConnectionString(t.cfg.CheckpointStoreConnectionString, t.cfg.CheckpointStoreContainer, nil)
	if err != nil {
		return nil, busfault.ErrLifecycle("eventhubs-checkpoint-store", err)
	}
	t.checkpointStore = store
	return store, nil
}

func (t *Transport) processPartition(ctx context.Context, partitionClient *azeventhubs.ProcessorPartitionClient, handle transport.HandleFunc, reg *registry.EventRegistration) {
	defer partitionClient.Close(ctx)

	for {
		receiveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		events, err := partitionClient.ReceiveEvents(receiveCtx, 100, nil)
		cancel()
		if err != nil && ctx.Err() != nil {
			return
		}

		for _, evt := range events {
			contentType := ""
			if evt.ContentType != nil {
				contentType = *evt.ContentType
			}
			headers := map[string]any{}
			for k, v := range evt.Properties {
				headers[k] = v
			}

			decision := handle(ctx, evt.Body, contentType, headers)
			if decision == transport.Deadletter {
				t.shadowDeadletter(ctx, reg, evt.Body, contentType)
			}
		}

		if len(events) > 0 {
			if err := partitionClient.UpdateCheckpoint(ctx, events[len(events)-1], nil); err != nil {
				t.rt.Logger.Error("eventhubs checkpoint update failed", logger.Error(err))
			}
		}
	}
}

func (t *Transport) shadowDeadletter(ctx context.Context, reg *registry.EventRegistration, body []byte, contentType string) {
	t.rt.Logger.Warn("publishing to shadow dead-letter hub", logger.String("event", reg.EventName))

	producer, err := t.producer(t.cfg.EventHubName + "-deadletter")
	if err != nil {
		t.rt.Logger.Error("shadow dead-letter producer unavailable", logger.Error(err))
		return
	}

	batch, err := producer.NewEventDataBatch(ctx, nil)
	if err != nil {
		t.rt.Logger.Error("shadow dead-letter batch failed", logger.Error(err))
		return
	}
	if err := batch.AddEventData(&azeventhubs.EventData{Body: body, ContentType: &contentType}, nil); err != nil {
		t.rt.Logger.Error("shadow dead-letter batch add failed", logger.Error(err))
		return
	}
	if err := producer.SendEventDataBatch(ctx, batch, nil); err != nil {
		t.rt.Logger.Error("shadow dead-letter publish failed", logger.Error(err))
	}
}

// StopReceive returns at once. The processor's Run loop stops when the
// context passed to StartReceive is cancelled, which Bus.Stop does before
// calling StopReceive.
func (t *Transport) StopReceive(ctx context.Context) error {
	return nil
}

// CheckHealth verifies the producer client still knows its event hub's
// properties.
func (t *Transport) CheckHealth(ctx context.Context) error {
	producer, err := t.producer(t.cfg.EventHubName)
	if err != nil {
		return err
	}
	if _, err := producer.GetEventHubProperties(ctx, nil); err != nil {
		return busfault.ErrLifecycle("eventhubs-health", err)
	}
	return nil
}
