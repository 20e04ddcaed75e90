// Package servicebus implements transport.BrokerOps over Azure Service
// Bus topics and subscriptions: native scheduled publish, cancel,
// dead-letter, and batch.
package servicebus

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"

	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/transport"
	"github.com/xraph/eventbus/transport/cache"
)

// Name identifies this transport in registry.Register's transportName
// argument and in EventRegistration.TransportName.
const Name = "servicebus"

// maxNameLength is the Service Bus ceiling on topic, subscription, and
// queue names.
const maxNameLength = 50

// Config holds Service Bus connection settings.
type Config struct {
	ConnectionString string
}

// Transport implements transport.BrokerOps over one azservicebus.Client,
// caching one sender per topic and one receiver per subscription.
type Transport struct {
	cfg        Config
	rt         *transport.Runtime
	client     *azservicebus.Client
	adminClient *admin.Client
	senders    *cache.Single[string, *azservicebus.Sender]
	receivers  *cache.Single[string, *azservicebus.Receiver]
}

// New constructs a Transport from a connection string. Connect must run
// before any publish or receive call.
func New(cfg Config, rt *transport.Runtime) *Transport {
	t := &Transport{
		cfg:       cfg,
		rt:        rt,
		senders:   cache.NewSingle[string, *azservicebus.Sender](),
		receivers: cache.NewSingle[string, *azservicebus.Receiver](),
	}
	t.senders.OnCreate(func(string) { rt.Metrics.CacheCreatedTotal(Name).Inc() })
	t.receivers.OnCreate(func(string) { rt.Metrics.CacheCreatedTotal(Name).Inc() })
	return t
}

// Connect builds the data-plane and admin clients from the connection
// string.
func (t *Transport) Connect(ctx context.Context) error {
	client, err := azservicebus.NewClientFromConnectionString(t.cfg.ConnectionString, nil)
	if err != nil {
		return busfault.ErrLifecycle("servicebus-connect", err)
	}

	adminClient, err := admin.NewClientFromConnectionString(t.cfg.ConnectionString, nil)
	if err != nil {
		return busfault.ErrLifecycle("servicebus-admin-connect", err)
	}

	t.client = client
	t.adminClient = adminClient
	return nil
}

func subscriptionName(reg *registry.EventRegistration, consumerName string) string {
	return reg.EventName + "-" + consumerName
}

// ProvisionForRegistration creates the event's topic and, for every
// registered consumer, a subscription under it. It fails before the admin
// call for a name that exceeds Service Bus's 50-character ceiling; the
// check runs only here, at provisioning, not during Freeze.
func (t *Transport) ProvisionForRegistration(ctx context.Context, reg *registry.EventRegistration) error {
	if len(reg.EventName) > maxNameLength {
		return busfault.ErrValidation("EventName", fmt.Errorf("%q exceeds service bus's %d-character limit", reg.EventName, maxNameLength))
	}

	if _, err := t.adminClient.GetTopic(ctx, reg.EventName, nil); err != nil {
		if _, createErr := t.adminClient.CreateTopic(ctx, reg.EventName, nil); createErr != nil {
			return busfault.ErrConfiguration("create topic "+reg.EventName, createErr)
		}
	}

	for _, c := range reg.Consumers {
		subName := subscriptionName(reg, c.ConsumerName)
		if len(subName) > maxNameLength {
			return busfault.ErrValidation("ConsumerName", fmt.Errorf("%q exceeds service bus's %d-character limit", subName, maxNameLength))
		}

		if _, err := t.adminClient.GetSubscription(ctx, reg.EventName, subName, nil); err != nil {
			if _, createErr := t.adminClient.CreateSubscription(ctx, reg.EventName, subName, nil); createErr != nil {
				return busfault.ErrConfiguration("create subscription "+subName, createErr)
			}
		}
	}
	return nil
}

func (t *Transport) sender(topic string) (*azservicebus.Sender, error) {
	return t.senders.GetOrCreate(topic, func() (*azservicebus.Sender, error) {
		return t.client.NewSender(topic, nil)
	})
}

func toSBMessage(body []byte, contentType string) *azservicebus.Message {
	ct := contentType
	return &azservicebus.Message{Body: body, ContentType: &ct}
}

// SendOne publishes to the event's topic, scheduling it natively if
// scheduled is non-nil and returning the resulting sequence number as a
// string marker.
func (t *Transport) SendOne(ctx context.Context, reg *registry.EventRegistration, body []byte, contentType string, scheduled *time.Time) (string, error) {
	sender, err := t.sender(reg.EventName)
	if err != nil {
		return "", busfault.ErrTransient("servicebus-sender", err)
	}

	msg := toSBMessage(body, contentType)

	if scheduled != nil {
		seqNums, err := sender.ScheduleMessages(ctx, []*azservicebus.Message{msg}, *scheduled, nil)
		if err != nil {
			return "", busfault.ErrTransient("servicebus-schedule", err)
		}
		if len(seqNums) == 0 {
			return "", nil
		}
		return fmt.Sprintf("%d", seqNums[0]), nil
	}

	if err := sender.SendMessage(ctx, msg, nil); err != nil {
		return "", busfault.ErrTransient("servicebus-send", err)
	}
	return "", nil
}

// SendMany publishes bodies in one batch message using the SDK's native
// message-batch API.
func (t *Transport) SendMany(ctx context.Context, reg *registry.EventRegistration, bodies [][]byte, contentType string) ([]string, error) {
	sender, err := t.sender(reg.EventName)
	if err != nil {
		return nil, busfault.ErrTransient("servicebus-sender", err)
	}

	batch, err := sender.NewMessageBatch(ctx, nil)
	if err != nil {
		return nil, busfault.ErrTransient("servicebus-batch", err)
	}

	for _, body := range bodies {
		if err := batch.AddMessage(toSBMessage(body, contentType), nil); err != nil {
			return nil, busfault.ErrTransient("servicebus-batch-add", err)
		}
	}

	if err := sender.SendMessageBatch(ctx, batch, nil); err != nil {
		return nil, busfault.ErrTransient("servicebus-batch-send", err)
	}

	return make([]string, len(bodies)), nil
}

// Cancel withdraws a scheduled message by its sequence number marker.
func (t *Transport) Cancel(ctx context.Context, reg *registry.EventRegistration, marker string) error {
	sender, err := t.sender(reg.EventName)
	if err != nil {
		return busfault.ErrTransient("servicebus-sender", err)
	}

	var seqNum int64
	if _, err := fmt.Sscanf(marker, "%d", &seqNum); err != nil {
		return busfault.ErrValidation("marker", err)
	}

	return sender.CancelScheduledMessages(ctx, []int64{seqNum}, nil)
}

// StartReceive runs one receive loop per consumer's subscription, pulling
// messages and translating each Decision into complete/dead-letter/
// abandon.
func (t *Transport) StartReceive(ctx context.Context, reg *registry.EventRegistration, handle transport.HandleFunc) error {
	errCh := make(chan error, len(reg.Consumers))

	for _, c := range reg.Consumers {
		subName := subscriptionName(reg, c.ConsumerName)
		receiver, err := t.receivers.GetOrCreate(subName, func() (*azservicebus.Receiver, error) {
			return t.client.NewReceiverForSubscription(reg.EventName, subName, nil)
		})
		if err != nil {
			return busfault.ErrLifecycle("servicebus-receiver", err)
		}

		go t.receiveLoop(ctx, receiver, handle, errCh)
	}

	<-ctx.Done()
	return nil
}

func (t *Transport) receiveLoop(ctx context.Context, receiver *azservicebus.Receiver, handle transport.HandleFunc, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := receiver.ReceiveMessages(ctx, 1, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.rt.Logger.Error("servicebus receive error", logger.Error(err))
			continue
		}

		for _, msg := range messages {
			headers := map[string]any{}
			for k, v := range msg.ApplicationProperties {
				headers[k] = v
			}

			contentType := ""
			if msg.ContentType != nil {
				contentType = *msg.ContentType
			}

			decision := handle(ctx, msg.Body, contentType, headers)
			switch decision {
			case transport.Ack:
				receiver.CompleteMessage(ctx, msg, nil)
			case transport.Discard:
				receiver.CompleteMessage(ctx, msg, nil)
			case transport.Deadletter:
				receiver.DeadLetterMessage(ctx, msg, nil)
			case transport.Requeue:
				receiver.AbandonMessage(ctx, msg, nil)
			}
		}
	}
}

// StopReceive returns at once. The receive loops stop when the context
// passed to StartReceive is cancelled, which Bus.Stop does before calling
// StopReceive; the bus façade's WaitGroup tracks the StartReceive goroutine.
func (t *Transport) StopReceive(ctx context.Context) error {
	return nil
}

// CheckHealth verifies the admin client can still reach the namespace.
func (t *Transport) CheckHealth(ctx context.Context) error {
	pager := t.adminClient.NewListTopicsPager(nil)
	if !pager.More() {
		return nil
	}
	_, err := pager.NextPage(ctx)
	if err != nil {
		return busfault.ErrLifecycle("servicebus-health", err)
	}
	return nil
}
