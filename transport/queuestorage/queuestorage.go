// Package queuestorage implements transport.BrokerOps over Azure Queue
// Storage: one queue per event, an optional sibling "-deadletter" queue,
// visibility-timeout-based scheduled publish, and cancel by
// (messageId, popReceipt).
package queuestorage

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/transport"
	"github.com/xraph/eventbus/transport/cache"
)

// Name identifies this transport in registry.Register's transportName
// argument and in EventRegistration.TransportName.
const Name = "queuestorage"

// Config holds Queue Storage connection settings.
type Config struct {
	ConnectionString  string
	EmptyResultsDelay time.Duration
}

// Transport implements transport.BrokerOps over one azqueue.ServiceClient,
// caching one azqueue.QueueClient per queue name.
type Transport struct {
	cfg     Config
	rt      *transport.Runtime
	service *azqueue.ServiceClient
	queues  *cache.Single[string, *azqueue.QueueClient]
}

// New constructs a Transport. Connect must run before publish or receive.
func New(cfg Config, rt *transport.Runtime) *Transport {
	t := &Transport{cfg: cfg, rt: rt, queues: cache.NewSingle[string, *azqueue.QueueClient]()}
	t.queues.OnCreate(func(string) { rt.Metrics.CacheCreatedTotal(Name).Inc() })
	return t
}

// Connect builds the service client from the connection string.
func (t *Transport) Connect(ctx context.Context) error {
	service, err := azqueue.NewServiceClientFromConnectionString(t.cfg.ConnectionString, nil)
	if err != nil {
		return busfault.ErrLifecycle("queuestorage-connect", err)
	}
	t.service = service
	return nil
}

func deadletterName(eventName string) string {
	return eventName + "-deadletter"
}

func (t *Transport) queue(name string) (*azqueue.QueueClient, error) {
	return t.queues.GetOrCreate(name, func() (*azqueue.QueueClient, error) {
		return t.service.NewQueueClient(name), nil
	})
}

// ProvisionForRegistration creates the event's queue, plus a sibling
// dead-letter queue every registration gets regardless of whether any
// consumer is configured to route to it.
func (t *Transport) ProvisionForRegistration(ctx context.Context, reg *registry.EventRegistration) error {
	q, err := t.queue(reg.EventName)
	if err != nil {
		return err
	}
	if _, err := q.Create(ctx, nil); err != nil && !isAlreadyExists(err) {
		return busfault.ErrConfiguration("create queue "+reg.EventName, err)
	}

	dlq, err := t.queue(deadletterName(reg.EventName))
	if err != nil {
		return err
	}
	if _, err := dlq.Create(ctx, nil); err != nil && !isAlreadyExists(err) {
		return busfault.ErrConfiguration("create dead-letter queue "+deadletterName(reg.EventName), err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "QueueAlreadyExists")
}

// SendOne enqueues body, using a negative or zero visibility-timeout
// derived from scheduled as an immediate send (the negative-delay open
// question) rather than erroring, and returns "<messageId>|<popReceipt>"
// as the scheduled-cancel marker.
func (t *Transport) SendOne(ctx context.Context, reg *registry.EventRegistration, body []byte, contentType string, scheduled *time.Time) (string, error) {
	q, err := t.queue(reg.EventName)
	if err != nil {
		return "", err
	}

	var visibilityTimeout *int32
	if scheduled != nil {
		delay := time.Until(*scheduled)
		if delay < 0 {
			delay = 0
		}
		seconds := int32(delay.Seconds())
		visibilityTimeout = &seconds
	}

	content := base64.StdEncoding.EncodeToString(body)
	resp, err := q.EnqueueMessage(ctx, content, &azqueue.EnqueueMessageOptions{VisibilityTimeout: visibilityTimeout})
	if err != nil {
		return "", busfault.ErrTransient("queuestorage-enqueue", err)
	}

	if len(resp.Messages) == 0 {
		return "", nil
	}
	msg := resp.Messages[0]
	return messageIDString(msg.MessageID) + "|" + messageIDString(msg.PopReceipt), nil
}

func messageIDString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// SendMany loops SendOne with no scheduling; Queue Storage has no batch
// enqueue verb.
func (t *Transport) SendMany(ctx context.Context, reg *registry.EventRegistration, bodies [][]byte, contentType string) ([]string, error) {
	t.rt.Logger.Warn("queuestorage has no batch enqueue; sending sequentially", logger.String("event", reg.EventName), logger.Int("count", len(bodies)))

	markers := make([]string, len(bodies))
	for i, body := range bodies {
		marker, err := t.SendOne(ctx, reg, body, contentType, nil)
		if err != nil {
			return markers, err
		}
		markers[i] = marker
	}
	return markers, nil
}

// Cancel deletes a not-yet-visible message by its messageId|popReceipt
// marker, withdrawing a scheduled send before it becomes visible.
func (t *Transport) Cancel(ctx context.Context, reg *registry.EventRegistration, marker string) error {
	parts := strings.SplitN(marker, "|", 2)
	if len(parts) != 2 {
		return busfault.ErrValidation("marker", nil)
	}

	q, err := t.queue(reg.EventName)
	if err != nil {
		return err
	}

	if _, err := q.DeleteMessage(ctx, parts[0], parts[1], nil); err != nil {
		return busfault.ErrTransient("queuestorage-cancel", err)
	}
	return nil
}

// StartReceive polls reg's queue on the shared empty-results-backoff state
// machine: Idle/Polling/Dispatching/Backoff, draining on ctx cancellation.
func (t *Transport) StartReceive(ctx context.Context, reg *registry.EventRegistration, handle transport.HandleFunc) error {
	q, err := t.queue(reg.EventName)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		resp, err := q.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{NumberOfMessages: int32Ptr(10)})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.rt.Logger.Error("queuestorage dequeue failed", logger.Error(err))
			select {
			case <-time.After(t.cfg.EmptyResultsDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if len(resp.Messages) == 0 {
			select {
			case <-time.After(t.cfg.EmptyResultsDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, msg := range resp.Messages {
			t.dispatchMessage(ctx, q, reg, msg, handle)
		}
	}
}

func int32Ptr(v int32) *int32 { return &v }

func (t *Transport) dispatchMessage(ctx context.Context, q *azqueue.QueueClient, reg *registry.EventRegistration, msg *azqueue.DequeuedMessage, handle transport.HandleFunc) {
	body, err := base64.StdEncoding.DecodeString(messageIDString(msg.MessageText))
	if err != nil {
		body = []byte(messageIDString(msg.MessageText))
	}

	decision := handle(ctx, body, "", nil)

	messageID := messageIDString(msg.MessageID)
	popReceipt := messageIDString(msg.PopReceipt)

	switch decision {
	case transport.Ack, transport.Discard:
		if _, err := q.DeleteMessage(ctx, messageID, popReceipt, nil); err != nil {
			t.rt.Logger.Error("queuestorage delete failed", logger.Error(err))
		}
	case transport.Deadletter:
		dlq, err := t.queue(deadletterName(reg.EventName))
		if err == nil {
			content := base64.StdEncoding.EncodeToString(body)
			if _, err := dlq.EnqueueMessage(ctx, content, nil); err != nil {
				t.rt.Logger.Error("queuestorage dead-letter enqueue failed", logger.Error(err))
			}
		}
		if _, err := q.DeleteMessage(ctx, messageID, popReceipt, nil); err != nil {
			t.rt.Logger.Error("queuestorage delete after dead-letter failed", logger.Error(err))
		}
	case transport.Requeue:
		// Leave the message; its visibility timeout will expire and it
		// becomes available for redelivery without any explicit action.
	}
}

// StopReceive returns at once. The receive loop stops when the context
// passed to StartReceive is cancelled, which Bus.Stop does before calling
// StopReceive.
func (t *Transport) StopReceive(ctx context.Context) error {
	return nil
}

// CheckHealth verifies the service client can still list queues.
func (t *Transport) CheckHealth(ctx context.Context) error {
	pager := t.service.NewListQueuesPager(nil)
	if !pager.More() {
		return nil
	}
	if _, err := pager.NextPage(ctx); err != nil {
		return busfault.ErrLifecycle("queuestorage-health", err)
	}
	return nil
}
