// Package snssqs implements transport.BrokerOps over Amazon SNS fanning
// out into one Amazon SQS queue per event. Scheduled publish and cancel
// are not supported by either service; dead-letter is a shadow
// "<event-name>-deadletter" queue, matching Queue Storage's analogy.
package snssqs

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/transport"
	"github.com/xraph/eventbus/transport/cache"
)

// Name identifies this transport in registry.Register's transportName
// argument and in EventRegistration.TransportName.
const Name = "snssqs"

// Config holds the pieces needed to build SNS and SQS clients. Region and
// credentials are resolved through the default AWS config chain; the
// caller builds the clients and passes them in so tests can substitute
// fakes.
type Config struct {
	EmptyResultsDelay time.Duration
	VisibilityTimeout int32
}

type entityURNs struct {
	topicArn string
	queueURL string
	queueArn string
}

// Transport implements transport.BrokerOps over one SNS client and one SQS
// client, caching the resolved topic ARN / queue URL per event name.
type Transport struct {
	cfg     Config
	rt      *transport.Runtime
	sns     *sns.Client
	sqs     *sqs.Client
	entities *cache.Single[string, entityURNs]
}

// New constructs a Transport from already-built SNS and SQS clients.
func New(cfg Config, rt *transport.Runtime, snsClient *sns.Client, sqsClient *sqs.Client) *Transport {
	t := &Transport{cfg: cfg, rt: rt, sns: snsClient, sqs: sqsClient, entities: cache.NewSingle[string, entityURNs]()}
	t.entities.OnCreate(func(string) { rt.Metrics.CacheCreatedTotal(Name).Inc() })
	return t
}

func deadletterName(eventName string) string {
	return eventName + "-deadletter"
}

// ProvisionForRegistration creates the event's SNS topic, its SQS queue
// (plus a sibling "-deadletter" queue), and subscribes the queue to the
// topic.
func (t *Transport) ProvisionForRegistration(ctx context.Context, reg *registry.EventRegistration) error {
	topicResp, err := t.sns.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(reg.EventName)})
	if err != nil {
		return busfault.ErrConfiguration("create topic "+reg.EventName, err)
	}

	queueResp, err := t.sqs.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String(reg.EventName)})
	if err != nil {
		return busfault.ErrConfiguration("create queue "+reg.EventName, err)
	}

	attrs, err := t.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       queueResp.QueueUrl,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return busfault.ErrConfiguration("describe queue "+reg.EventName, err)
	}
	queueArn := attrs.Attributes[string(types.QueueAttributeNameQueueArn)]

	if _, err := t.sns.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: topicResp.TopicArn,
		Protocol: aws.String("sqs"),
		Endpoint: aws.String(queueArn),
	}); err != nil {
		return busfault.ErrConfiguration("subscribe queue to topic", err)
	}

	dlqResp, err := t.sqs.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String(deadletterName(reg.EventName))})
	if err != nil {
		return busfault.ErrConfiguration("create dead-letter queue", err)
	}

	t.entities.Delete(reg.EventName)
	_, err = t.entities.GetOrCreate(reg.EventName, func() (entityURNs, error) {
		return entityURNs{topicArn: *topicResp.TopicArn, queueURL: *queueResp.QueueUrl, queueArn: queueArn}, nil
	})
	if err != nil {
		return err
	}

	t.entities.Delete(deadletterName(reg.EventName))
	_, err = t.entities.GetOrCreate(deadletterName(reg.EventName), func() (entityURNs, error) {
		return entityURNs{queueURL: *dlqResp.QueueUrl}, nil
	})
	return err
}

func (t *Transport) resolve(ctx context.Context, eventName string) (entityURNs, error) {
	return t.entities.GetOrCreate(eventName, func() (entityURNs, error) {
		topics, err := t.sns.ListTopics(ctx, &sns.ListTopicsInput{})
		if err != nil {
			return entityURNs{}, busfault.ErrConfiguration("list topics", err)
		}
		for _, topic := range topics.Topics {
			if topic.TopicArn != nil && hasSuffix(*topic.TopicArn, eventName) {
				queueURL, err := t.sqs.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(eventName)})
				if err != nil {
					return entityURNs{}, busfault.ErrConfiguration("resolve queue url", err)
				}
				return entityURNs{topicArn: *topic.TopicArn, queueURL: *queueURL.QueueUrl}, nil
			}
		}
		return entityURNs{}, busfault.ErrConfiguration("no provisioned topic for "+eventName, nil)
	})
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// SendOne publishes to the event's SNS topic. scheduled is ignored with a
// logged warning: SNS has no delayed-delivery verb.
func (t *Transport) SendOne(ctx context.Context, reg *registry.EventRegistration, body []byte, contentType string, scheduled *time.Time) (string, error) {
	if scheduled != nil {
		t.rt.Logger.Warn("snssqs does not support scheduled publish; sending immediately", logger.String("event", reg.EventName))
	}

	entity, err := t.resolve(ctx, reg.EventName)
	if err != nil {
		return "", err
	}

	if _, err := t.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(entity.topicArn),
		Message:  aws.String(string(body)),
	}); err != nil {
		return "", busfault.ErrTransient("snssqs-publish", err)
	}
	return "", nil
}

// SendMany loops SendOne; this table entry is sequential (warn) rather
// than SNS's native PublishBatch, kept consistent with Queue Storage's and
// SQS's sequential batch behavior in this spec.
func (t *Transport) SendMany(ctx context.Context, reg *registry.EventRegistration, bodies [][]byte, contentType string) ([]string, error) {
	t.rt.Logger.Warn("snssqs sends batches sequentially", logger.String("event", reg.EventName), logger.Int("count", len(bodies)))

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

// Cancel is not supported: SNS has no scheduled-publish verb to withdraw.
func (t *Transport) Cancel(ctx context.Context, reg *registry.EventRegistration, marker string) error {
	return busfault.ErrNotSupported("Cancel", Name)
}

// StartReceive long-polls reg's SQS queue on the shared empty-results
// backoff state machine.
func (t *Transport) StartReceive(ctx context.Context, reg *registry.EventRegistration, handle transport.HandleFunc) error {
	entity, err := t.resolve(ctx, reg.EventName)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		resp, err := t.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(entity.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     10,
			VisibilityTimeout:   t.cfg.VisibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.rt.Logger.Error("snssqs receive failed", logger.Error(err))
			if !sleepOrDone(ctx, t.cfg.EmptyResultsDelay) {
				return nil
			}
			continue
		}

		if len(resp.Messages) == 0 {
			if !sleepOrDone(ctx, t.cfg.EmptyResultsDelay) {
				return nil
			}
			continue
		}

		for _, msg := range resp.Messages {
			t.dispatchMessage(ctx, entity, reg, msg, handle)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *Transport) dispatchMessage(ctx context.Context, entity entityURNs, reg *registry.EventRegistration, msg types.Message, handle transport.HandleFunc) {
	body := []byte(aws.ToString(msg.Body))
	decision := handle(ctx, body, "", nil)

	switch decision {
	case transport.Ack, transport.Discard:
		t.deleteMessage(ctx, entity.queueURL, msg.ReceiptHandle)
	case transport.Deadletter:
		dlq, err := t.resolve(ctx, deadletterName(reg.EventName))
		if err == nil {
			if _, err := t.sqs.SendMessage(ctx, &sqs.SendMessageInput{QueueUrl: aws.String(dlq.queueURL), MessageBody: msg.Body}); err != nil {
				t.rt.Logger.Error("snssqs dead-letter send failed", logger.Error(err))
			}
		}
		t.deleteMessage(ctx, entity.queueURL, msg.ReceiptHandle)
	case transport.Requeue:
		// Leave the message; it becomes visible again once its
		// visibility timeout elapses.
	}
}

func (t *Transport) deleteMessage(ctx context.Context, queueURL string, receiptHandle *string) {
	if _, err := t.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{QueueUrl: aws.String(queueURL), ReceiptHandle: receiptHandle}); err != nil {
		t.rt.Logger.Error("snssqs delete failed", logger.Error(err))
	}
}

// StopReceive returns at once. The receive loop stops when the context
// passed to StartReceive is cancelled, which Bus.Stop does before calling
// StopReceive.
func (t *Transport) StopReceive(ctx context.Context) error {
	return nil
}

// CheckHealth verifies the SQS client can still list queues.
func (t *Transport) CheckHealth(ctx context.Context) error {
	if _, err := t.sqs.ListQueues(ctx, &sqs.ListQueuesInput{MaxResults: aws.Int32(1)}); err != nil {
		return busfault.ErrLifecycle("snssqs-health", err)
	}
	return nil
}
