// Package rabbitmq implements transport.BrokerOps over a fanout
// exchange per event, with one durable queue per consumer bound to it.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xraph/eventbus/busfault"
	"github.com/xraph/eventbus/logger"
	"github.com/xraph/eventbus/registry"
	"github.com/xraph/eventbus/transport"
)

// Name identifies this transport in registry.Register's transportName
// argument and in EventRegistration.TransportName.
const Name = "rabbitmq"

// Config holds RabbitMQ connection settings.
type Config struct {
	URL        string
	RetryCount int
	Prefetch   int
}

// Transport implements transport.BrokerOps over a single AMQP connection
// and channel, reconnected with exponential backoff on connection-level
// failures.
type Transport struct {
	cfg Config
	rt  *transport.Runtime

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	disposed atomic.Bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Transport. Connect must be called before publish or
// receive will succeed; the caller sets rt.Ops = the returned Transport.
func New(cfg Config, rt *transport.Runtime) *Transport {
	return &Transport{cfg: cfg, rt: rt}
}

// Connect dials the broker, opens a channel, and sets prefetch if
// configured. It is idempotent: calling it again after a successful
// connect is a no-op.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && !t.conn.IsClosed() {
		return nil
	}

	conn, err := amqp.Dial(t.cfg.URL)
	if err != nil {
		return busfault.ErrLifecycle("rabbitmq-connect", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return busfault.ErrLifecycle("rabbitmq-channel", err)
	}

	if t.cfg.Prefetch > 0 {
		if err := ch.Qos(t.cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return busfault.ErrLifecycle("rabbitmq-qos", err)
		}
	}

	t.conn = conn
	t.channel = ch

	closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))
	blockedNotify := conn.NotifyBlocked(make(chan amqp.Blocking, 1))
	go t.watchConnection(closeNotify, blockedNotify)

	t.rt.Logger.Info("connected to rabbitmq")
	return nil
}

// watchConnection reconnects with exponential backoff when the connection
// closes, unless disposed has been set by Disconnect. A blocked
// notification from the broker is logged and does not trigger a reconnect;
// watching for close continues after it.
func (t *Transport) watchConnection(closeNotify chan *amqp.Error, blockedNotify chan amqp.Blocking) {
	for {
		select {
		case err := <-closeNotify:
			if t.disposed.Load() {
				return
			}
			t.rt.Logger.Error("rabbitmq connection closed, reconnecting", logger.Error(fmt.Errorf("%v", err)))
			t.reconnect()
			return
		case blocking, ok := <-blockedNotify:
			if !ok {
				blockedNotify = nil
				continue
			}
			if blocking.Active {
				t.rt.Logger.Warn("rabbitmq connection blocked", logger.String("reason", blocking.Reason))
			}
		}
	}
}

func (t *Transport) reconnect() {
	for attempt := 0; attempt < t.cfg.RetryCount; attempt++ {
		if t.disposed.Load() {
			return
		}
		time.Sleep(transport.ExponentialBackoff(attempt))
		if err := t.Connect(context.Background()); err == nil {
			t.rt.Logger.Info("rabbitmq reconnected", logger.Int("attempt", attempt))
			return
		}
	}
	t.rt.Logger.Error("rabbitmq reconnect attempts exhausted", logger.Int("attempts", t.cfg.RetryCount))
}

// Disconnect marks the transport disposed (suppressing further reconnect
// attempts) and closes the channel and connection.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.disposed.Store(true)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.channel != nil {
		t.channel.Close()
	}
	if t.conn != nil {
		t.conn.Close()
	}
	return nil
}

func queueName(reg *registry.EventRegistration, consumerName string) string {
	return reg.EventName + "." + consumerName
}

// ProvisionForRegistration declares the fanout exchange and, for every
// consumer already registered, a durable queue bound to it.
func (t *Transport) ProvisionForRegistration(ctx context.Context, reg *registry.EventRegistration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.channel == nil {
		return busfault.ErrLifecycle("rabbitmq-provision", fmt.Errorf("not connected"))
	}

	if err := t.channel.ExchangeDeclare(reg.EventName, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return busfault.ErrConfiguration("declare exchange "+reg.EventName, err)
	}

	for _, c := range reg.Consumers {
		qn := queueName(reg, c.ConsumerName)
		if _, err := t.channel.QueueDeclare(qn, true, false, false, false, nil); err != nil {
			return busfault.ErrConfiguration("declare queue "+qn, err)
		}
		if err := t.channel.QueueBind(qn, "", reg.EventName, false, nil); err != nil {
			return busfault.ErrConfiguration("bind queue "+qn, err)
		}
	}
	return nil
}

// SendOne publishes to the event's fanout exchange. scheduled is honored
// via the delayed-message plugin's x-delay header; without the plugin
// installed the broker ignores the header and delivers immediately. The
// returned marker is always empty.
func (t *Transport) SendOne(ctx context.Context, reg *registry.EventRegistration, body []byte, contentType string, scheduled *time.Time) (string, error) {
	t.mu.Lock()
	ch := t.channel
	t.mu.Unlock()

	if ch == nil {
		return "", busfault.ErrLifecycle("rabbitmq-publish", fmt.Errorf("not connected"))
	}

	publishing := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  contentType,
		Body:         body,
		Timestamp:    time.Now(),
	}

	if scheduled != nil {
		delay := time.Until(*scheduled)
		if delay < 0 {
			delay = 0
		}
		publishing.Headers = amqp.Table{"x-delay": delay.Milliseconds()}
	}

	if err := ch.PublishWithContext(ctx, reg.EventName, "", false, false, publishing); err != nil {
		return "", busfault.ErrTransient("rabbitmq-publish", err)
	}

	return "", nil
}

// SendMany publishes each body individually; the broker's native batch
// support in amqp091-go is limited to pipelining, not a single verb, so
// this calls SendOne once per body, without logging a warning.
func (t *Transport) SendMany(ctx context.Context, reg *registry.EventRegistration, bodies [][]byte, contentType string) ([]string, error) {
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

// Cancel is not supported: once published to the exchange, RabbitMQ gives
// no handle to withdraw a scheduled delayed message.
func (t *Transport) Cancel(ctx context.Context, reg *registry.EventRegistration, marker string) error {
	return busfault.ErrNotSupported("Cancel", Name)
}

// StartReceive consumes from every consumer's queue under reg, invoking
// handle per delivery and translating the returned Decision into an
// ack/nack.
func (t *Transport) StartReceive(ctx context.Context, reg *registry.EventRegistration, handle transport.HandleFunc) error {
	t.mu.Lock()
	ch := t.channel
	t.mu.Unlock()

	if ch == nil {
		return busfault.ErrLifecycle("rabbitmq-receive", fmt.Errorf("not connected"))
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	for _, c := range reg.Consumers {
		qn := queueName(reg, c.ConsumerName)
		deliveries, err := ch.Consume(qn, "", false, false, false, false, nil)
		if err != nil {
			cancel()
			return busfault.ErrLifecycle("rabbitmq-consume", err)
		}

		t.wg.Add(1)
		go t.consumeLoop(runCtx, deliveries, handle)
	}

	<-runCtx.Done()
	return nil
}

func (t *Transport) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, handle transport.HandleFunc) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}

			headers := make(map[string]any, len(d.Headers))
			for k, v := range d.Headers {
				headers[k] = v
			}

			decision := handle(ctx, d.Body, d.ContentType, headers)
			switch decision {
			case transport.Ack:
				d.Ack(false)
			case transport.Discard:
				d.Ack(false)
			case transport.Deadletter:
				// Negative-ack without requeue; the broker's own
				// dead-letter-exchange policy (if configured on the
				// queue) routes it onward.
				d.Nack(false, false)
			case transport.Requeue:
				d.Nack(false, true)
			}
		}
	}
}

// StopReceive cancels the running consume loops and waits for them to
// drain, bounded by ctx's deadline.
func (t *Transport) StopReceive(ctx context.Context) error {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return busfault.ErrTimeout("rabbitmq-stop", 0)
	}
}

// CheckHealth reports the connection as healthy if it is open.
func (t *Transport) CheckHealth(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.conn.IsClosed() {
		return busfault.ErrLifecycle("rabbitmq-health", fmt.Errorf("connection closed"))
	}
	return nil
}
