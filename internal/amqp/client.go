// Package amqp fans expense change events out to every process sharing a
// backend, over a RabbitMQ fanout exchange.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"wydatki/internal/notify"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// Client publishes change events and consumes them from an exclusive queue
// bound to the exchange. Every client has a unique source id so it can skip
// its own events.
type Client struct {
	url          string
	exchangeName string
	source       string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	onConnect func()

	state        int32
	failureCount int64
	breakerMu    sync.Mutex
	lastFailure  time.Time
}

// NewClient connects to url and declares the fanout exchange.
func NewClient(url, exchangeName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		source:       uuid.New().String(),
	}
	if _, err := c.ensureChannel(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Source returns the id stamped on events published by this client.
func (c *Client) Source() string {
	return c.source
}

func (c *Client) ensureConn() (*amqp091.Connection, error) {
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	c.conn = conn
	c.channel = nil
	return conn, nil
}

// ensureChannel returns the publishing channel, reconnecting when needed.
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	conn, err := c.ensureConn()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := c.declareExchange(ch); err != nil {
		ch.Close()
		return nil, err
	}
	c.channel = ch
	return ch, nil
}

func (c *Client) declareExchange(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// PublishChange announces that ownerID's records changed.
func (c *Client) PublishChange(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish change: circuit breaker is open")
	}

	body, err := NewChangeEvent(ownerID, c.source).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	ch, err := c.ensureChannel()
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish change: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		"",             // routing key, ignored by fanout
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Transient,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish change: %w", err)
	}
	c.recordSuccess()

	slog.DebugContext(ctx, "Published change event",
		"component", "amqp",
		"owner_id", ownerID,
		"exchange", c.exchangeName)
	return nil
}

// Consume delivers change events from other processes to handler until ctx
// is done, reconnecting with exponential backoff when the broker goes away.
func (c *Client) Consume(ctx context.Context, handler func(ChangeEvent)) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, handler, func() {
			attempt = 0
			c.notifyConnected()
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "Change consumer interrupted, reconnecting",
			"component", "amqp",
			"error", err,
			"connection_error", isConnectionError(err),
			"retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(ChangeEvent), connected func()) error {
	c.mu.Lock()
	conn, err := c.ensureConn()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := c.declareExchange(ch); err != nil {
		return err
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack, events are only hints
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	connected()

	slog.InfoContext(ctx, "Consuming change events",
		"component", "amqp",
		"exchange", c.exchangeName,
		"queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return amqp091.ErrClosed
			}
			c.dispatch(ctx, d.Body, handler)
		}
	}
}

// dispatch decodes body and hands it to handler unless this client sent it.
func (c *Client) dispatch(ctx context.Context, body []byte, handler func(ChangeEvent)) {
	ev, err := ChangeEventFromJSON(body)
	if err != nil {
		slog.WarnContext(ctx, "Dropping malformed change event",
			"component", "amqp",
			"error", err)
		return
	}
	if ev.Source == c.source {
		return
	}
	handler(*ev)
}

// OnConnect registers fn to run each time the consumer has (re)attached to
// the exchange.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

func (c *Client) notifyConnected() {
	c.mu.Lock()
	fn := c.onConnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ForwardTo returns a handler that signals hub for every received event.
func ForwardTo(hub *notify.Hub) func(ChangeEvent) {
	return func(ev ChangeEvent) {
		hub.Publish(ev.OwnerID)
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.breakerMu.Lock()
	last := c.lastFailure
	c.breakerMu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	c.breakerMu.Lock()
	c.lastFailure = time.Now()
	c.breakerMu.Unlock()

	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection closed", "EOF", "broken pipe", "closed network connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
