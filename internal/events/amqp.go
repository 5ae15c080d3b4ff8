package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ExchangeName is the topic exchange events are published to. The routing
// key is "<stream>.<type>" with ':' replaced by '.', e.g.
// "events.contracts.payment_approved".
const ExchangeName = "contracts"

func routingKey(stream, eventType string) string {
	return strings.ReplaceAll(stream, ":", ".") + "." + eventType
}

func declareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

type AMQPPublisher struct {
	conn *amqp091.Connection
	mu   sync.Mutex // amqp channels are not safe for concurrent publishes
	ch   *amqp091.Channel
	log  *zap.Logger
}

func NewAMQPPublisher(url string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, log: log}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, stream string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		ExchangeName,
		routingKey(stream, event.Type),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
}

func (p *AMQPPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Redelivery defaults for failed handlers.
const (
	DefaultMaxRedeliveries = 5
	DefaultRetryDelay      = 2 * time.Second

	retryHeader = "x-retry-count"
)

// AMQPSubscriber binds a durable queue to every event type on a stream.
// A handler error sends the message back to the queue with a retry count
// header; after maxRedeliveries it is rejected without requeue.
type AMQPSubscriber struct {
	conn            *amqp091.Connection
	queue           string
	maxRedeliveries int
	retryDelay      time.Duration
	log             *zap.Logger
}

// NewAMQPSubscriber consumes from queue. An empty queue name declares an
// exclusive server-named queue, which suits fan-out consumers such as the
// websocket hub.
func NewAMQPSubscriber(url, queue string, log *zap.Logger) (*AMQPSubscriber, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return &AMQPSubscriber{
		conn:            conn,
		queue:           queue,
		maxRedeliveries: DefaultMaxRedeliveries,
		retryDelay:      DefaultRetryDelay,
		log:             log,
	}, nil
}

// SetRetry overrides the redelivery bound and the pause before a retry.
func (s *AMQPSubscriber) SetRetry(maxRedeliveries int, delay time.Duration) {
	if maxRedeliveries >= 0 {
		s.maxRedeliveries = maxRedeliveries
	}
	if delay >= 0 {
		s.retryDelay = delay
	}
}

type settlement int

const (
	settleAck settlement = iota
	settleRetry
	settleDrop
)

// settle decides what happens to a delivery once its handler has run.
// retries is how many times the message was already sent back.
func settle(handlerErr error, retries, maxRedeliveries int) settlement {
	switch {
	case handlerErr == nil:
		return settleAck
	case retries < maxRedeliveries:
		return settleRetry
	default:
		return settleDrop
	}
}

func retryCount(headers amqp091.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (s *AMQPSubscriber) Subscribe(ctx context.Context, stream string, handler Handler) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	durable := s.queue != ""
	q, err := ch.QueueDeclare(
		s.queue,
		durable,  // durable
		!durable, // delete when unused
		!durable, // exclusive
		false,    // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey(stream, "*"), ExchangeName, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				s.deliver(ctx, ch, q.Name, msg, handler)
			}
		}
	}()

	return nil
}

func (s *AMQPSubscriber) deliver(ctx context.Context, ch *amqp091.Channel, queue string, msg amqp091.Delivery, handler Handler) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		s.log.Error("failed to unmarshal event", zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	retries := retryCount(msg.Headers)
	handlerErr := handler(event)

	switch settle(handlerErr, retries, s.maxRedeliveries) {
	case settleAck:
		_ = msg.Ack(false)
	case settleDrop:
		s.log.Error("event handler failed, giving up",
			zap.String("type", event.Type),
			zap.Int("retries", retries),
			zap.Error(handlerErr),
		)
		_ = msg.Nack(false, false)
	case settleRetry:
		s.log.Warn("event handler failed, retrying",
			zap.String("type", event.Type),
			zap.Int("retry", retries+1),
			zap.Error(handlerErr),
		)
		select {
		case <-ctx.Done():
			_ = msg.Nack(false, true)
			return
		case <-time.After(s.retryDelay):
		}

		headers := amqp091.Table{}
		for k, v := range msg.Headers {
			headers[k] = v
		}
		headers[retryHeader] = int32(retries + 1)

		// Republish then ack: the retry count travels with the copy.
		err := ch.PublishWithContext(ctx, "", queue, false, false, amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      headers,
			DeliveryMode: amqp091.Persistent,
		})
		if err != nil {
			s.log.Warn("failed to requeue event", zap.String("type", event.Type), zap.Error(err))
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
	}
}

func (s *AMQPSubscriber) Close() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
