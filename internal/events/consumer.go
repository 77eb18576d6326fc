package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"freelance/internal/metrics"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrMalformed marks messages that can never be handled. They are dropped
// instead of requeued.
var ErrMalformed = errors.New("malformed event")

type Handler func(ctx context.Context, event Event) error

type Consumer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	queue    amqp091.Queue
	bindings []string
	handler  Handler
	log      *zap.Logger
}

// NewConsumer declares a durable queue bound to exchange with every key in
// bindings.
func NewConsumer(url, exchange, queueName string, bindings []string, log *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := &Consumer{conn: conn, channel: ch, bindings: bindings, log: log}

	if err := DeclareExchange(ch, exchange); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	c.queue, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range bindings {
		if err = ch.QueueBind(c.queue.Name, key, exchange, false, nil); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}

	if err = ch.Qos(16, 0, false); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	log.Info("consumer initialized",
		zap.String("queue", queueName),
		zap.String("exchange", exchange),
		zap.Strings("bindings", bindings),
	)

	return c, nil
}

func (c *Consumer) SetHandler(h Handler) {
	c.handler = h
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Run consumes until ctx is cancelled or the broker closes the channel. Every
// delivery is acked or nacked exactly once.
func (c *Consumer) Run(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue.Name,
		"notifier",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info("consumer started", zap.String("queue", c.queue.Name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("delivery channel closed by broker")
			}
			c.handle(ctx, msg)
		}
	}
}

// acknowledger is the part of amqp091.Delivery handle needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	c.process(ctx, msg.RoutingKey, msg.Body, msg.Redelivered, &msg)
}

// process runs the handler and settles the message: success acks, malformed
// or twice failed messages are dropped, a first failure is requeued.
func (c *Consumer) process(ctx context.Context, routingKey string, body []byte, redelivered bool, ack acknowledger) {
	start := time.Now()
	result := "ok"
	log := c.log.With(zap.String("routing_key", routingKey))

	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			log.Error("handler panic recovered", zap.Any("panic", r))
			if err := ack.Nack(false, !redelivered); err != nil {
				log.Error("failed to nack message after panic", zap.Error(err))
			}
		}
		metrics.RecordConsume(routingKey, result, time.Since(start))
	}()

	err := c.dispatch(ctx, body)
	switch {
	case err == nil:
		if err := ack.Ack(false); err != nil {
			log.Error("failed to ack message", zap.Error(err))
		}
	case errors.Is(err, ErrMalformed):
		result = "malformed"
		log.Warn("dropping malformed message", zap.Error(err))
		if err := ack.Nack(false, false); err != nil {
			log.Error("failed to nack message", zap.Error(err))
		}
	default:
		result = "error"
		log.Error("handler error", zap.Bool("redelivered", redelivered), zap.Error(err))
		if err := ack.Nack(false, !redelivered); err != nil {
			log.Error("failed to nack message", zap.Error(err))
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, body []byte) error {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(event.EventId) == 0 || len(event.RoutingKey) == 0 {
		return fmt.Errorf("%w: missing event_id or routing_key", ErrMalformed)
	}
	return c.handler(ctx, event)
}
