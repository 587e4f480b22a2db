package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery. It owns acknowledging the delivery.
type Handler func(ctx context.Context, msg amqp.Delivery)

// publisher is the publishing side of *amqp.Channel.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Consumer handles RabbitMQ message consumption and failure publishing
type Consumer struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	publisher       publisher
	queueName       string
	failureExchange string
	tag             string
}

// Options configures a Consumer.
type Options struct {
	URL             string
	QueueName       string
	FailureExchange string
	Prefetch        int
	ConnectRetries  int
	ConnectDelay    time.Duration
}

// NewConsumer creates a new RabbitMQ consumer
func NewConsumer(opts Options) (*Consumer, error) {
	conn, err := connectWithRetry(opts.URL, opts.ConnectRetries, opts.ConnectDelay)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := &Consumer{
		conn:            conn,
		channel:         channel,
		publisher:       channel,
		queueName:       opts.QueueName,
		failureExchange: opts.FailureExchange,
		tag:             "transformer-" + uuid.NewString(),
	}

	// Declare queue
	_, err = channel.QueueDeclare(
		opts.QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Declare the dead-letter exchange; consumers of failures bind their own queues.
	err = channel.ExchangeDeclare(
		opts.FailureExchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// One job in flight per worker
	if err := channel.Qos(opts.Prefetch, 0, false); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	slog.Info("connected to rabbitmq", "queue", opts.QueueName, "failure_exchange", opts.FailureExchange)
	return c, nil
}

// connectWithRetry attempts to connect to RabbitMQ with retries
func connectWithRetry(url string, maxRetries int, delay time.Duration) (*amqp.Connection, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var conn *amqp.Connection
	var err error

	for i := 0; i < maxRetries; i++ {
		slog.Info("connecting to rabbitmq", "attempt", i+1, "max_attempts", maxRetries)
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}

		slog.Warn("failed to connect to rabbitmq", "error", err)
		if i < maxRetries-1 {
			time.Sleep(delay)
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, err)
}

// Start consumes messages until ctx is cancelled or the channel closes.
// Deliveries are handled one at a time, in delivery order. A job that is in
// flight when ctx is cancelled runs to completion.
func (c *Consumer) Start(ctx context.Context, handle Handler) error {
	msgs, err := c.channel.Consume(
		c.queueName,
		c.tag, // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("waiting for messages", "queue", c.queueName, "consumer", c.tag)

	err = consume(ctx, msgs, handle)
	if ctx.Err() != nil {
		if cerr := c.channel.Cancel(c.tag, false); cerr != nil {
			slog.Warn("failed to cancel consumer", "error", cerr)
		}
	}
	return err
}

// consume hands deliveries to handle one at a time until ctx is cancelled or
// msgs is closed. Handlers run with a context that is never cancelled, and no
// further delivery is taken once ctx is done.
func consume(ctx context.Context, msgs <-chan amqp.Delivery, handle Handler) error {
	jobCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			handle(jobCtx, msg)
		}
	}
}

// PublishFailure publishes body to the failure exchange under routingKey.
func (c *Consumer) PublishFailure(ctx context.Context, routingKey string, body []byte) error {
	err := c.publisher.PublishWithContext(ctx,
		c.failureExchange, // exchange
		routingKey,        // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the consumer connection
func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
