package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"careerhub/pkg/metrics"
	"careerhub/pkg/otel"
	"careerhub/pkg/trace"
	"careerhub/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// RetryTracker counts delivery attempts per message across redeliveries.
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Consumer struct {
	channel     *amqp091.Channel
	queue       amqp091.Queue
	bindingKeys []string
	handler     MessageHandler
	conn        *amqp091.Connection
	logger      *zap.Logger
	consumerTag string
	retries     RetryTracker
	maxRetries  int64
}

// NewConsumer creates a durable queue bound to each binding key on the events
// exchange. Rejected messages are dead-lettered to <queue>.dlq.
func NewConsumer(url, queueName string, bindingKeys []string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	cleanup := func() {
		ch.Close()
		conn.Close()
	}

	if err := DeclareExchange(ch); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to declare dlq exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch, queueName); err != nil {
		cleanup()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		amqp091.Table{"x-dead-letter-exchange": DLQExchangeName},
	)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range bindingKeys {
		if err := ch.QueueBind(q.Name, key, ExchangeName, false, nil); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}

	if err := ch.Qos(16, 0, false); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.Strings("binding_keys", bindingKeys),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       q,
		bindingKeys: bindingKeys,
		logger:      logger,
		consumerTag: queueName + ".worker",
		maxRetries:  3,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithRetryTracker caps redeliveries of a failing message at maxRetries.
func (c *Consumer) WithRetryTracker(t RetryTracker, maxRetries int64) *Consumer {
	c.retries = t
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// Stop cancels the subscription; StartConsuming returns once in-flight
// deliveries are drained.
func (c *Consumer) Stop() {
	if c.channel != nil {
		_ = c.channel.Cancel(c.consumerTag, false)
	}
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. This method blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.consumerTag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.Strings("binding_keys", c.bindingKeys),
		zap.String("queue", c.queue.Name),
	)

	// 保证每条消息都会被 ack 或 nack
	for msg := range deliveries {
		c.handleDelivery(msg)
	}

	return nil
}

func (c *Consumer) handleDelivery(msg amqp091.Delivery) {
	start := time.Now()
	ctx := otel.ExtractAMQP(context.Background(), msg.Headers)
	if traceID, ok := msg.Headers[trace.HeaderName].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, msg.RoutingKey, c.queue.Name)
	defer span.End()
	defer func() { metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start)) }()

	log := c.logger.With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.String("message_id", msg.MessageId),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			// panic 不重试，直接进入死信队列
			if err := msg.Nack(false, false); err != nil {
				log.Error("Failed to nack message after panic", zap.Error(err))
			}
		}
	}()

	err := c.handler(ctx, msg.Body)
	if err == nil {
		if c.retries != nil && msg.MessageId != "" {
			_ = c.retries.Reset(ctx, c.retryKey(msg))
		}
		if err := msg.Ack(false); err != nil {
			log.Error("Failed to ack message", zap.Error(err))
		}
		return
	}

	span.RecordError(err)
	retryable, errType := util.IsRetryableError(err)
	requeue := retryable && c.shouldRequeue(ctx, msg)

	log.Error("Handler error",
		zap.Error(err),
		zap.String("error_type", errType),
		zap.Bool("requeue", requeue),
	)

	if err := msg.Nack(false, requeue); err != nil {
		log.Error("Failed to nack message", zap.Error(err))
	}
}

func (c *Consumer) shouldRequeue(ctx context.Context, msg amqp091.Delivery) bool {
	if c.retries == nil || msg.MessageId == "" {
		// 无计数器时只重投一次
		return !msg.Redelivered
	}
	count, err := c.retries.IncrementAndGet(ctx, c.retryKey(msg))
	if err != nil {
		return !msg.Redelivered
	}
	return util.ShouldRetry(count, c.maxRetries, true)
}

func (c *Consumer) retryKey(msg amqp091.Delivery) string {
	return util.FormatRetryKey(c.queue.Name, msg.MessageId)
}
