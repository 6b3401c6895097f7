package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/pkg/metrics"
	"github.com/sahasand/site-tracker/pkg/otel"
	"github.com/sahasand/site-tracker/pkg/trace"
	"github.com/sahasand/site-tracker/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger

	dlq        *Publisher
	attempts   *util.Attempts
	maxRetries int64
}

// NewConsumer declares queueName, binds it to routingKey and returns a
// consumer with manual acks.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if err := DeclareDeadLetterExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare dlq exchange: %w", err)
	}
	if _, err := DeclareDeadLetterQueue(ch, queueName, routingKey); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithDeadLetter routes messages that fail permanently, or more than
// maxRetries times, to the dead letter exchange through pub.
func (c *Consumer) WithDeadLetter(pub *Publisher, attempts *util.Attempts, maxRetries int64) *Consumer {
	c.dlq = pub
	c.attempts = attempts
	c.maxRetries = maxRetries
	return c
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until ctx is cancelled or the delivery channel
// closes. Every message is acked or nacked exactly once.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(parent context.Context, msg amqp091.Delivery) {
	start := time.Now()
	ctx := otel.GetTextMapPropagator().Extract(parent, otel.NewMQHeaderCarrier(msg.Headers))
	if traceID, ok := msg.Headers[trace.Header].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, c.routingKey, c.queue.Name)
	defer span.End()
	defer metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, time.Since(start))

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", c.routingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			c.fail(ctx, msg, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		span.RecordError(err)
		c.logger.Error("Handler error",
			zap.String("routing_key", c.routingKey),
			zap.String("queue", c.queue.Name),
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		c.fail(ctx, msg, err)
		return
	}

	if c.attempts != nil && msg.MessageId != "" {
		_ = c.attempts.Clear(ctx, c.queue.Name, msg.MessageId)
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
	}
}

// fail requeues the message or parks it in the dead letter queue.
func (c *Consumer) fail(ctx context.Context, msg amqp091.Delivery, cause error) {
	attempts := c.attempts
	if msg.MessageId == "" {
		attempts = nil
	}
	requeue, reason, tries := Disposition(ctx, attempts, c.maxRetries, c.queue.Name, msg.MessageId, cause)
	if requeue || c.dlq == nil {
		if err := msg.Nack(false, requeue); err != nil {
			c.logger.Error("Failed to nack message", zap.String("routing_key", c.routingKey), zap.Error(err))
		}
		return
	}

	c.logger.Warn("Moving message to dead letter queue",
		zap.String("routing_key", c.routingKey),
		zap.String("message_id", msg.MessageId),
		zap.String("reason", reason),
		zap.Int64("attempts", tries),
	)
	err := c.dlq.PublishDeadLetter(ctx, DeadLetter{
		RoutingKey:  c.routingKey,
		SourceQueue: c.queue.Name,
		MessageID:   msg.MessageId,
		Body:        msg.Body,
		Reason:      reason,
		Err:         cause.Error(),
		Attempts:    tries,
	})
	if err != nil {
		c.logger.Error("Failed to publish to dead letter queue", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// Disposition decides whether a failed message goes back on the queue and
// returns the attempts recorded so far. Non-retryable errors never do;
// retryable ones do until more than maxRetries attempts were recorded for
// the message. Without a tracker every retryable error is requeued.
func Disposition(ctx context.Context, attempts *util.Attempts, maxRetries int64, queue, messageID string, cause error) (requeue bool, reason string, tries int64) {
	retryable, kind := util.IsRetryableError(cause)
	if !retryable {
		return false, kind, 1
	}
	if attempts == nil {
		return true, kind, 0
	}
	count, err := attempts.Record(ctx, queue, messageID)
	if err != nil {
		return true, kind, 0
	}
	if !util.ShouldRetry(count, maxRetries, true) {
		return false, "max_retries_exceeded", count
	}
	return true, kind, count
}
