package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DeadLetterExchange receives messages the worker gave up on, under their
// original routing key.
const DeadLetterExchange = ExchangeName + ".dlq"

// DeadLetter is a parked message plus why and where it failed.
type DeadLetter struct {
	RoutingKey  string
	SourceQueue string
	MessageID   string
	Body        []byte
	Reason      string
	Err         string
	Attempts    int64
	FailedAt    time.Time
}

func (d DeadLetter) headers() amqp091.Table {
	return amqp091.Table{
		"x-source-queue":   d.SourceQueue,
		"x-failure-reason": d.Reason,
		"x-original-error": d.Err,
		"x-attempts":       d.Attempts,
		"x-failed-at":      d.FailedAt.UTC().Format(time.RFC3339),
	}
}

func DeclareDeadLetterExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(DeadLetterExchange, "topic", true, false, false, false, nil)
}

// DeclareDeadLetterQueue declares "<queue>.dlq" and binds it to routingKey
// on the dead letter exchange.
func DeclareDeadLetterQueue(ch *amqp091.Channel, queue, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(queue+".dlq", true, false, false, false, nil)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare dead letter queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, DeadLetterExchange, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind dead letter queue: %w", err)
	}
	return q, nil
}

func (p *Publisher) PublishDeadLetter(ctx context.Context, d DeadLetter) error {
	if d.FailedAt.IsZero() {
		d.FailedAt = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, DeadLetterExchange, d.RoutingKey, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			MessageId:    d.MessageID,
			Timestamp:    d.FailedAt,
			Body:         d.Body,
			DeliveryMode: amqp091.Persistent,
			Headers:      d.headers(),
		},
	)
}
