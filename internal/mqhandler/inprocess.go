package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/pkg/mq"
)

// InProcessPublisher hands outbox events straight to local handlers. It
// stands in for RabbitMQ when the API runs on the memory store.
type InProcessPublisher struct {
	handlers map[string]mq.MessageHandler
	logger   *zap.Logger
}

func NewInProcessPublisher(logger *zap.Logger) *InProcessPublisher {
	return &InProcessPublisher{
		handlers: make(map[string]mq.MessageHandler),
		logger:   logger,
	}
}

func (p *InProcessPublisher) Subscribe(routingKey string, h mq.MessageHandler) {
	p.handlers[routingKey] = h
}

// PublishWithContext delivers payload to the handler for routingKey.
// Events nobody subscribed to are dropped.
func (p *InProcessPublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	h, ok := p.handlers[routingKey]
	if !ok {
		p.logger.Debug("No in-process handler for routing key", zap.String("routing_key", routingKey))
		return nil
	}

	var raw json.RawMessage
	switch v := payload.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", routingKey, err)
		}
		raw = b
	}
	return h(ctx, raw)
}
