package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/pkg/circuitbreaker"
	"github.com/sahasand/site-tracker/pkg/metrics"
	"github.com/sahasand/site-tracker/pkg/mq"
	"github.com/sahasand/site-tracker/pkg/trace"
)

// Publisher is satisfied by *mq.Publisher.
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Dispatcher polls the outbox and publishes pending events.
type Dispatcher struct {
	store      Store
	publisher  Publisher
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(store Store, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		publisher:  publisher,
		breaker:    circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	if maxRetries > 0 {
		d.maxRetries = maxRetries
	}
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

func (d *Dispatcher) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *Dispatcher {
	d.breaker = cb
	return d
}

// Start polls until ctx is cancelled. Run it in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			d.DispatchPending(ctx)
		}
	}
}

// DispatchPending publishes one batch and returns how many events were
// sent. An open breaker ends the batch without spending retries.
func (d *Dispatcher) DispatchPending(ctx context.Context) int {
	events, err := d.store.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending events", zap.Error(err))
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	d.logger.Debug("Processing pending events", zap.Int("count", len(events)))

	sent := 0
	for _, event := range events {
		err := d.breaker.Execute(func() error {
			return d.publishEvent(ctx, event)
		})
		if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
			metrics.IncrementOutboxPublish(event.RoutingKey, "breaker_open")
			d.logger.Warn("Broker circuit open, deferring outbox batch",
				zap.Int("remaining", len(events)-sent),
			)
			return sent
		}
		if err != nil {
			metrics.IncrementOutboxPublish(event.RoutingKey, "failed")
			d.logger.Error("Failed to publish event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			if err := d.store.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("Failed to mark event as failed",
					zap.Int64("event_id", event.ID),
					zap.Error(err),
				)
			}
			continue
		}

		metrics.IncrementOutboxPublish(event.RoutingKey, "sent")
		if err := d.store.MarkAsSent(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (d *Dispatcher) publishEvent(ctx context.Context, event *Event) error {
	return publish(ctx, d.publisher, event)
}

// publish sends the stored payload unchanged, tagged with the outbox id as
// message id and the payload's trace_id.
func publish(ctx context.Context, p Publisher, event *Event) error {
	if !json.Valid(event.Payload) {
		return fmt.Errorf("event %d has an invalid payload", event.ID)
	}
	ctx = traceFromPayload(ctx, event.Payload)
	ctx = mq.WithMessageID(ctx, strconv.FormatInt(event.ID, 10))
	if err := p.PublishWithContext(ctx, event.RoutingKey, event.Payload); err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}
	return nil
}

func traceFromPayload(ctx context.Context, payload json.RawMessage) context.Context {
	var p struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &p); err == nil && p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	return ctx
}
