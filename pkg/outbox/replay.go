package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService republishes events by hand, typically ones that exhausted
// their retries.
type ReplayService struct {
	store      Store
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
}

func NewReplayService(store Store, publisher Publisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
	}
}

func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	if err := publish(ctx, s.publisher, event); err != nil {
		if markErr := s.store.MarkAsFailed(ctx, eventID, s.maxRetries); markErr != nil {
			return fmt.Errorf("failed to publish and mark as failed: %w (mark error: %v)", err, markErr)
		}
		return err
	}

	if err := s.store.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark as sent: %w", err)
	}
	return nil
}

// ReplayFailedEvents replays up to limit failed events and returns how
// many went out. Individual failures are logged and skipped.
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.store.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	replayed := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Outbox replay failed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		replayed++
	}
	return replayed, nil
}
