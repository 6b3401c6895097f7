package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper claims event ids in Redis with SET NX so each consumer handles an
// event once within ttl.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{rdb: rdb, ttl: ttl, logger: logger}
}

func dedupKey(consumer, eventID string) string {
	return "dedup:" + consumer + ":" + eventID
}

// AcquireOnce claims eventID for consumer and reports whether the claim is
// new. When Redis is unreachable it fails open; downstream unique
// constraints catch the duplicate.
func (d *Deduper) AcquireOnce(ctx context.Context, consumer, eventID string) bool {
	key := dedupKey(consumer, eventID)
	ok, err := d.rdb.SetNX(ctx, key, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		d.logger.Warn("Dedup check failed, processing anyway",
			zap.String("consumer", consumer),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		d.logger.Debug("Duplicate event skipped",
			zap.String("consumer", consumer),
			zap.String("event_id", eventID),
		)
	}
	return ok
}

// Release drops the claim so a redelivery after a failed attempt is
// processed.
func (d *Deduper) Release(ctx context.Context, consumer, eventID string) {
	if err := d.rdb.Del(ctx, dedupKey(consumer, eventID)).Err(); err != nil {
		d.logger.Warn("Failed to release dedup claim",
			zap.String("consumer", consumer),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}
