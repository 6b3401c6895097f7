package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Attempts counts failed deliveries per queue and message id in Redis so
// the count survives requeues and worker restarts.
type Attempts struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAttempts(rdb *redis.Client, ttl time.Duration) *Attempts {
	return &Attempts{rdb: rdb, ttl: ttl}
}

func attemptsKey(queue, messageID string) string {
	return "attempts:" + queue + ":" + messageID
}

// Record adds one failed delivery and returns the running total. The ttl
// is set in the same pipeline so abandoned counters expire.
func (a *Attempts) Record(ctx context.Context, queue, messageID string) (int64, error) {
	key := attemptsKey(queue, messageID)
	pipe := a.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, a.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Clear forgets a message once it has been handled.
func (a *Attempts) Clear(ctx context.Context, queue, messageID string) error {
	return a.rdb.Del(ctx, attemptsKey(queue, messageID)).Err()
}
