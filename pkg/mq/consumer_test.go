package mq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/sahasand/site-tracker/pkg/mq"
	"github.com/sahasand/site-tracker/pkg/util"
)

func TestDisposition(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	attempts := util.NewAttempts(rdb, time.Hour)
	ctx := context.Background()

	transient := context.DeadlineExceeded
	for i := int64(1); i <= 2; i++ {
		requeue, reason, tries := mq.Disposition(ctx, attempts, 2, "q", "m1", transient)
		assert.True(t, requeue)
		assert.Equal(t, "timeout", reason)
		assert.Equal(t, i, tries)
	}
	requeue, reason, tries := mq.Disposition(ctx, attempts, 2, "q", "m1", transient)
	assert.False(t, requeue)
	assert.Equal(t, "max_retries_exceeded", reason)
	assert.Equal(t, int64(3), tries)

	requeue, reason, _ = mq.Disposition(ctx, attempts, 2, "q", "m2", errors.New("bad payload"))
	assert.False(t, requeue)
	assert.Equal(t, "unknown_error", reason)

	requeue, _, _ = mq.Disposition(ctx, nil, 0, "q", "", transient)
	assert.True(t, requeue)
}

func TestDeadLetterExchangeName(t *testing.T) {
	assert.Equal(t, "activation.events.dlq", mq.DeadLetterExchange)
}
