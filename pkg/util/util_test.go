package util_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/pkg/util"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestDeduper_AcquireOnce(t *testing.T) {
	mr, rdb := newRedis(t)
	d := util.NewDeduper(rdb, time.Hour, zap.NewNop())
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "activity", "evt-1"))
	assert.False(t, d.AcquireOnce(ctx, "activity", "evt-1"))
	assert.True(t, d.AcquireOnce(ctx, "other", "evt-1"))
	assert.True(t, mr.Exists("dedup:activity:evt-1"))

	mr.FastForward(2 * time.Hour)
	assert.True(t, d.AcquireOnce(ctx, "activity", "evt-1"))
}

func TestDeduper_Release(t *testing.T) {
	mr, rdb := newRedis(t)
	d := util.NewDeduper(rdb, time.Hour, nil)
	ctx := context.Background()

	require.True(t, d.AcquireOnce(ctx, "activity", "evt-2"))
	assert.True(t, mr.Exists("dedup:activity:evt-2"))

	d.Release(ctx, "activity", "evt-2")
	assert.False(t, mr.Exists("dedup:activity:evt-2"))
	assert.True(t, d.AcquireOnce(ctx, "activity", "evt-2"))
}

func TestDeduper_FailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	d := util.NewDeduper(rdb, time.Hour, zap.NewNop())
	mr.Close()

	assert.True(t, d.AcquireOnce(context.Background(), "activity", "evt-3"))
	assert.True(t, d.AcquireOnce(context.Background(), "activity", "evt-3"))
}

func TestAttempts(t *testing.T) {
	mr, rdb := newRedis(t)
	a := util.NewAttempts(rdb, time.Minute)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := a.Record(ctx, "site_tracker.activity", "evt-9")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Greater(t, mr.TTL("attempts:site_tracker.activity:evt-9"), time.Duration(0))

	assert.False(t, mr.Exists("attempts:other.queue:evt-9"))

	require.NoError(t, a.Clear(ctx, "site_tracker.activity", "evt-9"))
	assert.False(t, mr.Exists("attempts:site_tracker.activity:evt-9"))

	n, err := a.Record(ctx, "site_tracker.activity", "evt-9")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryableError(t *testing.T) {
	var syntax *json.SyntaxError
	decodeErr := json.Unmarshal([]byte("{"), &map[string]any{})
	require.ErrorAs(t, decodeErr, &syntax)

	cases := []struct {
		err       error
		retryable bool
		kind      string
	}{
		{fmt.Errorf("decode: %w", decodeErr), false, "json_decode_error"},
		{fmt.Errorf("load: %w", pgx.ErrNoRows), false, "not_found"},
		{&pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{&pgconn.PgError{Code: "23503"}, false, "constraint_violation"},
		{&pgconn.PgError{Code: "08006"}, true, "db_connection_error"},
		{&pgconn.PgError{Code: "40001"}, true, "db_conflict"},
		{&pgconn.PgError{Code: "42P01"}, false, "db_error"},
		{fmt.Errorf("publish: %w", amqp091.ErrClosed), true, "broker_closed"},
		{util.Permanent("invalid_payload", errors.New("missing site id")), false, "invalid_payload"},
		{fmt.Errorf("handle: %w", util.Permanent("invalid_payload", errors.New("connection id"))), false, "invalid_payload"},
		{context.DeadlineExceeded, true, "timeout"},
		{context.Canceled, false, "context_canceled"},
		{timeoutErr{}, true, "network_timeout"},
		{errors.New("connection reset by peer"), true, "connection_error"},
		{errors.New("boom"), false, "unknown_error"},
	}
	for _, tc := range cases {
		retryable, kind := util.IsRetryableError(tc.err)
		assert.Equal(t, tc.retryable, retryable, tc.err.Error())
		assert.Equal(t, tc.kind, kind, tc.err.Error())
	}

	retryable, kind := util.IsRetryableError(nil)
	assert.False(t, retryable)
	assert.Empty(t, kind)
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, util.ShouldRetry(3, 3, true))
	assert.False(t, util.ShouldRetry(4, 3, true))
	assert.False(t, util.ShouldRetry(1, 3, false))
}
