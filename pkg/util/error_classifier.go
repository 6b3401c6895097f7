package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rabbitmq/amqp091-go"
)

// PermanentError marks a failure redelivery cannot fix, such as a payload
// missing required ids.
type PermanentError struct {
	Kind string
	Err  error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsRetryableError reports it as kind and never
// retryable.
func Permanent(kind string, err error) error {
	return &PermanentError{Kind: kind, Err: err}
}

// IsRetryableError classifies a handler error. The second value is a
// short label for logs, metrics and dead letter headers.
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var perm *PermanentError
	if errors.As(err, &perm) {
		return false, perm.Kind
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPg(pgErr.Code)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true, "timeout"
	case errors.Is(err, context.Canceled):
		return false, "context_canceled"
	case errors.Is(err, amqp091.ErrClosed):
		return true, "broker_closed"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if strings.Contains(err.Error(), "connection") {
		return true, "connection_error"
	}
	return false, "unknown_error"
}

// classifyPg maps a SQLSTATE: integrity violations (class 23) are final,
// connection loss (class 08, admin shutdown) and serialization or deadlock
// failures (40001, 40P01) are worth another try.
func classifyPg(code string) (bool, string) {
	switch {
	case code == "23505":
		return false, "duplicate_key"
	case strings.HasPrefix(code, "23"):
		return false, "constraint_violation"
	case strings.HasPrefix(code, "08"), code == "57P01":
		return true, "db_connection_error"
	case code == "40001", code == "40P01":
		return true, "db_conflict"
	}
	return false, "db_error"
}

// ShouldRetry reports whether attempt retryCount may still be retried.
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	return isRetryable && retryCount <= maxRetries
}
