package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const (
	// Header carries the trace id on HTTP requests and AMQP messages.
	Header = "X-Trace-ID"
	// LogKey is the zap field name for the trace id.
	LogKey = "trace_id"

	maxIDLen = 64
)

type ctxKey struct{}

// New returns a random 32-char hex id.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FromContext returns the trace id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure stores incoming in ctx when it is a usable id, otherwise a new
// one, and returns the id it stored.
func Ensure(ctx context.Context, incoming string) (context.Context, string) {
	id := strings.TrimSpace(incoming)
	if !valid(id) {
		id = New()
	}
	return WithContext(ctx, id), id
}

// valid accepts 1 to 64 chars of letters, digits, '-' and '_'.
func valid(id string) bool {
	if id == "" || len(id) > maxIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
