package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sahasand/site-tracker/pkg/trace"
)

var Log *zap.Logger

// NewLogger builds the production JSON logger. LOG_LEVEL (debug, info,
// warn, error) overrides the default info level.
func NewLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := zapcore.ParseLevel(lvl); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace returns logger annotated with the trace_id carried by ctx.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if traceID := trace.FromContext(ctx); traceID != "" {
		return logger.With(zap.String(trace.LogKey, traceID))
	}
	return logger
}
