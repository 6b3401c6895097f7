package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ consume latency in milliseconds.
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	MilestoneUpdateCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_update_count",
			Help: "Total number of milestone writes",
		},
		[]string{"status", "source"}, // source: edit, move, bulk
	)

	SiteMoveCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_move_count",
			Help: "Total number of kanban moves",
		},
		[]string{"direction", "result"}, // result: ok, partial
	)

	ImportRowCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_import_row_count",
			Help: "Total number of imported rows by validation result",
		},
		[]string{"result"}, // result: valid, invalid, created
	)

	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_count",
			Help: "Total number of outbox publish attempts",
		},
		[]string{"routing_key", "status"}, // status: sent, failed, breaker_open
	)

	ActivityEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_event_count",
			Help: "Total number of milestone events consumed by the worker",
		},
		[]string{"status"}, // status: recorded, duplicate, failed
	)
)

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func IncrementSlowQuery(operation string) {
	DBSlowQueryCount.WithLabelValues(operation).Inc()
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementMilestoneUpdate(status, source string) {
	MilestoneUpdateCount.WithLabelValues(status, source).Inc()
}

func IncrementSiteMove(direction, result string) {
	SiteMoveCount.WithLabelValues(direction, result).Inc()
}

// AddImportRows adds n rows under result; zero is a no-op.
func AddImportRows(result string, n int) {
	if n > 0 {
		ImportRowCount.WithLabelValues(result).Add(float64(n))
	}
}

func IncrementOutboxPublish(routingKey, status string) {
	OutboxPublishCount.WithLabelValues(routingKey, status).Inc()
}

func IncrementActivityEvent(status string) {
	ActivityEventCount.WithLabelValues(status).Inc()
}
