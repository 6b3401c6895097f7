package model

import "time"

// PerformanceMetric is a read-only rollup produced outside this service.
type PerformanceMetric struct {
	ID                  string    `json:"id"`
	SiteID              string    `json:"site_id"`
	Period              string    `json:"period"`
	QueriesOpened       int       `json:"queries_opened"`
	QueriesResolved     int       `json:"queries_resolved"`
	AvgResolutionDays   *float64  `json:"avg_resolution_days"`
	DataEntryLagDays    *float64  `json:"data_entry_lag_days"`
	ProtocolDeviations  int       `json:"protocol_deviations"`
	VisitCompletionRate *float64  `json:"visit_completion_rate"`
	PerformanceScore    *float64  `json:"performance_score"`
	RecordedAt          time.Time `json:"recorded_at"`
}

type PerformanceTier string

const (
	TierHigh    PerformanceTier = "high"
	TierMedium  PerformanceTier = "medium"
	TierLow     PerformanceTier = "low"
	TierUnknown PerformanceTier = "unknown"
)

func TierForScore(score *float64) PerformanceTier {
	switch {
	case score == nil:
		return TierUnknown
	case *score >= 80:
		return TierHigh
	case *score >= 60:
		return TierMedium
	}
	return TierLow
}
