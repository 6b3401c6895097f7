package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/pkg/otel"
)

type PerformanceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPerformanceRepository(db *pgxpool.Pool, logger *zap.Logger) *PerformanceRepository {
	return &PerformanceRepository{
		db:     db,
		logger: logger,
	}
}

// ListPerformance returns rollups sorted by score, highest first, unscored
// last.
func (r *PerformanceRepository) ListPerformance(ctx context.Context, f PerformanceFilter) ([]model.PerformanceMetric, error) {
	ctx, span := otel.DBSpan(ctx, "SELECT", "site_performance_metrics")
	defer span.End()

	query := `
		SELECT p.id, p.site_id, p.period, p.queries_opened, p.queries_resolved, p.avg_resolution_days,
		       p.data_entry_lag_days, p.protocol_deviations, p.visit_completion_rate, p.performance_score,
		       p.recorded_at
		FROM site_performance_metrics p
		JOIN sites s ON s.id = p.site_id
		WHERE ($1::text = '' OR s.study_id::text = $1::text)
		AND ($2::text = '' OR p.site_id::text = $2::text)
		ORDER BY p.performance_score DESC NULLS LAST, p.recorded_at DESC
	`
	rows, err := r.db.Query(ctx, query, f.StudyID, f.SiteID)
	if err != nil {
		r.logger.Error("Failed to list performance metrics", zap.Error(err))
		return nil, translate(err, "list performance")
	}
	defer rows.Close()

	metrics := []model.PerformanceMetric{}
	for rows.Next() {
		var m model.PerformanceMetric
		if err := rows.Scan(
			&m.ID,
			&m.SiteID,
			&m.Period,
			&m.QueriesOpened,
			&m.QueriesResolved,
			&m.AvgResolutionDays,
			&m.DataEntryLagDays,
			&m.ProtocolDeviations,
			&m.VisitCompletionRate,
			&m.PerformanceScore,
			&m.RecordedAt,
		); err != nil {
			return nil, translate(err, "scan performance")
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
