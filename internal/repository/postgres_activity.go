package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/pkg/otel"
)

type ActivityRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewActivityRepository(db *pgxpool.Pool, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ActivityRepository) AppendActivity(ctx context.Context, a *model.MilestoneActivity) (bool, error) {
	ctx, span := otel.DBSpan(ctx, "INSERT", "milestone_activity")
	defer span.End()

	query := `
		INSERT INTO milestone_activity (event_id, site_id, study_id, milestone_id, milestone_type,
		                                from_status, to_status, actual_date, source, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		a.EventID,
		a.SiteID,
		a.StudyID,
		a.MilestoneID,
		a.MilestoneType,
		a.FromStatus,
		a.ToStatus,
		a.ActualDate,
		a.Source,
		a.OccurredAt,
	).Scan(&a.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		// conflict on event_id, already recorded
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to insert activity", zap.String("event_id", a.EventID), zap.Error(err))
		return false, translate(err, "insert activity")
	}
	return true, nil
}

// ListActivity returns the newest entries first.
func (r *ActivityRepository) ListActivity(ctx context.Context, siteID string, limit int) ([]model.MilestoneActivity, error) {
	ctx, span := otel.DBSpan(ctx, "SELECT", "milestone_activity")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT id, event_id, site_id, study_id, milestone_id, milestone_type, from_status, to_status,
		       actual_date, source, occurred_at
		FROM milestone_activity
		WHERE site_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, siteID, limit)
	if err != nil {
		return nil, translate(err, "list activity")
	}
	defer rows.Close()

	out := []model.MilestoneActivity{}
	for rows.Next() {
		var a model.MilestoneActivity
		if err := rows.Scan(
			&a.ID,
			&a.EventID,
			&a.SiteID,
			&a.StudyID,
			&a.MilestoneID,
			&a.MilestoneType,
			&a.FromStatus,
			&a.ToStatus,
			&a.ActualDate,
			&a.Source,
			&a.OccurredAt,
		); err != nil {
			return nil, translate(err, "scan activity")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
