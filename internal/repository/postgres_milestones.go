package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	contracts "github.com/sahasand/site-tracker/contracts/mq"
	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/pkg/otel"
	"github.com/sahasand/site-tracker/pkg/outbox"
)

type MilestoneRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, ob *outbox.Repository, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		outbox: ob,
		logger: logger,
	}
}

const milestoneColumns = `id, site_id, milestone_type, status, planned_date, actual_date, notes, created_at, updated_at`

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var m model.Milestone
	err := row.Scan(
		&m.ID,
		&m.SiteID,
		&m.MilestoneType,
		&m.Status,
		&m.PlannedDate,
		&m.ActualDate,
		&m.Notes,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return &m, err
}

func (r *MilestoneRepository) GetMilestone(ctx context.Context, id string) (*model.Milestone, error) {
	ctx, span := otel.DBSpan(ctx, "SELECT", "site_milestones")
	defer span.End()

	m, err := scanMilestone(r.db.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM site_milestones WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get milestone")
	}
	return m, nil
}

// UpdateMilestone writes the milestone and its milestone.updated outbox
// event in one transaction. updated_at always moves, which restarts the
// stage clock even for a notes-only edit.
func (r *MilestoneRepository) UpdateMilestone(ctx context.Context, id string, in model.UpdateMilestoneInput, source string) (*model.Milestone, error) {
	ctx, span := otel.DBSpan(ctx, "UPDATE", "site_milestones")
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, translate(err, "begin update milestone")
	}
	defer tx.Rollback(ctx)

	var (
		studyID string
		before  *model.Milestone
	)
	row := tx.QueryRow(ctx, `
		SELECT s.study_id, m.id, m.site_id, m.milestone_type, m.status, m.planned_date, m.actual_date,
		       m.notes, m.created_at, m.updated_at
		FROM site_milestones m
		JOIN sites s ON s.id = m.site_id
		WHERE m.id = $1
		FOR UPDATE OF m`, id)
	before = &model.Milestone{}
	if err := row.Scan(
		&studyID,
		&before.ID,
		&before.SiteID,
		&before.MilestoneType,
		&before.Status,
		&before.PlannedDate,
		&before.ActualDate,
		&before.Notes,
		&before.CreatedAt,
		&before.UpdatedAt,
	); err != nil {
		return nil, translate(err, "get milestone")
	}

	after, err := scanMilestone(tx.QueryRow(ctx, `
		UPDATE site_milestones
		SET status = $2, planned_date = $3, actual_date = $4, notes = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+milestoneColumns,
		id,
		in.Status,
		in.PlannedDate,
		in.ActualDate,
		in.Notes,
		time.Now().UTC(),
	))
	if err != nil {
		r.logger.Error("Failed to update milestone", zap.String("id", id), zap.Error(err))
		return nil, translate(err, "update milestone")
	}

	if err := r.outbox.Enqueue(ctx, tx, after.SiteID,
		contracts.RoutingKeyMilestoneUpdated, milestoneUpdatedEvent(ctx, studyID, *before, *after, source)); err != nil {
		return nil, translate(err, "queue milestone.updated")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translate(err, "commit update milestone")
	}

	r.logger.Debug("Milestone updated",
		zap.String("id", id),
		zap.String("site_id", after.SiteID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(after.Status)),
		zap.String("source", source),
	)
	return after, nil
}
