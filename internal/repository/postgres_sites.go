package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	contracts "github.com/sahasand/site-tracker/contracts/mq"
	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/pkg/otel"
	"github.com/sahasand/site-tracker/pkg/outbox"
)

type SiteRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewSiteRepository(db *pgxpool.Pool, ob *outbox.Repository, logger *zap.Logger) *SiteRepository {
	return &SiteRepository{
		db:     db,
		outbox: ob,
		logger: logger,
	}
}

const siteColumns = `id, study_id, site_number, name, principal_investigator, country, region, status,
	       target_enrollment, current_enrollment, created_at, updated_at`

func scanSite(row pgx.Row) (*model.Site, error) {
	var s model.Site
	err := row.Scan(
		&s.ID,
		&s.StudyID,
		&s.SiteNumber,
		&s.Name,
		&s.PrincipalInvestigator,
		&s.Country,
		&s.Region,
		&s.Status,
		&s.TargetEnrollment,
		&s.CurrentEnrollment,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return &s, err
}

// CreateSites inserts the sites, their milestones and one site.created
// outbox event per site in a single transaction.
func (r *SiteRepository) CreateSites(ctx context.Context, in []model.CreateSiteInput) ([]model.SiteWithMilestones, error) {
	ctx, span := otel.DBSpan(ctx, "INSERT", "sites")
	defer span.End()

	if len(in) == 0 {
		return []model.SiteWithMilestones{}, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, translate(err, "begin create sites")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	created := make([]model.SiteWithMilestones, 0, len(in))
	for _, site := range in {
		s, err := scanSite(tx.QueryRow(ctx, `
			INSERT INTO sites (id, study_id, site_number, name, principal_investigator, country, region,
			                   status, target_enrollment, current_enrollment, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $10)
			RETURNING `+siteColumns,
			uuid.NewString(),
			site.StudyID,
			site.SiteNumber,
			site.Name,
			site.PrincipalInvestigator,
			site.Country,
			site.Region,
			model.SitePlanned,
			site.TargetEnrollment,
			now,
		))
		if err != nil {
			r.logger.Error("Failed to insert site",
				zap.String("study_id", site.StudyID),
				zap.String("site_number", site.SiteNumber),
				zap.Error(err),
			)
			return nil, translate(err, "insert site")
		}

		milestones := model.NewMilestones(s.ID, uuid.NewString, now)
		batch := &pgx.Batch{}
		for _, m := range milestones {
			batch.Queue(`
				INSERT INTO site_milestones (id, site_id, milestone_type, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $5)`,
				m.ID, m.SiteID, m.MilestoneType, m.Status, now,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			r.logger.Error("Failed to insert milestones", zap.String("site_id", s.ID), zap.Error(err))
			return nil, translate(err, "insert milestones")
		}

		if err := r.outbox.Enqueue(ctx, tx, s.ID,
			contracts.RoutingKeySiteCreated, siteCreatedEvent(ctx, *s)); err != nil {
			return nil, translate(err, "queue site.created")
		}

		created = append(created, model.SiteWithMilestones{Site: *s, Milestones: milestones})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translate(err, "commit create sites")
	}

	r.logger.Info("Sites inserted successfully", zap.Int("count", len(created)))
	return created, nil
}

func (r *SiteRepository) GetSite(ctx context.Context, id string) (*model.SiteWithMilestones, error) {
	ctx, span := otel.DBSpan(ctx, "SELECT", "sites")
	defer span.End()

	s, err := scanSite(r.db.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get site")
	}

	byID, err := r.milestonesFor(ctx, []string{s.ID})
	if err != nil {
		return nil, err
	}
	return &model.SiteWithMilestones{Site: *s, Milestones: byID[s.ID]}, nil
}

func (r *SiteRepository) ListSitesByStudy(ctx context.Context, studyID string) ([]model.SiteWithMilestones, error) {
	ctx, span := otel.DBSpan(ctx, "SELECT", "sites")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+siteColumns+` FROM sites WHERE study_id = $1`, studyID)
	if err != nil {
		r.logger.Error("Failed to list sites", zap.String("study_id", studyID), zap.Error(err))
		return nil, translate(err, "list sites")
	}
	defer rows.Close()

	var (
		sites []model.SiteWithMilestones
		ids   []string
	)
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, translate(err, "scan site")
		}
		sites = append(sites, model.SiteWithMilestones{Site: *s})
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list sites")
	}
	if len(sites) == 0 {
		return []model.SiteWithMilestones{}, nil
	}

	byID, err := r.milestonesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sites {
		sites[i].Milestones = byID[sites[i].ID]
	}
	model.SortSiteViews(sites)
	return sites, nil
}

func (r *SiteRepository) milestonesFor(ctx context.Context, siteIDs []string) (map[string][]model.Milestone, error) {
	rows, err := r.db.Query(ctx, `SELECT `+milestoneColumns+` FROM site_milestones WHERE site_id = ANY($1)`, siteIDs)
	if err != nil {
		return nil, translate(err, "list milestones")
	}
	defer rows.Close()

	out := make(map[string][]model.Milestone, len(siteIDs))
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, translate(err, "scan milestone")
		}
		out[m.SiteID] = append(out[m.SiteID], *m)
	}
	for id := range out {
		model.SortMilestones(out[id])
	}
	return out, rows.Err()
}

func (r *SiteRepository) UpdateSite(ctx context.Context, id string, in model.UpdateSiteInput) (*model.Site, error) {
	ctx, span := otel.DBSpan(ctx, "UPDATE", "sites")
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, translate(err, "begin update site")
	}
	defer tx.Rollback(ctx)

	current, err := scanSite(tx.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate(err, "get site")
	}
	in.Apply(current)

	updated, err := scanSite(tx.QueryRow(ctx, `
		UPDATE sites
		SET site_number = $2, name = $3, principal_investigator = $4, country = $5, region = $6,
		    status = $7, target_enrollment = $8, current_enrollment = $9, updated_at = $10
		WHERE id = $1
		RETURNING `+siteColumns,
		id,
		current.SiteNumber,
		current.Name,
		current.PrincipalInvestigator,
		current.Country,
		current.Region,
		current.Status,
		current.TargetEnrollment,
		current.CurrentEnrollment,
		time.Now().UTC(),
	))
	if err != nil {
		r.logger.Error("Failed to update site", zap.String("id", id), zap.Error(err))
		return nil, translate(err, "update site")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translate(err, "commit update site")
	}
	return updated, nil
}

func (r *SiteRepository) DeleteSite(ctx context.Context, id string) error {
	return otel.WithDBSpan(ctx, "DELETE", "sites", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
		if err != nil {
			r.logger.Error("Failed to delete site", zap.String("id", id), zap.Error(err))
			return translate(err, "delete site")
		}
		if tag.RowsAffected() == 0 {
			return translate(pgx.ErrNoRows, "delete site")
		}
		r.logger.Info("Site deleted", zap.String("id", id))
		return nil
	})
}
