package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/pkg/otel"
)

type StudyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewStudyRepository(db *pgxpool.Pool, logger *zap.Logger) *StudyRepository {
	return &StudyRepository{
		db:     db,
		logger: logger,
	}
}

const studyColumns = `id, name, protocol_number, sponsor_name, phase, status, target_enrollment,
	       enrollment_start_date, planned_end_date, created_at, updated_at`

func scanStudy(row pgx.Row) (*model.Study, error) {
	var s model.Study
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.ProtocolNumber,
		&s.SponsorName,
		&s.Phase,
		&s.Status,
		&s.TargetEnrollment,
		&s.EnrollmentStartDate,
		&s.PlannedEndDate,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return &s, err
}

func (r *StudyRepository) CreateStudy(ctx context.Context, in model.CreateStudyInput) (*model.Study, error) {
	ctx, span := otel.DBSpan(ctx, "INSERT", "studies")
	defer span.End()

	r.logger.Debug("Inserting study",
		zap.String("name", in.Name),
		zap.String("protocol_number", in.ProtocolNumber),
	)

	query := `
		INSERT INTO studies (id, name, protocol_number, sponsor_name, phase, status, target_enrollment,
		                     enrollment_start_date, planned_end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + studyColumns

	s, err := scanStudy(r.db.QueryRow(ctx, query,
		uuid.NewString(),
		in.Name,
		in.ProtocolNumber,
		in.SponsorName,
		in.Phase,
		model.StudyActive,
		in.TargetEnrollment,
		in.EnrollmentStartDate,
		in.PlannedEndDate,
	))
	if err != nil {
		r.logger.Error("Failed to insert study", zap.Error(err))
		return nil, translate(err, "insert study")
	}

	r.logger.Info("Study inserted successfully", zap.String("id", s.ID))
	return s, nil
}

func (r *StudyRepository) GetStudy(ctx context.Context, id string) (*model.Study, error) {
	ctx, span := otel.DBSpan(ctx, "SELECT", "studies")
	defer span.End()

	s, err := scanStudy(r.db.QueryRow(ctx, `SELECT `+studyColumns+` FROM studies WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get study")
	}
	return s, nil
}

func (r *StudyRepository) ListStudies(ctx context.Context, status model.StudyStatus) ([]model.Study, error) {
	ctx, span := otel.DBSpan(ctx, "SELECT", "studies")
	defer span.End()

	query := `
		SELECT ` + studyColumns + `
		FROM studies
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, string(status))
	if err != nil {
		r.logger.Error("Failed to list studies", zap.Error(err))
		return nil, translate(err, "list studies")
	}
	defer rows.Close()

	studies := []model.Study{}
	for rows.Next() {
		s, err := scanStudy(rows)
		if err != nil {
			r.logger.Error("Failed to scan study", zap.Error(err))
			return nil, translate(err, "scan study")
		}
		studies = append(studies, *s)
	}
	return studies, rows.Err()
}

func (r *StudyRepository) UpdateStudy(ctx context.Context, id string, in model.UpdateStudyInput) (*model.Study, error) {
	ctx, span := otel.DBSpan(ctx, "UPDATE", "studies")
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, translate(err, "begin update study")
	}
	defer tx.Rollback(ctx)

	current, err := scanStudy(tx.QueryRow(ctx, `SELECT `+studyColumns+` FROM studies WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate(err, "get study")
	}
	in.Apply(current)

	query := `
		UPDATE studies
		SET name = $2, protocol_number = $3, sponsor_name = $4, phase = $5, status = $6,
		    target_enrollment = $7, enrollment_start_date = $8, planned_end_date = $9, updated_at = $10
		WHERE id = $1
		RETURNING ` + studyColumns

	updated, err := scanStudy(tx.QueryRow(ctx, query,
		id,
		current.Name,
		current.ProtocolNumber,
		current.SponsorName,
		current.Phase,
		current.Status,
		current.TargetEnrollment,
		current.EnrollmentStartDate,
		current.PlannedEndDate,
		time.Now().UTC(),
	))
	if err != nil {
		r.logger.Error("Failed to update study", zap.String("id", id), zap.Error(err))
		return nil, translate(err, "update study")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translate(err, "commit update study")
	}
	return updated, nil
}

// DeleteStudy relies on ON DELETE CASCADE for sites and milestones.
func (r *StudyRepository) DeleteStudy(ctx context.Context, id string) error {
	return otel.WithDBSpan(ctx, "DELETE", "studies", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `DELETE FROM studies WHERE id = $1`, id)
		if err != nil {
			r.logger.Error("Failed to delete study", zap.String("id", id), zap.Error(err))
			return translate(err, "delete study")
		}
		if tag.RowsAffected() == 0 {
			return translate(pgx.ErrNoRows, "delete study")
		}
		r.logger.Info("Study deleted", zap.String("id", id))
		return nil
	})
}
