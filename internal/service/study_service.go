package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/pkg/logger"
)

type StudyService struct {
	studies repository.StudyStore
	logger  *zap.Logger
}

func NewStudyService(studies repository.StudyStore, logger *zap.Logger) *StudyService {
	return &StudyService{studies: studies, logger: logger}
}

func validateStudyFields(name, protocol *string, phase *model.StudyPhase, status *model.StudyStatus, target *int) error {
	if name != nil && strings.TrimSpace(*name) == "" {
		return invalid("name", "is required")
	}
	if protocol != nil && strings.TrimSpace(*protocol) == "" {
		return invalid("protocol_number", "is required")
	}
	if phase != nil && !phase.IsValid() {
		return invalid("phase", "unknown phase %q", *phase)
	}
	if status != nil && !status.IsValid() {
		return invalid("status", "unknown status %q", *status)
	}
	if target != nil && *target < 0 {
		return invalid("target_enrollment", "must not be negative")
	}
	return nil
}

func (s *StudyService) Create(ctx context.Context, in model.CreateStudyInput) (*model.Study, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.ProtocolNumber = strings.TrimSpace(in.ProtocolNumber)
	if err := validateStudyFields(&in.Name, &in.ProtocolNumber, &in.Phase, nil, &in.TargetEnrollment); err != nil {
		return nil, err
	}

	st, err := s.studies.CreateStudy(ctx, in)
	if err != nil {
		return nil, storeErr(err, "create study")
	}
	logger.WithTrace(ctx, s.logger).Info("study created",
		zap.String("study_id", st.ID),
		zap.String("protocol_number", st.ProtocolNumber),
	)
	return st, nil
}

func (s *StudyService) Get(ctx context.Context, id string) (*model.Study, error) {
	st, err := s.studies.GetStudy(ctx, id)
	if err != nil {
		return nil, storeErr(err, "get study")
	}
	return st, nil
}

// List returns studies newest first. An empty status lists all of them.
func (s *StudyService) List(ctx context.Context, status model.StudyStatus) ([]model.Study, error) {
	if status != "" && !status.IsValid() {
		return nil, invalid("status", "unknown status %q", status)
	}
	out, err := s.studies.ListStudies(ctx, status)
	if err != nil {
		return nil, storeErr(err, "list studies")
	}
	return out, nil
}

func (s *StudyService) Update(ctx context.Context, id string, in model.UpdateStudyInput) (*model.Study, error) {
	if err := validateStudyFields(in.Name, in.ProtocolNumber, in.Phase, in.Status, in.TargetEnrollment); err != nil {
		return nil, err
	}
	st, err := s.studies.UpdateStudy(ctx, id, in)
	if err != nil {
		return nil, storeErr(err, "update study")
	}
	return st, nil
}

// Delete removes the study together with its sites and milestones.
func (s *StudyService) Delete(ctx context.Context, id string) error {
	if err := s.studies.DeleteStudy(ctx, id); err != nil {
		return storeErr(err, "delete study")
	}
	logger.WithTrace(ctx, s.logger).Info("study deleted", zap.String("study_id", id))
	return nil
}
