package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/pipeline"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/pkg/logger"
)

type SiteService struct {
	studies repository.StudyStore
	sites   repository.SiteStore
	logger  *zap.Logger
}

func NewSiteService(studies repository.StudyStore, sites repository.SiteStore, logger *zap.Logger) *SiteService {
	return &SiteService{studies: studies, sites: sites, logger: logger}
}

// SiteUpdateResult is an updated site. StatusConflict is set when an
// explicit status edit disagrees with the status the milestones imply; the
// edit is kept.
type SiteUpdateResult struct {
	Site           *model.Site      `json:"site"`
	StatusConflict bool             `json:"status_conflict"`
	DerivedStatus  model.SiteStatus `json:"derived_status,omitempty"`
}

func validateSiteInput(in model.CreateSiteInput) error {
	switch {
	case strings.TrimSpace(in.SiteNumber) == "":
		return invalid("site_number", "is required")
	case strings.TrimSpace(in.Name) == "":
		return invalid("name", "is required")
	case strings.TrimSpace(in.PrincipalInvestigator) == "":
		return invalid("principal_investigator", "is required")
	case strings.TrimSpace(in.Country) == "":
		return invalid("country", "is required")
	case !model.IsKnownCountry(in.Country):
		return invalid("country", "unknown country %q", in.Country)
	case in.TargetEnrollment < 0:
		return invalid("target_enrollment", "must not be negative")
	}
	return nil
}

func (s *SiteService) Create(ctx context.Context, studyID string, in model.CreateSiteInput) (*model.SiteWithMilestones, error) {
	out, err := s.CreateMany(ctx, studyID, []model.CreateSiteInput{in})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// CreateMany creates sites in studyID, each with its eight pending
// milestones. Either every site is created or none is.
func (s *SiteService) CreateMany(ctx context.Context, studyID string, in []model.CreateSiteInput) ([]model.SiteWithMilestones, error) {
	if len(in) == 0 {
		return nil, invalid("sites", "at least one site is required")
	}
	if _, err := s.studies.GetStudy(ctx, studyID); err != nil {
		return nil, storeErr(err, "get study")
	}

	seen := make(map[string]struct{}, len(in))
	for i := range in {
		in[i].StudyID = studyID
		in[i].SiteNumber = strings.TrimSpace(in[i].SiteNumber)
		if err := validateSiteInput(in[i]); err != nil {
			return nil, err
		}
		key := strings.ToLower(in[i].SiteNumber)
		if _, dup := seen[key]; dup {
			return nil, invalid("site_number", "duplicate site number %q", in[i].SiteNumber)
		}
		seen[key] = struct{}{}
	}

	out, err := s.sites.CreateSites(ctx, in)
	if err != nil {
		return nil, storeErr(err, "create sites")
	}
	logger.WithTrace(ctx, s.logger).Info("sites created",
		zap.String("study_id", studyID),
		zap.Int("count", len(out)),
	)
	return out, nil
}

func (s *SiteService) Get(ctx context.Context, id string) (*model.SiteWithMilestones, error) {
	site, err := s.sites.GetSite(ctx, id)
	if err != nil {
		return nil, storeErr(err, "get site")
	}
	return site, nil
}

// ListByStudy returns the study's sites ordered by site number.
func (s *SiteService) ListByStudy(ctx context.Context, studyID string) ([]model.SiteWithMilestones, error) {
	if _, err := s.studies.GetStudy(ctx, studyID); err != nil {
		return nil, storeErr(err, "get study")
	}
	out, err := s.sites.ListSitesByStudy(ctx, studyID)
	if err != nil {
		return nil, storeErr(err, "list sites")
	}
	return out, nil
}

func (s *SiteService) Update(ctx context.Context, id string, in model.UpdateSiteInput) (*SiteUpdateResult, error) {
	current, err := s.sites.GetSite(ctx, id)
	if err != nil {
		return nil, storeErr(err, "get site")
	}

	next := current.Site
	in.Apply(&next)
	if in.SiteNumber != nil {
		next.SiteNumber = strings.TrimSpace(next.SiteNumber)
		in.SiteNumber = &next.SiteNumber
	}
	if err := validateSiteInput(model.CreateSiteInput{
		SiteNumber:            next.SiteNumber,
		Name:                  next.Name,
		PrincipalInvestigator: next.PrincipalInvestigator,
		Country:               next.Country,
		TargetEnrollment:      next.TargetEnrollment,
	}); err != nil {
		return nil, err
	}
	if in.Status != nil && !in.Status.IsValid() {
		return nil, invalid("status", "unknown status %q", *in.Status)
	}
	if next.CurrentEnrollment < 0 {
		return nil, invalid("current_enrollment", "must not be negative")
	}
	if next.CurrentEnrollment > next.TargetEnrollment {
		return nil, invalid("current_enrollment", "must not exceed target enrollment (%d)", next.TargetEnrollment)
	}

	res := &SiteUpdateResult{}
	if in.Status != nil && derivable(*in.Status) {
		derived := pipeline.RecomputeSiteStatus(current.Milestones)
		if derived != *in.Status {
			res.StatusConflict = true
			res.DerivedStatus = derived
			logger.WithTrace(ctx, s.logger).Warn("site status edit disagrees with milestones",
				zap.String("site_id", id),
				zap.String("requested", string(*in.Status)),
				zap.String("derived", string(derived)),
			)
		}
	}

	site, err := s.sites.UpdateSite(ctx, id, in)
	if err != nil {
		return nil, storeErr(err, "update site")
	}
	res.Site = site
	return res, nil
}

// derivable reports whether milestones can imply status; on_hold and
// closed are only ever set by hand.
func derivable(status model.SiteStatus) bool {
	switch status {
	case model.SitePlanned, model.SiteActivating, model.SiteActive:
		return true
	}
	return false
}

func (s *SiteService) Delete(ctx context.Context, id string) error {
	if err := s.sites.DeleteSite(ctx, id); err != nil {
		return storeErr(err, "delete site")
	}
	logger.WithTrace(ctx, s.logger).Info("site deleted", zap.String("site_id", id))
	return nil
}
