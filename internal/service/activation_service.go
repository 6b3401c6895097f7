package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/pipeline"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/pkg/logger"
	"github.com/sahasand/site-tracker/pkg/metrics"
	"github.com/sahasand/site-tracker/pkg/otel"
)

// ActivationService applies milestone writes: single edits, bulk edits and
// stage moves. Every milestone write is followed by a recomputation of the
// owning site's status.
type ActivationService struct {
	sites      repository.SiteStore
	milestones repository.MilestoneStore
	logger     *zap.Logger
	now        func() time.Time
}

func NewActivationService(sites repository.SiteStore, milestones repository.MilestoneStore, logger *zap.Logger) *ActivationService {
	return &ActivationService{
		sites:      sites,
		milestones: milestones,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *ActivationService) WithClock(now func() time.Time) *ActivationService {
	s.now = now
	return s
}

// MovePreview is the confirmation payload of a move.
type MovePreview struct {
	Plan           *pipeline.MovePlan `json:"plan"`
	ResultingStage model.KanbanStage  `json:"resulting_stage"`
}

type MoveResult struct {
	Plan *pipeline.MovePlan        `json:"plan"`
	Site *model.SiteWithMilestones `json:"site"`
}

type MilestoneUpdateResult struct {
	Milestone *model.Milestone          `json:"milestone"`
	Site      *model.SiteWithMilestones `json:"site"`
}

type BulkUpdateInput struct {
	SiteIDs       []string              `json:"site_ids"`
	MilestoneType model.MilestoneType   `json:"milestone_type"`
	Status        model.MilestoneStatus `json:"status"`
	ActualDate    *time.Time            `json:"actual_date"`
}

type BulkUpdateResult struct {
	Updated []string                   `json:"updated"`
	Skipped int                        `json:"skipped"`
	Sites   []model.SiteWithMilestones `json:"sites"`
}

func (s *ActivationService) plan(ctx context.Context, siteID, targetStudyID string, stage model.KanbanStage) (*model.SiteWithMilestones, *pipeline.MovePlan, error) {
	site, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, nil, storeErr(err, "get site")
	}
	plan, err := pipeline.PlanMove(site.Site, site.Milestones, targetStudyID, stage, s.now())
	if err != nil {
		return nil, nil, err
	}
	return site, plan, nil
}

// PreviewMove plans a move without writing anything.
func (s *ActivationService) PreviewMove(ctx context.Context, siteID, targetStudyID string, stage model.KanbanStage) (*MovePreview, error) {
	site, plan, err := s.plan(ctx, siteID, targetStudyID, stage)
	if err != nil {
		return nil, err
	}
	return &MovePreview{
		Plan:           plan,
		ResultingStage: pipeline.SiteStage(pipeline.ApplyPlan(site.Milestones, plan)),
	}, nil
}

// MoveSite re-plans the move against the current milestones and writes
// each change on its own. Every change is attempted; when some fail the
// applied ones stay and a *PartialFailureError lists both sets.
func (s *ActivationService) MoveSite(ctx context.Context, siteID, targetStudyID string, stage model.KanbanStage) (*MoveResult, error) {
	ctx, span := otel.StartSpan(ctx, "activation.move_site")
	defer span.End()
	span.SetAttributes(
		attribute.String("site.id", siteID),
		attribute.String("stage.target", string(stage)),
	)
	log := logger.WithTrace(ctx, s.logger).With(zap.String("site_id", siteID))

	site, plan, err := s.plan(ctx, siteID, targetStudyID, stage)
	if err != nil {
		metrics.IncrementSiteMove("none", "rejected")
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("move.direction", string(plan.Direction)),
		attribute.Int("move.changes", len(plan.Changes)),
	)

	current := make(map[string]model.Milestone, len(site.Milestones))
	for _, m := range site.Milestones {
		current[m.ID] = m
	}

	failure := &PartialFailureError{Applied: []string{}}
	var statusErr error
	for _, c := range plan.Changes {
		if _, err := s.writeMilestone(ctx, c.MilestoneID, c.Input(current[c.MilestoneID]), repository.SourceMove); err != nil {
			log.Warn("move: milestone write failed",
				zap.String("milestone_id", c.MilestoneID),
				zap.String("milestone_type", string(c.MilestoneType)),
				zap.Error(err),
			)
			failure.Failed = append(failure.Failed, FailedWrite{ID: c.MilestoneID, Error: err.Error()})
			continue
		}
		failure.Applied = append(failure.Applied, c.MilestoneID)
		// only the last recompute decides whether the stored status is stale
		statusErr = s.recomputeStatus(ctx, siteID)
	}
	if statusErr != nil {
		log.Warn("move: site status recompute failed", zap.Error(statusErr))
		failure.StatusErrors = append(failure.StatusErrors, FailedWrite{ID: siteID, Error: statusErr.Error()})
	}

	final, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, storeErr(err, "get site")
	}
	res := &MoveResult{Plan: plan, Site: final}

	if failure.hasFailures() {
		metrics.IncrementSiteMove(string(plan.Direction), "partial")
		span.SetStatus(codes.Error, failure.Error())
		log.Error("move partially applied",
			zap.Int("applied", len(failure.Applied)),
			zap.Int("failed", len(failure.Failed)),
			zap.Int("status_errors", len(failure.StatusErrors)),
		)
		return res, failure
	}

	metrics.IncrementSiteMove(string(plan.Direction), "ok")
	log.Info("site moved",
		zap.String("from", string(plan.From)),
		zap.String("to", string(plan.To)),
		zap.Int("changes", len(plan.Changes)),
	)
	return res, nil
}

func validateMilestoneInput(in *model.UpdateMilestoneInput, today time.Time) error {
	if !in.Status.IsValid() {
		return invalid("status", "unknown status %q", in.Status)
	}
	if in.Status == model.MilestoneCompleted && in.ActualDate == nil {
		d := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		in.ActualDate = &d
	}
	return nil
}

// UpdateMilestone replaces one milestone's fields. A completed milestone
// without an actual date is dated today. When the milestone is written but
// the site status cannot be recomputed, the result is returned together
// with a *PartialFailureError naming the site.
func (s *ActivationService) UpdateMilestone(ctx context.Context, id string, in model.UpdateMilestoneInput) (*MilestoneUpdateResult, error) {
	if err := validateMilestoneInput(&in, s.now()); err != nil {
		return nil, err
	}
	m, err := s.writeMilestone(ctx, id, in, repository.SourceEdit)
	if err != nil {
		return nil, err
	}
	statusErr := s.recomputeStatus(ctx, m.SiteID)

	site, err := s.sites.GetSite(ctx, m.SiteID)
	if err != nil {
		return nil, storeErr(err, "get site")
	}
	res := &MilestoneUpdateResult{Milestone: m, Site: site}
	if statusErr != nil {
		logger.WithTrace(ctx, s.logger).Warn("milestone written, site status recompute failed",
			zap.String("milestone_id", id),
			zap.String("site_id", m.SiteID),
			zap.Error(statusErr),
		)
		return res, &PartialFailureError{
			Applied:      []string{m.ID},
			StatusErrors: []FailedWrite{{ID: m.SiteID, Error: statusErr.Error()}},
		}
	}
	return res, nil
}

// BulkUpdateMilestone sets the milestone of one type on many sites. Sites
// without that milestone are skipped; per-site failures are collected into
// a *PartialFailureError.
func (s *ActivationService) BulkUpdateMilestone(ctx context.Context, in BulkUpdateInput) (*BulkUpdateResult, error) {
	ctx, span := otel.StartSpan(ctx, "activation.bulk_update")
	defer span.End()
	span.SetAttributes(
		attribute.Int("sites", len(in.SiteIDs)),
		attribute.String("milestone.type", string(in.MilestoneType)),
	)
	log := logger.WithTrace(ctx, s.logger)

	if len(in.SiteIDs) == 0 {
		return nil, invalid("site_ids", "at least one site is required")
	}
	if !in.MilestoneType.IsValid() {
		return nil, invalid("milestone_type", "unknown milestone type %q", in.MilestoneType)
	}
	want := model.UpdateMilestoneInput{Status: in.Status, ActualDate: in.ActualDate}
	if err := validateMilestoneInput(&want, s.now()); err != nil {
		return nil, err
	}

	res := &BulkUpdateResult{Updated: []string{}, Sites: []model.SiteWithMilestones{}}
	failure := &PartialFailureError{}
	for _, siteID := range in.SiteIDs {
		site, err := s.sites.GetSite(ctx, siteID)
		if err != nil {
			failure.Failed = append(failure.Failed, FailedWrite{ID: siteID, Error: storeErr(err, "get site").Error()})
			continue
		}
		m := model.FindMilestone(site.Milestones, in.MilestoneType)
		if m == nil {
			log.Debug("bulk update: site has no such milestone",
				zap.String("site_id", siteID),
				zap.String("milestone_type", string(in.MilestoneType)),
			)
			res.Skipped++
			continue
		}

		upd := model.InputFrom(*m)
		upd.Status = want.Status
		upd.ActualDate = want.ActualDate
		if _, err := s.writeMilestone(ctx, m.ID, upd, repository.SourceBulk); err != nil {
			failure.Failed = append(failure.Failed, FailedWrite{ID: siteID, Error: err.Error()})
			continue
		}
		res.Updated = append(res.Updated, siteID)
		if err := s.recomputeStatus(ctx, siteID); err != nil {
			failure.StatusErrors = append(failure.StatusErrors, FailedWrite{ID: siteID, Error: err.Error()})
		}

		if updated, err := s.sites.GetSite(ctx, siteID); err == nil {
			res.Sites = append(res.Sites, *updated)
		}
	}

	log.Info("bulk milestone update",
		zap.String("milestone_type", string(in.MilestoneType)),
		zap.Int("updated", len(res.Updated)),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", len(failure.Failed)),
		zap.Int("status_errors", len(failure.StatusErrors)),
	)
	if failure.hasFailures() {
		failure.Applied = res.Updated
		span.SetStatus(codes.Error, failure.Error())
		return res, failure
	}
	return res, nil
}

// writeMilestone stores one milestone update. Callers follow every
// successful write with recomputeStatus; the two are reported apart
// because the milestone row stays committed when the status write fails.
func (s *ActivationService) writeMilestone(ctx context.Context, id string, in model.UpdateMilestoneInput, source string) (*model.Milestone, error) {
	m, err := s.milestones.UpdateMilestone(ctx, id, in, source)
	if err != nil {
		return nil, storeErr(err, "update milestone")
	}
	metrics.IncrementMilestoneUpdate(string(m.Status), source)
	return m, nil
}

func (s *ActivationService) recomputeStatus(ctx context.Context, siteID string) error {
	site, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return storeErr(err, "get site")
	}
	status := pipeline.RecomputeSiteStatus(site.Milestones)
	if status == site.Status {
		return nil
	}
	if _, err := s.sites.UpdateSite(ctx, siteID, model.UpdateSiteInput{Status: &status}); err != nil {
		return storeErr(err, "update site status")
	}
	logger.WithTrace(ctx, s.logger).Debug("site status recomputed",
		zap.String("site_id", siteID),
		zap.String("from", string(site.Status)),
		zap.String("to", string(status)),
	)
	return nil
}
