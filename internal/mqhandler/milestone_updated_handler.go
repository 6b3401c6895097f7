package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/contracts/mq"
	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/pkg/logger"
	"github.com/sahasand/site-tracker/pkg/metrics"
	"github.com/sahasand/site-tracker/pkg/util"
)

const milestoneActivityHandler = "milestone_activity"

// MilestoneUpdatedHandler writes every milestone.updated event into the
// per-site activity feed.
type MilestoneUpdatedHandler struct {
	activity repository.ActivityStore
	dedup    *util.Deduper
	logger   *zap.Logger
}

func NewMilestoneUpdatedHandler(activity repository.ActivityStore, dedup *util.Deduper, logger *zap.Logger) *MilestoneUpdatedHandler {
	return &MilestoneUpdatedHandler{
		activity: activity,
		dedup:    dedup,
		logger:   logger,
	}
}

func (h *MilestoneUpdatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mq.MilestoneUpdatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal milestone updated payload", zap.Error(err))
		metrics.IncrementActivityEvent("invalid")
		return err
	}
	if p.EventID == "" || p.SiteID == "" || p.MilestoneID == "" {
		log.Error("Milestone updated payload is missing ids", zap.String("event_id", p.EventID))
		metrics.IncrementActivityEvent("invalid")
		return util.Permanent("invalid_payload",
			errors.New("milestone updated payload: missing event, site or milestone id"))
	}

	if h.dedup != nil && !h.dedup.AcquireOnce(ctx, milestoneActivityHandler, p.EventID) {
		metrics.IncrementActivityEvent("duplicate")
		return nil
	}

	entry := &model.MilestoneActivity{
		EventID:       p.EventID,
		SiteID:        p.SiteID,
		StudyID:       p.StudyID,
		MilestoneID:   p.MilestoneID,
		MilestoneType: model.MilestoneType(p.MilestoneType),
		FromStatus:    model.MilestoneStatus(p.FromStatus),
		ToStatus:      model.MilestoneStatus(p.ToStatus),
		ActualDate:    p.ActualDate,
		Source:        p.Source,
		OccurredAt:    p.OccurredAt,
	}
	inserted, err := h.activity.AppendActivity(ctx, entry)
	if err != nil {
		if h.dedup != nil {
			h.dedup.Release(ctx, milestoneActivityHandler, p.EventID)
		}
		log.Error("Failed to append milestone activity",
			zap.String("event_id", p.EventID),
			zap.String("site_id", p.SiteID),
			zap.Error(err),
		)
		metrics.IncrementActivityEvent("failed")
		return err
	}
	if !inserted {
		metrics.IncrementActivityEvent("duplicate")
		return nil
	}

	log.Debug("Milestone activity recorded",
		zap.String("event_id", p.EventID),
		zap.String("site_id", p.SiteID),
		zap.String("milestone_type", p.MilestoneType),
		zap.String("to_status", p.ToStatus),
	)
	metrics.IncrementActivityEvent("recorded")
	return nil
}
