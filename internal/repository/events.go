package repository

import (
	"context"

	"github.com/google/uuid"

	contracts "github.com/sahasand/site-tracker/contracts/mq"
	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/pkg/trace"
)

func siteCreatedEvent(ctx context.Context, s model.Site) contracts.SiteCreatedPayload {
	return contracts.SiteCreatedPayload{
		EventID:    uuid.NewString(),
		TraceID:    trace.FromContext(ctx),
		SiteID:     s.ID,
		StudyID:    s.StudyID,
		SiteNumber: s.SiteNumber,
		CreatedAt:  s.CreatedAt,
	}
}

func milestoneUpdatedEvent(ctx context.Context, studyID string, before, after model.Milestone, source string) contracts.MilestoneUpdatedPayload {
	return contracts.MilestoneUpdatedPayload{
		EventID:       uuid.NewString(),
		TraceID:       trace.FromContext(ctx),
		SiteID:        after.SiteID,
		StudyID:       studyID,
		MilestoneID:   after.ID,
		MilestoneType: string(after.MilestoneType),
		FromStatus:    string(before.Status),
		ToStatus:      string(after.Status),
		ActualDate:    after.ActualDate,
		Source:        source,
		OccurredAt:    after.UpdatedAt,
	}
}
