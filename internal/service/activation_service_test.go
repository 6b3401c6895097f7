package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contracts "github.com/sahasand/site-tracker/contracts/mq"
	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/pipeline"
	"github.com/sahasand/site-tracker/internal/service"
)

func (f *fixture) activation() *service.ActivationService {
	return service.NewActivationService(f.stores.Sites, f.stores.Milestones, f.log).WithClock(clock)
}

func statuses(ms []model.Milestone) map[model.MilestoneType]model.MilestoneStatus {
	out := make(map[model.MilestoneType]model.MilestoneStatus, len(ms))
	for _, m := range ms {
		out[m.MilestoneType] = m.Status
	}
	return out
}

func TestPreviewMove_WritesNothing(t *testing.T) {
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")

	preview, err := f.activation().PreviewMove(context.Background(), site.ID, st.ID, model.StageSIV)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Forward, preview.Plan.Direction)
	assert.Len(t, preview.Plan.Changes, 4)
	assert.Equal(t, model.StageSIV, preview.ResultingStage)

	after, err := f.mem.GetSite(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SitePlanned, after.Status)
	for _, m := range after.Milestones {
		assert.Equal(t, model.MilestonePending, m.Status)
	}
}

func TestMoveSite_Forward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")

	res, err := f.activation().MoveSite(ctx, site.ID, st.ID, model.StageSIV)
	require.NoError(t, err)
	assert.Equal(t, model.StageRegulatory, res.Plan.From)
	assert.Equal(t, model.StageSIV, pipeline.SiteStage(res.Site.Milestones))
	assert.Equal(t, model.SiteActivating, res.Site.Status)

	got := statuses(res.Site.Milestones)
	assert.Equal(t, model.MilestoneCompleted, got[model.RegulatorySubmitted])
	assert.Equal(t, model.MilestoneCompleted, got[model.ContractExecuted])
	assert.Equal(t, model.MilestonePending, got[model.SIVScheduled])

	executed := model.FindMilestone(res.Site.Milestones, model.ContractExecuted)
	require.NotNil(t, executed.ActualDate)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), *executed.ActualDate)

	events, err := f.outbox.GetPendingEvents(ctx, 20)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for _, e := range events[1:] {
		assert.Equal(t, contracts.RoutingKeyMilestoneUpdated, e.RoutingKey)
	}
}

func TestMoveSite_ToActivatedLeavesFinalMilestone(t *testing.T) {
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")

	res, err := f.activation().MoveSite(context.Background(), site.ID, st.ID, model.StageActivated)
	require.NoError(t, err)
	assert.Len(t, res.Plan.Changes, 7)
	assert.Equal(t, model.MilestonePending, statuses(res.Site.Milestones)[model.SiteActivated])
	assert.Equal(t, model.SiteActivating, res.Site.Status)
}

func TestMoveSite_Backward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")
	f.completeThrough(t, site, model.SIVCompleted, daysAgo(3))

	res, err := f.activation().MoveSite(ctx, site.ID, st.ID, model.StageContracts)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Backward, res.Plan.Direction)
	assert.Equal(t, model.StageEDC, res.Plan.From)
	require.Len(t, res.Plan.Changes, 4)

	got := statuses(res.Site.Milestones)
	assert.Equal(t, model.MilestoneCompleted, got[model.RegulatoryApproved])
	assert.Equal(t, model.MilestonePending, got[model.ContractSent])
	assert.Equal(t, model.MilestonePending, got[model.SIVCompleted])
	assert.Nil(t, model.FindMilestone(res.Site.Milestones, model.ContractSent).ActualDate)
	assert.Equal(t, model.StageContracts, pipeline.SiteStage(res.Site.Milestones))
}

func TestMoveSite_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	other := f.study(t, "CARD")
	site := f.site(t, st.ID, "001")
	svc := f.activation()

	_, err := svc.MoveSite(ctx, site.ID, other.ID, model.StageSIV)
	assert.ErrorIs(t, err, pipeline.ErrCrossStudyMove)
	assert.True(t, service.IsValidation(err))

	_, err = svc.MoveSite(ctx, site.ID, st.ID, model.StageRegulatory)
	assert.ErrorIs(t, err, pipeline.ErrNoOpMove)

	_, err = svc.MoveSite(ctx, site.ID, st.ID, model.KanbanStage("launch"))
	assert.ErrorIs(t, err, pipeline.ErrInvalidStage)

	_, err = svc.MoveSite(ctx, "missing", st.ID, model.StageSIV)
	assert.ErrorIs(t, err, service.ErrNotFound)

	events, err := f.outbox.GetPendingEvents(ctx, 20)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMoveSite_PartialFailureKeepsAppliedWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")
	approved := model.FindMilestone(site.Milestones, model.RegulatoryApproved)

	milestones := &failingMilestones{MilestoneStore: f.stores.Milestones, fail: map[string]bool{approved.ID: true}}
	svc := service.NewActivationService(f.stores.Sites, milestones, f.log).WithClock(clock)

	res, err := svc.MoveSite(ctx, site.ID, st.ID, model.StageSIV)
	require.Error(t, err)

	var partial *service.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Len(t, partial.Applied, 3)
	require.Len(t, partial.Failed, 1)
	assert.Equal(t, approved.ID, partial.Failed[0].ID)
	assert.Contains(t, err.Error(), "1 of 4 writes failed")

	require.NotNil(t, res)
	got := statuses(res.Site.Milestones)
	assert.Equal(t, model.MilestoneCompleted, got[model.RegulatorySubmitted])
	assert.Equal(t, model.MilestonePending, got[model.RegulatoryApproved])
	assert.Equal(t, model.MilestoneCompleted, got[model.ContractExecuted])
	assert.Equal(t, model.SiteActivating, res.Site.Status)
}

func TestMoveSite_StatusWriteFailureKeepsMilestonesApplied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")

	sites := &failingStatusWrites{SiteStore: f.stores.Sites}
	svc := service.NewActivationService(sites, f.stores.Milestones, f.log).WithClock(clock)

	res, err := svc.MoveSite(ctx, site.ID, st.ID, model.StageContracts)
	var partial *service.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Len(t, partial.Applied, 2)
	assert.Empty(t, partial.Failed)
	require.Len(t, partial.StatusErrors, 1)
	assert.Equal(t, site.ID, partial.StatusErrors[0].ID)
	assert.Contains(t, err.Error(), "site status not updated: "+site.ID)
	assert.NotContains(t, err.Error(), "writes failed")

	require.NotNil(t, res)
	stored, err := f.mem.GetSite(ctx, site.ID)
	require.NoError(t, err)
	got := statuses(stored.Milestones)
	assert.Equal(t, model.MilestoneCompleted, got[model.RegulatorySubmitted])
	assert.Equal(t, model.MilestoneCompleted, got[model.RegulatoryApproved])
	assert.Equal(t, model.SitePlanned, stored.Status)
}

func TestUpdateMilestone_StatusWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")

	sites := &failingStatusWrites{SiteStore: f.stores.Sites}
	svc := service.NewActivationService(sites, f.stores.Milestones, f.log).WithClock(clock)

	submitted := model.FindMilestone(site.Milestones, model.RegulatorySubmitted)
	res, err := svc.UpdateMilestone(ctx, submitted.ID, model.UpdateMilestoneInput{Status: model.MilestoneInProgress})
	var partial *service.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{submitted.ID}, partial.Applied)
	assert.Empty(t, partial.Failed)
	require.Len(t, partial.StatusErrors, 1)
	assert.Equal(t, site.ID, partial.StatusErrors[0].ID)

	require.NotNil(t, res)
	assert.Equal(t, model.MilestoneInProgress, res.Milestone.Status)
	assert.Equal(t, model.SitePlanned, res.Site.Status)
}

func TestBulkUpdateMilestone_StatusWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	a := f.site(t, st.ID, "001")

	sites := &failingStatusWrites{SiteStore: f.stores.Sites}
	svc := service.NewActivationService(sites, f.stores.Milestones, f.log).WithClock(clock)

	res, err := svc.BulkUpdateMilestone(ctx, service.BulkUpdateInput{
		SiteIDs:       []string{a.ID},
		MilestoneType: model.ContractSent,
		Status:        model.MilestoneInProgress,
	})
	var partial *service.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{a.ID}, partial.Applied)
	assert.Empty(t, partial.Failed)
	require.Len(t, partial.StatusErrors, 1)

	require.NotNil(t, res)
	assert.Equal(t, []string{a.ID}, res.Updated)
	require.Len(t, res.Sites, 1)
	assert.Equal(t, model.MilestoneInProgress, statuses(res.Sites[0].Milestones)[model.ContractSent])
}

func TestUpdateMilestone_RecomputesStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")
	svc := f.activation()

	activated := model.FindMilestone(site.Milestones, model.SiteActivated)
	res, err := svc.UpdateMilestone(ctx, activated.ID, model.UpdateMilestoneInput{Status: model.MilestoneCompleted})
	require.NoError(t, err)
	require.NotNil(t, res.Milestone.ActualDate)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), *res.Milestone.ActualDate)
	assert.Equal(t, model.SiteActive, res.Site.Status)
	assert.Equal(t, model.StageActivated, pipeline.SiteStage(res.Site.Milestones))

	res, err = svc.UpdateMilestone(ctx, activated.ID, model.UpdateMilestoneInput{Status: model.MilestonePending})
	require.NoError(t, err)
	assert.Equal(t, model.SitePlanned, res.Site.Status)

	submitted := model.FindMilestone(site.Milestones, model.RegulatorySubmitted)
	res, err = svc.UpdateMilestone(ctx, submitted.ID, model.UpdateMilestoneInput{Status: model.MilestoneInProgress})
	require.NoError(t, err)
	assert.Equal(t, model.SiteActivating, res.Site.Status)

	_, err = svc.UpdateMilestone(ctx, submitted.ID, model.UpdateMilestoneInput{Status: "done"})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.UpdateMilestone(ctx, "missing", model.UpdateMilestoneInput{Status: model.MilestonePending})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestBulkUpdateMilestone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	a := f.site(t, st.ID, "001")
	b := f.site(t, st.ID, "002")

	sites := &missingMilestone{SiteStore: f.stores.Sites, siteID: b.ID, hide: model.ContractSent}
	svc := service.NewActivationService(sites, f.stores.Milestones, f.log).WithClock(clock)

	in := service.BulkUpdateInput{
		SiteIDs:       []string{a.ID, b.ID, "missing"},
		MilestoneType: model.ContractSent,
		Status:        model.MilestoneInProgress,
	}
	res, err := svc.BulkUpdateMilestone(ctx, in)

	var partial *service.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{a.ID}, partial.Applied)
	require.Len(t, partial.Failed, 1)
	assert.Equal(t, "missing", partial.Failed[0].ID)

	require.NotNil(t, res)
	assert.Equal(t, []string{a.ID}, res.Updated)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Sites, 1)
	assert.Equal(t, model.SiteActivating, res.Sites[0].Status)

	in.SiteIDs = []string{a.ID}
	in.Status = model.MilestoneCompleted
	res, err = svc.BulkUpdateMilestone(ctx, in)
	require.NoError(t, err)
	m := model.FindMilestone(res.Sites[0].Milestones, model.ContractSent)
	assert.Equal(t, model.MilestoneCompleted, m.Status)
	require.NotNil(t, m.ActualDate)

	_, err = svc.BulkUpdateMilestone(ctx, service.BulkUpdateInput{SiteIDs: []string{a.ID}, MilestoneType: "nope", Status: model.MilestonePending})
	assert.ErrorIs(t, err, service.ErrValidation)
}
