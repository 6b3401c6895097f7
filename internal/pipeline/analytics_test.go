package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/pipeline"
)

func dated(mt model.MilestoneType, status model.MilestoneStatus, plannedDay, actualDay int) model.Milestone {
	m := model.Milestone{MilestoneType: mt, Status: status}
	if plannedDay > 0 {
		m.PlannedDate = date(2025, 1, plannedDay)
	}
	if actualDay > 0 {
		m.ActualDate = date(2025, 1, actualDay)
	}
	return m
}

func TestCycleTimes(t *testing.T) {
	cts := pipeline.CycleTimes([]model.Milestone{
		dated(model.RegulatorySubmitted, model.MilestoneCompleted, 10, 13),
		dated(model.ContractSent, model.MilestoneCompleted, 10, 12),
		dated(model.ContractSent, model.MilestoneCompleted, 10, 9),
		dated(model.ContractSent, model.MilestoneCompleted, 10, 17),
		dated(model.ContractSent, model.MilestoneInProgress, 10, 30),
		dated(model.ContractExecuted, model.MilestoneCompleted, 0, 20),
	})

	require.Len(t, cts, 8)
	assert.Equal(t, model.RegulatorySubmitted, cts[0].Type)
	assert.Equal(t, "Regulatory Submitted", cts[0].Label)

	reg := cts[0]
	require.NotNil(t, reg.AvgDays)
	assert.Equal(t, 3, *reg.AvgDays)
	assert.Equal(t, 3, *reg.MinDays)
	assert.Equal(t, 3, *reg.MaxDays)
	assert.Equal(t, 1, reg.CompletedCount)

	sent := cts[2]
	assert.Equal(t, 3, sent.CompletedCount)
	assert.Equal(t, 3, *sent.AvgDays) // (2 - 1 + 7) / 3 = 2.67
	assert.Equal(t, -1, *sent.MinDays)
	assert.Equal(t, 7, *sent.MaxDays)

	executed := cts[3]
	assert.Nil(t, executed.AvgDays)
	assert.Nil(t, executed.MinDays)
	assert.Nil(t, executed.MaxDays)
	assert.Equal(t, 0, executed.CompletedCount)
}

func TestCycleTimes_RoundsHalfUp(t *testing.T) {
	cts := pipeline.CycleTimes([]model.Milestone{
		dated(model.SIVScheduled, model.MilestoneCompleted, 10, 8),
		dated(model.SIVScheduled, model.MilestoneCompleted, 10, 9),
	})
	// mean of -2 and -1 is -1.5, which rounds toward +inf
	assert.Equal(t, -1, *cts[4].AvgDays)
}

func siteWith(id string, createdDay int, ms ...model.Milestone) model.SiteWithMilestones {
	s := site(id, "st1", model.SiteActivating)
	s.CreatedAt = *date(2025, 1, createdDay)
	return model.SiteWithMilestones{Site: s, Milestones: ms}
}

func TestStageDurations(t *testing.T) {
	sites := []model.SiteWithMilestones{
		siteWith("a", 1,
			dated(model.RegulatoryApproved, model.MilestoneCompleted, 0, 11),
			dated(model.ContractExecuted, model.MilestoneCompleted, 0, 25),
			dated(model.SIVCompleted, model.MilestoneCompleted, 0, 20),
		),
		siteWith("b", 1,
			dated(model.RegulatoryApproved, model.MilestoneCompleted, 0, 21),
		),
		siteWith("c", 5),
	}

	ds := pipeline.StageDurations(sites)
	require.Len(t, ds, 4)

	reg := ds[0]
	assert.Equal(t, model.AnalyticsRegulatory, reg.Stage)
	assert.Equal(t, 2, reg.CompletedCount)
	assert.Equal(t, 15, *reg.AvgDays)
	assert.Equal(t, 10, *reg.MinDays)
	assert.Equal(t, 20, *reg.MaxDays)

	contracts := ds[1]
	assert.Equal(t, 1, contracts.CompletedCount)
	assert.Equal(t, 14, *contracts.AvgDays)

	// siv_completed before contract_executed is negative and dropped
	assert.Equal(t, 0, ds[2].CompletedCount)
	assert.Nil(t, ds[2].AvgDays)
	assert.Equal(t, "Go-Live", ds[3].Label)
	assert.Nil(t, ds[3].AvgDays)
}

func intp(v int) *int { return &v }

func TestStageInsight(t *testing.T) {
	assert.Equal(t, "", pipeline.StageInsight([]pipeline.StageDuration{{Label: "Regulatory"}}))

	got := pipeline.StageInsight([]pipeline.StageDuration{
		{Label: "Regulatory", AvgDays: intp(30)},
		{Label: "Contracts", AvgDays: intp(45)},
		{Label: "Site Initiation", AvgDays: intp(15)},
		{Label: "Go-Live"},
	})
	assert.Equal(t, "Contracts is your slowest stage at 45 days, 50% of total activation time.", got)

	one := pipeline.StageInsight([]pipeline.StageDuration{{Label: "Regulatory", AvgDays: intp(0), CompletedCount: 1}})
	assert.Equal(t, "Regulatory averages 0 days across 1 site.", one)

	zeros := pipeline.StageInsight([]pipeline.StageDuration{
		{Label: "Regulatory", AvgDays: intp(0), CompletedCount: 2},
		{Label: "Contracts", AvgDays: intp(0), CompletedCount: 2},
	})
	assert.Equal(t, "Sites activate in 0 days on average.", zeros)
}

func stuckAt(siteID, label string, days int) pipeline.StuckSite {
	return pipeline.StuckSite{SiteID: siteID, SiteNumber: siteID, MilestoneLabel: label, DaysStuck: days}
}

func TestFindBottleneck(t *testing.T) {
	b := pipeline.FindBottleneck([]pipeline.StuckSite{
		stuckAt("1", "Contract Sent", 30),
		stuckAt("2", "SIV Scheduled", 20),
		stuckAt("3", "Contract Sent", 15),
	}, nil)
	require.NotNil(t, b)
	assert.Equal(t, "Contract Sent", b.Label)
	assert.Equal(t, "2 sites stuck at this stage", b.Reason)

	cts := []pipeline.CycleTime{
		{Label: "Regulatory Approved", AvgDays: intp(4)},
		{Label: "Contract Executed", AvgDays: intp(9)},
		{Label: "SIV Completed"},
	}
	b = pipeline.FindBottleneck([]pipeline.StuckSite{stuckAt("1", "Contract Sent", 30)}, cts)
	require.NotNil(t, b)
	assert.Equal(t, "Contract Executed", b.Label)
	assert.Equal(t, "avg +9d vs plan", b.Reason)

	assert.Nil(t, pipeline.FindBottleneck(nil, []pipeline.CycleTime{{Label: "X", AvgDays: intp(5)}}))
}

func TestBuildStudyPulse(t *testing.T) {
	sites := []model.Site{
		site("1", "st1", model.SiteActive),
		site("2", "st1", model.SiteActivating),
		site("3", "st1", model.SitePlanned),
		site("4", "st1", model.SiteOnHold),
	}

	calm := pipeline.BuildStudyPulse(sites, nil, nil)
	assert.Equal(t, pipeline.PulseOnTrack, calm.Health)
	assert.Equal(t, 4, calm.SitesTotal)
	assert.Equal(t, 1, calm.SitesActive)
	assert.Equal(t, 1, calm.SitesActivating)
	assert.Equal(t, 1, calm.SitesPlanned)
	assert.Equal(t, "No sites currently stuck. 1 of 4 sites activated, 3 remaining.", calm.Narrative)

	one := pipeline.BuildStudyPulse(sites, nil, []pipeline.StuckSite{stuckAt("2", "Contract Sent", 18)})
	assert.Equal(t, pipeline.PulseAtRisk, one.Health)
	assert.Equal(t, "1 site stuck in Contract Sent for 18 days. 1 of 4 sites activated, 3 remaining.", one.Narrative)

	stuck := []pipeline.StuckSite{
		stuckAt("1", "Contract Sent", 30),
		stuckAt("2", "SIV Scheduled", 25),
		stuckAt("3", "Contract Sent", 20),
		stuckAt("4", "Contract Sent", 19),
		stuckAt("5", "SIV Scheduled", 18),
		stuckAt("6", "Regulatory Approved", 14),
	}
	many := pipeline.BuildStudyPulse(sites, nil, stuck)
	assert.Equal(t, pipeline.PulseCritical, many.Health)
	assert.Len(t, many.NeedsAttention, 5)
	require.NotNil(t, many.Bottleneck)
	assert.Equal(t, "Contract Sent", many.Bottleneck.Label)
	assert.Equal(t, "6 sites stuck (3 in Contract Sent, 2 in SIV Scheduled, 1 in Regulatory Approved). 1 of 4 sites activated, 3 remaining.", many.Narrative)
}

func TestBuildStudyPulse_BottleneckNarrativeWithoutStuck(t *testing.T) {
	sites := []model.Site{site("1", "st1", model.SiteActivating)}
	p := pipeline.BuildStudyPulse(sites, []pipeline.CycleTime{{Label: "Contract Executed", AvgDays: intp(12)}}, nil)
	assert.Equal(t, "No sites currently stuck. Contract Executed running avg +12d vs plan.", p.Narrative)
}
