package model_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sahasand/site-tracker/internal/model"
)

func TestCompareSiteNumbers(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},
		{"10", "2", 1},
		{"A-9", "A-10", -1},
		{"a", "B", -1},
		{"001", "001", 0},
		{"007", "7", -1},
		{"10", "10a", -1},
		{"SITE-100", "SITE-99", 1},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_vs_%s", tc.a, tc.b), func(t *testing.T) {
			assert.Equal(t, tc.want, model.CompareSiteNumbers(tc.a, tc.b))
		})
	}
}

func TestSortSiteViews(t *testing.T) {
	var sites []model.SiteWithMilestones
	for _, n := range []string{"10", "2", "A-10", "1", "A-9"} {
		sites = append(sites, model.SiteWithMilestones{Site: model.Site{SiteNumber: n}})
	}
	model.SortSiteViews(sites)

	got := make([]string, 0, len(sites))
	for _, s := range sites {
		got = append(got, s.SiteNumber)
	}
	assert.Equal(t, []string{"1", "2", "10", "A-9", "A-10"}, got)
}

func TestNewMilestones(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	ms := model.NewMilestones("site-1", func() string { n++; return fmt.Sprintf("m%d", n) }, now)

	assert.Len(t, ms, len(model.MilestoneOrder))
	for i, m := range ms {
		assert.Equal(t, model.MilestoneOrder[i], m.MilestoneType)
		assert.Equal(t, model.MilestonePending, m.Status)
		assert.Equal(t, "site-1", m.SiteID)
		assert.Equal(t, now, m.CreatedAt)
		assert.Nil(t, m.ActualDate)
	}
	assert.Equal(t, "m1", ms[0].ID)
}

func TestStageMembership(t *testing.T) {
	assert.True(t, model.StageContracts.Contains(model.ContractExecuted))
	assert.False(t, model.StageContracts.Contains(model.SIVScheduled))
	assert.Equal(t, 2, model.StageSIV.Index())
	assert.Equal(t, -1, model.KanbanStage("archive").Index())
	assert.False(t, model.KanbanStage("archive").IsValid())

	covered := 0
	for _, st := range model.KanbanStageOrder {
		covered += len(model.KanbanStages[st].Milestones)
	}
	assert.Equal(t, len(model.MilestoneOrder), covered)
}

func TestMilestoneTypeLabels(t *testing.T) {
	assert.Equal(t, "SIV Completed", model.SIVCompleted.Label())
	assert.Equal(t, 7, model.SiteActivated.Index())
	assert.False(t, model.MilestoneType("unknown").IsValid())
	assert.Equal(t, "unknown", model.MilestoneType("unknown").Label())
}

func TestTierForScore(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	assert.Equal(t, model.TierUnknown, model.TierForScore(nil))
	assert.Equal(t, model.TierHigh, model.TierForScore(score(80)))
	assert.Equal(t, model.TierMedium, model.TierForScore(score(79.9)))
	assert.Equal(t, model.TierMedium, model.TierForScore(score(60)))
	assert.Equal(t, model.TierLow, model.TierForScore(score(59)))
}

func TestIsKnownCountry(t *testing.T) {
	assert.True(t, model.IsKnownCountry("Germany"))
	assert.True(t, model.IsKnownCountry(model.CountryOther))
	assert.False(t, model.IsKnownCountry("Atlantis"))
}
