package pipeline_test

import (
	"fmt"
	"time"

	"github.com/sahasand/site-tracker/internal/model"
)

var now = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * 24 * time.Hour)
}

// milestones builds the eight rows of a site with the given statuses; types
// not listed are pending.
func milestones(siteID string, statuses map[model.MilestoneType]model.MilestoneStatus) []model.Milestone {
	out := make([]model.Milestone, 0, len(model.MilestoneOrder))
	for i, t := range model.MilestoneOrder {
		st, ok := statuses[t]
		if !ok {
			st = model.MilestonePending
		}
		out = append(out, model.Milestone{
			ID:            fmt.Sprintf("%s-m%d", siteID, i+1),
			SiteID:        siteID,
			MilestoneType: t,
			Status:        st,
			CreatedAt:     daysAgo(60),
			UpdatedAt:     daysAgo(1),
		})
	}
	return out
}

// completedThrough marks every milestone up to and including t completed.
func completedThrough(t model.MilestoneType) map[model.MilestoneType]model.MilestoneStatus {
	out := map[model.MilestoneType]model.MilestoneStatus{}
	for _, mt := range model.MilestoneOrder {
		out[mt] = model.MilestoneCompleted
		if mt == t {
			break
		}
	}
	return out
}

func site(id, studyID string, status model.SiteStatus) model.Site {
	return model.Site{
		ID:         id,
		StudyID:    studyID,
		SiteNumber: id,
		Name:       "Site " + id,
		Country:    "Germany",
		Status:     status,
		CreatedAt:  daysAgo(90),
	}
}
