// Package pipeline holds the pure activation-pipeline computations: stage
// derivation, move planning, stuck-site detection, analytics and portfolio
// roll-ups. Nothing here touches storage; callers pass snapshots and "now".
package pipeline

import (
	"time"

	"github.com/sahasand/site-tracker/internal/model"
)

const day = 24 * time.Hour

// SiteStage returns the kanban column a site currently occupies.
//
// A completed site_activated milestone is terminal regardless of the rest.
// Otherwise the site sits in the first stage that still has a milestone
// which is not completed. regulatory is the fallback, which also covers a
// site with no milestone rows at all.
func SiteStage(milestones []model.Milestone) model.KanbanStage {
	if m := model.FindMilestone(milestones, model.SiteActivated); m != nil && m.Status == model.MilestoneCompleted {
		return model.StageActivated
	}

	for _, stage := range model.KanbanStageOrder {
		for _, m := range milestones {
			if stage.Contains(m.MilestoneType) && m.Status != model.MilestoneCompleted {
				return stage
			}
		}
	}

	return model.StageRegulatory
}

// StageProgress is the fraction of kanban stages whose milestones are all
// completed. It only drives card visuals.
func StageProgress(milestones []model.Milestone) float64 {
	done := 0
	for _, stage := range model.KanbanStageOrder {
		if stageComplete(milestones, stage) {
			done++
		}
	}
	return float64(done) / float64(len(model.KanbanStageOrder))
}

func stageComplete(milestones []model.Milestone, stage model.KanbanStage) bool {
	for _, t := range model.KanbanStages[stage].Milestones {
		m := model.FindMilestone(milestones, t)
		if m == nil || m.Status != model.MilestoneCompleted {
			return false
		}
	}
	return true
}

// RecomputeSiteStatus derives the stored site status from its milestones.
func RecomputeSiteStatus(milestones []model.Milestone) model.SiteStatus {
	if m := model.FindMilestone(milestones, model.SiteActivated); m != nil && m.Status == model.MilestoneCompleted {
		return model.SiteActive
	}
	for _, m := range milestones {
		if m.Status == model.MilestoneInProgress || m.Status == model.MilestoneCompleted {
			return model.SiteActivating
		}
	}
	return model.SitePlanned
}

// DaysSince returns whole days elapsed from t to now, floored.
func DaysSince(t, now time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		return -int((-d + day - 1) / day)
	}
	return int(d / day)
}

// PipelineSite is a site's position on the board plus the stage clock.
type PipelineSite struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	SiteNumber  string            `json:"site_number"`
	Status      model.SiteStatus  `json:"status"`
	Stage       model.KanbanStage `json:"stage"`
	Progress    float64           `json:"progress"`
	DaysInStage int               `json:"days_in_stage"`
	IsStuck     bool              `json:"is_stuck"`
}

// DescribePipelineSite places a site on the board. DaysInStage is measured
// from the updated_at of the earliest in-progress milestone, which is the
// only stage clock the data model has.
func DescribePipelineSite(s model.SiteWithMilestones, now time.Time, stuckThreshold int) PipelineSite {
	ps := PipelineSite{
		ID:         s.ID,
		Name:       s.Name,
		SiteNumber: s.SiteNumber,
		Status:     s.Status,
		Stage:      SiteStage(s.Milestones),
		Progress:   StageProgress(s.Milestones),
	}

	var current *model.Milestone
	for i := range s.Milestones {
		m := &s.Milestones[i]
		if m.Status != model.MilestoneInProgress {
			continue
		}
		if current == nil || m.MilestoneType.Index() < current.MilestoneType.Index() {
			current = m
		}
	}
	if current != nil {
		ps.DaysInStage = DaysSince(current.UpdatedAt, now)
	}
	ps.IsStuck = current != nil && ps.DaysInStage >= stuckThreshold
	return ps
}

// BoardColumn is one kanban column with its sites.
type BoardColumn struct {
	Stage    model.KanbanStage `json:"stage"`
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle"`
	Sites    []PipelineSite    `json:"sites"`
}

// Board groups sites into the five kanban columns in board order. Sites keep
// the order they were given in.
func Board(sites []model.SiteWithMilestones, now time.Time, stuckThreshold int) []BoardColumn {
	byStage := make(map[model.KanbanStage][]PipelineSite, len(model.KanbanStageOrder))
	for _, s := range sites {
		ps := DescribePipelineSite(s, now, stuckThreshold)
		byStage[ps.Stage] = append(byStage[ps.Stage], ps)
	}

	cols := make([]BoardColumn, 0, len(model.KanbanStageOrder))
	for _, stage := range model.KanbanStageOrder {
		info := model.KanbanStages[stage]
		col := BoardColumn{
			Stage:    stage,
			Title:    info.Title,
			Subtitle: info.Subtitle,
			Sites:    byStage[stage],
		}
		if col.Sites == nil {
			col.Sites = []PipelineSite{}
		}
		cols = append(cols, col)
	}
	return cols
}
