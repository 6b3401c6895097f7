package pipeline

import (
	"errors"
	"time"

	"github.com/sahasand/site-tracker/internal/model"
)

var (
	ErrInvalidStage   = errors.New("unknown pipeline stage")
	ErrCrossStudyMove = errors.New("cannot move sites between studies")
	ErrNoOpMove       = errors.New("site is already in the target stage")
)

type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// MilestoneChange is one milestone write a move implies.
type MilestoneChange struct {
	MilestoneID   string                `json:"milestone_id"`
	MilestoneType model.MilestoneType   `json:"milestone_type"`
	Label         string                `json:"label"`
	FromStatus    model.MilestoneStatus `json:"from_status"`
	ToStatus      model.MilestoneStatus `json:"to_status"`
	ActualDate    *time.Time            `json:"actual_date"`
}

// Input builds the update for the change, keeping planned date and notes.
func (c MilestoneChange) Input(current model.Milestone) model.UpdateMilestoneInput {
	in := model.InputFrom(current)
	in.Status = c.ToStatus
	in.ActualDate = c.ActualDate
	return in
}

// MovePlan is what the confirm step shows before anything is written.
type MovePlan struct {
	SiteID    string            `json:"site_id"`
	StudyID   string            `json:"study_id"`
	From      model.KanbanStage `json:"from"`
	To        model.KanbanStage `json:"to"`
	Direction Direction         `json:"direction"`
	Changes   []MilestoneChange `json:"changes"`
}

// PlanMove computes the milestone side effects of dragging a site from its
// derived stage to target.
//
// Forward moves complete every non-completed milestone in stages
// [current, target) with actual date = effective. Backward moves reset every
// non-pending milestone in stages [target, current] to pending with no
// actual date; the current stage is included because its milestone is what
// put the site there.
func PlanMove(site model.Site, milestones []model.Milestone, targetStudyID string, target model.KanbanStage, effective time.Time) (*MovePlan, error) {
	if !target.IsValid() {
		return nil, ErrInvalidStage
	}
	if targetStudyID != site.StudyID {
		return nil, ErrCrossStudyMove
	}

	current := SiteStage(milestones)
	if current == target {
		return nil, ErrNoOpMove
	}

	plan := &MovePlan{
		SiteID:  site.ID,
		StudyID: site.StudyID,
		From:    current,
		To:      target,
	}

	ci, ti := current.Index(), target.Index()
	var stages []model.KanbanStage
	if ti > ci {
		plan.Direction = Forward
		stages = model.KanbanStageOrder[ci:ti]
	} else {
		plan.Direction = Backward
		stages = model.KanbanStageOrder[ti : ci+1]
	}

	date := truncateDay(effective)
	ordered := make([]model.Milestone, len(milestones))
	copy(ordered, milestones)
	model.SortMilestones(ordered)

	for _, m := range ordered {
		if !inStages(stages, m.MilestoneType) {
			continue
		}
		switch plan.Direction {
		case Forward:
			if m.Status == model.MilestoneCompleted {
				continue
			}
			d := date
			plan.Changes = append(plan.Changes, MilestoneChange{
				MilestoneID:   m.ID,
				MilestoneType: m.MilestoneType,
				Label:         m.MilestoneType.Label(),
				FromStatus:    m.Status,
				ToStatus:      model.MilestoneCompleted,
				ActualDate:    &d,
			})
		case Backward:
			if m.Status == model.MilestonePending {
				continue
			}
			plan.Changes = append(plan.Changes, MilestoneChange{
				MilestoneID:   m.ID,
				MilestoneType: m.MilestoneType,
				Label:         m.MilestoneType.Label(),
				FromStatus:    m.Status,
				ToStatus:      model.MilestonePending,
				ActualDate:    nil,
			})
		}
	}

	return plan, nil
}

func inStages(stages []model.KanbanStage, t model.MilestoneType) bool {
	for _, s := range stages {
		if s.Contains(t) {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ApplyPlan returns a copy of milestones with the plan's changes applied.
// Used to preview the resulting stage and by the in-memory store tests.
func ApplyPlan(milestones []model.Milestone, plan *MovePlan) []model.Milestone {
	out := make([]model.Milestone, len(milestones))
	copy(out, milestones)
	for _, c := range plan.Changes {
		for i := range out {
			if out[i].ID == c.MilestoneID {
				out[i].Status = c.ToStatus
				out[i].ActualDate = c.ActualDate
			}
		}
	}
	return out
}
