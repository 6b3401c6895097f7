package model

import "time"

// MilestoneActivity is one entry of a site's activation timeline, appended
// by the worker for every milestone.updated event.
type MilestoneActivity struct {
	ID            int64           `json:"id"`
	EventID       string          `json:"event_id"`
	SiteID        string          `json:"site_id"`
	StudyID       string          `json:"study_id"`
	MilestoneID   string          `json:"milestone_id"`
	MilestoneType MilestoneType   `json:"milestone_type"`
	FromStatus    MilestoneStatus `json:"from_status"`
	ToStatus      MilestoneStatus `json:"to_status"`
	ActualDate    *time.Time      `json:"actual_date"`
	Source        string          `json:"source"` // edit / move / bulk
	OccurredAt    time.Time       `json:"occurred_at"`
}
