package mq

import "time"

// Routing keys on the activation exchange.
const (
	RoutingKeySiteCreated      = "site.created"
	RoutingKeyMilestoneUpdated = "milestone.updated"
)

// SiteCreatedPayload is published when a site and its eight milestones are
// created.
type SiteCreatedPayload struct {
	EventID    string    `json:"event_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	SiteID     string    `json:"site_id"`
	StudyID    string    `json:"study_id"`
	SiteNumber string    `json:"site_number"`
	CreatedAt  time.Time `json:"created_at"`
}

// MilestoneUpdatedPayload is published for every milestone write. Source
// is "edit", "move" or "bulk".
type MilestoneUpdatedPayload struct {
	EventID       string     `json:"event_id"`
	TraceID       string     `json:"trace_id,omitempty"`
	SiteID        string     `json:"site_id"`
	StudyID       string     `json:"study_id"`
	MilestoneID   string     `json:"milestone_id"`
	MilestoneType string     `json:"milestone_type"`
	FromStatus    string     `json:"from_status"`
	ToStatus      string     `json:"to_status"`
	ActualDate    *time.Time `json:"actual_date"`
	Source        string     `json:"source"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
