package model

import "time"

type MilestoneType string

const (
	RegulatorySubmitted MilestoneType = "regulatory_submitted"
	RegulatoryApproved  MilestoneType = "regulatory_approved"
	ContractSent        MilestoneType = "contract_sent"
	ContractExecuted    MilestoneType = "contract_executed"
	SIVScheduled        MilestoneType = "siv_scheduled"
	SIVCompleted        MilestoneType = "siv_completed"
	EDCTrainingComplete MilestoneType = "edc_training_complete"
	SiteActivated       MilestoneType = "site_activated"
)

// MilestoneOrder is the global activation order of milestone types.
var MilestoneOrder = []MilestoneType{
	RegulatorySubmitted,
	RegulatoryApproved,
	ContractSent,
	ContractExecuted,
	SIVScheduled,
	SIVCompleted,
	EDCTrainingComplete,
	SiteActivated,
}

var MilestoneLabels = map[MilestoneType]string{
	RegulatorySubmitted: "Regulatory Submitted",
	RegulatoryApproved:  "Regulatory Approved",
	ContractSent:        "Contract Sent",
	ContractExecuted:    "Contract Executed",
	SIVScheduled:        "SIV Scheduled",
	SIVCompleted:        "SIV Completed",
	EDCTrainingComplete: "EDC Training Complete",
	SiteActivated:       "Site Activated",
}

func (t MilestoneType) IsValid() bool {
	_, ok := MilestoneLabels[t]
	return ok
}

func (t MilestoneType) Label() string {
	if l, ok := MilestoneLabels[t]; ok {
		return l
	}
	return string(t)
}

// Index returns the position of t in MilestoneOrder, or -1.
func (t MilestoneType) Index() int {
	for i, mt := range MilestoneOrder {
		if mt == t {
			return i
		}
	}
	return -1
}

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
)

func (s MilestoneStatus) IsValid() bool {
	switch s {
	case MilestonePending, MilestoneInProgress, MilestoneCompleted:
		return true
	}
	return false
}

// Milestone is one SiteActivationMilestone row. Every site owns exactly one
// row per MilestoneType.
type Milestone struct {
	ID            string          `json:"id"`
	SiteID        string          `json:"site_id"`
	MilestoneType MilestoneType   `json:"milestone_type"`
	Status        MilestoneStatus `json:"status"`
	PlannedDate   *time.Time      `json:"planned_date"`
	ActualDate    *time.Time      `json:"actual_date"`
	Notes         *string         `json:"notes"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// UpdateMilestoneInput is a full replacement of the mutable milestone fields.
type UpdateMilestoneInput struct {
	Status      MilestoneStatus `json:"status"`
	PlannedDate *time.Time      `json:"planned_date"`
	ActualDate  *time.Time      `json:"actual_date"`
	Notes       *string         `json:"notes"`
}

// InputFrom returns an update input that keeps every field of m.
func InputFrom(m Milestone) UpdateMilestoneInput {
	return UpdateMilestoneInput{
		Status:      m.Status,
		PlannedDate: m.PlannedDate,
		ActualDate:  m.ActualDate,
		Notes:       m.Notes,
	}
}

// FindMilestone returns the milestone of type t, or nil.
func FindMilestone(ms []Milestone, t MilestoneType) *Milestone {
	for i := range ms {
		if ms[i].MilestoneType == t {
			return &ms[i]
		}
	}
	return nil
}

// SortMilestones orders ms by MilestoneOrder in place.
func SortMilestones(ms []Milestone) {
	// insertion sort, there are at most eight rows per site
	for i := 1; i < len(ms); i++ {
		for j := i; j > 0 && ms[j].MilestoneType.Index() < ms[j-1].MilestoneType.Index(); j-- {
			ms[j], ms[j-1] = ms[j-1], ms[j]
		}
	}
}
