package model

import "time"

type StudyPhase string

const (
	PhaseI   StudyPhase = "I"
	PhaseII  StudyPhase = "II"
	PhaseIII StudyPhase = "III"
	PhaseIV  StudyPhase = "IV"
)

func (p StudyPhase) IsValid() bool {
	switch p {
	case PhaseI, PhaseII, PhaseIII, PhaseIV:
		return true
	}
	return false
}

type StudyStatus string

const (
	StudyActive    StudyStatus = "active"
	StudyCompleted StudyStatus = "completed"
	StudyOnHold    StudyStatus = "on_hold"
)

func (s StudyStatus) IsValid() bool {
	switch s {
	case StudyActive, StudyCompleted, StudyOnHold:
		return true
	}
	return false
}

type Study struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	ProtocolNumber      string      `json:"protocol_number"`
	SponsorName         string      `json:"sponsor_name"`
	Phase               StudyPhase  `json:"phase"`
	Status              StudyStatus `json:"status"`
	TargetEnrollment    int         `json:"target_enrollment"`
	EnrollmentStartDate *time.Time  `json:"enrollment_start_date"`
	PlannedEndDate      *time.Time  `json:"planned_end_date"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

type CreateStudyInput struct {
	Name                string     `json:"name"`
	ProtocolNumber      string     `json:"protocol_number"`
	SponsorName         string     `json:"sponsor_name"`
	Phase               StudyPhase `json:"phase"`
	TargetEnrollment    int        `json:"target_enrollment"`
	EnrollmentStartDate *time.Time `json:"enrollment_start_date"`
	PlannedEndDate      *time.Time `json:"planned_end_date"`
}

// UpdateStudyInput carries only the fields being changed.
type UpdateStudyInput struct {
	Name                *string      `json:"name"`
	ProtocolNumber      *string      `json:"protocol_number"`
	SponsorName         *string      `json:"sponsor_name"`
	Phase               *StudyPhase  `json:"phase"`
	Status              *StudyStatus `json:"status"`
	TargetEnrollment    *int         `json:"target_enrollment"`
	EnrollmentStartDate *time.Time   `json:"enrollment_start_date"`
	PlannedEndDate      *time.Time   `json:"planned_end_date"`
}

// Apply copies the set fields of in onto s.
func (in UpdateStudyInput) Apply(s *Study) {
	if in.Name != nil {
		s.Name = *in.Name
	}
	if in.ProtocolNumber != nil {
		s.ProtocolNumber = *in.ProtocolNumber
	}
	if in.SponsorName != nil {
		s.SponsorName = *in.SponsorName
	}
	if in.Phase != nil {
		s.Phase = *in.Phase
	}
	if in.Status != nil {
		s.Status = *in.Status
	}
	if in.TargetEnrollment != nil {
		s.TargetEnrollment = *in.TargetEnrollment
	}
	if in.EnrollmentStartDate != nil {
		s.EnrollmentStartDate = in.EnrollmentStartDate
	}
	if in.PlannedEndDate != nil {
		s.PlannedEndDate = in.PlannedEndDate
	}
}
