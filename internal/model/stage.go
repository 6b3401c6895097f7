package model

// KanbanStage is a column of the activation board.
type KanbanStage string

const (
	StageRegulatory KanbanStage = "regulatory"
	StageContracts  KanbanStage = "contracts"
	StageSIV        KanbanStage = "siv"
	StageEDC        KanbanStage = "edc"
	StageActivated  KanbanStage = "activated"
)

var KanbanStageOrder = []KanbanStage{
	StageRegulatory,
	StageContracts,
	StageSIV,
	StageEDC,
	StageActivated,
}

type KanbanStageInfo struct {
	Title      string          `json:"title"`
	Subtitle   string          `json:"subtitle"`
	Milestones []MilestoneType `json:"milestones"`
}

var KanbanStages = map[KanbanStage]KanbanStageInfo{
	StageRegulatory: {
		Title:      "Regulatory",
		Subtitle:   "IRB/EC Review",
		Milestones: []MilestoneType{RegulatorySubmitted, RegulatoryApproved},
	},
	StageContracts: {
		Title:      "Contracts",
		Subtitle:   "CTA & Budget",
		Milestones: []MilestoneType{ContractSent, ContractExecuted},
	},
	StageSIV: {
		Title:      "SIV",
		Subtitle:   "Site Initiation",
		Milestones: []MilestoneType{SIVScheduled, SIVCompleted},
	},
	StageEDC: {
		Title:      "EDC",
		Subtitle:   "Training",
		Milestones: []MilestoneType{EDCTrainingComplete},
	},
	StageActivated: {
		Title:      "Activated",
		Subtitle:   "Enrolling",
		Milestones: []MilestoneType{SiteActivated},
	},
}

func (s KanbanStage) IsValid() bool {
	_, ok := KanbanStages[s]
	return ok
}

// Index returns the board position of s, or -1.
func (s KanbanStage) Index() int {
	for i, st := range KanbanStageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Contains reports whether milestone type t belongs to stage s.
func (s KanbanStage) Contains(t MilestoneType) bool {
	for _, mt := range KanbanStages[s].Milestones {
		if mt == t {
			return true
		}
	}
	return false
}

// AnalyticsStage is the 4-way partition used for stage-duration analytics.
// It is kept separate from the kanban table: edc_training_complete has no
// boundary of its own here.
type AnalyticsStage string

const (
	AnalyticsRegulatory     AnalyticsStage = "regulatory"
	AnalyticsContracts      AnalyticsStage = "contracts"
	AnalyticsSiteInitiation AnalyticsStage = "site_initiation"
	AnalyticsGoLive         AnalyticsStage = "go_live"
)

var AnalyticsStageOrder = []AnalyticsStage{
	AnalyticsRegulatory,
	AnalyticsContracts,
	AnalyticsSiteInitiation,
	AnalyticsGoLive,
}

type AnalyticsStageInfo struct {
	Label string
	// Start is the milestone whose actual date opens the stage; empty means
	// the site's creation time.
	Start MilestoneType
	End   MilestoneType
}

var AnalyticsStages = map[AnalyticsStage]AnalyticsStageInfo{
	AnalyticsRegulatory:     {Label: "Regulatory", Start: "", End: RegulatoryApproved},
	AnalyticsContracts:      {Label: "Contracts", Start: RegulatoryApproved, End: ContractExecuted},
	AnalyticsSiteInitiation: {Label: "Site Initiation", Start: ContractExecuted, End: SIVCompleted},
	AnalyticsGoLive:         {Label: "Go-Live", Start: SIVCompleted, End: SiteActivated},
}
