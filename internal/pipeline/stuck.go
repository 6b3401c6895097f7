package pipeline

import (
	"sort"
	"time"

	"github.com/sahasand/site-tracker/internal/model"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// StuckThresholds are the day counts at which an in-progress milestone is
// reported, and at which it becomes critical.
type StuckThresholds struct {
	StuckDays    int
	CriticalDays int
}

var DefaultStuckThresholds = StuckThresholds{StuckDays: 14, CriticalDays: 21}

// StuckCandidate is an in-progress milestone joined with its owning site
// and study.
type StuckCandidate struct {
	Milestone model.Milestone
	Site      model.Site
	StudyName string
}

// StuckSite is one row of a stuck list. StudyID and StudyName are left
// empty for study-scoped lists.
type StuckSite struct {
	SiteID         string              `json:"site_id"`
	SiteName       string              `json:"site_name"`
	SiteNumber     string              `json:"site_number"`
	StudyID        string              `json:"study_id,omitempty"`
	StudyName      string              `json:"study_name,omitempty"`
	MilestoneID    string              `json:"milestone_id"`
	MilestoneType  model.MilestoneType `json:"milestone_type"`
	MilestoneLabel string              `json:"milestone_label"`
	DaysStuck      int                 `json:"days_stuck"`
	Severity       Severity            `json:"severity"`
}

// DetectStuck flags in-progress milestones untouched for at least
// th.StuckDays, skipping closed sites. Results are ordered by DaysStuck
// descending; ties keep input order.
func DetectStuck(candidates []StuckCandidate, now time.Time, th StuckThresholds, withStudy bool) []StuckSite {
	out := make([]StuckSite, 0)
	for _, c := range candidates {
		if c.Milestone.Status != model.MilestoneInProgress || c.Site.Status == model.SiteClosed {
			continue
		}
		days := DaysSince(c.Milestone.UpdatedAt, now)
		if days < th.StuckDays {
			continue
		}
		s := StuckSite{
			SiteID:         c.Site.ID,
			SiteName:       c.Site.Name,
			SiteNumber:     c.Site.SiteNumber,
			MilestoneID:    c.Milestone.ID,
			MilestoneType:  c.Milestone.MilestoneType,
			MilestoneLabel: c.Milestone.MilestoneType.Label(),
			DaysStuck:      days,
			Severity:       SeverityWarning,
		}
		if days >= th.CriticalDays {
			s.Severity = SeverityCritical
		}
		if withStudy {
			s.StudyID = c.Site.StudyID
			s.StudyName = c.StudyName
			if s.StudyName == "" {
				s.StudyName = "Unknown"
			}
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysStuck > out[j].DaysStuck
	})
	return out
}

// CandidatesFor flattens a study's sites into stuck candidates.
func CandidatesFor(sites []model.SiteWithMilestones, studyName string) []StuckCandidate {
	var out []StuckCandidate
	for _, s := range sites {
		for _, m := range s.Milestones {
			if m.Status != model.MilestoneInProgress {
				continue
			}
			out = append(out, StuckCandidate{Milestone: m, Site: s.Site, StudyName: studyName})
		}
	}
	return out
}

// CountStuckSites counts distinct sites in a stuck list.
func CountStuckSites(items []StuckSite) int {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[it.SiteID] = struct{}{}
	}
	return len(seen)
}
