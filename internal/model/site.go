package model

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

type SiteStatus string

const (
	SitePlanned    SiteStatus = "planned"
	SiteActivating SiteStatus = "activating"
	SiteActive     SiteStatus = "active"
	SiteOnHold     SiteStatus = "on_hold"
	SiteClosed     SiteStatus = "closed"
)

func (s SiteStatus) IsValid() bool {
	switch s {
	case SitePlanned, SiteActivating, SiteActive, SiteOnHold, SiteClosed:
		return true
	}
	return false
}

// Countries is the allow-list for site country; "Other" is accepted too.
var Countries = []string{
	"United States",
	"Germany",
	"United Kingdom",
	"France",
	"Spain",
	"Italy",
	"Canada",
	"Australia",
	"Japan",
	"South Korea",
	"China",
	"Brazil",
	"Poland",
	"Netherlands",
	"Belgium",
	"Switzerland",
	"Austria",
	"Sweden",
	"Denmark",
	"Israel",
}

const CountryOther = "Other"

func IsKnownCountry(c string) bool {
	if c == CountryOther {
		return true
	}
	for _, k := range Countries {
		if k == c {
			return true
		}
	}
	return false
}

// Site belongs to exactly one study for its whole life.
type Site struct {
	ID                    string     `json:"id"`
	StudyID               string     `json:"study_id"`
	SiteNumber            string     `json:"site_number"`
	Name                  string     `json:"name"`
	PrincipalInvestigator string     `json:"principal_investigator"`
	Country               string     `json:"country"`
	Region                *string    `json:"region"`
	Status                SiteStatus `json:"status"`
	TargetEnrollment      int        `json:"target_enrollment"`
	CurrentEnrollment     int        `json:"current_enrollment"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// SiteWithMilestones is the unit most pipeline computations work on.
type SiteWithMilestones struct {
	Site
	Milestones []Milestone `json:"milestones"`
}

type CreateSiteInput struct {
	StudyID               string  `json:"study_id"`
	SiteNumber            string  `json:"site_number"`
	Name                  string  `json:"name"`
	PrincipalInvestigator string  `json:"principal_investigator"`
	Country               string  `json:"country"`
	Region                *string `json:"region"`
	TargetEnrollment      int     `json:"target_enrollment"`
}

// UpdateSiteInput has no StudyID: a site never changes study.
type UpdateSiteInput struct {
	SiteNumber            *string     `json:"site_number"`
	Name                  *string     `json:"name"`
	PrincipalInvestigator *string     `json:"principal_investigator"`
	Country               *string     `json:"country"`
	Region                *string     `json:"region"`
	Status                *SiteStatus `json:"status"`
	TargetEnrollment      *int        `json:"target_enrollment"`
	CurrentEnrollment     *int        `json:"current_enrollment"`
}

func (in UpdateSiteInput) Apply(s *Site) {
	if in.SiteNumber != nil {
		s.SiteNumber = *in.SiteNumber
	}
	if in.Name != nil {
		s.Name = *in.Name
	}
	if in.PrincipalInvestigator != nil {
		s.PrincipalInvestigator = *in.PrincipalInvestigator
	}
	if in.Country != nil {
		s.Country = *in.Country
	}
	if in.Region != nil {
		s.Region = in.Region
	}
	if in.Status != nil {
		s.Status = *in.Status
	}
	if in.TargetEnrollment != nil {
		s.TargetEnrollment = *in.TargetEnrollment
	}
	if in.CurrentEnrollment != nil {
		s.CurrentEnrollment = *in.CurrentEnrollment
	}
}

// CompareSiteNumbers orders site numbers the way people read them:
// runs of digits compare numerically, so "2" < "10" and "A-9" < "A-10".
func CompareSiteNumbers(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			continue
		}
		ca, cb := unicode.ToLower(ra[i]), unicode.ToLower(rb[j])
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(ra)-i < len(rb)-j:
		return -1
	case len(ra)-i > len(rb)-j:
		return 1
	}
	return strings.Compare(a, b)
}

// SortSiteViews orders sites by site number using CompareSiteNumbers.
func SortSiteViews(sites []SiteWithMilestones) {
	sort.SliceStable(sites, func(i, j int) bool {
		return CompareSiteNumbers(sites[i].SiteNumber, sites[j].SiteNumber) < 0
	})
}

// NewMilestones returns the eight pending milestones of a new site.
func NewMilestones(siteID string, newID func() string, now time.Time) []Milestone {
	ms := make([]Milestone, 0, len(MilestoneOrder))
	for _, t := range MilestoneOrder {
		ms = append(ms, Milestone{
			ID:            newID(),
			SiteID:        siteID,
			MilestoneType: t,
			Status:        MilestonePending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return ms
}
