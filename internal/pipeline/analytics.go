package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sahasand/site-tracker/internal/model"
)

// round rounds half up, so -2.5 becomes -2.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}

func dayDiff(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}

// CycleTime is the planned-vs-actual variance for one milestone type.
// Positive days mean late.
type CycleTime struct {
	Type           model.MilestoneType `json:"type"`
	Label          string              `json:"label"`
	AvgDays        *int                `json:"avg_days"`
	MinDays        *int                `json:"min_days"`
	MaxDays        *int                `json:"max_days"`
	CompletedCount int                 `json:"completed_count"`
}

// CycleTimes reports per milestone type, in global order, the variance of
// completed milestones that carry both a planned and an actual date.
func CycleTimes(milestones []model.Milestone) []CycleTime {
	byType := make(map[model.MilestoneType][]int)
	for _, m := range milestones {
		if m.Status != model.MilestoneCompleted || m.PlannedDate == nil || m.ActualDate == nil {
			continue
		}
		byType[m.MilestoneType] = append(byType[m.MilestoneType], round(dayDiff(*m.PlannedDate, *m.ActualDate)))
	}

	out := make([]CycleTime, 0, len(model.MilestoneOrder))
	for _, t := range model.MilestoneOrder {
		ct := CycleTime{Type: t, Label: t.Label()}
		if days := byType[t]; len(days) > 0 {
			avg, lo, hi := stats(days)
			ct.AvgDays, ct.MinDays, ct.MaxDays = &avg, &lo, &hi
			ct.CompletedCount = len(days)
		}
		out = append(out, ct)
	}
	return out
}

func stats(days []int) (avg, lo, hi int) {
	sum := 0
	lo, hi = days[0], days[0]
	for _, d := range days {
		sum += d
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return round(float64(sum) / float64(len(days))), lo, hi
}

// StageDuration is how long sites spent in one analytics stage.
type StageDuration struct {
	Stage          model.AnalyticsStage `json:"stage"`
	Label          string               `json:"label"`
	AvgDays        *int                 `json:"avg_days"`
	MinDays        *int                 `json:"min_days"`
	MaxDays        *int                 `json:"max_days"`
	CompletedCount int                  `json:"completed_count"`
}

// StageDurations measures each analytics stage from its start boundary (the
// site's creation for the first stage) to its end boundary. A site counts
// for a stage only when both boundary dates exist and the duration is not
// negative.
func StageDurations(sites []model.SiteWithMilestones) []StageDuration {
	out := make([]StageDuration, 0, len(model.AnalyticsStageOrder))
	for _, stage := range model.AnalyticsStageOrder {
		info := model.AnalyticsStages[stage]
		var days []int
		for _, s := range sites {
			start, ok := boundaryDate(s, info.Start)
			if !ok {
				continue
			}
			end, ok := boundaryDate(s, info.End)
			if !ok {
				continue
			}
			d := round(dayDiff(start, end))
			if d < 0 {
				continue
			}
			days = append(days, d)
		}

		sd := StageDuration{Stage: stage, Label: info.Label}
		if len(days) > 0 {
			avg, lo, hi := stats(days)
			sd.AvgDays, sd.MinDays, sd.MaxDays = &avg, &lo, &hi
			sd.CompletedCount = len(days)
		}
		out = append(out, sd)
	}
	return out
}

func boundaryDate(s model.SiteWithMilestones, t model.MilestoneType) (time.Time, bool) {
	if t == "" {
		return s.CreatedAt, true
	}
	m := model.FindMilestone(s.Milestones, t)
	if m == nil || m.ActualDate == nil {
		return time.Time{}, false
	}
	return *m.ActualDate, true
}

// StageInsight is the one-line reading of a stage-duration chart. It is
// empty when no stage has data.
func StageInsight(durations []StageDuration) string {
	var withData []StageDuration
	total, maxDays := 0, 0
	for _, d := range durations {
		if d.AvgDays == nil {
			continue
		}
		withData = append(withData, d)
		total += *d.AvgDays
		if *d.AvgDays > maxDays {
			maxDays = *d.AvgDays
		}
	}
	if len(withData) == 0 {
		return ""
	}

	if total > 0 {
		for _, d := range withData {
			if *d.AvgDays == maxDays {
				pct := round(float64(maxDays) / float64(total) * 100)
				return fmt.Sprintf("%s is your slowest stage at %d days, %d%% of total activation time.", d.Label, maxDays, pct)
			}
		}
	}

	if len(withData) == 1 {
		d := withData[0]
		suffix := "s"
		if d.CompletedCount == 1 {
			suffix = ""
		}
		return fmt.Sprintf("%s averages %d days across %d site%s.", d.Label, *d.AvgDays, d.CompletedCount, suffix)
	}
	return fmt.Sprintf("Sites activate in %d days on average.", total)
}

// Bottleneck names the milestone holding a study back.
type Bottleneck struct {
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

type labelCount struct {
	label string
	count int
}

// countByLabel groups stuck rows by milestone label in first-seen order.
func countByLabel(stuck []StuckSite) []labelCount {
	var out []labelCount
	idx := make(map[string]int)
	for _, s := range stuck {
		i, ok := idx[s.MilestoneLabel]
		if !ok {
			i = len(out)
			idx[s.MilestoneLabel] = i
			out = append(out, labelCount{label: s.MilestoneLabel})
		}
		out[i].count++
	}
	return out
}

// FindBottleneck prefers a milestone where two or more sites are stuck,
// then falls back to the milestone running furthest behind plan when that
// is more than five days.
func FindBottleneck(stuck []StuckSite, cycleTimes []CycleTime) *Bottleneck {
	var best labelCount
	for _, lc := range countByLabel(stuck) {
		if lc.count > best.count {
			best = lc
		}
	}
	if best.count >= 2 {
		return &Bottleneck{Label: best.label, Reason: fmt.Sprintf("%d sites stuck at this stage", best.count)}
	}

	var worst *CycleTime
	for i := range cycleTimes {
		ct := &cycleTimes[i]
		if ct.AvgDays == nil || *ct.AvgDays <= 0 {
			continue
		}
		if worst == nil || *ct.AvgDays > *worst.AvgDays {
			worst = ct
		}
	}
	if worst != nil && *worst.AvgDays > 5 {
		return &Bottleneck{Label: worst.Label, Reason: fmt.Sprintf("avg +%dd vs plan", *worst.AvgDays)}
	}
	return nil
}

type PulseHealth string

const (
	PulseOnTrack  PulseHealth = "on_track"
	PulseAtRisk   PulseHealth = "at_risk"
	PulseCritical PulseHealth = "critical"
)

// StudyPulse is the study page header: counts, health, bottleneck and a
// short narrative.
type StudyPulse struct {
	SitesTotal      int         `json:"sites_total"`
	SitesActive     int         `json:"sites_active"`
	SitesActivating int         `json:"sites_activating"`
	SitesPlanned    int         `json:"sites_planned"`
	StuckCount      int         `json:"stuck_count"`
	Health          PulseHealth `json:"health"`
	Bottleneck      *Bottleneck `json:"bottleneck"`
	NeedsAttention  []StuckSite `json:"needs_attention"`
	Narrative       string      `json:"narrative"`
}

const pulseAttentionLimit = 5

func BuildStudyPulse(sites []model.Site, cycleTimes []CycleTime, stuck []StuckSite) StudyPulse {
	p := StudyPulse{SitesTotal: len(sites), StuckCount: len(stuck)}
	for _, s := range sites {
		switch s.Status {
		case model.SiteActive:
			p.SitesActive++
		case model.SiteActivating:
			p.SitesActivating++
		case model.SitePlanned:
			p.SitesPlanned++
		}
	}

	switch {
	case len(stuck) == 0:
		p.Health = PulseOnTrack
	case len(stuck) <= 2:
		p.Health = PulseAtRisk
	default:
		p.Health = PulseCritical
	}

	p.Bottleneck = FindBottleneck(stuck, cycleTimes)
	p.NeedsAttention = stuck
	if len(p.NeedsAttention) > pulseAttentionLimit {
		p.NeedsAttention = p.NeedsAttention[:pulseAttentionLimit]
	}
	p.Narrative = narrative(stuck, p, p.Bottleneck)
	return p
}

func narrative(stuck []StuckSite, p StudyPulse, b *Bottleneck) string {
	var parts []string

	switch len(stuck) {
	case 0:
		parts = append(parts, "No sites currently stuck.")
	case 1:
		parts = append(parts, fmt.Sprintf("1 site stuck in %s for %d days.", stuck[0].MilestoneLabel, stuck[0].DaysStuck))
	default:
		var groups []string
		for _, lc := range countByLabel(stuck) {
			groups = append(groups, fmt.Sprintf("%d in %s", lc.count, lc.label))
		}
		parts = append(parts, fmt.Sprintf("%d sites stuck (%s).", len(stuck), strings.Join(groups, ", ")))
	}

	if p.SitesActive > 0 && p.SitesTotal > p.SitesActive {
		parts = append(parts, fmt.Sprintf("%d of %d sites activated, %d remaining.", p.SitesActive, p.SitesTotal, p.SitesTotal-p.SitesActive))
	}

	if b != nil && len(stuck) == 0 {
		parts = append(parts, fmt.Sprintf("%s running %s.", b.Label, b.Reason))
	}
	return strings.Join(parts, " ")
}
