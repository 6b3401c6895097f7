package pipeline

import (
	"sort"
	"time"

	"github.com/sahasand/site-tracker/internal/model"
)

type Trend string

const (
	TrendUp   Trend = "up"
	TrendFlat Trend = "flat"
	TrendDown Trend = "down"
)

type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthAtRisk   Health = "at_risk"
	HealthCritical Health = "critical"
)

var healthRank = map[Health]int{HealthCritical: 0, HealthAtRisk: 1, HealthHealthy: 2}

// trendWindow is the width, in weeks, of each side of a trend comparison.
const trendWindow = 4

// WeeklyVelocity buckets activation dates into weeks ending today, oldest
// first. Week i covers [today-7(i+1), today-7i).
func WeeklyVelocity(dates []time.Time, now time.Time, weeks int) []int {
	out := make([]int, weeks)
	today := truncateDay(now)
	for i := weeks - 1; i >= 0; i-- {
		end := today.AddDate(0, 0, -7*i)
		start := end.AddDate(0, 0, -7)
		n := 0
		for _, d := range dates {
			d = truncateDay(d)
			if !d.Before(start) && d.Before(end) {
				n++
			}
		}
		out[weeks-1-i] = n
	}
	return out
}

// ActivationDates collects the actual dates of completed site_activated
// milestones.
func ActivationDates(sites []model.SiteWithMilestones) []time.Time {
	var out []time.Time
	for _, s := range sites {
		m := model.FindMilestone(s.Milestones, model.SiteActivated)
		if m != nil && m.Status == model.MilestoneCompleted && m.ActualDate != nil {
			out = append(out, *m.ActualDate)
		}
	}
	return out
}

func windowMeans(velocity []int) (recent, earlier float64, ok bool) {
	if len(velocity) < 2*trendWindow {
		return 0, 0, false
	}
	n := len(velocity)
	for _, v := range velocity[n-trendWindow:] {
		recent += float64(v)
	}
	for _, v := range velocity[n-2*trendWindow : n-trendWindow] {
		earlier += float64(v)
	}
	return recent / trendWindow, earlier / trendWindow, true
}

// TrendOf compares the mean of the last four weeks to the four before.
// Fewer than eight weeks is flat.
func TrendOf(velocity []int) Trend {
	recent, earlier, ok := windowMeans(velocity)
	if !ok {
		return TrendFlat
	}
	change := 0.0
	if earlier > 0 {
		change = (recent - earlier) / earlier
	}
	switch {
	case change > 0.1:
		return TrendUp
	case change < -0.1:
		return TrendDown
	}
	return TrendFlat
}

// VelocityChange is the rounded percent change between the two four-week
// windows, 0 when the earlier window is empty.
func VelocityChange(velocity []int) int {
	recent, earlier, ok := windowMeans(velocity)
	if !ok || earlier == 0 {
		return 0
	}
	return round((recent - earlier) / earlier * 100)
}

func HealthOf(stuckCount int, trend Trend) Health {
	if stuckCount >= 3 || (stuckCount >= 1 && trend == TrendDown) {
		return HealthCritical
	}
	if stuckCount >= 1 || trend == TrendDown {
		return HealthAtRisk
	}
	return HealthHealthy
}

// StageCount tallies the boundary milestone of an analytics stage.
type StageCount struct {
	Stage      model.AnalyticsStage `json:"stage"`
	Completed  int                  `json:"completed"`
	InProgress int                  `json:"in_progress"`
	Total      int                  `json:"total"`
}

func StageCounts(sites []model.SiteWithMilestones) []StageCount {
	out := make([]StageCount, 0, len(model.AnalyticsStageOrder))
	for _, stage := range model.AnalyticsStageOrder {
		end := model.AnalyticsStages[stage].End
		sc := StageCount{Stage: stage, Total: len(sites)}
		for _, s := range sites {
			m := model.FindMilestone(s.Milestones, end)
			if m == nil {
				continue
			}
			switch m.Status {
			case model.MilestoneCompleted:
				sc.Completed++
			case model.MilestoneInProgress:
				sc.InProgress++
			}
		}
		out = append(out, sc)
	}
	return out
}

// Settings are the knobs of the roll-ups, loaded from the activation config
// section.
type Settings struct {
	Stuck                  StuckThresholds
	StudyVelocityWeeks     int
	PortfolioVelocityWeeks int
}

var DefaultSettings = Settings{
	Stuck:                  DefaultStuckThresholds,
	StudyVelocityWeeks:     8,
	PortfolioVelocityWeeks: 12,
}

// StudySnapshot is one study with every site and milestone, read once per
// request and never mutated.
type StudySnapshot struct {
	Study model.Study
	Sites []model.SiteWithMilestones
}

type StudySummary struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Phase           model.StudyPhase `json:"phase"`
	SitesActive     int              `json:"sites_active"`
	SitesActivating int              `json:"sites_activating"`
	SitesPlanned    int              `json:"sites_planned"`
	SitesTotal      int              `json:"sites_total"`
	SitesStuck      int              `json:"sites_stuck"`
	WeeklyVelocity  []int            `json:"weekly_velocity"`
	Trend           Trend            `json:"trend"`
	Health          Health           `json:"health"`
	StageCounts     []StageCount     `json:"stage_counts"`
}

func countStatuses(sites []model.SiteWithMilestones) (active, activating, planned int) {
	for _, s := range sites {
		switch s.Status {
		case model.SiteActive:
			active++
		case model.SiteActivating:
			activating++
		case model.SitePlanned:
			planned++
		}
	}
	return
}

func SummarizeStudy(snap StudySnapshot, now time.Time, cfg Settings) StudySummary {
	sum := StudySummary{
		ID:         snap.Study.ID,
		Name:       snap.Study.Name,
		Phase:      snap.Study.Phase,
		SitesTotal: len(snap.Sites),
	}
	sum.SitesActive, sum.SitesActivating, sum.SitesPlanned = countStatuses(snap.Sites)

	stuck := DetectStuck(CandidatesFor(snap.Sites, snap.Study.Name), now, cfg.Stuck, false)
	sum.SitesStuck = CountStuckSites(stuck)
	sum.WeeklyVelocity = WeeklyVelocity(ActivationDates(snap.Sites), now, cfg.StudyVelocityWeeks)
	sum.Trend = TrendOf(sum.WeeklyVelocity)
	sum.Health = HealthOf(sum.SitesStuck, sum.Trend)
	sum.StageCounts = StageCounts(snap.Sites)
	return sum
}

// SummarizeStudies summarizes every snapshot with sites, most unhealthy
// first, then by name.
func SummarizeStudies(snaps []StudySnapshot, now time.Time, cfg Settings) []StudySummary {
	out := make([]StudySummary, 0, len(snaps))
	for _, snap := range snaps {
		if len(snap.Sites) == 0 {
			continue
		}
		out = append(out, SummarizeStudy(snap, now, cfg))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if healthRank[out[i].Health] != healthRank[out[j].Health] {
			return healthRank[out[i].Health] < healthRank[out[j].Health]
		}
		return out[i].Name < out[j].Name
	})
	return out
}

type PortfolioSummary struct {
	SitesTotal      int   `json:"sites_total"`
	SitesActive     int   `json:"sites_active"`
	SitesActivating int   `json:"sites_activating"`
	SitesAtRisk     int   `json:"sites_at_risk"`
	WeeklyVelocity  []int `json:"weekly_velocity"`
	VelocityTrend   Trend `json:"velocity_trend"`
	VelocityChange  int   `json:"velocity_change"`
}

// AttentionItems is the portfolio-wide stuck list, carrying study identity.
func AttentionItems(snaps []StudySnapshot, now time.Time, cfg Settings) []StuckSite {
	var candidates []StuckCandidate
	for _, snap := range snaps {
		candidates = append(candidates, CandidatesFor(snap.Sites, snap.Study.Name)...)
	}
	return DetectStuck(candidates, now, cfg.Stuck, true)
}

// SummarizePortfolio sums the given active-study snapshots. SitesAtRisk is
// the number of attention items, not distinct sites.
func SummarizePortfolio(snaps []StudySnapshot, now time.Time, cfg Settings) PortfolioSummary {
	var all []model.SiteWithMilestones
	for _, snap := range snaps {
		all = append(all, snap.Sites...)
	}

	ps := PortfolioSummary{SitesTotal: len(all)}
	ps.SitesActive, ps.SitesActivating, _ = countStatuses(all)
	ps.SitesAtRisk = len(AttentionItems(snaps, now, cfg))
	ps.WeeklyVelocity = WeeklyVelocity(ActivationDates(all), now, cfg.PortfolioVelocityWeeks)
	ps.VelocityTrend = TrendOf(ps.WeeklyVelocity)
	ps.VelocityChange = VelocityChange(ps.WeeklyVelocity)
	return ps
}

// StudyPipeline is one study's sites positioned on the board.
type StudyPipeline struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Phase model.StudyPhase `json:"phase"`
	Sites []PipelineSite   `json:"sites"`
}

// Pipelines positions every site of each non-empty study, ordered by study
// name.
func Pipelines(snaps []StudySnapshot, now time.Time, cfg Settings) []StudyPipeline {
	out := make([]StudyPipeline, 0, len(snaps))
	for _, snap := range snaps {
		if len(snap.Sites) == 0 {
			continue
		}
		sp := StudyPipeline{ID: snap.Study.ID, Name: snap.Study.Name, Phase: snap.Study.Phase}
		for _, s := range snap.Sites {
			sp.Sites = append(sp.Sites, DescribePipelineSite(s, now, cfg.Stuck.StuckDays))
		}
		out = append(out, sp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
