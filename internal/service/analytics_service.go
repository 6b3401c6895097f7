package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/pipeline"
	"github.com/sahasand/site-tracker/internal/repository"
)

// AnalyticsService serves the study-scoped views. Everything is recomputed
// from a fresh read on every call.
type AnalyticsService struct {
	studies  repository.StudyStore
	sites    repository.SiteStore
	settings pipeline.Settings
	logger   *zap.Logger
	now      func() time.Time
}

func NewAnalyticsService(studies repository.StudyStore, sites repository.SiteStore, settings pipeline.Settings, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{
		studies:  studies,
		sites:    sites,
		settings: settings,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *AnalyticsService) WithClock(now func() time.Time) *AnalyticsService {
	s.now = now
	return s
}

type StudyAnalytics struct {
	CycleTimes     []pipeline.CycleTime     `json:"cycle_times"`
	StageDurations []pipeline.StageDuration `json:"stage_durations"`
	Insight        string                   `json:"insight"`
	Stuck          []pipeline.StuckSite     `json:"stuck"`
	Pulse          pipeline.StudyPulse      `json:"pulse"`
}

func (s *AnalyticsService) snapshot(ctx context.Context, studyID string) (pipeline.StudySnapshot, error) {
	st, err := s.studies.GetStudy(ctx, studyID)
	if err != nil {
		return pipeline.StudySnapshot{}, storeErr(err, "get study")
	}
	sites, err := s.sites.ListSitesByStudy(ctx, studyID)
	if err != nil {
		return pipeline.StudySnapshot{}, storeErr(err, "list sites")
	}
	return pipeline.StudySnapshot{Study: *st, Sites: sites}, nil
}

// Board returns the five kanban columns with the study's sites, ordered by
// site number inside each column.
func (s *AnalyticsService) Board(ctx context.Context, studyID string) ([]pipeline.BoardColumn, error) {
	snap, err := s.snapshot(ctx, studyID)
	if err != nil {
		return nil, err
	}
	return pipeline.Board(snap.Sites, s.now(), s.settings.Stuck.StuckDays), nil
}

func (s *AnalyticsService) Analytics(ctx context.Context, studyID string) (*StudyAnalytics, error) {
	snap, err := s.snapshot(ctx, studyID)
	if err != nil {
		return nil, err
	}

	var all []model.Milestone
	plain := make([]model.Site, 0, len(snap.Sites))
	for _, site := range snap.Sites {
		all = append(all, site.Milestones...)
		plain = append(plain, site.Site)
	}

	cycle := pipeline.CycleTimes(all)
	durations := pipeline.StageDurations(snap.Sites)
	stuck := pipeline.DetectStuck(pipeline.CandidatesFor(snap.Sites, snap.Study.Name), s.now(), s.settings.Stuck, false)

	return &StudyAnalytics{
		CycleTimes:     cycle,
		StageDurations: durations,
		Insight:        pipeline.StageInsight(durations),
		Stuck:          stuck,
		Pulse:          pipeline.BuildStudyPulse(plain, cycle, stuck),
	}, nil
}

func (s *AnalyticsService) Summary(ctx context.Context, studyID string) (*pipeline.StudySummary, error) {
	snap, err := s.snapshot(ctx, studyID)
	if err != nil {
		return nil, err
	}
	sum := pipeline.SummarizeStudy(snap, s.now(), s.settings)
	return &sum, nil
}
