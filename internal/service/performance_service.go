package service

import (
	"context"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/repository"
)

// PerformanceRow is a metric with its tier.
type PerformanceRow struct {
	model.PerformanceMetric
	Tier model.PerformanceTier `json:"tier"`
}

// PerformanceService reads the performance rollups; it never writes them.
type PerformanceService struct {
	performance repository.PerformanceStore
	studies     repository.StudyStore
	sites       repository.SiteStore
}

func NewPerformanceService(performance repository.PerformanceStore, studies repository.StudyStore, sites repository.SiteStore) *PerformanceService {
	return &PerformanceService{performance: performance, studies: studies, sites: sites}
}

func (s *PerformanceService) list(ctx context.Context, f repository.PerformanceFilter) ([]PerformanceRow, error) {
	metrics, err := s.performance.ListPerformance(ctx, f)
	if err != nil {
		return nil, storeErr(err, "list performance")
	}
	out := make([]PerformanceRow, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, PerformanceRow{PerformanceMetric: m, Tier: model.TierForScore(m.PerformanceScore)})
	}
	return out, nil
}

// All lists every metric, best score first and unscored last.
func (s *PerformanceService) All(ctx context.Context) ([]PerformanceRow, error) {
	return s.list(ctx, repository.PerformanceFilter{})
}

func (s *PerformanceService) ByStudy(ctx context.Context, studyID string) ([]PerformanceRow, error) {
	if _, err := s.studies.GetStudy(ctx, studyID); err != nil {
		return nil, storeErr(err, "get study")
	}
	return s.list(ctx, repository.PerformanceFilter{StudyID: studyID})
}

func (s *PerformanceService) BySite(ctx context.Context, siteID string) ([]PerformanceRow, error) {
	if _, err := s.sites.GetSite(ctx, siteID); err != nil {
		return nil, storeErr(err, "get site")
	}
	return s.list(ctx, repository.PerformanceFilter{SiteID: siteID})
}
