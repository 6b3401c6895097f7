package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/pipeline"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/pkg/logger"
	"github.com/sahasand/site-tracker/pkg/otel"
)

// PortfolioService rolls up every active study. Each call reads a fresh
// set of snapshots; nothing is cached or shared between calls.
type PortfolioService struct {
	studies     repository.StudyStore
	sites       repository.SiteStore
	settings    pipeline.Settings
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

func NewPortfolioService(studies repository.StudyStore, sites repository.SiteStore, settings pipeline.Settings, concurrency int, logger *zap.Logger) *PortfolioService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PortfolioService{
		studies:     studies,
		sites:       sites,
		settings:    settings,
		concurrency: concurrency,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *PortfolioService) WithClock(now func() time.Time) *PortfolioService {
	s.now = now
	return s
}

// StuckReport is the portfolio stuck list with per-severity counts.
type StuckReport struct {
	Items    []pipeline.StuckSite `json:"items"`
	Warning  int                  `json:"warning"`
	Critical int                  `json:"critical"`
	Sites    int                  `json:"sites"`
}

// snapshots loads the sites of every active study, a bounded number of
// studies at a time. The result keeps the store's study order.
func (s *PortfolioService) snapshots(ctx context.Context) ([]pipeline.StudySnapshot, error) {
	ctx, span := otel.StartSpan(ctx, "portfolio.load_snapshots")
	defer span.End()

	studies, err := s.studies.ListStudies(ctx, model.StudyActive)
	if err != nil {
		return nil, storeErr(err, "list studies")
	}
	span.SetAttributes(attribute.Int("studies", len(studies)))

	snaps := make([]pipeline.StudySnapshot, len(studies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, st := range studies {
		g.Go(func() error {
			sites, err := s.sites.ListSitesByStudy(gctx, st.ID)
			if err != nil {
				return storeErr(err, "list sites of study "+st.ID)
			}
			snaps[i] = pipeline.StudySnapshot{Study: st, Sites: sites}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		logger.WithTrace(ctx, s.logger).Error("portfolio: failed to load snapshots", zap.Error(err))
		return nil, err
	}

	// studies without sites take no part in any roll-up
	out := snaps[:0]
	for _, snap := range snaps {
		if len(snap.Sites) > 0 {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *PortfolioService) Summary(ctx context.Context) (*pipeline.PortfolioSummary, error) {
	snaps, err := s.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	sum := pipeline.SummarizePortfolio(snaps, s.now(), s.settings)
	return &sum, nil
}

// Studies returns per-study summaries, least healthy first.
func (s *PortfolioService) Studies(ctx context.Context) ([]pipeline.StudySummary, error) {
	snaps, err := s.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.SummarizeStudies(snaps, s.now(), s.settings), nil
}

func (s *PortfolioService) Attention(ctx context.Context) ([]pipeline.StuckSite, error) {
	snaps, err := s.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.AttentionItems(snaps, s.now(), s.settings), nil
}

func (s *PortfolioService) Pipelines(ctx context.Context) ([]pipeline.StudyPipeline, error) {
	snaps, err := s.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.Pipelines(snaps, s.now(), s.settings), nil
}

func (s *PortfolioService) Stuck(ctx context.Context) (*StuckReport, error) {
	items, err := s.Attention(ctx)
	if err != nil {
		return nil, err
	}
	r := &StuckReport{Items: items, Sites: pipeline.CountStuckSites(items)}
	for _, it := range items {
		if it.Severity == pipeline.SeverityCritical {
			r.Critical++
		} else {
			r.Warning++
		}
	}
	return r, nil
}
