package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/csvimport"
	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/pkg/logger"
	"github.com/sahasand/site-tracker/pkg/metrics"
)

type ImportService struct {
	studies repository.StudyStore
	sites   repository.SiteStore
	logger  *zap.Logger
}

func NewImportService(studies repository.StudyStore, sites repository.SiteStore, logger *zap.Logger) *ImportService {
	return &ImportService{studies: studies, sites: sites, logger: logger}
}

type ImportResult struct {
	csvimport.ParseResult
	DryRun  bool                       `json:"dry_run"`
	Created []model.SiteWithMilestones `json:"created"`
}

// ImportCSV validates an uploaded CSV against the study's existing site
// numbers and, unless dryRun, creates the valid rows in one batch.
func (s *ImportService) ImportCSV(ctx context.Context, studyID, content string, dryRun bool) (*ImportResult, error) {
	return s.run(ctx, studyID, dryRun, func(existing []string) csvimport.ParseResult {
		return csvimport.Parse(content, existing)
	})
}

// ImportXLSX is ImportCSV for the first sheet of a workbook.
func (s *ImportService) ImportXLSX(ctx context.Context, studyID string, data []byte, dryRun bool) (*ImportResult, error) {
	records, err := csvimport.ReadXLSX(data)
	if err != nil {
		return nil, invalid("file", "%s", err.Error())
	}
	return s.run(ctx, studyID, dryRun, func(existing []string) csvimport.ParseResult {
		return csvimport.ParseRecords(records, existing)
	})
}

func (s *ImportService) run(ctx context.Context, studyID string, dryRun bool, parse func([]string) csvimport.ParseResult) (*ImportResult, error) {
	if _, err := s.studies.GetStudy(ctx, studyID); err != nil {
		return nil, storeErr(err, "get study")
	}
	current, err := s.sites.ListSitesByStudy(ctx, studyID)
	if err != nil {
		return nil, storeErr(err, "list sites")
	}
	existing := make([]string, 0, len(current))
	for _, site := range current {
		existing = append(existing, site.SiteNumber)
	}

	parsed := parse(existing)
	res := &ImportResult{ParseResult: parsed, DryRun: dryRun, Created: []model.SiteWithMilestones{}}
	log := logger.WithTrace(ctx, s.logger).With(zap.String("study_id", studyID))

	if dryRun {
		log.Info("import validated",
			zap.Int("valid", parsed.ValidCount),
			zap.Int("invalid", parsed.InvalidCount),
		)
		return res, nil
	}

	metrics.AddImportRows("invalid", parsed.InvalidCount)
	inputs := csvimport.ValidSiteInputs(parsed.Rows, studyID)
	if len(inputs) == 0 {
		return res, nil
	}
	created, err := s.sites.CreateSites(ctx, inputs)
	if err != nil {
		metrics.AddImportRows("failed", len(inputs))
		return nil, storeErr(err, "create sites")
	}
	metrics.AddImportRows("created", len(created))
	res.Created = created

	numbers := make([]string, 0, len(created))
	for _, c := range created {
		numbers = append(numbers, c.SiteNumber)
	}
	log.Info("sites imported",
		zap.Int("created", len(created)),
		zap.Int("invalid", parsed.InvalidCount),
		zap.String("site_numbers", strings.Join(numbers, ",")),
	)
	return res, nil
}
