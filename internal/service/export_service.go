package service

import (
	"context"

	"github.com/sahasand/site-tracker/internal/csvimport"
	"github.com/sahasand/site-tracker/internal/repository"
)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

type ExportService struct {
	studies repository.StudyStore
	sites   repository.SiteStore
}

func NewExportService(studies repository.StudyStore, sites repository.SiteStore) *ExportService {
	return &ExportService{studies: studies, sites: sites}
}

// Export is a rendered file.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportStudySites renders the study's sites, one column per milestone.
func (s *ExportService) ExportStudySites(ctx context.Context, studyID string, format ExportFormat, includeStudy bool) (*Export, error) {
	st, err := s.studies.GetStudy(ctx, studyID)
	if err != nil {
		return nil, storeErr(err, "get study")
	}
	sites, err := s.sites.ListSitesByStudy(ctx, studyID)
	if err != nil {
		return nil, storeErr(err, "list sites")
	}

	rows := make([]csvimport.ExportSite, 0, len(sites))
	for _, site := range sites {
		rows = append(rows, csvimport.ExportSite{Site: site.Site, Milestones: site.Milestones, Study: st})
	}

	base := "sites-" + st.ProtocolNumber
	switch format {
	case FormatCSV, "":
		body, err := csvimport.SitesToCSV(rows, includeStudy)
		if err != nil {
			return nil, err
		}
		return &Export{
			Filename:    base + ".csv",
			ContentType: "text/csv; charset=utf-8",
			Body:        []byte(body),
		}, nil
	case FormatXLSX:
		body, err := csvimport.SitesToXLSX(rows, includeStudy)
		if err != nil {
			return nil, err
		}
		return &Export{
			Filename:    base + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Body:        body,
		}, nil
	}
	return nil, invalid("format", "unsupported format %q", format)
}
