package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahasand/site-tracker/internal/csvimport"
	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/internal/service"
)

const upload = `Site Number,Site Name,Principal Investigator,Country,Region,Target Enrollment
001,Alpha,Dr. A,Germany,,10
002,Beta,Dr. B,,,
003,Gamma,Dr. C,France,Paris,12`

func TestImportCSV_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	svc := service.NewImportService(f.stores.Studies, f.stores.Sites, f.log)

	res, err := svc.ImportCSV(ctx, st.ID, upload, true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.ValidCount)
	assert.Equal(t, 1, res.InvalidCount)
	assert.Empty(t, res.Created)

	sites, err := f.mem.ListSitesByStudy(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestImportCSV_CreatesValidRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	f.site(t, st.ID, "003")
	svc := service.NewImportService(f.stores.Studies, f.stores.Sites, f.log)

	res, err := svc.ImportCSV(ctx, st.ID, upload, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ValidCount)
	assert.Equal(t, 2, res.InvalidCount)
	assert.Equal(t, []string{`Site Number "003" already exists in this study`}, res.Rows[2].Errors)

	require.Len(t, res.Created, 1)
	assert.Equal(t, "001", res.Created[0].SiteNumber)
	assert.Len(t, res.Created[0].Milestones, 8)

	sites, err := f.mem.ListSitesByStudy(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, sites, 2)

	_, err = svc.ImportCSV(ctx, "missing", upload, false)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestImportXLSX(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	svc := service.NewImportService(f.stores.Studies, f.stores.Sites, f.log)

	region := "Bavaria"
	book, err := csvimport.SitesToXLSX([]csvimport.ExportSite{{Site: model.Site{
		SiteNumber:            "A-1",
		Name:                  "Klinikum",
		PrincipalInvestigator: "Dr. W",
		Country:               "Germany",
		Region:                &region,
		TargetEnrollment:      15,
	}}}, false)
	require.NoError(t, err)

	res, err := svc.ImportXLSX(ctx, st.ID, book, false)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, 15, res.Created[0].TargetEnrollment)

	_, err = svc.ImportXLSX(ctx, st.ID, []byte("garbage"), false)
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestExportStudySites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")
	f.setMilestone(t, site, model.RegulatorySubmitted, model.MilestoneCompleted, daysAgo(1))
	svc := service.NewExportService(f.stores.Studies, f.stores.Sites)

	out, err := svc.ExportStudySites(ctx, st.ID, service.FormatCSV, true)
	require.NoError(t, err)
	assert.Equal(t, "sites-P-ONC.csv", out.Filename)
	lines := strings.Split(string(out.Body), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "001,Site 001,Dr. A,Germany,,activating,20,0,ONC,P-ONC,2025-03-13,pending")

	out, err = svc.ExportStudySites(ctx, st.ID, service.FormatXLSX, false)
	require.NoError(t, err)
	assert.Equal(t, "sites-P-ONC.xlsx", out.Filename)
	rows, err := csvimport.ReadXLSX(out.Body)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = svc.ExportStudySites(ctx, st.ID, "pdf", false)
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestPerformanceAndActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.study(t, "ONC")
	site := f.site(t, st.ID, "001")

	score := 72.5
	f.mem.SeedPerformance(
		model.PerformanceMetric{SiteID: site.ID, Period: "2025-01"},
		model.PerformanceMetric{SiteID: site.ID, Period: "2025-02", PerformanceScore: &score},
	)
	perf := service.NewPerformanceService(f.stores.Performance, f.stores.Studies, f.stores.Sites)

	rows, err := perf.ByStudy(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.TierMedium, rows[0].Tier)
	assert.Equal(t, model.TierUnknown, rows[1].Tier)

	_, err = perf.BySite(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)

	all, err := perf.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	for i, id := range []string{"e1", "e2", "e3"} {
		_, err := f.mem.AppendActivity(ctx, &model.MilestoneActivity{
			EventID:    id,
			SiteID:     site.ID,
			Source:     repository.SourceEdit,
			OccurredAt: daysAgo(3 - i),
		})
		require.NoError(t, err)
	}
	activity := service.NewActivityService(f.stores.Sites, f.stores.Activity)
	entries, err := activity.ForSite(ctx, site.ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e3", entries[0].EventID)

	_, err = activity.ForSite(ctx, "missing", 0)
	assert.ErrorIs(t, err, service.ErrNotFound)
}
