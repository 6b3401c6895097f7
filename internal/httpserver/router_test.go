package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/handler"
	"github.com/sahasand/site-tracker/internal/httpserver"
	"github.com/sahasand/site-tracker/internal/pipeline"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/internal/service"
	"github.com/sahasand/site-tracker/internal/util"
	"github.com/sahasand/site-tracker/pkg/outbox"
	"github.com/sahasand/site-tracker/pkg/rbac"
)

const secret = "test-secret"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	ob := outbox.NewMemoryStore()
	stores := repository.NewMemoryStore().WithOutbox(ob).Stores()

	studies := service.NewStudyService(stores.Studies, log)
	sites := service.NewSiteService(stores.Studies, stores.Sites, log)
	activation := service.NewActivationService(stores.Sites, stores.Milestones, log)
	analytics := service.NewAnalyticsService(stores.Studies, stores.Sites, pipeline.DefaultSettings, log)
	portfolio := service.NewPortfolioService(stores.Studies, stores.Sites, pipeline.DefaultSettings, 2, log)
	importer := service.NewImportService(stores.Studies, stores.Sites, log)
	exporter := service.NewExportService(stores.Studies, stores.Sites)
	performance := service.NewPerformanceService(stores.Performance, stores.Studies, stores.Sites)
	activity := service.NewActivityService(stores.Sites, stores.Activity)

	router := httpserver.NewRouter(httpserver.Handlers{
		Studies:    handler.NewStudyHandler(studies, sites, analytics, importer, exporter, performance, log),
		Sites:      handler.NewSiteHandler(sites, activation, activity, performance, log),
		Milestones: handler.NewMilestoneHandler(activation, log),
		Portfolio:  handler.NewPortfolioHandler(portfolio, performance, log),
	}, secret, nil, log)

	srv := httptest.NewServer(router.Engine)
	t.Cleanup(srv.Close)
	return srv
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := util.GenerateJWT("user-"+role, role, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

type client struct {
	t    *testing.T
	base string
	tok  string
}

func (c client) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	if c.tok != "" {
		req.Header.Set("Authorization", "Bearer "+c.tok)
	}
	if _, ok := body.(string); ok {
		req.Header.Set("Content-Type", "text/csv")
	} else {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t)
	c := client{t: t, base: srv.URL}

	resp, body := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	resp, body = c.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])

	resp, _ = c.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthAndPermissions(t *testing.T) {
	srv := newServer(t)

	resp, _ := client{t: t, base: srv.URL}.do(http.MethodGet, "/api/v1/studies", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = client{t: t, base: srv.URL, tok: "garbage"}.do(http.MethodGet, "/api/v1/studies", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	viewer := client{t: t, base: srv.URL, tok: token(t, rbac.RoleViewer)}
	resp, _ = viewer.do(http.MethodGet, "/api/v1/studies", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := viewer.do(http.MethodPost, "/api/v1/studies", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "insufficient permissions", body["error"])
}

func TestActivationFlow(t *testing.T) {
	srv := newServer(t)
	admin := client{t: t, base: srv.URL, tok: token(t, rbac.RoleAdmin)}
	coord := client{t: t, base: srv.URL, tok: token(t, rbac.RoleCoordinator)}

	resp, study := admin.do(http.MethodPost, "/api/v1/studies", map[string]any{
		"name":                  "ONC-201",
		"protocol_number":       "P-201",
		"phase":                 "II",
		"enrollment_start_date": "2025-01-15",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	studyID := study["id"].(string)
	assert.Equal(t, "active", study["status"])

	resp, site := coord.do(http.MethodPost, "/api/v1/studies/"+studyID+"/sites", map[string]any{
		"site_number":            "001",
		"name":                   "Mayo",
		"principal_investigator": "Dr. J",
		"country":                "United States",
		"target_enrollment":      25,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	siteID := site["id"].(string)
	assert.Len(t, site["milestones"], 8)

	resp, body := coord.do(http.MethodPost, "/api/v1/studies/"+studyID+"/sites", map[string]any{
		"site_number": "002", "name": "B", "principal_investigator": "Dr", "country": "Narnia",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "country", body["field"])

	resp, preview := coord.do(http.MethodPost, "/api/v1/sites/"+siteID+"/move/preview", map[string]any{
		"study_id": studyID, "stage": "siv",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "siv", preview["resulting_stage"])

	resp, _ = coord.do(http.MethodPost, "/api/v1/sites/"+siteID+"/move", map[string]any{
		"study_id": "other-study", "stage": "siv",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, moved := coord.do(http.MethodPost, "/api/v1/sites/"+siteID+"/move", map[string]any{
		"study_id": studyID, "stage": "siv",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "activating", moved["site"].(map[string]any)["status"])

	resp, board := coord.do(http.MethodGet, "/api/v1/studies/"+studyID+"/board", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cols := board["columns"].([]any)
	require.Len(t, cols, 5)
	assert.Len(t, cols[2].(map[string]any)["sites"], 1)

	resp, sum := coord.do(http.MethodGet, "/api/v1/portfolio/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, sum["sites_total"])

	resp, _ = coord.do(http.MethodGet, "/api/v1/sites/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = coord.do(http.MethodPut, "/api/v1/milestones/missing", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = coord.do(http.MethodPut, "/api/v1/milestones/any", map[string]any{"status": "completed", "actual_date": "13/03/2025"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportAndExport(t *testing.T) {
	srv := newServer(t)
	admin := client{t: t, base: srv.URL, tok: token(t, rbac.RoleAdmin)}

	_, study := admin.do(http.MethodPost, "/api/v1/studies", map[string]any{
		"name": "CARD", "protocol_number": "C-1", "phase": "III",
	})
	studyID := study["id"].(string)

	csv := "Site Number,Site Name,Principal Investigator,Country\n001,A,Dr. A,Spain\n002,B,Dr. B,"
	resp, res := admin.do(http.MethodPost, "/api/v1/studies/"+studyID+"/sites/import?dry_run=true", csv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, res["valid_count"])
	assert.EqualValues(t, 1, res["invalid_count"])

	resp, res = admin.do(http.MethodPost, "/api/v1/studies/"+studyID+"/sites/import", csv)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, res["created"], 1)

	resp, _ = admin.do(http.MethodGet, "/api/v1/studies/"+studyID+"/sites/export?format=csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "sites-C-1.csv")

	resp, _ = admin.do(http.MethodGet, "/api/v1/templates/sites.csv", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
}
