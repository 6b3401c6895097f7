package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/service"
)

type StudyHandler struct {
	studies     *service.StudyService
	sites       *service.SiteService
	analytics   *service.AnalyticsService
	importer    *service.ImportService
	exporter    *service.ExportService
	performance *service.PerformanceService
	logger      *zap.Logger
}

func NewStudyHandler(
	studies *service.StudyService,
	sites *service.SiteService,
	analytics *service.AnalyticsService,
	importer *service.ImportService,
	exporter *service.ExportService,
	performance *service.PerformanceService,
	logger *zap.Logger,
) *StudyHandler {
	return &StudyHandler{
		studies:     studies,
		sites:       sites,
		analytics:   analytics,
		importer:    importer,
		exporter:    exporter,
		performance: performance,
		logger:      logger,
	}
}

type studyRequest struct {
	Name                *string            `json:"name"`
	ProtocolNumber      *string            `json:"protocol_number"`
	SponsorName         *string            `json:"sponsor_name"`
	Phase               *model.StudyPhase  `json:"phase"`
	Status              *model.StudyStatus `json:"status"`
	TargetEnrollment    *int               `json:"target_enrollment"`
	EnrollmentStartDate *string            `json:"enrollment_start_date"`
	PlannedEndDate      *string            `json:"planned_end_date"`
}

func (r studyRequest) dates() (start, end *time.Time, err error) {
	if r.EnrollmentStartDate != nil {
		if start, err = parseDate("enrollment_start_date", *r.EnrollmentStartDate); err != nil {
			return nil, nil, err
		}
	}
	if r.PlannedEndDate != nil {
		if end, err = parseDate("planned_end_date", *r.PlannedEndDate); err != nil {
			return nil, nil, err
		}
	}
	return start, end, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (h *StudyHandler) ListStudies(c *gin.Context) {
	studies, err := h.studies.List(c.Request.Context(), model.StudyStatus(c.Query("status")))
	if err != nil {
		respondError(c, h.logger, "ListStudies", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studies": studies})
}

func (h *StudyHandler) CreateStudy(c *gin.Context) {
	var req studyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	start, end, err := req.dates()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	st, err := h.studies.Create(c.Request.Context(), model.CreateStudyInput{
		Name:                deref(req.Name),
		ProtocolNumber:      deref(req.ProtocolNumber),
		SponsorName:         deref(req.SponsorName),
		Phase:               deref(req.Phase),
		TargetEnrollment:    deref(req.TargetEnrollment),
		EnrollmentStartDate: start,
		PlannedEndDate:      end,
	})
	if err != nil {
		respondError(c, h.logger, "CreateStudy", err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *StudyHandler) GetStudy(c *gin.Context) {
	st, err := h.studies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "GetStudy", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *StudyHandler) UpdateStudy(c *gin.Context) {
	var req studyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	start, end, err := req.dates()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	st, err := h.studies.Update(c.Request.Context(), c.Param("id"), model.UpdateStudyInput{
		Name:                req.Name,
		ProtocolNumber:      req.ProtocolNumber,
		SponsorName:         req.SponsorName,
		Phase:               req.Phase,
		Status:              req.Status,
		TargetEnrollment:    req.TargetEnrollment,
		EnrollmentStartDate: start,
		PlannedEndDate:      end,
	})
	if err != nil {
		respondError(c, h.logger, "UpdateStudy", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *StudyHandler) DeleteStudy(c *gin.Context) {
	if err := h.studies.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "DeleteStudy", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StudyHandler) ListSites(c *gin.Context) {
	sites, err := h.sites.ListByStudy(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "ListSites", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sites": sites})
}

// CreateSites accepts one site object or an array of them.
func (h *StudyHandler) CreateSites(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "invalid request body")
		return
	}

	var inputs []model.CreateSiteInput
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &inputs)
	} else {
		var one model.CreateSiteInput
		err = json.Unmarshal(trimmed, &one)
		inputs = []model.CreateSiteInput{one}
	}
	if err != nil {
		badRequest(c, "invalid request body")
		return
	}

	created, err := h.sites.CreateMany(c.Request.Context(), c.Param("id"), inputs)
	if err != nil {
		respondError(c, h.logger, "CreateSites", err)
		return
	}
	if trimmed[0] == '[' {
		c.JSON(http.StatusCreated, gin.H{"sites": created})
		return
	}
	c.JSON(http.StatusCreated, created[0])
}

func (h *StudyHandler) Board(c *gin.Context) {
	cols, err := h.analytics.Board(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Board", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols})
}

func (h *StudyHandler) Analytics(c *gin.Context) {
	a, err := h.analytics.Analytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Analytics", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *StudyHandler) Summary(c *gin.Context) {
	sum, err := h.analytics.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Summary", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *StudyHandler) Performance(c *gin.Context) {
	rows, err := h.performance.ByStudy(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "StudyPerformance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": rows})
}

// ExportSites serves GET /studies/:id/sites/export?format=csv|xlsx&include_study=true.
func (h *StudyHandler) ExportSites(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", string(service.FormatCSV)))
	out, err := h.exporter.ExportStudySites(c.Request.Context(), c.Param("id"), format, c.Query("include_study") == "true")
	if err != nil {
		respondError(c, h.logger, "ExportSites", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+out.Filename+`"`)
	c.Data(http.StatusOK, out.ContentType, out.Body)
}

const maxUploadBytes = 5 << 20

// ImportSites takes a multipart "file" upload or a raw text/csv body.
// Workbooks are recognised by their .xlsx name or content type.
func (h *StudyHandler) ImportSites(c *gin.Context) {
	var (
		data []byte
		name string
		ct   = c.ContentType()
	)
	if strings.HasPrefix(ct, "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			badRequest(c, "missing file")
			return
		}
		if fh.Size > maxUploadBytes {
			badRequest(c, "file too large")
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "unreadable file")
			return
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			badRequest(c, "unreadable file")
			return
		}
		name = fh.Filename
		ct = fh.Header.Get("Content-Type")
	} else {
		var err error
		if data, err = io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes)); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	ctx := c.Request.Context()
	studyID := c.Param("id")
	dryRun := c.Query("dry_run") == "true"

	var (
		res *service.ImportResult
		err error
	)
	if strings.HasSuffix(strings.ToLower(name), ".xlsx") || strings.Contains(ct, "spreadsheetml") {
		res, err = h.importer.ImportXLSX(ctx, studyID, data, dryRun)
	} else {
		res, err = h.importer.ImportCSV(ctx, studyID, string(data), dryRun)
	}
	if err != nil {
		respondError(c, h.logger, "ImportSites", err)
		return
	}

	status := http.StatusOK
	if !dryRun && len(res.Created) > 0 {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}
