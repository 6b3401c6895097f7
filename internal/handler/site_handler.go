package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/service"
)

type SiteHandler struct {
	sites       *service.SiteService
	activation  *service.ActivationService
	activity    *service.ActivityService
	performance *service.PerformanceService
	logger      *zap.Logger
}

func NewSiteHandler(
	sites *service.SiteService,
	activation *service.ActivationService,
	activity *service.ActivityService,
	performance *service.PerformanceService,
	logger *zap.Logger,
) *SiteHandler {
	return &SiteHandler{
		sites:       sites,
		activation:  activation,
		activity:    activity,
		performance: performance,
		logger:      logger,
	}
}

func (h *SiteHandler) GetSite(c *gin.Context) {
	site, err := h.sites.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "GetSite", err)
		return
	}
	c.JSON(http.StatusOK, site)
}

func (h *SiteHandler) UpdateSite(c *gin.Context) {
	var in model.UpdateSiteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.sites.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.logger, "UpdateSite", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SiteHandler) DeleteSite(c *gin.Context) {
	if err := h.sites.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "DeleteSite", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SiteHandler) Activity(c *gin.Context) {
	entries, err := h.activity.ForSite(c.Request.Context(), c.Param("id"), queryInt(c, "limit", service.DefaultActivityLimit))
	if err != nil {
		respondError(c, h.logger, "SiteActivity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}

func (h *SiteHandler) Performance(c *gin.Context) {
	rows, err := h.performance.BySite(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "SitePerformance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": rows})
}

// moveRequest is a board drop: the study of the column the site was dropped
// on and the column's stage.
type moveRequest struct {
	StudyID string            `json:"study_id" binding:"required"`
	Stage   model.KanbanStage `json:"stage" binding:"required"`
}

func (h *SiteHandler) PreviewMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "study_id and stage are required")
		return
	}
	preview, err := h.activation.PreviewMove(c.Request.Context(), c.Param("id"), req.StudyID, req.Stage)
	if err != nil {
		respondError(c, h.logger, "PreviewMove", err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *SiteHandler) MoveSite(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "study_id and stage are required")
		return
	}
	res, err := h.activation.MoveSite(c.Request.Context(), c.Param("id"), req.StudyID, req.Stage)
	if err != nil {
		respondError(c, h.logger, "MoveSite", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
