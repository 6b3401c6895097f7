package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/service"
)

type MilestoneHandler struct {
	activation *service.ActivationService
	logger     *zap.Logger
}

func NewMilestoneHandler(activation *service.ActivationService, logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{activation: activation, logger: logger}
}

type milestoneRequest struct {
	Status      model.MilestoneStatus `json:"status" binding:"required"`
	PlannedDate string                `json:"planned_date"`
	ActualDate  string                `json:"actual_date"`
	Notes       *string               `json:"notes"`
}

// UpdateMilestone replaces status, dates and notes of one milestone.
func (h *MilestoneHandler) UpdateMilestone(c *gin.Context) {
	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	planned, err := parseDate("planned_date", req.PlannedDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	actual, err := parseDate("actual_date", req.ActualDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.activation.UpdateMilestone(c.Request.Context(), c.Param("id"), model.UpdateMilestoneInput{
		Status:      req.Status,
		PlannedDate: planned,
		ActualDate:  actual,
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(c, h.logger, "UpdateMilestone", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type bulkRequest struct {
	SiteIDs       []string              `json:"site_ids" binding:"required"`
	MilestoneType model.MilestoneType   `json:"milestone_type" binding:"required"`
	Status        model.MilestoneStatus `json:"status" binding:"required"`
	ActualDate    string                `json:"actual_date"`
}

func (h *MilestoneHandler) BulkUpdate(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "site_ids, milestone_type and status are required")
		return
	}
	actual, err := parseDate("actual_date", req.ActualDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.activation.BulkUpdateMilestone(c.Request.Context(), service.BulkUpdateInput{
		SiteIDs:       req.SiteIDs,
		MilestoneType: req.MilestoneType,
		Status:        req.Status,
		ActualDate:    actual,
	})
	if err != nil {
		respondError(c, h.logger, "BulkUpdate", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
