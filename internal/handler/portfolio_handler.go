package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/csvimport"
	"github.com/sahasand/site-tracker/internal/service"
)

type PortfolioHandler struct {
	portfolio   *service.PortfolioService
	performance *service.PerformanceService
	logger      *zap.Logger
}

func NewPortfolioHandler(portfolio *service.PortfolioService, performance *service.PerformanceService, logger *zap.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio, performance: performance, logger: logger}
}

func (h *PortfolioHandler) Summary(c *gin.Context) {
	sum, err := h.portfolio.Summary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "PortfolioSummary", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *PortfolioHandler) Studies(c *gin.Context) {
	studies, err := h.portfolio.Studies(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "PortfolioStudies", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studies": studies})
}

func (h *PortfolioHandler) Attention(c *gin.Context) {
	items, err := h.portfolio.Attention(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "PortfolioAttention", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *PortfolioHandler) Pipelines(c *gin.Context) {
	out, err := h.portfolio.Pipelines(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "PortfolioPipelines", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studies": out})
}

func (h *PortfolioHandler) Stuck(c *gin.Context) {
	report, err := h.portfolio.Stuck(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "StuckSites", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *PortfolioHandler) Performance(c *gin.Context) {
	rows, err := h.performance.All(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Performance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": rows})
}

// SitesTemplate serves the CSV import template.
func SitesTemplate(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="sites.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csvimport.SampleCSV()))
}
