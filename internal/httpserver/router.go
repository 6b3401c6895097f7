// Package httpserver wires the gin engine: middleware, health endpoints
// and the /api/v1 routes.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/handler"
	"github.com/sahasand/site-tracker/pkg/otel"
	"github.com/sahasand/site-tracker/pkg/rbac"
)

// ReadinessCheck is one dependency /readyz reports on.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handlers struct {
	Studies    *handler.StudyHandler
	Sites      *handler.SiteHandler
	Milestones *handler.MilestoneHandler
	Portfolio  *handler.PortfolioHandler
	// Admin is nil when there is no outbox to replay.
	Admin *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, checks []ReadinessCheck, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		TraceMiddleware(),
		otel.GinMiddleware(),
		MetricsMiddleware(),
		LoggingMiddleware(logger),
	)

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	r.GET("/healthz", health)
	r.HEAD("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", health)
	r.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for _, chk := range checks {
			if err := chk.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": chk.Name + "_not_ready",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware(jwtSecret))
	{
		read := RequirePermission(rbac.PermissionReadStudies)
		manageStudies := RequirePermission(rbac.PermissionManageStudies)
		manageSites := RequirePermission(rbac.PermissionManageSites)
		portfolio := RequirePermission(rbac.PermissionReadPortfolio)

		api.GET("/studies", read, h.Studies.ListStudies)
		api.POST("/studies", manageStudies, h.Studies.CreateStudy)
		api.GET("/studies/:id", read, h.Studies.GetStudy)
		api.PUT("/studies/:id", manageStudies, h.Studies.UpdateStudy)
		api.DELETE("/studies/:id", manageStudies, h.Studies.DeleteStudy)

		api.GET("/studies/:id/sites", read, h.Studies.ListSites)
		api.POST("/studies/:id/sites", manageSites, h.Studies.CreateSites)
		api.GET("/studies/:id/sites/export", read, h.Studies.ExportSites)
		api.POST("/studies/:id/sites/import", RequirePermission(rbac.PermissionImportSites), h.Studies.ImportSites)
		api.GET("/studies/:id/board", read, h.Studies.Board)
		api.GET("/studies/:id/analytics", read, h.Studies.Analytics)
		api.GET("/studies/:id/summary", read, h.Studies.Summary)
		api.GET("/studies/:id/performance", read, h.Studies.Performance)

		api.GET("/sites/:id", read, h.Sites.GetSite)
		api.PUT("/sites/:id", manageSites, h.Sites.UpdateSite)
		api.DELETE("/sites/:id", manageSites, h.Sites.DeleteSite)
		api.GET("/sites/:id/activity", read, h.Sites.Activity)
		api.GET("/sites/:id/performance", read, h.Sites.Performance)
		api.POST("/sites/:id/move/preview", read, h.Sites.PreviewMove)
		api.POST("/sites/:id/move", RequirePermission(rbac.PermissionMoveSites), h.Sites.MoveSite)

		updateMilestones := RequirePermission(rbac.PermissionUpdateMilestones)
		api.PUT("/milestones/:id", updateMilestones, h.Milestones.UpdateMilestone)
		api.POST("/milestones/bulk", updateMilestones, h.Milestones.BulkUpdate)

		api.GET("/portfolio/summary", portfolio, h.Portfolio.Summary)
		api.GET("/portfolio/studies", portfolio, h.Portfolio.Studies)
		api.GET("/portfolio/attention", portfolio, h.Portfolio.Attention)
		api.GET("/portfolio/pipelines", portfolio, h.Portfolio.Pipelines)
		api.GET("/activation/stuck", portfolio, h.Portfolio.Stuck)
		api.GET("/performance", portfolio, h.Portfolio.Performance)

		api.GET("/templates/sites.csv", read, handler.SitesTemplate)

		if h.Admin != nil {
			admin := api.Group("/admin", RequirePermission(rbac.PermissionReplayEvents))
			admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}

func (r *Router) Run(addr string) error {
	return r.Engine.Run(addr)
}
