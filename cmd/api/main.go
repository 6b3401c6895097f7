package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	contractmq "github.com/sahasand/site-tracker/contracts/mq"
	"github.com/sahasand/site-tracker/internal/config"
	"github.com/sahasand/site-tracker/internal/handler"
	"github.com/sahasand/site-tracker/internal/httpserver"
	"github.com/sahasand/site-tracker/internal/mqhandler"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/internal/service"
	"github.com/sahasand/site-tracker/pkg/circuitbreaker"
	"github.com/sahasand/site-tracker/pkg/db"
	"github.com/sahasand/site-tracker/pkg/logger"
	"github.com/sahasand/site-tracker/pkg/mq"
	"github.com/sahasand/site-tracker/pkg/otel"
	"github.com/sahasand/site-tracker/pkg/outbox"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "site-tracker-api",
		ServiceVersion: "1.0.0",
		Environment:    config.Env(),
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
		SampleRatio:    cfg.Otel.SampleRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	log.Info("Starting site-tracker API...",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("port", cfg.Server.Port),
		zap.Int("stuck_threshold_days", cfg.Activation.StuckThresholdDays),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		stores      repository.Stores
		outboxStore outbox.Store
		checks      []httpserver.ReadinessCheck
	)

	switch cfg.Storage.Driver {
	case "memory":
		ob := outbox.NewMemoryStore()
		mem := repository.NewMemoryStore().WithOutbox(ob)
		stores = mem.Stores()
		outboxStore = ob
		log.Warn("Using in-memory storage; data is lost on restart")
	default:
		dbConn, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("DB initialization failed", zap.Error(err))
		}
		defer dbConn.Close()
		ob := outbox.NewRepository(dbConn)
		stores = repository.NewPostgresStores(dbConn, ob, log)
		outboxStore = ob
		checks = append(checks, httpserver.ReadinessCheck{Name: "database", Check: dbConn.Ping})
	}

	// Outbox events go to RabbitMQ when enabled; otherwise the activity
	// feed is fed in-process.
	var publisher outbox.Publisher
	if cfg.Outbox.Enabled {
		mqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer mqPublisher.Close()
		publisher = mqPublisher
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "rabbitmq",
			Check: func(context.Context) error {
				if !mqPublisher.IsConnected() {
					return errors.New("publisher disconnected")
				}
				return nil
			},
		})
	} else {
		bus := mqhandler.NewInProcessPublisher(log)
		bus.Subscribe(contractmq.RoutingKeyMilestoneUpdated,
			mqhandler.NewMilestoneUpdatedHandler(stores.Activity, nil, log).Handle)
		publisher = bus
	}

	dispatcher := outbox.NewDispatcher(outboxStore, publisher, log).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithInterval(time.Duration(cfg.Outbox.PollIntervalMS) * time.Millisecond).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithCircuitBreaker(circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()))
	go dispatcher.Start(ctx)
	replayService := outbox.NewReplayService(outboxStore, publisher, log)

	settings := cfg.Settings()
	studyService := service.NewStudyService(stores.Studies, log)
	siteService := service.NewSiteService(stores.Studies, stores.Sites, log)
	activationService := service.NewActivationService(stores.Sites, stores.Milestones, log)
	analyticsService := service.NewAnalyticsService(stores.Studies, stores.Sites, settings, log)
	portfolioService := service.NewPortfolioService(stores.Studies, stores.Sites, settings, cfg.Activation.PortfolioConcurrency, log)
	importService := service.NewImportService(stores.Studies, stores.Sites, log)
	exportService := service.NewExportService(stores.Studies, stores.Sites)
	performanceService := service.NewPerformanceService(stores.Performance, stores.Studies, stores.Sites)
	activityService := service.NewActivityService(stores.Sites, stores.Activity)

	router := httpserver.NewRouter(httpserver.Handlers{
		Studies: handler.NewStudyHandler(studyService, siteService, analyticsService,
			importService, exportService, performanceService, log),
		Sites:      handler.NewSiteHandler(siteService, activationService, activityService, performanceService, log),
		Milestones: handler.NewMilestoneHandler(activationService, log),
		Portfolio:  handler.NewPortfolioHandler(portfolioService, performanceService, log),
		Admin:      handler.NewAdminHandler(replayService, log),
	}, cfg.JWT.Secret, checks, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down site-tracker API gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("site-tracker API shutdown complete")
}
