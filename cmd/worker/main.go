package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	contractmq "github.com/sahasand/site-tracker/contracts/mq"
	"github.com/sahasand/site-tracker/internal/config"
	"github.com/sahasand/site-tracker/internal/mqhandler"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/pkg/db"
	"github.com/sahasand/site-tracker/pkg/logger"
	"github.com/sahasand/site-tracker/pkg/mq"
	"github.com/sahasand/site-tracker/pkg/otel"
	redisclient "github.com/sahasand/site-tracker/pkg/redis"
	"github.com/sahasand/site-tracker/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "site-tracker-worker",
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

	log.Info("Starting activity worker...",
		zap.String("queue", cfg.Worker.Queue),
		zap.String("routing_key", contractmq.RoutingKeyMilestoneUpdated),
	)

	rdb, err := redisclient.Connect(context.Background(), cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable; dedup and retry counting degrade until it returns", zap.Error(err))
	}
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, time.Duration(cfg.Worker.DedupTTLS)*time.Second, log)
	attempts := util.NewAttempts(rdb, 24*time.Hour)

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()
	activityRepo := repository.NewActivityRepository(dbConn, log)

	dlqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init dead letter publisher", zap.Error(err))
	}
	defer dlqPublisher.Close()

	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.Worker.Queue, contractmq.RoutingKeyMilestoneUpdated, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.WithDeadLetter(dlqPublisher, attempts, int64(cfg.Worker.MaxRetries))
	consumer.SetHandler(mqhandler.NewMilestoneUpdatedHandler(activityRepo, deduper, log).Handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Fatal("Activity consumer failed", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down activity worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server shutdown error", zap.Error(err))
	}
	log.Info("Activity worker stopped")
}
