package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edma-uni/reporter/internal/config"
	"github.com/edma-uni/reporter/internal/database"
	"github.com/edma-uni/reporter/internal/httpserver"
	"github.com/edma-uni/reporter/internal/ingest"
	"github.com/edma-uni/reporter/internal/metrics"
	"github.com/edma-uni/reporter/internal/middleware"
	natsqueue "github.com/edma-uni/reporter/internal/queue/nats"
	"github.com/edma-uni/reporter/internal/refresh"
	"github.com/edma-uni/reporter/internal/reporting"
	"github.com/edma-uni/reporter/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting reporter",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics("reporter", prometheus.DefaultRegisterer)

	// Storage. Falls back to in-memory when PostgreSQL is unavailable so a
	// development instance still comes up end to end.
	var eventStore storage.EventStore
	var viewStore storage.ViewStore

	db, err := database.NewPostgresDB(ctx, cfg.Database)
	if err != nil {
		logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
		db = nil
		mem := storage.NewInMemoryStore()
		eventStore = mem
		viewStore = mem
	} else {
		defer db.Close()
		logger.Info("connected to PostgreSQL")

		pg := storage.NewPostgresStore(db.Pool)
		if err := pg.InitSchema(ctx); err != nil {
			logger.Fatal("failed to initialize schema", zap.Error(err))
		}
		eventStore = pg
		viewStore = pg
	}

	var redisClient *redis.Client
	redisDB, err := database.NewRedisDB(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis not available, report caching disabled", zap.Error(err))
		redisDB = nil
	} else {
		defer redisDB.Close()
		redisClient = redisDB.Client
	}

	// Ingestion consumer over the durable subscription.
	consumer := ingest.NewConsumer(eventStore, m, logger)
	natsClient, err := natsqueue.NewClient(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Warn("NATS not available, ingestion disabled", zap.Error(err))
		natsClient = nil
	} else {
		defer natsClient.Stop()
		go func() {
			if err := consumer.Run(ctx, natsClient); err != nil && ctx.Err() == nil {
				logger.Error("consumer stopped", zap.Error(err))
			}
		}()
	}

	// View refresh loop.
	scheduler := refresh.NewScheduler(viewStore, cfg.Refresh.Interval, m, logger)
	go scheduler.Run(ctx)

	reports := reporting.NewService(viewStore, redisClient, cfg.Report, m, logger)

	deps := &httpserver.Dependencies{
		Reports:   reports,
		Refresher: scheduler,
		DB:        db,
		Redis:     redisDB,
		Config:    cfg,
		Logger:    logger,
	}
	if natsClient != nil {
		deps.NATS = natsClient
	}
	handler := httpserver.NewServer(deps)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
