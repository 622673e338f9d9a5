package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinemind/internal/app"
	"cinemind/internal/config"
	"cinemind/internal/crawler"
	"cinemind/internal/logger"
	"cinemind/internal/telemetry"
	"cinemind/middleware"
	"cinemind/models"
	"cinemind/routes"
	"cinemind/services"

	"github.com/gin-gonic/gin"
)

const (
	refreshJobTag   = "refresh-all"
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.OTelEnabled {
		shutdownTracer, err := telemetry.InitTracer(telemetry.TracerConfig{
			ServiceName: "cinemind",
			Version:     routes.APIVersion,
			Endpoint:    cfg.OTelEndpoint,
			Environment: cfg.GinMode,
			SampleRatio: cfg.OTelSampleRatio,
		})
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer shutdownTracer()
		}
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	defer application.Close()

	jobs, stopJobs, err := application.StartJobs()
	if err != nil {
		log.Fatal("Failed to initialize job backend:", err)
	}

	var scheduler *crawler.Scheduler
	if cfg.RefreshCron != "" {
		scheduler = crawler.NewScheduler()
		if err := scheduler.ScheduleCron(refreshJobTag, cfg.RefreshCron, func() {
			refresh(jobs)
		}); err != nil {
			log.Fatal("Invalid REFRESH_CRON:", err)
		}
		scheduler.Start()
		logger.Info("scheduled refresh enabled", "cron", cfg.RefreshCron)
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if cfg.OTelEnabled {
		router.Use(middleware.TracingMiddleware(), middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(application.Metrics))
	router.Use(middleware.RequestSizeLimit(middleware.MaxRequestBody))

	authMiddleware := middleware.NewAuthMiddleware(cfg)
	router.Use(authMiddleware.OptionalAuth())
	router.Use(middleware.RateLimitMiddleware(application.UniversalRedis(), cfg))

	routes.SetupRoutes(router, cfg, routes.Dependencies{
		RAG:       application.RAG,
		Jobs:      jobs,
		Inspector: application.Inspector,
		Export:    application.Export,
		Sentiment: application.Sentiment,
	}, authMiddleware)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "job_backend", jobs.Backend())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := stopJobs(shutdownCtx); err != nil {
		logger.Error("stopping ingestion jobs", "error", err)
	}
	logger.Info("server exited")
}

// refresh submits a full ingestion run from the scheduler.
func refresh(jobs *services.JobService) {
	job, err := jobs.Submit(context.Background(), models.TargetAll, services.DefaultAPILimit)
	if err != nil {
		logger.Error("scheduled refresh failed", "error", err)
		return
	}
	logger.Info("scheduled refresh submitted", "job_id", job.JobID)
}
