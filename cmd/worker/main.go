package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fabtrack/fabtrack/internal/app"
	"github.com/fabtrack/fabtrack/internal/directory"
	"github.com/fabtrack/fabtrack/internal/observability"
	"github.com/fabtrack/fabtrack/internal/platform/cache"
	"github.com/fabtrack/fabtrack/internal/platform/db"
	"github.com/fabtrack/fabtrack/internal/shared"
	"github.com/fabtrack/fabtrack/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	obs := observability.NewMetrics()
	metrics := obs.Jobs()
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: obs.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	source, err := directory.NewSheetsSource(ctx, directory.SheetsConfig{
		BaseURL:       cfg.SheetsBaseURL,
		SpreadsheetID: cfg.SheetsSpreadsheetID,
		Range:         cfg.SheetsRange,
		APIKey:        cfg.SheetsAPIKey,
		Timeout:       cfg.SheetsTimeout,
	})
	if err != nil {
		logger.Error("sheets client", slog.Any("error", err))
		os.Exit(1)
	}
	dir := directory.NewService(source, redisClient, cfg.DirectoryCacheTTL, logger)
	mirror := directory.NewAppsScriptMirror(cfg.MirrorURL, cfg.MirrorTimeout)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskSheetsAddOrder, Handler: jobs.NewSheetsMirrorJob(mirror, logger, metrics).Handle},
		{Type: jobs.TaskDirectoryRefresh, Handler: jobs.NewDirectoryRefreshJob(dir, logger, metrics).Handle},
	}
	cron := []jobs.CronRegistration{
		{Spec: "*/15 * * * *", Task: jobs.NewDirectoryRefreshTask()},
	}

	if !cfg.UsesMemoryStore() {
		pool, err := db.New(ctx, cfg.PGDSN, 2)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()

		cleanup := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics)
		cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetention)
		if err != nil {
			logger.Error("build cleanup task", slog.Any("error", err))
			os.Exit(1)
		}
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskIdempotencyCleanup, Handler: cleanup.Handle})
		cron = append(cron, jobs.CronRegistration{Spec: "30 3 * * *", Task: cleanupTask})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("metrics_addr", cfg.WorkerMetricsAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
