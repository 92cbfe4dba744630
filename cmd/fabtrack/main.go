package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fabtrack/fabtrack/cmd/fabtrack/cli"
	"github.com/fabtrack/fabtrack/internal/app"
	"github.com/fabtrack/fabtrack/internal/audit"
	audithttp "github.com/fabtrack/fabtrack/internal/audit/http"
	"github.com/fabtrack/fabtrack/internal/auth"
	"github.com/fabtrack/fabtrack/internal/directory"
	"github.com/fabtrack/fabtrack/internal/observability"
	"github.com/fabtrack/fabtrack/internal/orders"
	"github.com/fabtrack/fabtrack/internal/platform/cache"
	"github.com/fabtrack/fabtrack/internal/platform/db"
	"github.com/fabtrack/fabtrack/internal/platform/storage"
	"github.com/fabtrack/fabtrack/internal/rbac"
	"github.com/fabtrack/fabtrack/internal/realtime"
	"github.com/fabtrack/fabtrack/internal/shared"
	"github.com/fabtrack/fabtrack/jobs"
	"github.com/fabtrack/fabtrack/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "jobs":
		err = runJobs(ctx, cfg, logger, args)
	default:
		err = fmt.Errorf("unknown command %q (want serve, migrate or jobs)", cmd)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	applied, err := db.Migrate(ctx, pool, migrations.FS)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Any("files", applied))
	return nil
}

func runJobs(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	dir, err := newDirectory(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	jobsCLI := cli.NewJobsCLI(redisOpts(cfg))
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	return jobsCLI.Run(ctx, args, orders.NewPGStore(pool), dir, os.Stdout)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()
	dir, err := newDirectory(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}

	jobClient := jobs.NewClient(redisOpts(cfg))
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	orderCache := orders.NewCache()
	svcCfg := orders.ServiceConfig{
		Cache:     orderCache,
		Mirror:    jobClient,
		Directory: dir,
		Metrics:   metrics,
		Logger:    logger,
	}

	var (
		store    orders.DocumentStore
		listener orders.Listener
		authRepo auth.Repository
		auditH   *audithttp.Handler
	)
	if cfg.UsesMemoryStore() {
		mem := orders.NewMemoryStore()
		store, listener = mem, mem
		authRepo = auth.NewMemoryRepository()
		logger.Warn("using in-memory order store")
	} else {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		if _, err := db.Migrate(ctx, pool, migrations.FS); err != nil {
			return err
		}
		store, listener = orders.NewPGStore(pool), orders.NewPGListener(pool)
		authRepo = auth.NewRepository(pool)
		svcCfg.Approvals = shared.NewApprovalRecorder(pool, logger)
		svcCfg.Audit = shared.NewAuditLogger(pool)
		svcCfg.Idempotency = shared.NewIdempotencyStore(pool)
		auditH = audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)))
	}
	svcCfg.Store = store

	if cfg.DesignsEnabled() {
		designs, err := storage.NewS3Designs(ctx, storage.S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
			PresignTTL:      cfg.S3PresignTTL,
		})
		if err != nil {
			return err
		}
		svcCfg.Designs = designs
	}

	authService := auth.NewService(authRepo, dir, auth.Config{
		AdminEmail:            cfg.AdminEmail,
		AdminDefaultPassword:  cfg.AdminDefaultPassword,
		ClientDefaultPassword: cfg.ClientDefaultPassword,
	}, logger)
	if err := authService.EnsureAdmin(ctx); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	orderService := orders.NewService(svcCfg)
	if err := metrics.RegisterOrderGauge(orderCache.CountByStage); err != nil {
		return err
	}

	hub := realtime.NewHub(orderCache, logger)
	watcher := orders.NewWatcher(orders.WatcherConfig{
		Store:     store,
		Listener:  listener,
		Cache:     orderCache,
		Logger:    logger,
		OnRefresh: hub.PublishSnapshots,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		RBACMiddleware:   rbac.Middleware{Logger: logger},
		AuthHandler:      auth.NewHandler(logger, authService, sessionManager, csrfManager),
		OrdersHandler:    orders.NewHandler(logger, orderService),
		DirectoryHandler: directory.NewHandler(logger, dir),
		StreamHandler:    realtime.NewHandler(hub, cfg.CORSAllowedOrigins),
		AuditHandler:     auditH,
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newDirectory(ctx context.Context, cfg *app.Config, redisClient *redis.Client, logger *slog.Logger) (*directory.Service, error) {
	source, err := directory.NewSheetsSource(ctx, directory.SheetsConfig{
		BaseURL:       cfg.SheetsBaseURL,
		SpreadsheetID: cfg.SheetsSpreadsheetID,
		Range:         cfg.SheetsRange,
		APIKey:        cfg.SheetsAPIKey,
		Timeout:       cfg.SheetsTimeout,
	})
	if err != nil {
		return nil, err
	}
	return directory.NewService(source, redisClient, cfg.DirectoryCacheTTL, logger), nil
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
