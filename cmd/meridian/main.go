package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridianops/meridian/internal/access"
	"github.com/meridianops/meridian/internal/app"
	"github.com/meridianops/meridian/internal/audit"
	audithttp "github.com/meridianops/meridian/internal/audit/http"
	"github.com/meridianops/meridian/internal/auth"
	"github.com/meridianops/meridian/internal/hierarchy"
	hierarchyhttp "github.com/meridianops/meridian/internal/hierarchy/http"
	"github.com/meridianops/meridian/internal/intelligence"
	"github.com/meridianops/meridian/internal/observability"
	"github.com/meridianops/meridian/internal/platform/cache"
	"github.com/meridianops/meridian/internal/platform/db"
	"github.com/meridianops/meridian/internal/privileges"
	privilegeshttp "github.com/meridianops/meridian/internal/privileges/http"
	"github.com/meridianops/meridian/internal/roles"
	"github.com/meridianops/meridian/internal/shared"
	"github.com/meridianops/meridian/internal/users"
	"github.com/meridianops/meridian/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{
		MaxConns:        cfg.PGMaxConns,
		MinConns:        cfg.PGMinConns,
		MaxConnLifetime: cfg.PGConnMaxLife,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "meridian_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("connect job queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	invalidator := access.NewInvalidator(redisClient)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, auditLogger, invalidator, logger)

	hierarchyRepo := hierarchy.NewRepository(dbpool)
	hierarchyMetrics := hierarchy.NewMetrics(metrics.Registerer())
	hierarchyService := hierarchy.NewService(hierarchyRepo, auditLogger, invalidator, hierarchyMetrics, logger)

	privilegesRepo := privileges.NewRepository(dbpool)
	privilegesService := privileges.NewService(privilegesRepo, auditLogger, jobsClient, idempotencyStore, privileges.Limits{
		MinDuration: cfg.GrantMinDuration,
		MaxDuration: cfg.GrantMaxDuration,
	}, logger)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditLogger, logger)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	accessMetrics := access.NewMetrics(metrics.Registerer())
	resolverCache := access.NewResolverCache(redisClient, hierarchyService, cfg.ResolverCacheTTL, accessMetrics, logger)
	evaluator := access.NewService(rolesService, resolverCache, privilegesService, accessMetrics, logger)
	guard := access.Middleware{Service: evaluator, Logger: logger}

	usersHandler := users.NewHandler(logger, usersService, guard)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)
	permissionsHandler := roles.NewPermissionsHandler(logger, rolesService, guard)
	hierarchyHandler := hierarchyhttp.NewHandler(logger, hierarchyService, guard)
	privilegesHandler := privilegeshttp.NewHandler(logger, privilegesService, guard)
	accessHandler := access.NewHandler(logger, evaluator, guard)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audithttp.NewHandler(logger, auditService, audit.CSVExporter{}, guard)

	reportClient := intelligence.NewClient(cfg.ReportingURL)
	reviewService := intelligence.NewReviewService(usersService, rolesService, evaluator, privilegesService)
	reportHandler := intelligence.NewHandler(logger, reportClient, reviewService, guard)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Metrics:        metrics,

		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		HierarchyHandler:   hierarchyHandler,
		PrivilegesHandler:  privilegesHandler,
		AccessHandler:      accessHandler,
		AuditHandler:       auditHandler,
		ReportHandler:      reportHandler,
		JobHandler:         jobHandler,

		Pool:  dbpool,
		Redis: redisClient,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
