package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/emporia/console/internal/app"
	"github.com/emporia/console/internal/audit"
	audithttp "github.com/emporia/console/internal/audit/http"
	"github.com/emporia/console/internal/auth"
	"github.com/emporia/console/internal/catalog"
	"github.com/emporia/console/internal/media"
	"github.com/emporia/console/internal/notifications"
	"github.com/emporia/console/internal/observability"
	"github.com/emporia/console/internal/platform/cache"
	"github.com/emporia/console/internal/platform/db"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/roles"
	"github.com/emporia/console/internal/sales"
	"github.com/emporia/console/internal/shared"
	"github.com/emporia/console/internal/users"
	"github.com/emporia/console/internal/view"
	"github.com/emporia/console/jobs"
	"github.com/emporia/console/report"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the console HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				slog.Default().Info("test mode detected, skipping runtime startup")
				return nil
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.IdleLogout, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	auditLogger := shared.NewAuditLogger(pool)

	usersService := users.NewService(users.NewRepository(pool), auditLogger, logger)
	permissionStore := rbac.NewCachedStore(rbac.NewPGStore(pool), redisClient, cfg.PermissionCacheTTL, logger)
	rbacService := rbac.NewService(permissionStore, usersService, auditLogger, metrics, logger)
	usersService.SetOverrideResetter(rbacService)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger, Metrics: metrics}
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	authService := auth.NewService(auth.NewRepository(pool), auditLogger, logger)
	catalogService := catalog.NewService(catalog.NewRepository(pool), auditLogger, logger)
	salesService := sales.NewService(sales.NewRepository(pool), auditLogger, logger)
	reportClient := report.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout)

	objectStore, err := media.NewMinioStore(ctx, media.StoreConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("init media storage: %w", err)
	}
	mediaService := media.NewService(media.NewRepository(pool), objectStore, auditLogger, logger)
	notificationService := notifications.NewService(notifications.NewRepository(pool), auditLogger, logger)

	inspector := asynq.NewInspector(redisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
		Dashboard: app.NewDashboard(logger, templates, csrfManager, rbacMiddleware, map[string]app.Counter{
			"/products":      catalogService.Count,
			"/orders":        salesService.PendingOrders,
			"/quotes":        salesService.OpenQuotes,
			"/media":         mediaService.Count,
			"/notifications": notificationService.ActiveCount,
		}),
		AuthHandler:          auth.NewHandler(logger, authService, templates, sessionManager, csrfManager),
		UsersHandler:         users.NewHandler(logger, usersService, permissionsHandler, rbacMiddleware),
		RolesHandler:         roles.NewHandler(logger, roles.NewService(rbacService), rbacMiddleware),
		PermissionsHandler:   permissionsHandler,
		CatalogHandler:       catalog.NewHandler(logger, catalogService, rbacMiddleware),
		SalesHandler:         sales.NewHandler(logger, salesService, reportClient, rbacMiddleware),
		MediaHandler:         media.NewHandler(logger, mediaService, rbacMiddleware),
		NotificationsHandler: notifications.NewHandler(logger, notificationService, rbacMiddleware),
		AuditHandler:         audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
