package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/emporia/console/internal/audit/http"
	"github.com/emporia/console/internal/auth"
	"github.com/emporia/console/internal/catalog"
	"github.com/emporia/console/internal/media"
	"github.com/emporia/console/internal/notifications"
	"github.com/emporia/console/internal/observability"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/roles"
	"github.com/emporia/console/internal/sales"
	"github.com/emporia/console/internal/shared"
	"github.com/emporia/console/internal/users"
	"github.com/emporia/console/jobs"
	"github.com/emporia/console/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	Dashboard            *Dashboard
	AuthHandler          *auth.Handler
	UsersHandler         *users.Handler
	RolesHandler         *roles.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	CatalogHandler       *catalog.Handler
	SalesHandler         *sales.Handler
	MediaHandler         *media.Handler
	NotificationsHandler *notifications.Handler
	AuditHandler         *audithttp.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Dashboard != nil {
		params.Dashboard.MountRoutes(r)
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.CatalogHandler != nil {
		r.Route("/products", params.CatalogHandler.MountRoutes)
	}
	if params.SalesHandler != nil {
		r.Route("/orders", params.SalesHandler.MountOrderRoutes)
		r.Route("/quotes", params.SalesHandler.MountQuoteRoutes)
	}
	if params.MediaHandler != nil {
		r.Route("/media", params.MediaHandler.MountRoutes)
	}
	if params.NotificationsHandler != nil {
		r.Route("/notifications", params.NotificationsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.With(params.RBACMiddleware.AdminArea()).Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with an hour of browser caching.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
