package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/shared"
	"github.com/emporia/console/internal/view"
)

// Counter reports the headline number shown on a dashboard tile.
type Counter func(ctx context.Context) (int, error)

// Dashboard serves the console home page.
type Dashboard struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	counters  map[string]Counter
}

// NewDashboard builds the home page handler. counters is keyed by navigation
// href; tiles the viewer cannot see are never counted.
func NewDashboard(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, counters map[string]Counter) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{logger: logger, templates: templates, csrf: csrf, rbac: rbac, counters: counters}
}

// MountRoutes registers the dashboard at the router root.
func (d *Dashboard) MountRoutes(r chi.Router) {
	r.With(requireSignIn, d.rbac.AdminArea()).Get("/", d.show)
}

func requireSignIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.UserIDFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Dashboard) show(w http.ResponseWriter, r *http.Request) {
	resolver, _ := rbac.ResolverFromContext(r.Context())
	nav := resolver.Navigation()

	sess := shared.SessionFromContext(r.Context())
	token, err := d.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		d.logger.Error("ensure csrf token", slog.Any("error", err))
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Dashboard",
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Nav:         nav,
		Role:        resolver.Role(),
		Data:        d.counts(r.Context(), nav),
	}
	if err := d.templates.Render(w, "pages/home.html", data); err != nil {
		d.logger.Error("render dashboard", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// counts runs the visible counters concurrently. A failing counter drops its
// tile number and is logged; the page still renders.
func (d *Dashboard) counts(ctx context.Context, nav []access.NavItem) map[string]int64 {
	var (
		mu  sync.Mutex
		out = make(map[string]int64, len(nav))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range nav {
		count, ok := d.counters[item.Href]
		if !ok {
			continue
		}
		href := item.Href
		g.Go(func() error {
			n, err := count(gctx)
			if err != nil {
				d.logger.Warn("dashboard counter", slog.String("href", href), slog.Any("error", err))
				return nil
			}
			mu.Lock()
			out[href] = int64(n)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
