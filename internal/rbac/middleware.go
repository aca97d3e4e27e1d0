package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/shared"
)

// DecisionRecorder counts guarded permission checks.
type DecisionRecorder interface {
	RecordDecision(resource, action string, allowed bool)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Metrics DecisionRecorder
}

// Authenticate binds the signed-in principal and its resolver to the request
// context. Requests without a signed-in, active user get 401.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ResolverFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		userID, ok := shared.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		p, err := m.Service.Principal(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			m.logger().Error("rbac principal lookup", slog.Int64("user_id", userID), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		resolver := m.Service.Resolver(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ContextWithResolver(r.Context(), p, resolver)))
	})
}

// AdminArea rejects principals whose role has no console access.
func (m Middleware) AdminArea() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolver, _ := ResolverFromContext(r.Context())
			if !resolver.Role().AdminArea() {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// Require rejects the request with 403 unless the principal may perform
// action on resource.
func (m Middleware) Require(resource access.Resource, action access.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolver, _ := ResolverFromContext(r.Context())
			allowed := resolver.Can(resource, action)
			if m.Metrics != nil {
				m.Metrics.RecordDecision(string(resource), string(action), allowed)
			}
			if !allowed {
				m.logger().Info("rbac denied",
					slog.String("role", resolver.Role().String()),
					slog.String("resource", string(resource)),
					slog.String("action", string(action)),
					slog.String("path", r.URL.Path))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
