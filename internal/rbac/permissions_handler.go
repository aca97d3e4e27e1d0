package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/platform/httpx"
	"github.com/emporia/console/internal/shared"
)

// PermissionsHandler serves the signed-in user's permissions and the per-user
// override administration endpoints.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers /permissions routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.With(h.rbac.AdminArea()).Get("/me", h.me)
}

// MountUserRoutes registers override routes below /users/{id}/permissions.
func (h *PermissionsHandler) MountUserRoutes(r chi.Router) {
	r.With(h.rbac.Require(access.ResourceRoles, access.ActionView)).Get("/", h.show)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ResourceRoles, access.ActionEdit))
		r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(actorKey)))
		r.Post("/toggle", h.toggle)
		r.Put("/", h.set)
		r.Delete("/", h.reset)
	})
}

type meResponse struct {
	UserID int64         `json:"user_id"`
	Role   access.Role   `json:"role"`
	Nav    []string      `json:"nav"`
	Cells  []access.Cell `json:"cells"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	resolver, _ := ResolverFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, meResponse{
		UserID: p.UserID,
		Role:   p.Role,
		Nav:    resolver.VisibleNavItems(),
		Cells:  resolver.Grid(),
	})
}

func (h *PermissionsHandler) show(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	perms, err := h.service.UserPermissions(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type overrideRequest struct {
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
	State    string `json:"state" validate:"omitempty,oneof=inherited granted revoked"`
}

type overrideResponse struct {
	Overrides access.Overrides     `json:"overrides"`
	State     access.OverrideState `json:"state"`
}

func (h *PermissionsHandler) toggle(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(actor Principal, userID int64, req overrideRequest, res access.Resource, act access.Action) (access.Overrides, error) {
		return h.service.ToggleUserOverride(r.Context(), actor, userID, res, act)
	})
}

func (h *PermissionsHandler) set(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(actor Principal, userID int64, req overrideRequest, res access.Resource, act access.Action) (access.Overrides, error) {
		return h.service.SetUserOverrideState(r.Context(), actor, userID, res, act, access.ParseOverrideState(req.State))
	})
}

func (h *PermissionsHandler) write(w http.ResponseWriter, r *http.Request, apply func(actor Principal, userID int64, req overrideRequest, res access.Resource, act access.Action) (access.Overrides, error)) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, act := access.ParseResource(req.Resource), access.ParseAction(req.Action)
	actor, _ := PrincipalFromContext(r.Context())
	overrides, err := apply(actor, userID, req, res, act)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overrideResponse{Overrides: overrides, State: overrides.State(res, act)})
}

func (h *PermissionsHandler) reset(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	actor, _ := PrincipalFromContext(r.Context())
	if err := h.service.ResetUserOverrides(r.Context(), actor, userID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionsHandler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
	case errors.Is(err, ErrUnknownPermission):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrSelfChange), errors.Is(err, ErrBeyondActor):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrOverrideNotApplicable), errors.Is(err, ErrRoleNotEditable):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("rbac permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return 0, false
	}
	return id, true
}

func actorKey(r *http.Request) (string, error) {
	if id, ok := shared.UserIDFromContext(r.Context()); ok {
		return "rbac:" + strconv.FormatInt(id, 10), nil
	}
	return httprate.KeyByIP(r)
}

var validate = httpx.NewValidator()
