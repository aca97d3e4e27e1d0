package roles

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/platform/httpx"
	"github.com/emporia/console/internal/rbac"
)

// Handler manages role management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ResourceRoles, access.ActionView))
		r.Get("/", h.listRoles)
		r.Get("/{role}", h.showRole)
	})
	r.With(h.rbac.Require(access.ResourceRoles, access.ActionEdit)).Put("/{role}", h.updateRole)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) showRole(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetRole(r.Context(), access.ParseRole(chi.URLParam(r, "role")))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

type updateRequest struct {
	Permissions map[string]map[string]bool `json:"permissions"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	matrix, err := parseMatrix(req.Permissions)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	detail, err := h.service.UpdateRole(r.Context(), actor, access.ParseRole(chi.URLParam(r, "role")), matrix)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

// parseMatrix rejects unknown resources or actions instead of dropping them,
// so a typo in an edit is reported.
func parseMatrix(raw map[string]map[string]bool) (access.Matrix, error) {
	out := access.Matrix{}
	for resName, byAction := range raw {
		res := access.ParseResource(resName)
		if !res.Valid() {
			return nil, fmt.Errorf("unknown resource %q", resName)
		}
		for actName, allowed := range byAction {
			act := access.ParseAction(actName)
			if !act.Valid() {
				return nil, fmt.Errorf("unknown action %q on %s", actName, resName)
			}
			if out[res] == nil {
				out[res] = map[access.Action]bool{}
			}
			out[res][act] = allowed
		}
	}
	return out, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownRole):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, rbac.ErrSelfChange), errors.Is(err, rbac.ErrBeyondActor):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, rbac.ErrRoleNotEditable):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("roles request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

