package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/platform/httpx"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	permissions *rbac.PermissionsHandler
	rbac        rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, permissions *rbac.PermissionsHandler, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, permissions: permissions, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ResourceUsers, access.ActionView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.Require(access.ResourceUsers, access.ActionCreate)).Post("/", h.create)
	r.With(h.rbac.Require(access.ResourceUsers, access.ActionEdit)).Patch("/{id}/role", h.changeRole)
	r.With(h.rbac.Require(access.ResourceUsers, access.ActionDelete)).Delete("/{id}", h.deactivate)
	if h.permissions != nil {
		r.Route("/{id}/permissions", h.permissions.MountUserRoutes)
	}
}

type listResponse struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	f := ListFilter{Search: r.URL.Query().Get("q"), Limit: perPage, Offset: (page - 1) * perPage}
	if raw := r.URL.Query().Get("role"); raw != "" {
		f.Role = access.ParseRole(raw)
		if !f.Role.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role")
			return
		}
	}
	users, total, err := h.service.List(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Users: users, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	u, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	u, err := h.service.ChangeRole(r.Context(), actor, id, access.ParseRole(req.Role))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Deactivate(r.Context(), actor, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEmailTaken):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrAdminOnly), errors.Is(err, ErrSelfRoleChange):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrLastAdmin), errors.Is(err, ErrSelfDeactivate):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidRole):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) && !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("users request", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
