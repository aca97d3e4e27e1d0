package media

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/platform/httpx"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/shared"
)

const (
	maxUploadBytes = 20 << 20
	uploadLimit    = 30
	uploadWindow   = time.Minute
)

// Handler serves the media library.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler creates a media handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers /media routes.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(uploadLimit, uploadWindow,
		httprate.WithKeyFuncs(userKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "upload limit reached, try again shortly")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ResourceMedia, access.ActionView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.With(h.rbac.Require(access.ResourceMedia, access.ActionCreate), limiter).Post("/", h.upload)
	r.With(h.rbac.Require(access.ResourceMedia, access.ActionDelete)).Delete("/{id}", h.delete)
}

type listResponse struct {
	Assets     []Asset           `json:"assets"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	assets, total, err := h.service.List(r.Context(), ListFilter{
		Search: r.URL.Query().Get("q"),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if assets == nil {
		assets = []Asset{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Assets: assets, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	asset, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "file exceeds 20 MB")
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expected multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing file field")
		return
	}
	defer file.Close()
	if header.Size > maxUploadBytes {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "file exceeds 20 MB")
		return
	}

	body, contentType, err := sniff(file, header.Header.Get("Content-Type"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	asset, err := h.service.Upload(r.Context(), actor.UserID, Upload{
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        body,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, asset)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor.UserID, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnsupportedType):
		httpx.Problem(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", err.Error())
	case errors.Is(err, ErrEmpty):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("media request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// sniff trusts a declared content type unless it is generic, in which case the
// first 512 bytes decide.
func sniff(r io.Reader, declared string) (io.Reader, string, error) {
	declared = strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
	if declared != "" && declared != "application/octet-stream" {
		return r, strings.ToLower(declared), nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", err
	}
	head = head[:n]
	detected := strings.SplitN(http.DetectContentType(head), ";", 2)[0]
	return io.MultiReader(bytes.NewReader(head), r), detected, nil
}

func userKey(r *http.Request) (string, error) {
	if id, ok := shared.UserIDFromContext(r.Context()); ok {
		return "media:" + strconv.FormatInt(id, 10), nil
	}
	return httprate.KeyByIP(r)
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
