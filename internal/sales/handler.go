package sales

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/platform/httpx"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/shared"
	"github.com/emporia/console/report"
)

// Handler manages HTTP requests for orders and quotes.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer PDFRenderer
	rbac     rbac.Middleware
}

// NewHandler creates a new sales handler. renderer may be nil, in which case
// quote PDFs answer 501.
func NewHandler(logger *slog.Logger, service *Service, renderer PDFRenderer, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer, rbac: rbac}
}

// MountOrderRoutes registers /orders routes.
func (h *Handler) MountOrderRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ResourceOrders, access.ActionView))
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.showOrder)
	})
	r.With(h.rbac.Require(access.ResourceOrders, access.ActionEdit)).Patch("/{id}/status", h.updateOrderStatus)
}

// MountQuoteRoutes registers /quotes routes.
func (h *Handler) MountQuoteRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ResourceQuotes, access.ActionView))
		r.Get("/", h.listQuotes)
		r.Get("/{id}", h.showQuote)
		r.Get("/{id}/pdf", h.quotePDF)
	})
	r.With(h.rbac.Require(access.ResourceQuotes, access.ActionCreate)).Post("/", h.createQuote)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(access.ResourceQuotes, access.ActionEdit))
		r.Put("/{id}", h.updateQuote)
		r.Patch("/{id}/status", h.updateQuoteStatus)
	})
	r.With(h.rbac.Require(access.ResourceQuotes, access.ActionDelete)).Delete("/{id}", h.deleteQuote)
}

// ============================================================================
// ORDER HANDLERS
// ============================================================================

type orderListResponse struct {
	Orders     []Order           `json:"orders"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	f := OrderFilter{
		Search: r.URL.Query().Get("q"),
		Status: OrderStatus(r.URL.Query().Get("status")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	orders, total, err := h.service.ListOrders(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, orderListResponse{Orders: orders, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	order, err := h.service.UpdateOrderStatus(r.Context(), actor.UserID, id, OrderStatus(req.Status))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

// ============================================================================
// QUOTE HANDLERS
// ============================================================================

type quoteListResponse struct {
	Quotes     []Quote           `json:"quotes"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	f := QuoteFilter{
		Search: r.URL.Query().Get("q"),
		Status: QuoteStatus(r.URL.Query().Get("status")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	quotes, total, err := h.service.ListQuotes(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if quotes == nil {
		quotes = []Quote{}
	}
	httpx.JSON(w, http.StatusOK, quoteListResponse{Quotes: quotes, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) showQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	q, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	var in QuoteInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	q, err := h.service.CreateQuote(r.Context(), actor.UserID, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) updateQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in QuoteInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	q, err := h.service.UpdateQuote(r.Context(), actor.UserID, id, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) updateQuoteStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	q, err := h.service.SetQuoteStatus(r.Context(), actor.UserID, id, QuoteStatus(req.Status))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) deleteQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.DeleteQuote(r.Context(), actor.UserID, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) quotePDF(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	q, pdf, err := h.service.QuotePDF(r.Context(), h.renderer, id)
	if err != nil {
		switch {
		case errors.Is(err, report.ErrUnavailable):
			http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		case errors.Is(err, ErrNotFound):
			h.respondError(w, err)
		default:
			h.logger.Error("render quote pdf", slog.Int64("quote_id", id), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		}
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", q.Number+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrQuoteLocked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) && !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("sales request", slog.Any("error", err))
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
