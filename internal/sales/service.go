package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/emporia/console/internal/platform/httpx"
	"github.com/emporia/console/internal/shared"
)

// RepositoryPort defines data access methods for orders and quotes.
type RepositoryPort interface {
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, from, to OrderStatus) error
	CountOrders(ctx context.Context, status OrderStatus) (int, error)

	ListQuotes(ctx context.Context, f QuoteFilter) ([]Quote, int, error)
	GetQuote(ctx context.Context, id int64) (Quote, error)
	CreateQuote(ctx context.Context, q Quote) (Quote, error)
	UpdateDraftQuote(ctx context.Context, id int64, q Quote) (Quote, error)
	SetQuoteStatus(ctx context.Context, id int64, from, to QuoteStatus) error
	DeleteQuote(ctx context.Context, id int64) error
	CountOpenQuotes(ctx context.Context) (int, error)
}

// Service provides business logic for sales operations.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, validate: httpx.NewValidator(), logger: logger, now: time.Now}
}

// ============================================================================
// ORDER OPERATIONS
// ============================================================================

// ListOrders returns a page of orders.
func (s *Service) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return s.repo.ListOrders(ctx, f)
}

// GetOrder returns an order with items.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// PendingOrders counts orders awaiting payment.
func (s *Service) PendingOrders(ctx context.Context) (int, error) {
	return s.repo.CountOrders(ctx, OrderPending)
}

// UpdateOrderStatus moves an order through fulfilment.
func (s *Service) UpdateOrderStatus(ctx context.Context, actorID, id int64, next OrderStatus) (Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !order.Status.CanTransition(next) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, order.Status, next)
	}
	if err := s.repo.UpdateOrderStatus(ctx, id, order.Status, next); err != nil {
		return Order{}, err
	}
	s.record(ctx, actorID, "orders.status", "order", id, map[string]any{"from": string(order.Status), "to": string(next)})
	order.Status = next
	return order, nil
}

// ============================================================================
// QUOTE OPERATIONS
// ============================================================================

// ListQuotes returns a page of quotes.
func (s *Service) ListQuotes(ctx context.Context, f QuoteFilter) ([]Quote, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return s.repo.ListQuotes(ctx, f)
}

// GetQuote returns a quote with lines.
func (s *Service) GetQuote(ctx context.Context, id int64) (Quote, error) {
	return s.repo.GetQuote(ctx, id)
}

// OpenQuotes counts quotes still in play.
func (s *Service) OpenQuotes(ctx context.Context) (int, error) {
	return s.repo.CountOpenQuotes(ctx)
}

// CreateQuote validates in and stores a new draft quote.
func (s *Service) CreateQuote(ctx context.Context, actorID int64, in QuoteInput) (Quote, error) {
	q, err := s.quoteFromInput(in)
	if err != nil {
		return Quote{}, err
	}
	q.Number = s.quoteNumber()
	q.Status = QuoteDraft
	q.CreatedBy = actorID
	created, err := s.repo.CreateQuote(ctx, q)
	if err != nil {
		return Quote{}, err
	}
	s.record(ctx, actorID, "quotes.create", "quote", created.ID, map[string]any{"number": created.Number, "total_cents": created.TotalCents})
	return created, nil
}

// UpdateQuote replaces the content of a draft quote.
func (s *Service) UpdateQuote(ctx context.Context, actorID, id int64, in QuoteInput) (Quote, error) {
	q, err := s.quoteFromInput(in)
	if err != nil {
		return Quote{}, err
	}
	updated, err := s.repo.UpdateDraftQuote(ctx, id, q)
	if err != nil {
		return Quote{}, err
	}
	s.record(ctx, actorID, "quotes.update", "quote", id, map[string]any{"total_cents": updated.TotalCents})
	return updated, nil
}

// SetQuoteStatus moves a quote through its lifecycle. Sending a quote whose
// validity date has passed is refused.
func (s *Service) SetQuoteStatus(ctx context.Context, actorID, id int64, next QuoteStatus) (Quote, error) {
	q, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if !q.Status.CanTransition(next) {
		return Quote{}, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, q.Status, next)
	}
	if next == QuoteSent && q.ValidUntil.Before(startOfDay(s.now())) {
		return Quote{}, fmt.Errorf("%w: quote expired on %s", ErrInvalidStatus, q.ValidUntil.Format("2006-01-02"))
	}
	if err := s.repo.SetQuoteStatus(ctx, id, q.Status, next); err != nil {
		return Quote{}, err
	}
	s.record(ctx, actorID, "quotes.status", "quote", id, map[string]any{"from": string(q.Status), "to": string(next)})
	q.Status = next
	return q, nil
}

// DeleteQuote removes a quote that was never sent, or one that was rejected or
// expired.
func (s *Service) DeleteQuote(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteQuote(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "quotes.delete", "quote", id, nil)
	return nil
}

func (s *Service) quoteFromInput(in QuoteInput) (Quote, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.ToLower(strings.TrimSpace(in.CustomerEmail))
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := s.validate.Struct(in); err != nil {
		return Quote{}, err
	}
	var total int64
	for _, l := range in.Lines {
		total += l.Total()
	}
	return Quote{
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		Currency:      in.Currency,
		ValidUntil:    startOfDay(in.ValidUntil),
		Notes:         in.Notes,
		TotalCents:    total,
		Lines:         in.Lines,
	}, nil
}

// quoteNumber returns a human-friendly unique number such as Q-20260318-3F9A1C2B.
func (s *Service) quoteNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "Q-" + s.now().UTC().Format("20060102") + "-" + suffix
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: strconv.FormatInt(id, 10), Meta: meta})
	if err != nil {
		s.logger.Warn("audit sales change", slog.String("action", action), slog.Any("error", err))
	}
}
