package catalog

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/emporia/console/internal/platform/httpx"
	"github.com/emporia/console/internal/shared"
)

// RepositoryPort defines data access methods for products.
type RepositoryPort interface {
	List(ctx context.Context, f ListFilter) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, in ProductInput) (Product, error)
	Update(ctx context.Context, id int64, in ProductInput) (Product, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// Service handles product business logic.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, validate: httpx.NewValidator(), logger: logger}
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Product, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return s.repo.List(ctx, f)
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// Count returns the number of live products.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Create validates and stores a product.
func (s *Service) Create(ctx context.Context, actorID int64, in ProductInput) (Product, error) {
	in = normalize(in)
	if err := s.validate.Struct(in); err != nil {
		return Product{}, err
	}
	p, err := s.repo.Create(ctx, in)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actorID, "products.create", p.ID, map[string]any{"sku": p.SKU})
	return p, nil
}

// Update validates and replaces a product.
func (s *Service) Update(ctx context.Context, actorID, id int64, in ProductInput) (Product, error) {
	in = normalize(in)
	if err := s.validate.Struct(in); err != nil {
		return Product{}, err
	}
	p, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actorID, "products.update", p.ID, map[string]any{"sku": p.SKU, "status": string(p.Status)})
	return p, nil
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "products.delete", id, nil)
	return nil
}

func normalize(in ProductInput) ProductInput {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Status == "" {
		in.Status = StatusDraft
	}
	return in
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "product", EntityID: strconv.FormatInt(id, 10), Meta: meta})
	if err != nil {
		s.logger.Warn("audit product change", slog.String("action", action), slog.Any("error", err))
	}
}
