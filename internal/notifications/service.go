package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/emporia/console/internal/platform/httpx"
	"github.com/emporia/console/internal/shared"
)

// TemplateStore defines template persistence.
type TemplateStore interface {
	List(ctx context.Context) ([]Template, error)
	Get(ctx context.Context, id int64) (Template, error)
	Create(ctx context.Context, t Template) (Template, error)
	Update(ctx context.Context, id int64, t Template) (Template, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

var _ TemplateStore = (*Repository)(nil)

// Service manages notification templates.
type Service struct {
	store    TemplateStore
	audit    shared.AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a template service.
func NewService(store TemplateStore, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	v := httpx.NewValidator()
	_ = v.RegisterValidation("holiday", func(fl validator.FieldLevel) bool {
		return IsHoliday(fl.Field().String())
	})
	return &Service{store: store, audit: audit, validate: v, logger: logger, now: time.Now}
}

// List returns every template.
func (s *Service) List(ctx context.Context) ([]Template, error) {
	return s.store.List(ctx)
}

// Get returns one template.
func (s *Service) Get(ctx context.Context, id int64) (Template, error) {
	return s.store.Get(ctx, id)
}

// ActiveCount returns the number of active templates.
func (s *Service) ActiveCount(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// DueOn returns the templates that fire on day, active or not.
func (s *Service) DueOn(ctx context.Context, day time.Time) ([]Template, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var due []Template
	for _, t := range all {
		if t.DueOn(day) {
			due = append(due, t)
		}
	}
	return due, nil
}

// Create validates and stores a template.
func (s *Service) Create(ctx context.Context, actorID int64, in TemplateInput) (Template, error) {
	t, err := s.fromInput(in)
	if err != nil {
		return Template{}, err
	}
	created, err := s.store.Create(ctx, t)
	if err != nil {
		return Template{}, err
	}
	s.record(ctx, actorID, "notifications.create", created.ID, map[string]any{"name": created.Name, "trigger": string(created.Trigger)})
	return created, nil
}

// Update replaces a template.
func (s *Service) Update(ctx context.Context, actorID, id int64, in TemplateInput) (Template, error) {
	t, err := s.fromInput(in)
	if err != nil {
		return Template{}, err
	}
	updated, err := s.store.Update(ctx, id, t)
	if err != nil {
		return Template{}, err
	}
	s.record(ctx, actorID, "notifications.update", id, map[string]any{"active": updated.Active})
	return updated, nil
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "notifications.delete", id, nil)
	return nil
}

// Preview renders a template for a sample recipient. A sample coupon is
// included when the template issues one.
func (s *Service) Preview(ctx context.Context, id int64, name string) (Rendered, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return Rendered{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = "jane doe"
	}
	var coupon *Coupon
	if t.HasCoupon() {
		c := IssueCoupon(t, 0, s.now(), NewCouponCode(t.CouponPrefix))
		coupon = &c
	}
	return Render(t, name, coupon)
}

func (s *Service) fromInput(in TemplateInput) (Template, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Holiday = strings.ToUpper(strings.TrimSpace(in.Holiday))
	in.CouponPrefix = strings.ToUpper(strings.TrimSpace(in.CouponPrefix))
	if err := s.validate.Struct(in); err != nil {
		return Template{}, err
	}

	t := Template{
		Name:    in.Name,
		Subject: in.Subject,
		Body:    in.Body,
		Trigger: in.Trigger,
		Active:  in.Active,
	}
	switch in.Trigger {
	case TriggerHoliday:
		t.Holiday = in.Holiday
	case TriggerRecurring:
		if !validMonthDay(in.Month, in.Day) {
			return Template{}, fmt.Errorf("%w: month %d has no day %d", ErrInvalidSchedule, in.Month, in.Day)
		}
		t.Month, t.Day = in.Month, in.Day
	case TriggerOneTime:
		y, m, d := in.OnDate.Date()
		on := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		t.OnDate = &on
	}
	if in.CouponPercent > 0 {
		t.CouponPercent = in.CouponPercent
		t.CouponValidDays = in.CouponValidDays
		t.CouponPrefix = in.CouponPrefix
	}

	var sample *Coupon
	if t.HasCoupon() {
		c := IssueCoupon(t, 0, s.now(), NewCouponCode(t.CouponPrefix))
		sample = &c
	}
	if _, err := Render(t, "sample customer", sample); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "notification_template", EntityID: strconv.FormatInt(id, 10), Meta: meta})
	if err != nil {
		s.logger.Warn("audit notification change", slog.String("action", action), slog.Any("error", err))
	}
}
