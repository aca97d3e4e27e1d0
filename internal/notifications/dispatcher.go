package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jobmetrics "github.com/emporia/console/internal/jobs"
	"github.com/emporia/console/internal/platform/mail"
)

// DispatchStore is the persistence the dispatcher needs.
type DispatchStore interface {
	ListActive(ctx context.Context) ([]Template, error)
	BirthdayCustomers(ctx context.Context, month time.Month, day int, leapFallback bool) ([]Customer, error)
	OptedInCustomers(ctx context.Context) ([]Customer, error)
	ClaimRun(ctx context.Context, templateID int64, day time.Time) (bool, error)
	ReleaseRun(ctx context.Context, templateID int64, day time.Time) error
	CompleteRun(ctx context.Context, templateID int64, day time.Time, queued int) error
	SaveCoupons(ctx context.Context, coupons []Coupon) ([]Coupon, error)
}

var _ DispatchStore = (*Repository)(nil)

// MailQueue accepts rendered mail for asynchronous delivery. key identifies
// the message so a repeated enqueue is dropped.
type MailQueue interface {
	EnqueueMail(ctx context.Context, msg mail.Message, key string) error
}

// Summary reports what one dispatch pass did.
type Summary struct {
	Day       time.Time
	Templates int
	Skipped   int
	Queued    int
}

// Dispatcher turns due templates into queued mail. Each (template, day) pair
// completes at most once. A pass that fails gives its claim back so a retry
// can reach the remaining recipients; mail keys and coupons are stable per
// (template, day, customer), so the retry does not repeat what already went
// out.
type Dispatcher struct {
	store   DispatchStore
	queue   MailQueue
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	newCode func(prefix string) string
}

// NewDispatcher constructs a dispatcher. metrics may be nil.
func NewDispatcher(store DispatchStore, queue MailQueue, metrics *jobmetrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, queue: queue, metrics: metrics, logger: logger, newCode: NewCouponCode}
}

// Run dispatches every active template due on day. Failures of one template do
// not stop the others; they are joined into the returned error.
func (d *Dispatcher) Run(ctx context.Context, day time.Time) (Summary, error) {
	y, m, dd := day.Date()
	day = time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	summary := Summary{Day: day}

	templates, err := d.store.ListActive(ctx)
	if err != nil {
		return summary, err
	}

	var errs []error
	for _, t := range templates {
		if !t.DueOn(day) {
			continue
		}
		claimed, err := d.store.ClaimRun(ctx, t.ID, day)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !claimed {
			summary.Skipped++
			continue
		}
		summary.Templates++

		queued, err := d.dispatch(ctx, t, day)
		summary.Queued += queued
		d.metrics.AddQueuedMail(string(t.Trigger), queued)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %d: %w", t.ID, err))
			d.logger.Error("dispatch notification", slog.Int64("template_id", t.ID), slog.Int("queued", queued), slog.Any("error", err))
			// Give the claim back; queued keys and stored coupons make the rerun safe.
			if relErr := d.store.ReleaseRun(ctx, t.ID, day); relErr != nil {
				errs = append(errs, relErr)
			}
			continue
		}
		if cErr := d.store.CompleteRun(ctx, t.ID, day, queued); cErr != nil {
			errs = append(errs, cErr)
		}
	}
	d.logger.Info("notifications dispatched",
		slog.String("day", day.Format("2006-01-02")),
		slog.Int("templates", summary.Templates),
		slog.Int("skipped", summary.Skipped),
		slog.Int("queued", summary.Queued))
	return summary, errors.Join(errs...)
}

func (d *Dispatcher) recipients(ctx context.Context, t Template, day time.Time) ([]Customer, error) {
	if t.Trigger == TriggerBirthday {
		leap := day.Month() == time.February && day.Day() == 28 && !isLeap(day.Year())
		return d.store.BirthdayCustomers(ctx, day.Month(), day.Day(), leap)
	}
	return d.store.OptedInCustomers(ctx)
}

func (d *Dispatcher) dispatch(ctx context.Context, t Template, day time.Time) (int, error) {
	customers, err := d.recipients(ctx, t, day)
	if err != nil {
		return 0, err
	}

	var coupons map[int64]Coupon
	if t.HasCoupon() {
		fresh := make([]Coupon, len(customers))
		for i, c := range customers {
			fresh[i] = IssueCoupon(t, c.ID, day, d.newCode(t.CouponPrefix))
		}
		stored, err := d.store.SaveCoupons(ctx, fresh)
		if err != nil {
			return 0, err
		}
		coupons = make(map[int64]Coupon, len(stored))
		for _, c := range stored {
			coupons[c.CustomerID] = c
		}
	}

	queued := 0
	for _, c := range customers {
		var coupon *Coupon
		if issued, ok := coupons[c.ID]; ok {
			coupon = &issued
		}
		msg, err := Render(t, c.Name, coupon)
		if err != nil {
			return queued, err
		}
		key := fmt.Sprintf("notify:%d:%s:%d", t.ID, day.Format("20060102"), c.ID)
		if err := d.queue.EnqueueMail(ctx, mail.Message{To: c.Email, Subject: msg.Subject, Body: msg.Body}, key); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}
