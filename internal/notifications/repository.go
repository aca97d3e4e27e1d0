package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emporia/console/internal/platform/db"
)

// Repository persists templates, dispatch runs and issued coupons.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const templateColumns = `id, name, subject, body, trigger_kind, holiday_key, month, day, on_date,
	coupon_percent, coupon_valid_days, coupon_prefix, active, created_at, updated_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.Trigger, &t.Holiday, &t.Month, &t.Day, &t.OnDate,
		&t.CouponPercent, &t.CouponValidDays, &t.CouponPrefix, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	return t, err
}

func (r *Repository) queryTemplates(ctx context.Context, sql string, args ...any) ([]Template, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("notifications: query templates: %w", err)
	}
	defer rows.Close()
	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// List returns all templates, newest first.
func (r *Repository) List(ctx context.Context) ([]Template, error) {
	return r.queryTemplates(ctx, `SELECT `+templateColumns+` FROM notification_templates ORDER BY created_at DESC, id DESC`)
}

// ListActive returns templates eligible for dispatch.
func (r *Repository) ListActive(ctx context.Context) ([]Template, error) {
	return r.queryTemplates(ctx, `SELECT `+templateColumns+` FROM notification_templates WHERE active ORDER BY id`)
}

// Get fetches a template by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM notification_templates WHERE id = $1`, id))
}

// Create inserts a template.
func (r *Repository) Create(ctx context.Context, t Template) (Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx, `
		INSERT INTO notification_templates (name, subject, body, trigger_kind, holiday_key, month, day, on_date,
			coupon_percent, coupon_valid_days, coupon_prefix, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+templateColumns,
		t.Name, t.Subject, t.Body, t.Trigger, t.Holiday, t.Month, t.Day, t.OnDate,
		t.CouponPercent, t.CouponValidDays, t.CouponPrefix, t.Active))
}

// Update replaces a template's definition.
func (r *Repository) Update(ctx context.Context, id int64, t Template) (Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx, `
		UPDATE notification_templates
		SET name = $2, subject = $3, body = $4, trigger_kind = $5, holiday_key = $6, month = $7, day = $8,
			on_date = $9, coupon_percent = $10, coupon_valid_days = $11, coupon_prefix = $12, active = $13,
			updated_at = now()
		WHERE id = $1
		RETURNING `+templateColumns,
		id, t.Name, t.Subject, t.Body, t.Trigger, t.Holiday, t.Month, t.Day, t.OnDate,
		t.CouponPercent, t.CouponValidDays, t.CouponPrefix, t.Active))
}

// Delete removes a template and its run history.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notification_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("notifications: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of active templates.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM notification_templates WHERE active`).Scan(&n)
	return n, err
}

// BirthdayCustomers returns customers born on month/day. When leapFallback is
// set, customers born on February 29 are included as well.
func (r *Repository) BirthdayCustomers(ctx context.Context, month time.Month, day int, leapFallback bool) ([]Customer, error) {
	return r.queryCustomers(ctx, `
		SELECT id, email, name, birthday FROM customers
		WHERE birthday IS NOT NULL
		  AND ((extract(month FROM birthday) = $1 AND extract(day FROM birthday) = $2)
		    OR ($3 AND extract(month FROM birthday) = 2 AND extract(day FROM birthday) = 29))
		ORDER BY id`, int(month), day, leapFallback)
}

// OptedInCustomers returns customers who accept marketing email.
func (r *Repository) OptedInCustomers(ctx context.Context) ([]Customer, error) {
	return r.queryCustomers(ctx, `SELECT id, email, name, birthday FROM customers WHERE marketing_opt_in ORDER BY id`)
}

func (r *Repository) queryCustomers(ctx context.Context, sql string, args ...any) ([]Customer, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("notifications: query customers: %w", err)
	}
	customers, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Customer])
	if err != nil {
		return nil, fmt.Errorf("notifications: scan customers: %w", err)
	}
	return customers, nil
}

// ClaimRun records that templateID is being dispatched for day. It returns
// false when the pair was claimed before.
func (r *Repository) ClaimRun(ctx context.Context, templateID int64, day time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notification_runs (template_id, run_date)
		VALUES ($1, $2)
		ON CONFLICT (template_id, run_date) DO NOTHING`, templateID, day)
	if err != nil {
		return false, fmt.Errorf("notifications: claim run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseRun forgets a claim so a later attempt may dispatch again.
func (r *Repository) ReleaseRun(ctx context.Context, templateID int64, day time.Time) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM notification_runs WHERE template_id = $1 AND run_date = $2`, templateID, day)
	if err != nil {
		return fmt.Errorf("notifications: release run: %w", err)
	}
	return nil
}

// CompleteRun marks a successful dispatch. Failed ones are released instead.
func (r *Repository) CompleteRun(ctx context.Context, templateID int64, day time.Time, queued int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_runs SET queued = $3, finished_at = now()
		WHERE template_id = $1 AND run_date = $2`, templateID, day, queued)
	if err != nil {
		return fmt.Errorf("notifications: complete run: %w", err)
	}
	return nil
}

// SaveCoupons stores coupons for one template and day. A customer who already
// holds a coupon for that template and day keeps it; the stored coupons are
// returned.
func (r *Repository) SaveCoupons(ctx context.Context, coupons []Coupon) ([]Coupon, error) {
	if len(coupons) == 0 {
		return nil, nil
	}
	first := coupons[0]
	codes := make([]string, len(coupons))
	customers := make([]int64, len(coupons))
	for i, c := range coupons {
		codes[i], customers[i] = c.Code, c.CustomerID
	}

	var out []Coupon
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO notification_coupons (code, template_id, customer_id, percent, issued_on, expires_on)
			SELECT code, $3, customer_id, $4, $5, $6
			FROM unnest($1::text[], $2::bigint[]) AS c(code, customer_id)
			ON CONFLICT (template_id, customer_id, issued_on) DO NOTHING`,
			codes, customers, first.TemplateID, first.Percent, first.IssuedOn, first.ExpiresOn)
		if err != nil {
			return fmt.Errorf("notifications: save coupons: %w", err)
		}
		rows, err := tx.Query(ctx, `
			SELECT code, template_id, customer_id, percent, issued_on, expires_on
			FROM notification_coupons
			WHERE template_id = $1 AND issued_on = $2 AND customer_id = ANY($3)`,
			first.TemplateID, first.IssuedOn, customers)
		if err != nil {
			return fmt.Errorf("notifications: load coupons: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c Coupon
			if err := rows.Scan(&c.Code, &c.TemplateID, &c.CustomerID, &c.Percent, &c.IssuedOn, &c.ExpiresOn); err != nil {
				return fmt.Errorf("notifications: scan coupon: %w", err)
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
