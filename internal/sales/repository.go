package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emporia/console/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for orders and quotes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func searchClause(search, status string, columns ...string) (string, []any) {
	where := []string{"TRUE"}
	args := []any{}
	if s := strings.TrimSpace(search); s != "" {
		args = append(args, "%"+s+"%")
		ors := make([]string, 0, len(columns))
		for _, c := range columns {
			ors = append(ors, fmt.Sprintf("%s ILIKE $%d", c, len(args)))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if status != "" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	return strings.Join(where, " AND "), args
}

// ============================================================================
// ORDERS
// ============================================================================

const orderColumns = `id, number, customer_name, customer_email, status, total_cents, currency, placed_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.CustomerName, &o.CustomerEmail, &o.Status, &o.TotalCents, &o.Currency, &o.PlacedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// ListOrders returns one page of orders, newest first, and the match count.
func (r *Repository) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	cond, args := searchClause(f.Search, string(f.Status), "number", "customer_name", "customer_email")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count orders: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY placed_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// GetOrder fetches an order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id, sku, name, quantity, unit_cents FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("sales: order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderItem, error) {
		var it OrderItem
		err := row.Scan(&it.ProductID, &it.SKU, &it.Name, &it.Quantity, &it.UnitCents)
		return it, err
	})
	return o, err
}

// UpdateOrderStatus moves id from one status to another. A concurrent change
// of the status makes the update miss and report ErrInvalidStatus.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id int64, from, to OrderStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("sales: update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetOrder(ctx, id); err != nil {
			return err
		}
		return ErrInvalidStatus
	}
	return nil
}

// CountOrders counts orders in status, or all orders when status is empty.
func (r *Repository) CountOrders(ctx context.Context, status OrderStatus) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE $1 = '' OR status = $1`, string(status)).Scan(&n)
	return n, err
}

// ============================================================================
// QUOTES
// ============================================================================

const quoteColumns = `id, number, customer_name, customer_email, status, currency, valid_until, notes, total_cents, created_by, created_at, updated_at`

func scanQuote(row pgx.Row) (Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.Number, &q.CustomerName, &q.CustomerEmail, &q.Status, &q.Currency, &q.ValidUntil, &q.Notes,
		&q.TotalCents, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, ErrNotFound
	}
	return q, err
}

// ListQuotes returns one page of quotes, newest first, and the match count.
func (r *Repository) ListQuotes(ctx context.Context, f QuoteFilter) ([]Quote, int, error) {
	cond, args := searchClause(f.Search, string(f.Status), "number", "customer_name", "customer_email")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM quotes WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count quotes: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM quotes WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list quotes: %w", err)
	}
	defer rows.Close()
	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

// GetQuote fetches a quote with its lines.
func (r *Repository) GetQuote(ctx context.Context, id int64) (Quote, error) {
	return getQuote(ctx, r.pool, id)
}

func getQuote(ctx context.Context, q db.Querier, id int64) (Quote, error) {
	quote, err := scanQuote(q.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id))
	if err != nil {
		return Quote{}, err
	}
	rows, err := q.Query(ctx, `SELECT description, quantity, unit_cents, discount_percent FROM quote_lines WHERE quote_id = $1 ORDER BY position`, id)
	if err != nil {
		return Quote{}, fmt.Errorf("sales: quote lines: %w", err)
	}
	quote.Lines, err = pgx.CollectRows(rows, pgx.RowToStructByPos[QuoteLine])
	return quote, err
}

func insertLines(ctx context.Context, tx pgx.Tx, quoteID int64, lines []QuoteLine) error {
	batch := &pgx.Batch{}
	for i, l := range lines {
		batch.Queue(`INSERT INTO quote_lines (quote_id, position, description, quantity, unit_cents, discount_percent) VALUES ($1, $2, $3, $4, $5, $6)`,
			quoteID, i+1, l.Description, l.Quantity, l.UnitCents, l.DiscountPercent)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// CreateQuote inserts q and its lines in one transaction.
func (r *Repository) CreateQuote(ctx context.Context, q Quote) (Quote, error) {
	var out Quote
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO quotes (number, customer_name, customer_email, status, currency, valid_until, notes, total_cents, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			q.Number, q.CustomerName, q.CustomerEmail, string(q.Status), q.Currency, q.ValidUntil, q.Notes, q.TotalCents, q.CreatedBy).Scan(&id); err != nil {
			return err
		}
		if err := insertLines(ctx, tx, id, q.Lines); err != nil {
			return err
		}
		var err error
		out, err = getQuote(ctx, tx, id)
		return err
	})
	return out, err
}

// UpdateDraftQuote replaces the header fields and lines of a draft quote.
func (r *Repository) UpdateDraftQuote(ctx context.Context, id int64, q Quote) (Quote, error) {
	var out Quote
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE quotes SET customer_name = $2, customer_email = $3, currency = $4, valid_until = $5,
			       notes = $6, total_cents = $7, updated_at = NOW()
			WHERE id = $1 AND status = 'draft'`,
			id, q.CustomerName, q.CustomerEmail, q.Currency, q.ValidUntil, q.Notes, q.TotalCents)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if _, err := getQuote(ctx, tx, id); err != nil {
				return err
			}
			return ErrQuoteLocked
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quote_lines WHERE quote_id = $1`, id); err != nil {
			return err
		}
		if err := insertLines(ctx, tx, id, q.Lines); err != nil {
			return err
		}
		out, err = getQuote(ctx, tx, id)
		return err
	})
	return out, err
}

// SetQuoteStatus moves id from one status to another.
func (r *Repository) SetQuoteStatus(ctx context.Context, id int64, from, to QuoteStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("sales: update quote status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetQuote(ctx, id); err != nil {
			return err
		}
		return ErrInvalidStatus
	}
	return nil
}

// DeleteQuote removes a quote unless it has been sent or accepted. Lines go
// with it through the foreign key cascade.
func (r *Repository) DeleteQuote(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM quotes WHERE id = $1 AND status NOT IN ('sent', 'accepted')`, id)
	if err != nil {
		return fmt.Errorf("sales: delete quote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetQuote(ctx, id); err != nil {
			return err
		}
		return ErrQuoteLocked
	}
	return nil
}

// CountOpenQuotes counts draft and sent quotes.
func (r *Repository) CountOpenQuotes(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM quotes WHERE status IN ('draft', 'sent')`).Scan(&n)
	return n, err
}

var _ RepositoryPort = (*Repository)(nil)
