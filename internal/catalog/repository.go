package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emporia/console/internal/platform/db"
)

const skuConstraint = "products_sku_key"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, name, description, price_cents, currency, stock, status, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.Stock, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// List returns one page of products, newest first, and the total match count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Product, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(sku ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		productColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Get fetches a product by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// Create inserts a product.
func (r *Repository) Create(ctx context.Context, in ProductInput) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `
		INSERT INTO products (sku, name, description, price_cents, currency, stock, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+productColumns,
		in.SKU, in.Name, in.Description, in.PriceCents, in.Currency, in.Stock, string(in.Status)))
	if db.IsUniqueViolation(err, skuConstraint) {
		return Product{}, ErrSKUTaken
	}
	return p, err
}

// Update replaces every editable column of id.
func (r *Repository) Update(ctx context.Context, id int64, in ProductInput) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `
		UPDATE products SET sku = $2, name = $3, description = $4, price_cents = $5,
		       currency = $6, stock = $7, status = $8, updated_at = NOW()
		WHERE id = $1 RETURNING `+productColumns,
		id, in.SKU, in.Name, in.Description, in.PriceCents, in.Currency, in.Stock, string(in.Status)))
	if db.IsUniqueViolation(err, skuConstraint) {
		return Product{}, ErrSKUTaken
	}
	return p, err
}

// Delete removes a product.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of products that are not archived.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE status <> 'archived'`).Scan(&n)
	return n, err
}

var _ RepositoryPort = (*Repository)(nil)
