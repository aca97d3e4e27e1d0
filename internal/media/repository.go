package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists asset metadata in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assetColumns = `id, object_key, file_name, content_type, size_bytes, uploaded_by, created_at`

// List returns a page of assets, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Asset, int, error) {
	cond := "TRUE"
	args := []any{}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		cond = "file_name ILIKE $1"
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM media_assets WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("media: count: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM media_assets WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		assetColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("media: list: %w", err)
	}
	assets, err := pgx.CollectRows(rows, pgx.RowToStructByPos[assetRow])
	if err != nil {
		return nil, 0, fmt.Errorf("media: scan: %w", err)
	}
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		out = append(out, a.asset())
	}
	return out, total, nil
}

// Get returns one asset.
func (r *Repository) Get(ctx context.Context, id int64) (Asset, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assetColumns+` FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return Asset{}, fmt.Errorf("media: get: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[assetRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, ErrNotFound
	}
	if err != nil {
		return Asset{}, fmt.Errorf("media: get: %w", err)
	}
	return row.asset(), nil
}

// Create records an uploaded object.
func (r *Repository) Create(ctx context.Context, a Asset) (Asset, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO media_assets (object_key, file_name, content_type, size_bytes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		a.ObjectKey, a.FileName, a.ContentType, a.SizeBytes, a.UploadedBy).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return Asset{}, fmt.Errorf("media: insert: %w", err)
	}
	return a, nil
}

// Delete removes the metadata row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("media: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored assets.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM media_assets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("media: count: %w", err)
	}
	return n, nil
}

type assetRow struct {
	ID          int64
	ObjectKey   string
	FileName    string
	ContentType string
	SizeBytes   int64
	UploadedBy  int64
	CreatedAt   time.Time
}

func (a assetRow) asset() Asset {
	return Asset{ID: a.ID, ObjectKey: a.ObjectKey, FileName: a.FileName, ContentType: a.ContentType,
		SizeBytes: a.SizeBytes, UploadedBy: a.UploadedBy, CreatedAt: a.CreatedAt}
}
