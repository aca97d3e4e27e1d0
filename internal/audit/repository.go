package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs joined with the acting user.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed audit repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window returns limit rows starting at offset, newest first.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := filterClause(filters)
	args = append(args, limit, offset)
	sql := fmt.Sprintf(`SELECT a.occurred_at, a.actor_id, COALESCE(u.email, ''), a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a LEFT JOIN users u ON u.id = a.actor_id
%s ORDER BY a.occurred_at DESC, a.id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// All returns every row matching filters, newest first.
func (r *PGRepository) All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	where, args := filterClause(filters)
	rows, err := r.pool.Query(ctx, `SELECT a.occurred_at, a.actor_id, COALESCE(u.email, ''), a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a LEFT JOIN users u ON u.id = a.actor_id
`+where+` ORDER BY a.occurred_at DESC, a.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func filterClause(f TimelineFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("a.occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.occurred_at < $%d", f.To)
	}
	if f.ActorID > 0 {
		add("a.actor_id = $%d", f.ActorID)
	}
	if f.Entity != "" {
		add("a.entity = $%d", f.Entity)
	}
	if f.Action != "" {
		add("a.action LIKE $%d", f.Action+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func collect(rows pgx.Rows) ([]TimelineRow, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			meta []byte
		)
		if err := row.Scan(&out.At, &out.ActorID, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if len(meta) > 0 && string(meta) != "null" {
			out.Meta = meta
		}
		return out, nil
	})
}

var _ Repository = (*PGRepository)(nil)
