package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Role = access.ParseRole(role)
	return u, nil
}

// List returns one page of users ordered by email, and the total match count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]User, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(email ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	if f.Role != access.RoleUnknown {
		args = append(args, string(f.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY email LIMIT $%d OFFSET $%d`,
		userColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// Get fetches a user by ID.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// Create inserts a new account.
func (r *Repository) Create(ctx context.Context, in NewUser) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, role, password_hash) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(in.Email)), strings.TrimSpace(in.Name), string(in.Role), in.PasswordHash))
	if db.IsUniqueViolation(err, "users_email_key") {
		return User{}, ErrEmailTaken
	}
	return u, err
}

// UpdateRole changes the role of id. The statement refuses to demote the
// last active admin.
func (r *Repository) UpdateRole(ctx context.Context, id int64, role access.Role) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET role = $2, updated_at = NOW()
		WHERE id = $1
		  AND ($2 = 'ADMIN' OR role <> 'ADMIN' OR NOT is_active
		       OR (SELECT count(*) FROM users WHERE role = 'ADMIN' AND is_active) > 1)`,
		id, string(role))
	if err != nil {
		return fmt.Errorf("users: update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrLastAdmin
	}
	return nil
}

// SetActive toggles the active flag. Deactivation refuses to remove the last
// active admin.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET is_active = $2, updated_at = NOW()
		WHERE id = $1
		  AND ($2 OR role <> 'ADMIN'
		       OR (SELECT count(*) FROM users WHERE role = 'ADMIN' AND is_active) > 1)`,
		id, active)
	if err != nil {
		return fmt.Errorf("users: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrLastAdmin
	}
	return nil
}

// CountActiveAdmins returns the number of active ADMIN accounts.
func (r *Repository) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE role = 'ADMIN' AND is_active`).Scan(&n)
	return n, err
}

var _ RepositoryPort = (*Repository)(nil)
