package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/platform/db"
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// RolePermissions loads every stored role matrix. Rows naming unknown roles,
// resources or actions are skipped.
func (s *PGStore) RolePermissions(ctx context.Context) (access.RoleMatrices, error) {
	rows, err := s.pool.Query(ctx, `SELECT role, resource, action, allowed FROM role_permissions`)
	if err != nil {
		return nil, fmt.Errorf("rbac: query role permissions: %w", err)
	}
	defer rows.Close()

	out := access.RoleMatrices{}
	for rows.Next() {
		var role, resource, action string
		var allowed bool
		if err := rows.Scan(&role, &resource, &action, &allowed); err != nil {
			return nil, fmt.Errorf("rbac: scan role permission: %w", err)
		}
		rl, res, act := access.ParseRole(role), access.ParseResource(resource), access.ParseAction(action)
		if !rl.Editable() || !res.Valid() || !act.Valid() {
			continue
		}
		if out[rl] == nil {
			out[rl] = access.Matrix{}
		}
		if out[rl][res] == nil {
			out[rl][res] = map[access.Action]bool{}
		}
		out[rl][res][act] = allowed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: iterate role permissions: %w", err)
	}
	return out, nil
}

// UserOverrides loads the sparse overrides of one user.
func (s *PGStore) UserOverrides(ctx context.Context, userID int64) (access.Overrides, error) {
	return loadOverrides(ctx, s.pool, userID)
}

func loadOverrides(ctx context.Context, q db.Querier, userID int64) (access.Overrides, error) {
	rows, err := q.Query(ctx, `SELECT resource, action, allowed FROM user_permission_overrides WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: query overrides: %w", err)
	}
	defer rows.Close()

	out := access.Overrides{}
	for rows.Next() {
		var resource, action string
		var allowed bool
		if err := rows.Scan(&resource, &action, &allowed); err != nil {
			return nil, fmt.Errorf("rbac: scan override: %w", err)
		}
		state := access.Revoked
		if allowed {
			state = access.Granted
		}
		out = out.With(access.ParseResource(resource), access.ParseAction(action), state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: iterate overrides: %w", err)
	}
	return out, nil
}

// SetRolePermissions replaces the matrix of an editable role.
func (s *PGStore) SetRolePermissions(ctx context.Context, role access.Role, matrix access.Matrix) error {
	if !role.Editable() {
		return ErrRoleNotEditable
	}
	matrix = matrix.Normalize()
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role = $1`, string(role)); err != nil {
			return fmt.Errorf("rbac: clear role permissions: %w", err)
		}
		var rows [][]any
		for resource, byAction := range matrix {
			for action, allowed := range byAction {
				rows = append(rows, []any{string(role), string(resource), string(action), allowed})
			}
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"role_permissions"}, []string{"role", "resource", "action", "allowed"}, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("rbac: copy role permissions: %w", err)
		}
		return nil
	})
}

// SetUserOverrides replaces every override of userID.
func (s *PGStore) SetUserOverrides(ctx context.Context, userID int64, overrides access.Overrides) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return writeOverrides(ctx, tx, userID, overrides)
	})
}

// UpdateUserOverrides locks the user row, then reads, transforms and writes
// the overrides in one transaction.
func (s *PGStore) UpdateUserOverrides(ctx context.Context, userID int64, fn func(access.Overrides) (access.Overrides, error)) error {
	// ReadCommitted so the read after the lock sees the previous holder's commit.
	return db.WithTxOptions(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR NO KEY UPDATE`, userID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("rbac: lock user: %w", err)
		}
		current, err := loadOverrides(ctx, tx, userID)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		return writeOverrides(ctx, tx, userID, next)
	})
}

func writeOverrides(ctx context.Context, tx pgx.Tx, userID int64, overrides access.Overrides) error {
	overrides = overrides.Normalize()
	if _, err := tx.Exec(ctx, `DELETE FROM user_permission_overrides WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("rbac: clear overrides: %w", err)
	}
	batch := &pgx.Batch{}
	for resource, byAction := range overrides {
		for action, allowed := range byAction {
			batch.Queue(`INSERT INTO user_permission_overrides (user_id, resource, action, allowed) VALUES ($1, $2, $3, $4)`,
				userID, string(resource), string(action), allowed)
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("rbac: insert overrides: %w", err)
	}
	return nil
}

// ClearUserOverrides deletes every override of userID.
func (s *PGStore) ClearUserOverrides(ctx context.Context, userID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_permission_overrides WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("rbac: clear overrides: %w", err)
	}
	return nil
}

var _ Store = (*PGStore)(nil)
