package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/shared"
)

// FallbackRecorder counts permission loads served from built-in defaults.
type FallbackRecorder interface {
	RecordFallback(source string)
}

// Service orchestrates permission loading and administration.
type Service struct {
	store      Store
	principals PrincipalSource
	audit      shared.AuditRecorder
	fallbacks  FallbackRecorder
	logger     *slog.Logger
}

// NewService constructs a Service. audit and fallbacks may be nil.
func NewService(store Store, principals PrincipalSource, audit shared.AuditRecorder, fallbacks FallbackRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, principals: principals, audit: audit, fallbacks: fallbacks, logger: logger}
}

// Principal resolves userID through the configured PrincipalSource.
func (s *Service) Principal(ctx context.Context, userID int64) (Principal, error) {
	return s.principals.Principal(ctx, userID)
}

// Resolver loads the role matrices and the principal's overrides and binds
// them into a resolver. Store failures never reach the caller: the resolver is
// built over access.DefaultMatrices with no overrides instead.
func (s *Service) Resolver(ctx context.Context, p Principal) access.Resolver {
	if !p.Role.Editable() {
		// ADMIN and SUBSCRIBER are decided without stored data.
		return access.NewResolver(p.Role, nil, nil)
	}

	var matrices access.RoleMatrices
	var overrides access.Overrides
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.store.RolePermissions(gctx)
		if err != nil {
			return fmt.Errorf("roles: %w", err)
		}
		matrices = m
		return nil
	})
	g.Go(func() error {
		o, err := s.store.UserOverrides(gctx, p.UserID)
		if err != nil {
			return fmt.Errorf("overrides: %w", err)
		}
		overrides = o
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("permission store unavailable, using default matrices",
			slog.Int64("user_id", p.UserID), slog.String("role", p.Role.String()), slog.Any("error", err))
		if s.fallbacks != nil {
			s.fallbacks.RecordFallback("store")
		}
		return access.NewResolver(p.Role, access.DefaultMatrices(), nil)
	}
	return access.NewResolver(p.Role, matrices, overrides)
}

// RoleMatrices returns the stored matrices of every editable role. Roles with
// nothing stored get an empty matrix.
func (s *Service) RoleMatrices(ctx context.Context) (access.RoleMatrices, error) {
	stored, err := s.store.RolePermissions(ctx)
	if err != nil {
		return nil, err
	}
	out := stored.Clone()
	for _, role := range access.EditableRoles() {
		if out[role] == nil {
			out[role] = access.Matrix{}
		}
	}
	return out, nil
}

// UpdateRoleMatrix replaces the matrix of an editable role. A non-admin
// actor may not edit their own role nor enable a cell they do not hold.
func (s *Service) UpdateRoleMatrix(ctx context.Context, actor Principal, role access.Role, matrix access.Matrix) error {
	if !role.Editable() {
		return ErrRoleNotEditable
	}
	matrix = matrix.Normalize()
	if !actor.IsAdmin() {
		if actor.Role == role {
			return ErrSelfChange
		}
		matrices, err := s.store.RolePermissions(ctx)
		if err != nil {
			return err
		}
		holds, err := s.actorHolds(ctx, actor, matrices)
		if err != nil {
			return err
		}
		before := matrices.For(role)
		for _, res := range access.Resources() {
			for _, act := range access.Actions() {
				if !before.Allows(res, act) && matrix.Allows(res, act) && !holds(res, act) {
					return fmt.Errorf("%w: %s.%s", ErrBeyondActor, res, act)
				}
			}
		}
	}
	if err := s.store.SetRolePermissions(ctx, role, matrix); err != nil {
		return err
	}
	s.record(ctx, actor.UserID, "rbac.role_matrix.update", "role", role.String(), map[string]any{
		"grants": matrix.Grants(),
	})
	return nil
}

// UserPermissions returns the grid of effective permissions for userID.
// Unlike Resolver, store failures are returned.
func (s *Service) UserPermissions(ctx context.Context, userID int64) (UserPermissions, error) {
	p, err := s.principals.Principal(ctx, userID)
	if err != nil {
		return UserPermissions{}, err
	}
	matrices, err := s.store.RolePermissions(ctx)
	if err != nil {
		return UserPermissions{}, err
	}
	var overrides access.Overrides
	if p.Role.Editable() {
		if overrides, err = s.store.UserOverrides(ctx, userID); err != nil {
			return UserPermissions{}, err
		}
	}
	resolver := access.NewResolver(p.Role, matrices, overrides)
	return UserPermissions{
		UserID:    userID,
		Role:      p.Role,
		Editable:  p.Role.Editable(),
		Overrides: overrides.Count(),
		Cells:     resolver.Grid(),
		Nav:       resolver.VisibleNavItems(),
	}, nil
}

// ToggleUserOverride flips one override of userID: a present entry reverts to
// the role default, an absent one is set against it.
func (s *Service) ToggleUserOverride(ctx context.Context, actor Principal, userID int64, resource access.Resource, action access.Action) (access.Overrides, error) {
	return s.updateOverrides(ctx, actor, userID, resource, action, "rbac.override.toggle",
		func(matrices access.RoleMatrices, role access.Role, current access.Overrides) access.Overrides {
			return access.ToggleOverride(current, resource, action, matrices.For(role).Allows(resource, action))
		})
}

// SetUserOverrideState sets one override of userID to an explicit state.
func (s *Service) SetUserOverrideState(ctx context.Context, actor Principal, userID int64, resource access.Resource, action access.Action, state access.OverrideState) (access.Overrides, error) {
	return s.updateOverrides(ctx, actor, userID, resource, action, "rbac.override.set",
		func(_ access.RoleMatrices, _ access.Role, current access.Overrides) access.Overrides {
			return current.With(resource, action, state)
		})
}

// ResetUserOverrides removes every override of userID. Dropping a revocation
// re-enables the role default, so non-admins are held to the same rules as
// for single overrides.
func (s *Service) ResetUserOverrides(ctx context.Context, actor Principal, userID int64) error {
	p, err := s.principals.Principal(ctx, userID)
	if err != nil {
		return err
	}
	if actor.IsAdmin() || !p.Role.Editable() {
		if err := s.store.ClearUserOverrides(ctx, userID); err != nil {
			return err
		}
	} else {
		if actor.UserID == userID {
			return ErrSelfChange
		}
		matrices, err := s.store.RolePermissions(ctx)
		if err != nil {
			return err
		}
		holds, err := s.actorHolds(ctx, actor, matrices)
		if err != nil {
			return err
		}
		err = s.store.UpdateUserOverrides(ctx, userID, func(current access.Overrides) (access.Overrides, error) {
			for _, res := range access.Resources() {
				for _, act := range access.Actions() {
					if raised(p.Role, matrices, current, nil, res, act) && !holds(res, act) {
						return nil, fmt.Errorf("%w: %s.%s", ErrBeyondActor, res, act)
					}
				}
			}
			return access.Overrides{}, nil
		})
		if err != nil {
			return err
		}
	}
	s.record(ctx, actor.UserID, "rbac.override.reset", "user", strconv.FormatInt(userID, 10), nil)
	return nil
}

func (s *Service) updateOverrides(ctx context.Context, actor Principal, userID int64, resource access.Resource, action access.Action, auditAction string,
	next func(access.RoleMatrices, access.Role, access.Overrides) access.Overrides) (access.Overrides, error) {
	if !resource.Valid() || !action.Valid() {
		return nil, ErrUnknownPermission
	}
	p, err := s.principals.Principal(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.Role.Editable() {
		return nil, ErrOverrideNotApplicable
	}
	if !actor.IsAdmin() && actor.UserID == userID {
		return nil, ErrSelfChange
	}
	matrices, err := s.store.RolePermissions(ctx)
	if err != nil {
		return nil, err
	}
	holds, err := s.actorHolds(ctx, actor, matrices)
	if err != nil {
		return nil, err
	}

	var current, updated access.Overrides
	err = s.store.UpdateUserOverrides(ctx, userID, func(stored access.Overrides) (access.Overrides, error) {
		current = stored
		updated = next(matrices, p.Role, stored)
		if raised(p.Role, matrices, current, updated, resource, action) && !holds(resource, action) {
			return nil, fmt.Errorf("%w: %s.%s", ErrBeyondActor, resource, action)
		}
		return updated, nil
	})
	if err != nil {
		return nil, err
	}

	meta := map[string]any{
		"resource": string(resource),
		"action":   string(action),
		"from":     current.State(resource, action).String(),
		"to":       updated.State(resource, action).String(),
	}
	if updated.State(resource, action) == access.Granted && !matrices.For(p.Role).Allows(resource, action) {
		// Grants beyond the role ceiling are allowed but tagged for review.
		meta["above_role_default"] = true
	}
	s.record(ctx, actor.UserID, auditAction, "user", strconv.FormatInt(userID, 10), meta)
	return updated, nil
}

// actorHolds returns the actor's effective permission check. Admins hold
// everything; for everyone else overrides are read strictly, with no fallback.
func (s *Service) actorHolds(ctx context.Context, actor Principal, matrices access.RoleMatrices) (func(access.Resource, access.Action) bool, error) {
	if actor.IsAdmin() {
		return func(access.Resource, access.Action) bool { return true }, nil
	}
	var overrides access.Overrides
	if actor.Role.Editable() {
		var err error
		if overrides, err = s.store.UserOverrides(ctx, actor.UserID); err != nil {
			return nil, err
		}
	}
	resolver := access.NewResolver(actor.Role, matrices, overrides)
	return resolver.Can, nil
}

// raised reports whether moving from before to after turns the permission on.
func raised(role access.Role, matrices access.RoleMatrices, before, after access.Overrides, resource access.Resource, action access.Action) bool {
	return !access.Can(role, resource, action, matrices, before) && access.Can(role, resource, action, matrices, after)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
