package roles

import (
	"context"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/rbac"
)

// MatrixService is the permission service surface used for role administration.
type MatrixService interface {
	RoleMatrices(ctx context.Context) (access.RoleMatrices, error)
	UpdateRoleMatrix(ctx context.Context, actor rbac.Principal, role access.Role, matrix access.Matrix) error
}

// Service handles role administration.
type Service struct {
	matrices MatrixService
}

// NewService builds Service instance.
func NewService(matrices MatrixService) *Service {
	return &Service{matrices: matrices}
}

// ListRoles returns every role in the fixed order ADMIN, EDITOR, AUTHOR, SUBSCRIBER.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	matrices, err := s.matrices.RoleMatrices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(access.Roles()))
	for _, role := range access.Roles() {
		out = append(out, summarize(role, matrices))
	}
	return out, nil
}

// GetRole returns one role with its grid.
func (s *Service) GetRole(ctx context.Context, role access.Role) (Detail, error) {
	if !role.Valid() {
		return Detail{}, ErrUnknownRole
	}
	matrices, err := s.matrices.RoleMatrices(ctx)
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		Role:   summarize(role, matrices),
		Matrix: matrices.For(role),
		Cells:  access.Grid(role, matrices, nil),
	}, nil
}

// UpdateRole replaces the matrix of an editable role and returns the result.
func (s *Service) UpdateRole(ctx context.Context, actor rbac.Principal, role access.Role, matrix access.Matrix) (Detail, error) {
	if !role.Valid() {
		return Detail{}, ErrUnknownRole
	}
	if err := s.matrices.UpdateRoleMatrix(ctx, actor, role, matrix); err != nil {
		return Detail{}, err
	}
	return s.GetRole(ctx, role)
}

func summarize(role access.Role, matrices access.RoleMatrices) Role {
	grants := matrices.For(role).Grants()
	if grants == nil {
		grants = []access.Grant{}
	}
	return Role{Name: role, Description: descriptions[role], Editable: role.Editable(), Grants: grants}
}
