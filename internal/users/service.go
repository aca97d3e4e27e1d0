package users

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/platform/httpx"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, f ListFilter) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, in NewUser) (User, error)
	UpdateRole(ctx context.Context, id int64, role access.Role) error
	SetActive(ctx context.Context, id int64, active bool) error
	CountActiveAdmins(ctx context.Context) (int, error)
}

// OverrideResetter clears per-user permission overrides.
type OverrideResetter interface {
	ResetUserOverrides(ctx context.Context, actor rbac.Principal, userID int64) error
}

// Service handles user business logic.
type Service struct {
	repo      RepositoryPort
	audit     shared.AuditRecorder
	overrides OverrideResetter
	validate  *validator.Validate
	logger    *slog.Logger
	hashCost  int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, validate: httpx.NewValidator(), logger: logger, hashCost: bcrypt.DefaultCost}
}

// SetOverrideResetter wires override cleanup on role changes. The permission
// service depends on this service for principals, so it is attached after both
// are built.
func (s *Service) SetOverrideResetter(r OverrideResetter) {
	s.overrides = r
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, f ListFilter) ([]User, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return s.repo.List(ctx, f)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// Create validates in, hashes the password and stores the account. Only an
// admin may create another admin.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput) (User, error) {
	if err := s.validate.Struct(in); err != nil {
		return User{}, err
	}
	if access.ParseRole(in.Role) == access.RoleAdmin && !actor.IsAdmin() {
		return User{}, ErrAdminOnly
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, err
	}
	u, err := s.repo.Create(ctx, NewUser{Email: in.Email, Name: in.Name, Role: access.ParseRole(in.Role), PasswordHash: string(hash)})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor.UserID, "users.create", u.ID, map[string]any{"email": u.Email, "role": u.Role.String()})
	return u, nil
}

// ChangeRole assigns role to user id. Demoting the last active admin is
// refused. Overrides are dropped when the new role no longer uses them.
// Non-admins cannot change their own role nor touch ADMIN on either side.
func (s *Service) ChangeRole(ctx context.Context, actor rbac.Principal, id int64, role access.Role) (User, error) {
	if !role.Valid() {
		return User{}, ErrInvalidRole
	}
	if !actor.IsAdmin() {
		if actor.UserID == id {
			return User{}, ErrSelfRoleChange
		}
		if role == access.RoleAdmin {
			return User{}, ErrAdminOnly
		}
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if current.Role == access.RoleAdmin && !actor.IsAdmin() {
		return User{}, ErrAdminOnly
	}
	if current.Role == role {
		return current, nil
	}
	if err := s.guardLastAdmin(ctx, current); err != nil {
		return User{}, err
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		return User{}, err
	}
	if current.Role.Editable() && !role.Editable() && s.overrides != nil {
		if err := s.overrides.ResetUserOverrides(ctx, actor, id); err != nil {
			s.logger.Warn("reset overrides after role change", slog.Int64("user_id", id), slog.Any("error", err))
		}
	}
	s.record(ctx, actor.UserID, "users.role.change", id, map[string]any{"from": current.Role.String(), "to": role.String()})
	current.Role = role
	return current, nil
}

// Deactivate disables the account of id. Admin accounts can only be
// deactivated by another admin.
func (s *Service) Deactivate(ctx context.Context, actor rbac.Principal, id int64) error {
	if actor.UserID == id {
		return ErrSelfDeactivate
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Role == access.RoleAdmin && !actor.IsAdmin() {
		return ErrAdminOnly
	}
	if !current.IsActive {
		return nil
	}
	if err := s.guardLastAdmin(ctx, current); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.record(ctx, actor.UserID, "users.deactivate", id, nil)
	return nil
}

// Principal implements rbac.PrincipalSource. Missing and inactive accounts
// both resolve to rbac.ErrNotFound.
func (s *Service) Principal(ctx context.Context, userID int64) (rbac.Principal, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rbac.Principal{}, rbac.ErrNotFound
		}
		return rbac.Principal{}, err
	}
	if !u.IsActive {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	return rbac.Principal{UserID: u.ID, Role: u.Role}, nil
}

func (s *Service) guardLastAdmin(ctx context.Context, u User) error {
	if u.Role != access.RoleAdmin || !u.IsActive {
		return nil
	}
	n, err := s.repo.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: strconv.FormatInt(userID, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

var _ rbac.PrincipalSource = (*Service)(nil)
