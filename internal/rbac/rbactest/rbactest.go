// Package rbactest provides in-memory permission fixtures for handler tests.
package rbactest

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/shared"
)

// Store is an in-memory rbac.Store seeded with the default matrices.
type Store struct {
	mu        sync.Mutex
	Matrices  access.RoleMatrices
	Overrides map[int64]access.Overrides
}

// NewStore returns a Store holding access.DefaultMatrices.
func NewStore() *Store {
	return &Store{Matrices: access.DefaultMatrices(), Overrides: map[int64]access.Overrides{}}
}

func (s *Store) RolePermissions(ctx context.Context) (access.RoleMatrices, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Matrices.Clone(), nil
}

func (s *Store) UserOverrides(ctx context.Context, userID int64) (access.Overrides, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Overrides[userID].Clone(), nil
}

func (s *Store) SetRolePermissions(ctx context.Context, role access.Role, matrix access.Matrix) error {
	if !role.Editable() {
		return rbac.ErrRoleNotEditable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Matrices[role] = matrix.Clone()
	return nil
}

func (s *Store) SetUserOverrides(ctx context.Context, userID int64, overrides access.Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Overrides[userID] = overrides.Clone()
	return nil
}

func (s *Store) UpdateUserOverrides(ctx context.Context, userID int64, fn func(access.Overrides) (access.Overrides, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.Overrides[userID].Clone())
	if err != nil {
		return err
	}
	s.Overrides[userID] = next.Clone()
	return nil
}

func (s *Store) ClearUserOverrides(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Overrides, userID)
	return nil
}

// Principals maps user IDs to roles.
type Principals map[int64]access.Role

func (p Principals) Principal(ctx context.Context, userID int64) (rbac.Principal, error) {
	role, ok := p[userID]
	if !ok {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	return rbac.Principal{UserID: userID, Role: role}, nil
}

// Fixture user IDs, one per role.
const (
	AdminID      int64 = 1
	EditorID     int64 = 2
	AuthorID     int64 = 3
	SubscriberID int64 = 4
)

// DefaultPrincipals returns one principal per role using the fixture IDs.
func DefaultPrincipals() Principals {
	return Principals{
		AdminID:      access.RoleAdmin,
		EditorID:     access.RoleEditor,
		AuthorID:     access.RoleAuthor,
		SubscriberID: access.RoleSubscriber,
	}
}

// NewMiddleware returns middleware over store and the default principals.
func NewMiddleware(store *Store) rbac.Middleware {
	return rbac.Middleware{Service: rbac.NewService(store, DefaultPrincipals(), nil, nil, nil)}
}

// WithUser attaches a session signed in as userID to req.
func WithUser(req *http.Request, userID int64) *http.Request {
	sess := &shared.Session{}
	sess.SetUser(strconv.FormatInt(userID, 10))
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}
