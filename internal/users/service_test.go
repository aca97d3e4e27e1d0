package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	users  map[int64]*User
	hashes map[int64]string
	nextID int64

	getError error
}

func newMockRepository(seed ...User) *mockRepository {
	m := &mockRepository{users: map[int64]*User{}, hashes: map[int64]string{}, nextID: 1}
	for i := range seed {
		u := seed[i]
		m.users[u.ID] = &u
		if u.ID >= m.nextID {
			m.nextID = u.ID + 1
		}
	}
	return m
}

func (m *mockRepository) List(ctx context.Context, f ListFilter) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		if f.Role != access.RoleUnknown && u.Role != f.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (User, error) {
	if m.getError != nil {
		return User{}, m.getError
	}
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (m *mockRepository) Create(ctx context.Context, in NewUser) (User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, in.Email) {
			return User{}, ErrEmailTaken
		}
	}
	u := User{ID: m.nextID, Email: in.Email, Name: in.Name, Role: in.Role, IsActive: true, CreatedAt: time.Now()}
	m.nextID++
	m.users[u.ID] = &u
	m.hashes[u.ID] = in.PasswordHash
	return u, nil
}

func (m *mockRepository) UpdateRole(ctx context.Context, id int64, role access.Role) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	return nil
}

func (m *mockRepository) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (m *mockRepository) CountActiveAdmins(ctx context.Context) (int, error) {
	n := 0
	for _, u := range m.users {
		if u.Role == access.RoleAdmin && u.IsActive {
			n++
		}
	}
	return n, nil
}

type recordingAudit struct {
	actions []string
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.actions = append(r.actions, log.Action)
	return nil
}

type resetCalls struct {
	users []int64
}

func (r *resetCalls) ResetUserOverrides(ctx context.Context, actor rbac.Principal, userID int64) error {
	r.users = append(r.users, userID)
	return nil
}

func seedUsers() []User {
	return []User{
		{ID: 1, Email: "owner@example.com", Name: "Owner", Role: access.RoleAdmin, IsActive: true},
		{ID: 2, Email: "ed@example.com", Name: "Ed", Role: access.RoleEditor, IsActive: true},
		{ID: 3, Email: "old@example.com", Name: "Old", Role: access.RoleAuthor, IsActive: false},
	}
}

var (
	owner  = rbac.Principal{UserID: 1, Role: access.RoleAdmin}
	editor = rbac.Principal{UserID: 2, Role: access.RoleEditor}
)

func newTestService(repo *mockRepository) (*Service, *recordingAudit) {
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)
	svc.hashCost = bcrypt.MinCost
	return svc, audit
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateHashesPassword(t *testing.T) {
	repo := newMockRepository(seedUsers()...)
	svc, audit := newTestService(repo)

	u, err := svc.Create(context.Background(), owner, CreateInput{Email: "new@example.com", Name: "New", Role: "AUTHOR", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, access.RoleAuthor, u.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[u.ID]), []byte("s3cret-pass")))
	assert.Equal(t, []string{"users.create"}, audit.actions)
}

func TestCreateValidates(t *testing.T) {
	svc, _ := newTestService(newMockRepository())

	_, err := svc.Create(context.Background(), owner, CreateInput{Email: "not-an-email", Name: "X", Role: "SUPERUSER", Password: "short"})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := map[string]bool{}
	for _, fe := range verrs {
		fields[fe.Field()] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["role"])
	assert.True(t, fields["password"])
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(newMockRepository(seedUsers()...))
	_, err := svc.Create(context.Background(), owner, CreateInput{Email: "ed@example.com", Name: "Ed 2", Role: "EDITOR", Password: "password1"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestChangeRoleRefusesLastAdmin(t *testing.T) {
	svc, _ := newTestService(newMockRepository(seedUsers()...))
	_, err := svc.ChangeRole(context.Background(), owner, 1, access.RoleEditor)
	assert.ErrorIs(t, err, ErrLastAdmin)
}

func TestChangeRoleAllowsDemotionWithSecondAdmin(t *testing.T) {
	seed := append(seedUsers(), User{ID: 4, Email: "second@example.com", Role: access.RoleAdmin, IsActive: true})
	repo := newMockRepository(seed...)
	svc, audit := newTestService(repo)

	u, err := svc.ChangeRole(context.Background(), rbac.Principal{UserID: 4, Role: access.RoleAdmin}, 1, access.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, access.RoleEditor, u.Role)
	assert.Equal(t, access.RoleEditor, repo.users[1].Role)
	assert.Equal(t, []string{"users.role.change"}, audit.actions)
}

func TestChangeRoleDropsOverridesWhenLeavingEditableRoles(t *testing.T) {
	repo := newMockRepository(seedUsers()...)
	svc, _ := newTestService(repo)
	resets := &resetCalls{}
	svc.SetOverrideResetter(resets)

	_, err := svc.ChangeRole(context.Background(), owner, 2, access.RoleAuthor)
	require.NoError(t, err)
	assert.Empty(t, resets.users)

	_, err = svc.ChangeRole(context.Background(), owner, 2, access.RoleSubscriber)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, resets.users)
}

func TestChangeRoleRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService(newMockRepository(seedUsers()...))
	_, err := svc.ChangeRole(context.Background(), owner, 2, access.ParseRole("SUPERUSER"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestDeactivate(t *testing.T) {
	repo := newMockRepository(seedUsers()...)
	svc, audit := newTestService(repo)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Deactivate(ctx, owner, 1), ErrSelfDeactivate)
	assert.ErrorIs(t, svc.Deactivate(ctx, rbac.Principal{UserID: 9, Role: access.RoleAdmin}, 1), ErrLastAdmin)
	assert.ErrorIs(t, svc.Deactivate(ctx, editor, 1), ErrAdminOnly)
	assert.ErrorIs(t, svc.Deactivate(ctx, owner, 42), ErrNotFound)

	require.NoError(t, svc.Deactivate(ctx, owner, 2))
	assert.False(t, repo.users[2].IsActive)
	require.NoError(t, svc.Deactivate(ctx, owner, 3))
	assert.Equal(t, []string{"users.deactivate"}, audit.actions)
}

func TestNonAdminCannotCreateAdmins(t *testing.T) {
	repo := newMockRepository(seedUsers()...)
	svc, audit := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, editor, CreateInput{Email: "boss@example.com", Name: "Boss", Role: "ADMIN", Password: "password1"})
	assert.ErrorIs(t, err, ErrAdminOnly)
	assert.Len(t, repo.users, 3)

	u, err := svc.Create(ctx, editor, CreateInput{Email: "writer@example.com", Name: "Writer", Role: "AUTHOR", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, access.RoleAuthor, u.Role)

	_, err = svc.Create(ctx, owner, CreateInput{Email: "boss@example.com", Name: "Boss", Role: "ADMIN", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"users.create", "users.create"}, audit.actions)
}

func TestNonAdminRoleChangesStayBelowAdmin(t *testing.T) {
	seed := append(seedUsers(), User{ID: 5, Email: "auth@example.com", Role: access.RoleAuthor, IsActive: true})
	repo := newMockRepository(seed...)
	svc, audit := newTestService(repo)
	ctx := context.Background()

	_, err := svc.ChangeRole(ctx, editor, 2, access.RoleAdmin)
	assert.ErrorIs(t, err, ErrSelfRoleChange)
	_, err = svc.ChangeRole(ctx, editor, 2, access.RoleAuthor)
	assert.ErrorIs(t, err, ErrSelfRoleChange)
	_, err = svc.ChangeRole(ctx, editor, 5, access.RoleAdmin)
	assert.ErrorIs(t, err, ErrAdminOnly)
	_, err = svc.ChangeRole(ctx, editor, 1, access.RoleSubscriber)
	assert.ErrorIs(t, err, ErrAdminOnly)
	assert.Equal(t, access.RoleEditor, repo.users[2].Role)
	assert.Equal(t, access.RoleAuthor, repo.users[5].Role)
	assert.Equal(t, access.RoleAdmin, repo.users[1].Role)
	assert.Empty(t, audit.actions)

	u, err := svc.ChangeRole(ctx, editor, 5, access.RoleSubscriber)
	require.NoError(t, err)
	assert.Equal(t, access.RoleSubscriber, u.Role)
}

func TestPrincipal(t *testing.T) {
	repo := newMockRepository(seedUsers()...)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Principal(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, rbac.Principal{UserID: 2, Role: access.RoleEditor}, p)

	_, err = svc.Principal(ctx, 3)
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	_, err = svc.Principal(ctx, 99)
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	repo.getError = errors.New("connection reset")
	_, err = svc.Principal(ctx, 2)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, rbac.ErrNotFound)
}
