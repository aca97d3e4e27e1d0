package rbac

import (
	"context"
	"errors"
	"sync"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/shared"
)

var errStoreDown = errors.New("connection refused")

type fakeStore struct {
	mu        sync.Mutex
	matrices  access.RoleMatrices
	overrides map[int64]access.Overrides
	failRead  bool
	reads     int
	writes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matrices: access.RoleMatrices{
			access.RoleEditor: access.Matrix{
				access.ResourceProducts: {access.ActionView: true, access.ActionEdit: true, access.ActionDelete: false},
			},
			access.RoleAuthor: access.Matrix{
				access.ResourceMedia: {access.ActionView: true},
			},
		},
		overrides: map[int64]access.Overrides{},
	}
}

func (f *fakeStore) RolePermissions(ctx context.Context) (access.RoleMatrices, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failRead {
		return nil, errStoreDown
	}
	return f.matrices.Clone(), nil
}

func (f *fakeStore) UserOverrides(ctx context.Context, userID int64) (access.Overrides, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failRead {
		return nil, errStoreDown
	}
	return f.overrides[userID].Clone(), nil
}

func (f *fakeStore) SetRolePermissions(ctx context.Context, role access.Role, matrix access.Matrix) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !role.Editable() {
		return ErrRoleNotEditable
	}
	f.writes++
	f.matrices[role] = matrix.Clone()
	return nil
}

func (f *fakeStore) SetUserOverrides(ctx context.Context, userID int64, overrides access.Overrides) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.overrides[userID] = overrides.Clone()
	return nil
}

func (f *fakeStore) UpdateUserOverrides(ctx context.Context, userID int64, fn func(access.Overrides) (access.Overrides, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := fn(f.overrides[userID].Clone())
	if err != nil {
		return err
	}
	f.writes++
	f.overrides[userID] = next.Clone()
	return nil
}

func (f *fakeStore) ClearUserOverrides(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	delete(f.overrides, userID)
	return nil
}

type fakePrincipals map[int64]access.Role

func (f fakePrincipals) Principal(ctx context.Context, userID int64) (Principal, error) {
	role, ok := f[userID]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return Principal{UserID: userID, Role: role}, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, log)
	return nil
}

type fakeFallbacks struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeFallbacks) RecordFallback(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[source]++
}

const (
	adminID      int64 = 1
	editorID     int64 = 2
	authorID     int64 = 3
	subscriberID int64 = 4
)

func testPrincipals() fakePrincipals {
	return fakePrincipals{
		adminID:      access.RoleAdmin,
		editorID:     access.RoleEditor,
		authorID:     access.RoleAuthor,
		subscriberID: access.RoleSubscriber,
	}
}
