package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/shared"
)

type decision struct {
	resource, action string
	allowed          bool
}

type fakeDecisions struct {
	mu  sync.Mutex
	got []decision
}

func (f *fakeDecisions) RecordDecision(resource, action string, allowed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, decision{resource, action, allowed})
}

type principalFunc func(ctx context.Context, userID int64) (Principal, error)

func (f principalFunc) Principal(ctx context.Context, userID int64) (Principal, error) {
	return f(ctx, userID)
}

func newTestRouter(t *testing.T, store Store, principals PrincipalSource) (http.Handler, *fakeDecisions) {
	t.Helper()
	decisions := &fakeDecisions{}
	mw := Middleware{Service: NewService(store, principals, nil, nil, nil), Metrics: decisions}

	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	r := chi.NewRouter()
	r.With(mw.AdminArea()).Get("/", ok)
	r.With(mw.Require(access.ResourceProducts, access.ActionView)).Get("/products", ok)
	r.With(mw.Require(access.ResourceProducts, access.ActionDelete)).Delete("/products/{id}", ok)
	r.With(mw.Require(access.ResourceUsers, access.ActionEdit)).Put("/users/{id}", ok)
	return r, decisions
}

func do(t *testing.T, h http.Handler, method, path string, userID int64) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != 0 {
		sess := &shared.Session{}
		sess.SetUser(strconv.FormatInt(userID, 10))
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireEnforcesServerSide(t *testing.T) {
	store := newFakeStore()
	h, decisions := newTestRouter(t, store, testPrincipals())

	tests := []struct {
		name   string
		method string
		path   string
		user   int64
		want   int
	}{
		{"anonymous", http.MethodGet, "/products", 0, http.StatusUnauthorized},
		{"unknown user", http.MethodGet, "/products", 99, http.StatusUnauthorized},
		{"editor view", http.MethodGet, "/products", editorID, http.StatusOK},
		{"editor delete denied", http.MethodDelete, "/products/7", editorID, http.StatusForbidden},
		{"author products denied", http.MethodGet, "/products", authorID, http.StatusForbidden},
		{"subscriber denied", http.MethodGet, "/products", subscriberID, http.StatusForbidden},
		{"admin anything", http.MethodPut, "/users/5", adminID, http.StatusOK},
		{"editor users denied", http.MethodPut, "/users/5", editorID, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, h, tt.method, tt.path, tt.user))
		})
	}
	assert.NotEmpty(t, decisions.got)
}

func TestRequireHonoursOverrideGrant(t *testing.T) {
	store := newFakeStore()
	h, decisions := newTestRouter(t, store, testPrincipals())

	require.Equal(t, http.StatusForbidden, do(t, h, http.MethodDelete, "/products/7", editorID))
	store.overrides[editorID] = access.ToggleOverride(nil, access.ResourceProducts, access.ActionDelete, false)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/products/7", editorID))

	last := decisions.got[len(decisions.got)-1]
	assert.Equal(t, decision{"products", "delete", true}, last)
}

func TestAdminAreaRejectsSubscribers(t *testing.T) {
	h, _ := newTestRouter(t, newFakeStore(), testPrincipals())

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/", authorID))
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/", subscriberID))
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/", 0))
}

func TestPrincipalLookupFailureFailsClosed(t *testing.T) {
	failing := principalFunc(func(ctx context.Context, userID int64) (Principal, error) {
		return Principal{}, errStoreDown
	})
	h, _ := newTestRouter(t, newFakeStore(), failing)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/products", adminID))
}

func TestStoreOutageUsesDefaults(t *testing.T) {
	store := newFakeStore()
	store.failRead = true
	h, _ := newTestRouter(t, store, testPrincipals())

	// Built-in defaults let editors view products but never delete them.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/products", editorID))
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodDelete, "/products/1", editorID))
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/products/1", adminID))
}
