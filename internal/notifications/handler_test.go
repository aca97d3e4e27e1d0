package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/rbac/rbactest"
)

type memTemplates struct {
	mu     sync.Mutex
	items  map[int64]Template
	nextID int64
}

func (m *memTemplates) List(ctx context.Context) ([]Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Template, 0, len(m.items))
	for id := int64(1); id <= m.nextID; id++ {
		if t, ok := m.items[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTemplates) Get(ctx context.Context, id int64) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	if !ok {
		return Template{}, ErrNotFound
	}
	return t, nil
}

func (m *memTemplates) Create(ctx context.Context, t Template) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	m.items[t.ID] = t
	return t, nil
}

func (m *memTemplates) Update(ctx context.Context, id int64, t Template) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[id]
	if !ok {
		return Template{}, ErrNotFound
	}
	t.ID, t.CreatedAt, t.UpdatedAt = id, cur.CreatedAt, time.Now().UTC()
	m.items[id] = t
	return t, nil
}

func (m *memTemplates) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memTemplates) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.items {
		if t.Active {
			n++
		}
	}
	return n, nil
}

type fixture struct {
	router http.Handler
	store  *memTemplates
	perms  *rbactest.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := &memTemplates{items: map[int64]Template{}}
	perms := rbactest.NewStore()
	h := NewHandler(nil, NewService(store, nil, nil), rbactest.NewMiddleware(perms))
	r := chi.NewRouter()
	r.Route("/notifications", h.MountRoutes)
	return fixture{router: r, store: store, perms: perms}
}

func (f fixture) do(method, path, body string, userID int64) *httptest.ResponseRecorder {
	req := rbactest.WithUser(httptest.NewRequest(method, path, strings.NewReader(body)), userID)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

const birthdayJSON = `{"name":" Birthday treat ","subject":"Happy birthday {{.FirstName}}","body":"Use {{.Coupon}} for {{.Percent}}% off.",
	"trigger":"BIRTHDAY","coupon_percent":15,"coupon_valid_days":7,"coupon_prefix":"bday","active":true}`

func TestCreateAndPreviewTemplate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/notifications", birthdayJSON, rbactest.AdminID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Birthday treat", created.Name)
	assert.Equal(t, "BDAY", created.CouponPrefix)

	rec = f.do(http.MethodPost, "/notifications/1/preview", `{"name":"grace hopper"}`, rbactest.EditorID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out Rendered
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Happy birthday Grace", out.Subject)
	assert.Regexp(t, `^Use BDAY-[0-9A-F]{8} for 15% off\.$`, out.Body)

	rec = f.do(http.MethodPost, "/notifications/1/preview", "", rbactest.EditorID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Happy birthday Jane")
}

func TestTemplateValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"holiday missing":     `{"name":"x","subject":"s","body":"b","trigger":"HOLIDAY"}`,
		"holiday unknown":     `{"name":"x","subject":"s","body":"b","trigger":"HOLIDAY","holiday":"EASTER"}`,
		"recurring no day":    `{"name":"x","subject":"s","body":"b","trigger":"RECURRING","month":4}`,
		"one time no date":    `{"name":"x","subject":"s","body":"b","trigger":"ONE_TIME"}`,
		"coupon without days": `{"name":"x","subject":"s","body":"b","trigger":"BIRTHDAY","coupon_percent":10}`,
		"coupon over 100":     `{"name":"x","subject":"s","body":"b","trigger":"BIRTHDAY","coupon_percent":120,"coupon_valid_days":3}`,
		"bad trigger":         `{"name":"x","subject":"s","body":"b","trigger":"WEEKLY"}`,
		"impossible date":     `{"name":"x","subject":"s","body":"b","trigger":"RECURRING","month":4,"day":31}`,
		"broken body":         `{"name":"x","subject":"s","body":"{{.Nmae}}","trigger":"BIRTHDAY"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/notifications", body, rbactest.AdminID)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, f.store.items)

	rec := f.do(http.MethodPost, "/notifications", `{"name":"x","subject":"s","body":"b","trigger":"HOLIDAY","holiday":"halloween"}`, rbactest.AdminID)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestDueEndpoint(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/notifications",
		`{"name":"leap","subject":"s","body":"b","trigger":"RECURRING","month":2,"day":29,"active":true}`, rbactest.AdminID).Code)

	rec := f.do(http.MethodGet, "/notifications/due?date=2027-02-28", "", rbactest.EditorID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"leap"`)

	rec = f.do(http.MethodGet, "/notifications/due?date=2028-02-28", "", rbactest.EditorID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"leap"`)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/notifications/due?date=tomorrow", "", rbactest.EditorID).Code)
}

func TestNotificationPermissions(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/notifications", birthdayJSON, rbactest.EditorID).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/notifications", "", rbactest.AuthorID).Code)

	f.perms.Overrides[rbactest.EditorID] = access.Overrides{}.With(access.ResourceNotifications, access.ActionCreate, access.Granted)
	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/notifications", birthdayJSON, rbactest.EditorID).Code)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/notifications/1", "", rbactest.EditorID).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/notifications/1", "", rbactest.AdminID).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/notifications/1", "", rbactest.AdminID).Code)
}

func TestUpdateTemplate(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/notifications", birthdayJSON, rbactest.AdminID).Code)

	rec := f.do(http.MethodPut, "/notifications/1",
		`{"name":"Launch","subject":"New in store","body":"Hi {{.Name}}","trigger":"ONE_TIME","on_date":"2026-11-20T15:00:00Z","active":true}`, rbactest.AdminID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := f.store.items[1]
	assert.Equal(t, TriggerOneTime, got.Trigger)
	require.NotNil(t, got.OnDate)
	assert.Equal(t, date(2026, 11, 20), *got.OnDate)
	assert.Zero(t, got.CouponPercent)
}
