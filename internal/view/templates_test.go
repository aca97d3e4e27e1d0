package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emporia/console/internal/access"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestDashboardRendersOnlyVisibleNavigation(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	matrices := access.RoleMatrices{access.RoleAuthor: access.Matrix{access.ResourceMedia: {access.ActionView: true}}}
	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/home.html", TemplateData{
		Title:       "Dashboard",
		CurrentPath: "/",
		Role:        access.RoleAuthor,
		Nav:         access.VisibleNavigation(access.RoleAuthor, matrices, nil),
	})
	require.NoError(t, err)
	body := rec.Body.String()
	assert.Contains(t, body, `href="/media"`)
	assert.NotContains(t, body, `href="/users"`)
	assert.NotContains(t, body, `href="/roles"`)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestFormatMoney(t *testing.T) {
	assert.Contains(t, formatMoney(1299, "USD"), "12.99")
	assert.Equal(t, "n/a 1.50", formatMoney(150, "n/a"))
}
