package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTMLPostsIndexFile(t *testing.T) {
	var gotHTML, gotPaper string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		f, hdr, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, "index.html", hdr.Filename)
		raw, _ := io.ReadAll(f)
		gotHTML = string(raw)
		gotPaper = r.FormValue("paperWidth")
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	pdf, err := NewClient(srv.URL+"/", time.Second).RenderHTML(context.Background(), "<h1>Quote</h1>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
	assert.Equal(t, "<h1>Quote</h1>", gotHTML)
	assert.Equal(t, "8.27", gotPaper)
}

func TestRenderHTMLReportsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).RenderHTML(context.Background(), "<p>x</p>")
	assert.ErrorContains(t, err, "503")
	assert.ErrorContains(t, NewClient(srv.URL, time.Second).Ping(context.Background()), "503")
}

func TestUnconfiguredClient(t *testing.T) {
	_, err := NewClient("", 0).RenderHTML(context.Background(), "<p>x</p>")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, NewClient("", 0).Ping(context.Background()), ErrUnavailable)
}
