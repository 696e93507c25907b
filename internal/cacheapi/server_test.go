package cacheapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/api"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/logging"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/preview"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/storage/local"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/client"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/prefetch"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/protocol"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/retry"
)

func TestMain(m *testing.M) {
	logging.InitDefault()
	os.Exit(m.Run())
}

type fixture struct {
	mgr    *prefetch.Manager
	facade *httptest.Server
}

// setup serves a small tree from disk through the real file API and puts a
// caching session with its facade in front of it.
func setup(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"README.md":       "# Project\n\nSee `docs`.",
		"docs/guide.md":   "guide",
		"docs/api/ref.md": "ref",
		"src/main.go":     "package main\n",
		"assets/logo.png": "\x89PNG",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}

	backend, err := local.New(local.Config{RootPath: root})
	require.NoError(t, err)
	fileServer := httptest.NewServer(api.NewServer(backend, nil).Handler())
	t.Cleanup(fileServer.Close)

	c := client.New(client.Config{
		BaseURL:     fileServer.URL,
		Timeout:     5 * time.Second,
		RetryConfig: retry.Config{MaxAttempts: 1},
	})
	mgr := prefetch.InitCacheManager(c, prefetch.Options{MaxConcurrentFetches: 2})
	t.Cleanup(mgr.Close)

	renderer, err := preview.New("")
	require.NoError(t, err)

	facade := httptest.NewServer(NewServer(mgr, renderer, "/").Handler())
	t.Cleanup(facade.Close)

	return &fixture{mgr: mgr, facade: facade}
}

func (f *fixture) do(t *testing.T, method, endpoint string, query url.Values) *http.Response {
	t.Helper()
	u := f.facade.URL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, u, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.mgr.Wait(ctx))
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func pathQuery(p string) url.Values {
	return url.Values{"path": {p}}
}

func TestStartCachesTextFiles(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/cache/start", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	f.wait(t)

	st := decode[StatsResponse](t, f.do(t, http.MethodGet, "/cache/stats", nil))
	assert.Equal(t, 4, st.CacheSize)
	assert.Equal(t, "idle", st.StateName)
	assert.Equal(t, 5, st.VisitedCount)
	assert.Empty(t, st.Reasons)

	paths := decode[[]string](t, f.do(t, http.MethodGet, "/cache/paths", nil))
	assert.Equal(t, []string{"/README.md", "/docs/api/ref.md", "/docs/guide.md", "/src/main.go"}, paths)

	cached := decode[ContentResponse](t, f.do(t, http.MethodGet, "/cache/cached", pathQuery("/docs/guide.md")))
	assert.Equal(t, "guide", cached.Content)

	miss := f.do(t, http.MethodGet, "/cache/cached", pathQuery("/assets/logo.png"))
	miss.Body.Close()
	assert.Equal(t, http.StatusNotFound, miss.StatusCode)
}

func TestContentFetchesOnMiss(t *testing.T) {
	f := setup(t)

	got := decode[ContentResponse](t, f.do(t, http.MethodGet, "/cache/content", pathQuery("/src/main.go")))
	assert.Equal(t, "package main\n", got.Content)
	assert.True(t, f.mgr.IsContentCached("/src/main.go"))

	st := f.mgr.GetCacheStats()
	assert.EqualValues(t, 1, st.TotalRequested)
	assert.EqualValues(t, 1, st.TotalFetched)
}

func TestContentRelaysServerErrors(t *testing.T) {
	f := setup(t)

	tests := []struct {
		path string
		want int
	}{
		{"/missing.md", http.StatusNotFound},
		{"/assets/logo.png", http.StatusBadRequest},
		{"/../etc/passwd", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := f.do(t, http.MethodGet, "/cache/content", pathQuery(tt.path))
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	// A failed fetch leaves nothing cached and can be retried.
	assert.False(t, f.mgr.IsContentCached("/missing.md"))
}

func TestPreview(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodGet, "/cache/preview", pathQuery("/README.md"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `<h1 id="project">Project</h1>`)
	assert.Contains(t, string(body), "<code>docs</code>")
}

func TestPauseResumeAndVisibility(t *testing.T) {
	f := setup(t)

	st := decode[StatsResponse](t, f.do(t, http.MethodPost, "/cache/pause", nil))
	assert.True(t, st.Paused)
	assert.Equal(t, "paused", st.StateName)

	st = decode[StatsResponse](t, f.do(t, http.MethodPost, "/cache/resume", nil))
	assert.False(t, st.Paused)
	assert.Equal(t, "idle", st.StateName)

	st = decode[StatsResponse](t, f.do(t, http.MethodPost, "/cache/visibility", url.Values{"hidden": {"true"}}))
	assert.True(t, st.Paused)
	assert.Equal(t, []string{"hidden"}, st.Reasons)

	st = decode[StatsResponse](t, f.do(t, http.MethodPost, "/cache/visibility", url.Values{"hidden": {"false"}}))
	assert.False(t, st.Paused)
	assert.Empty(t, st.Reasons)

	bad := f.do(t, http.MethodPost, "/cache/visibility", url.Values{"hidden": {"maybe"}})
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestPrioritizeWhilePaused(t *testing.T) {
	f := setup(t)

	f.do(t, http.MethodPost, "/cache/pause", nil).Body.Close()
	f.do(t, http.MethodPost, "/cache/prioritize", pathQuery("/docs")).Body.Close()

	queue := decode[[]prefetch.QueueItem](t, f.do(t, http.MethodGet, "/cache/queue", nil))
	require.NotEmpty(t, queue)
	assert.Equal(t, prefetch.QueueItem{Path: "/docs", Level: 0}, queue[0])

	f.do(t, http.MethodPost, "/cache/resume", nil).Body.Close()
	f.wait(t)
	assert.True(t, f.mgr.IsContentCached("/docs/guide.md"))
	assert.True(t, f.mgr.IsContentCached("/docs/api/ref.md"))
}

func TestClearAndInit(t *testing.T) {
	f := setup(t)

	f.do(t, http.MethodGet, "/cache/content", pathQuery("/docs/guide.md")).Body.Close()
	require.True(t, f.mgr.IsContentCached("/docs/guide.md"))

	resp := f.do(t, http.MethodDelete, "/cache", pathQuery("/docs/guide.md"))
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, f.mgr.IsContentCached("/docs/guide.md"))

	f.do(t, http.MethodGet, "/cache/content", pathQuery("/README.md")).Body.Close()
	st := decode[StatsResponse](t, f.do(t, http.MethodPost, "/cache/init", nil))
	assert.Equal(t, 0, st.CacheSize)
	assert.EqualValues(t, 0, st.Misses)
	assert.EqualValues(t, 0, st.TotalFetched)
}

func TestMissingPath(t *testing.T) {
	f := setup(t)

	for _, ep := range []string{"/cache/content", "/cache/cached", "/cache/preview"} {
		resp := f.do(t, http.MethodGet, ep, nil)
		e := decode[protocol.ErrorResponse](t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, ep)
		assert.True(t, strings.Contains(e.Error, "path"), ep)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := setup(t)

	h := decode[protocol.HealthResponse](t, f.do(t, http.MethodGet, "/health", nil))
	assert.Equal(t, "ok", h.Status)

	resp := f.do(t, http.MethodGet, "/metrics", nil)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "explorer_prefetch_listing_duration_seconds")
}
