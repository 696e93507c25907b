package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/models"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/protocol"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/retry"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{
		BaseURL: ts.URL,
		RetryConfig: retry.Config{
			MaxAttempts: 3,
			InitialWait: time.Millisecond,
			MaxWait:     time.Millisecond,
		},
	})
	return c, ts
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestListDirectory(t *testing.T) {
	var gotPath string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/files" {
			t.Errorf("unexpected endpoint %s", r.URL.Path)
		}
		gotPath = r.URL.Query().Get("path")
		writeJSON(w, http.StatusOK, []models.FileInfo{
			{Name: "docs", Path: "/docs", IsDirectory: true},
			{Name: "readme.md", Path: "/readme.md", Size: 12, Type: "text/markdown"},
		})
	}))
	defer ts.Close()

	entries, err := c.ListDirectory(context.Background(), "docs/../")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/" {
		t.Errorf("expected cleaned path /, got %q", gotPath)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].IsDirectory || entries[1].Name != "readme.md" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestReadTextContent(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("path") != "/docs/a.md" {
			writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "File not found", Code: 404})
			return
		}
		writeJSON(w, http.StatusOK, protocol.ContentResponse{Content: "# A"})
	}))
	defer ts.Close()

	content, err := c.ReadTextContent(context.Background(), "/docs/a.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "# A" {
		t.Errorf("expected '# A', got %q", content)
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "File not found", Code: 404})
	}))
	defer ts.Close()

	_, err := c.ReadTextContent(context.Background(), "/missing.txt")
	if err == nil {
		t.Fatal("expected error")
	}
	if StatusCode(err) != http.StatusNotFound {
		t.Errorf("expected status 404, got %d (%v)", StatusCode(err), err)
	}
	var he *HTTPError
	if !errors.As(err, &he) || he.Message != "File not found" {
		t.Errorf("expected server message in error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
	if !c.IsOnline() {
		t.Error("a 404 means the server is reachable")
	}
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, protocol.ContentResponse{Content: "ok"})
	}))
	defer ts.Close()

	content, err := c.ReadTextContent(context.Background(), "/flaky.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "ok" {
		t.Errorf("expected ok, got %q", content)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestOnlineTransitions(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok"})
	}))

	var changes []bool
	c.OnStatusChange(func(online bool) { changes = append(changes, online) })

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("no transition expected while online, got %v", changes)
	}

	ts.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail on closed server")
	}
	if c.IsOnline() {
		t.Error("expected offline after failed ping")
	}
	if len(changes) != 1 || changes[0] {
		t.Errorf("expected one offline transition, got %v", changes)
	}
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.FileInfo{})
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, RequestsPerSecond: 20, Burst: 1})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.ListDirectory(context.Background(), "/"); err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected limiter to space 3 requests over ~100ms, took %s", elapsed)
	}
}
