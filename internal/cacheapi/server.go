// Package cacheapi exposes a caching session over HTTP, so a UI can read
// cached content and steer the background traversal.
package cacheapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/logging"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/metrics"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/preview"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/client"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/prefetch"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/protocol"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

// Server is the HTTP facade of one caching session.
type Server struct {
	mgr      *prefetch.Manager
	renderer *preview.Renderer
	root     string
}

// NewServer creates a facade over mgr. root is the default start path.
func NewServer(mgr *prefetch.Manager, renderer *preview.Renderer, root string) *Server {
	return &Server{mgr: mgr, renderer: renderer, root: tree.Clean(root)}
}

// StatsResponse is returned by GET /cache/stats.
type StatsResponse struct {
	prefetch.Stats
	HitRate float64  `json:"hitRate"`
	Reasons []string `json:"suspendedBy"`
}

// ContentResponse is returned by the content endpoints.
type ContentResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/paths", s.handlePaths)
		r.Get("/queue", s.handleQueue)
		r.Get("/content", s.handleContent)
		r.Get("/cached", s.handleCached)
		r.Get("/preview", s.handlePreview)

		r.Post("/init", s.handleInit)
		r.Post("/start", s.handleStart)
		r.Post("/prioritize", s.handlePrioritize)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Post("/visibility", s.handleVisibility)

		r.Delete("/", s.handleClear)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, "not found")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok"})
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func (s *Server) stats() StatsResponse {
	st := s.mgr.GetCacheStats()
	reasons := s.mgr.Lifecycle().Reasons()
	if reasons == nil {
		reasons = []string{}
	}
	return StatsResponse{Stats: st, HitRate: st.HitRate(), Reasons: reasons}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.stats())
}

func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.mgr.CachedPaths())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	queue := s.mgr.Queue()
	if queue == nil {
		queue = []prefetch.QueueItem{}
	}
	sendJSON(w, http.StatusOK, queue)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	content, err := s.mgr.GetContentWithCache(r.Context(), path)
	if err != nil {
		sendFetchError(w, r, path, err)
		return
	}
	sendJSON(w, http.StatusOK, ContentResponse{Path: path, Content: content})
}

func (s *Server) handleCached(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	content, hit := s.mgr.GetCachedContent(path)
	if !hit {
		sendError(w, http.StatusNotFound, "not cached")
		return
	}
	sendJSON(w, http.StatusOK, ContentResponse{Path: path, Content: content})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	content, err := s.mgr.GetContentWithCache(r.Context(), path)
	if err != nil {
		sendFetchError(w, r, path, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Page(w, path, content); err != nil {
		logging.WithContext(r.Context()).Error("render preview",
			zap.String("path", path), zap.Error(err))
	}
}

// ─── Commands ───────────────────────────────────────────────────────────────

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	s.mgr.Init()
	sendJSON(w, http.StatusOK, s.stats())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = s.root
	}
	s.mgr.StartBackgroundCaching(tree.Clean(path))
	sendJSON(w, http.StatusAccepted, s.stats())
}

func (s *Server) handlePrioritize(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	s.mgr.PrioritizeCachingForDirectory(path)
	sendJSON(w, http.StatusAccepted, s.stats())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.mgr.PauseCaching()
	sendJSON(w, http.StatusOK, s.stats())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.mgr.ResumeCaching()
	sendJSON(w, http.StatusOK, s.stats())
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	hidden, err := strconv.ParseBool(r.URL.Query().Get("hidden"))
	if err != nil {
		sendError(w, http.StatusBadRequest, "hidden must be true or false")
		return
	}
	s.mgr.Lifecycle().SetHidden(hidden)
	sendJSON(w, http.StatusOK, s.stats())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	s.mgr.ClearCacheFor(path)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func requirePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := r.URL.Query().Get("path")
	if path == "" {
		sendError(w, http.StatusBadRequest, "path is required")
		return "", false
	}
	if tree.Escapes(path) {
		sendError(w, http.StatusForbidden, "access denied")
		return "", false
	}
	return tree.Clean(path), true
}

// sendFetchError relays the server's 4xx answers and reports anything else
// as a gateway failure.
func sendFetchError(w http.ResponseWriter, r *http.Request, path string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		sendError(w, http.StatusGatewayTimeout, "request cancelled")
		return
	}
	if code := client.StatusCode(err); code >= 400 && code < 500 {
		sendError(w, code, err.Error())
		return
	}
	logging.WithContext(r.Context()).Warn("fetch failed",
		zap.String("path", path), zap.Error(err))
	sendError(w, http.StatusBadGateway, err.Error())
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	sendJSON(w, code, protocol.ErrorResponse{Error: message, Code: code})
}
