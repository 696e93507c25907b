// Package api provides the HTTP server and handlers of the file API.
package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/events"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/logging"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/metrics"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/storage"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/protocol"
)

// MaxContentSize bounds the files served through the content endpoint.
const MaxContentSize = 10 << 20

// Pool gzip writers to reduce allocations on JSON responses.
var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// Server is the HTTP server.
type Server struct {
	backend     storage.Backend
	broadcaster *events.Broadcaster
}

// NewServer creates a new server. broadcaster may be nil, in which case the
// event stream stays open but never carries events.
func NewServer(backend storage.Backend, broadcaster *events.Broadcaster) *Server {
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster()
	}
	return &Server{backend: backend, broadcaster: broadcaster}
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/files", s.handleList)
		r.Get("/files/details", s.handleDetails)
		r.Get("/files/content", s.handleContent)
		r.Get("/files/download", s.handleDownload)
		r.Get("/events", s.handleEvents)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, r, http.StatusOK, protocol.HealthResponse{
		Status:  "ok",
		Backend: s.backend.Type(),
	})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			w.Write([]byte("event: " + event.Type + "\ndata: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// statusFor maps a storage error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrOutsideRoot):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "path not found"
	case errors.Is(err, storage.ErrNotDirectory):
		return http.StatusBadRequest, "path is not a directory"
	case errors.Is(err, storage.ErrIsDirectory):
		return http.StatusBadRequest, "path is a directory"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) sendStorageError(w http.ResponseWriter, r *http.Request, path string, err error) {
	code, msg := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("storage error",
			zap.String("path", path), zap.Error(err))
	}
	s.sendError(w, code, msg)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// sendJSON writes v, gzip-compressed when the client accepts it.
func (s *Server) sendJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(v)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Add("Vary", "Accept-Encoding")
	w.WriteHeader(code)

	gz := gzipPool.Get().(*gzip.Writer)
	gz.Reset(w)
	defer gzipPool.Put(gz)
	json.NewEncoder(gz).Encode(v)
	gz.Close()
}
