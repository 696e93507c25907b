package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/logging"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/metrics"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/storage"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/filetype"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/models"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/protocol"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

const octetStream = "application/octet-stream"

// mimeType guesses the content type of name from its extension. Names on
// the text allow-list always map to a text type.
func mimeType(name string) string {
	var t string
	if ext := filetype.Extension(name); ext != "" {
		t = mime.TypeByExtension("." + ext)
	}
	if filetype.IsText(name) && !filetype.IsTextMIME(t) {
		return "text/plain; charset=utf-8"
	}
	if t == "" {
		return octetStream
	}
	return t
}

func toFileInfo(e storage.Entry) models.FileInfo {
	fi := models.FileInfo{
		Name:        e.Name,
		Path:        e.Path,
		IsDirectory: e.IsDir,
		Size:        e.Size,
		Modified:    e.ModTime.UTC(),
	}
	if !e.IsDir {
		fi.Type = mimeType(e.Name)
	}
	return fi
}

// ─── List ───────────────────────────────────────────────────────────────────

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = tree.Root
	}

	entries, err := s.backend.List(r.Context(), path)
	if err != nil {
		metrics.RecordDirectoryListing(false)
		s.sendStorageError(w, r, path, err)
		return
	}

	out := make([]models.FileInfo, len(entries))
	for i, e := range entries {
		out[i] = toFileInfo(e)
	}
	metrics.RecordDirectoryListing(true)
	s.sendJSON(w, r, http.StatusOK, out)
}

// ─── Details ────────────────────────────────────────────────────────────────

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.sendError(w, http.StatusBadRequest, "path is required")
		return
	}

	e, err := s.backend.Stat(r.Context(), path)
	if err != nil {
		s.sendStorageError(w, r, path, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, toFileInfo(e))
}

// ─── Content ────────────────────────────────────────────────────────────────

func contentETag(data []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == etag || candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.sendError(w, http.StatusBadRequest, "path is required")
		return
	}

	rc, e, err := s.backend.Open(r.Context(), path)
	if err != nil {
		metrics.RecordContentServed("content", 0, false)
		s.sendStorageError(w, r, path, err)
		return
	}
	defer rc.Close()

	if e.Size > MaxContentSize {
		metrics.RecordContentServed("content", 0, false)
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", MaxContentSize))
		return
	}

	data, err := io.ReadAll(io.LimitReader(rc, MaxContentSize+1))
	if err != nil {
		metrics.RecordContentServed("content", 0, false)
		logging.WithContext(r.Context()).Error("read content",
			zap.String("path", e.Path), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	if len(data) > MaxContentSize {
		metrics.RecordContentServed("content", 0, false)
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", MaxContentSize))
		return
	}

	ctype := mimeType(e.Name)
	if ctype == octetStream {
		ctype = http.DetectContentType(data)
	}
	if !filetype.IsText(e.Name) && !filetype.IsTextMIME(ctype) {
		metrics.RecordContentServed("content", 0, false)
		s.sendError(w, http.StatusBadRequest, "file is not a text file")
		return
	}

	etag := contentETag(data)
	w.Header().Set("ETag", etag)
	if inm := r.Header.Get("If-None-Match"); inm != "" && etagMatches(inm, etag) {
		metrics.RecordContentServed("content", 0, true)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	metrics.RecordContentServed("content", int64(len(data)), true)
	s.sendJSON(w, r, http.StatusOK, protocol.ContentResponse{Content: string(data)})
}

// ─── Download ───────────────────────────────────────────────────────────────

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.sendError(w, http.StatusBadRequest, "path is required")
		return
	}

	rc, e, err := s.backend.Open(r.Context(), path)
	if err != nil {
		metrics.RecordContentServed("download", 0, false)
		s.sendStorageError(w, r, path, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", mimeType(e.Name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": e.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(e.Size, 10))
	if !e.ModTime.IsZero() {
		w.Header().Set("Last-Modified", e.ModTime.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, rc)
	if err != nil {
		logging.WithContext(r.Context()).Warn("download interrupted",
			zap.String("path", e.Path), zap.Int64("sent", n), zap.Error(err))
	}
	metrics.RecordContentServed("download", n, err == nil)
}
