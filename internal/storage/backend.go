// Package storage defines the read-only Backend interface the file API
// serves from. Paths are slash-separated and rooted at "/"; a backend
// never exposes anything outside its configured root.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when the path does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotDirectory is returned when listing a file.
	ErrNotDirectory = errors.New("not a directory")
	// ErrIsDirectory is returned when opening a directory for reading.
	ErrIsDirectory = errors.New("is a directory")
	// ErrOutsideRoot is returned when the path resolves outside the root.
	ErrOutsideRoot = errors.New("path outside root")
)

// Entry describes one file or directory.
type Entry struct {
	Name    string
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Backend is the interface for file storage backends.
type Backend interface {
	// Stat describes the entry at p.
	Stat(ctx context.Context, p string) (Entry, error)

	// List returns the visible children of directory p, directories first,
	// then by name.
	List(ctx context.Context, p string) ([]Entry, error)

	// Open returns the content of file p with its description.
	Open(ctx context.Context, p string) (io.ReadCloser, Entry, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// IsHidden reports whether an entry name is hidden from listings.
func IsHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
