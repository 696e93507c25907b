// Package local provides a read-only local filesystem storage backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/storage"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string
	CreateDirs bool
}

// LocalBackend implements storage.Backend over a directory on disk.
type LocalBackend struct {
	rootPath string
}

var _ storage.Backend = (*LocalBackend)(nil)

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}

	// Ensure root exists
	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	abs, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}

	return &LocalBackend{rootPath: root}, nil
}

// Root returns the resolved directory the backend serves.
func (b *LocalBackend) Root() string { return b.rootPath }

// resolve maps a virtual path to a real path inside the root. Symlinks are
// followed and must stay inside the root as well.
func (b *LocalBackend) resolve(p string) (string, string, error) {
	if tree.Escapes(p) {
		return "", "", storage.ErrOutsideRoot
	}
	clean := tree.Clean(p)
	for _, seg := range strings.Split(clean, "/") {
		if storage.IsHidden(seg) {
			return "", "", storage.ErrNotFound
		}
	}

	full := filepath.Join(b.rootPath, filepath.FromSlash(clean))
	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("%s: %w", clean, storage.ErrNotFound)
		}
		return "", "", fmt.Errorf("resolve %s: %w", clean, err)
	}
	if !b.contains(real) {
		return "", "", storage.ErrOutsideRoot
	}
	return clean, real, nil
}

func (b *LocalBackend) contains(real string) bool {
	rel, err := filepath.Rel(b.rootPath, real)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func entryFrom(virtual string, info fs.FileInfo) storage.Entry {
	e := storage.Entry{
		Name:    tree.Base(virtual),
		Path:    virtual,
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
	if !e.IsDir {
		e.Size = info.Size()
	}
	return e
}

// Stat describes the entry at p.
func (b *LocalBackend) Stat(_ context.Context, p string) (storage.Entry, error) {
	virtual, real, err := b.resolve(p)
	if err != nil {
		return storage.Entry{}, err
	}
	info, err := os.Stat(real)
	if err != nil {
		return storage.Entry{}, fmt.Errorf("stat %s: %w", virtual, err)
	}
	return entryFrom(virtual, info), nil
}

// List returns the visible children of directory p.
func (b *LocalBackend) List(_ context.Context, p string) ([]storage.Entry, error) {
	virtual, real, err := b.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", virtual, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", virtual, storage.ErrNotDirectory)
	}

	dirents, err := os.ReadDir(real)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", virtual, err)
	}

	entries := make([]storage.Entry, 0, len(dirents))
	for _, d := range dirents {
		if storage.IsHidden(d.Name()) {
			continue
		}
		child := tree.BuildChildPath(virtual, d.Name())

		// Follow links so a linked directory lists as a directory; links
		// leading out of the root are skipped.
		target, err := filepath.EvalSymlinks(filepath.Join(real, d.Name()))
		if err != nil || !b.contains(target) {
			continue
		}
		fi, err := os.Stat(target)
		if err != nil {
			continue
		}
		entries = append(entries, entryFrom(child, fi))
	}

	storage.SortEntries(entries)
	return entries, nil
}

// Open returns the content of file p.
func (b *LocalBackend) Open(_ context.Context, p string) (io.ReadCloser, storage.Entry, error) {
	virtual, real, err := b.resolve(p)
	if err != nil {
		return nil, storage.Entry{}, err
	}

	f, err := os.Open(real)
	if err != nil {
		return nil, storage.Entry{}, fmt.Errorf("open %s: %w", virtual, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, storage.Entry{}, fmt.Errorf("stat %s: %w", virtual, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, storage.Entry{}, fmt.Errorf("%s: %w", virtual, storage.ErrIsDirectory)
	}
	return f, entryFrom(virtual, info), nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }
