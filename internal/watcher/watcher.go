// Package watcher turns filesystem notifications under the served root
// into file change events.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/storage"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/protocol"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

// Publisher receives change events.
type Publisher interface {
	Publish(protocol.Event)
}

// Watcher follows every visible directory below a root.
type Watcher struct {
	root      string
	fsw       *fsnotify.Watcher
	publisher Publisher
	logger    *zap.Logger
}

// New starts watching root and all visible subdirectories.
func New(root string, publisher Publisher, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{root: abs, fsw: fsw, publisher: publisher, logger: logger}
	if err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree adds dir and every visible directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish between listing and visiting.
			if p != dir && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && storage.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// virtualPath maps a real path below the root to its API path. The second
// result is false for paths that are hidden or outside the root.
func (w *Watcher) virtualPath(real string) (string, bool) {
	rel, err := filepath.Rel(w.root, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	vp := tree.Clean(filepath.ToSlash(rel))
	for _, seg := range strings.Split(vp, "/") {
		if storage.IsHidden(seg) {
			return "", false
		}
	}
	return vp, true
}

func eventType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return protocol.EventCreate
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return protocol.EventDelete
	case op.Has(fsnotify.Write):
		return protocol.EventModify
	default:
		return ""
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	typ := eventType(ev.Op)
	if typ == "" {
		return
	}
	vp, ok := w.virtualPath(ev.Name)
	if !ok {
		return
	}

	if typ == protocol.EventCreate {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", vp), zap.Error(err))
			}
		}
	}

	w.logger.Debug("file changed", zap.String("type", typ), zap.String("path", vp))
	w.publisher.Publish(protocol.Event{Type: typ, Path: vp})
}

// Run forwards events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
