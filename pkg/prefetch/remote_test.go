package prefetch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/models"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

// fakeRemote is an in-memory remote directory that records every call.
type fakeRemote struct {
	mu         sync.Mutex
	dirs       map[string][]models.FileInfo
	files      map[string]string
	listErr    map[string]error
	listPanic  map[string]bool
	listed     []string
	fetchCalls map[string]int
	fetchGate  chan struct{}
}

func newFakeRemote() *fakeRemote {
	r := &fakeRemote{
		dirs:       map[string][]models.FileInfo{"/": nil},
		files:      make(map[string]string),
		listErr:    make(map[string]error),
		listPanic:  make(map[string]bool),
		fetchCalls: make(map[string]int),
	}
	return r
}

// addDir registers path and all of its parents as directories.
func (r *fakeRemote) addDir(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addDirLocked(tree.Clean(path))
}

func (r *fakeRemote) addDirLocked(path string) {
	if _, ok := r.dirs[path]; ok {
		return
	}
	parent := tree.Parent(path)
	r.addDirLocked(parent)
	r.dirs[path] = nil
	r.dirs[parent] = append(r.dirs[parent], models.FileInfo{
		Name: tree.Base(path), Path: path, IsDirectory: true,
	})
}

// addFile registers a file, creating its parent directories.
func (r *fakeRemote) addFile(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path = tree.Clean(path)
	parent := tree.Parent(path)
	r.addDirLocked(parent)
	r.files[path] = content
	r.dirs[parent] = append(r.dirs[parent], models.FileInfo{
		Name: tree.Base(path), Path: path, Size: int64(len(content)),
	})
}

func (r *fakeRemote) ListDirectory(ctx context.Context, path string) ([]models.FileInfo, error) {
	r.mu.Lock()
	r.listed = append(r.listed, path)
	entries, ok := r.dirs[path]
	err := r.listErr[path]
	boom := r.listPanic[path]
	r.mu.Unlock()

	if boom {
		panic("listing exploded: " + path)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("directory not found: %s", path)
	}
	return append([]models.FileInfo(nil), entries...), nil
}

func (r *fakeRemote) ReadTextContent(ctx context.Context, path string) (string, error) {
	r.mu.Lock()
	r.fetchCalls[path]++
	gate := r.fetchGate
	content, ok := r.files[path]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-time.After(5 * time.Second):
			return "", fmt.Errorf("gate never opened for %s", path)
		}
	}
	if !ok {
		return "", fmt.Errorf("file not found: %s", path)
	}
	return content, nil
}

func (r *fakeRemote) listedDirs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.listed...)
}

func (r *fakeRemote) fetchCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchCalls[path]
}

func (r *fakeRemote) totalFetches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.fetchCalls {
		n += c
	}
	return n
}

func (r *fakeRemote) fetchedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var paths []string
	for p := range r.fetchCalls {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// fastOptions removes all pacing so traversals finish quickly.
func fastOptions() Options {
	return Options{MaxConcurrentFetches: 4}
}
