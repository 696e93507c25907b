// Package cache provides the in-memory content cache used by the prefetcher.
//
// Content is fetched at most once per path at a time: concurrent callers for
// the same path join a single in-flight request. Entries are immutable until
// cleared. Failures are not cached.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/models"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

// Fetcher retrieves the text content of a remote file.
type Fetcher interface {
	ReadTextContent(ctx context.Context, path string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, path string) (string, error)

// ReadTextContent calls f.
func (f FetcherFunc) ReadTextContent(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Snapshot is a point-in-time view of the cache counters.
type Snapshot struct {
	Hits           int64
	Misses         int64
	TotalFetched   int64
	TotalRequested int64
	Errors         int64
	Entries        int
	Pending        int
	Bytes          int64
}

// flight is one registered fetch. Its key is unique for the life of the
// cache, so a flight that was cleared can never be joined again.
type flight struct {
	key string
	fn  func() (interface{}, error)
}

// Cache maps file paths to their text content.
type Cache struct {
	fetcher Fetcher
	logger  *zap.Logger
	group   singleflight.Group

	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	pending map[string]*flight
	seq     uint64
	bytes   int64
	stats   Snapshot // Entries, Pending and Bytes are filled on read
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for fetch outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty cache that fetches through fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		logger:  zap.NewNop(),
		entries: make(map[string]*models.CacheEntry),
		pending: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns cached content without doing any I/O.
// Every call counts as either a hit or a miss.
func (c *Cache) Get(path string) (string, bool) {
	path = tree.Clean(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		c.stats.Hits++
		return e.Content, true
	}
	c.stats.Misses++
	return "", false
}

// GetWithCachePriority returns cached content, joins the fetch already in
// flight for path, or starts a new one. Callers stop waiting when ctx is
// done; the fetch itself runs to completion.
func (c *Cache) GetWithCachePriority(ctx context.Context, path string) (string, error) {
	path = tree.Clean(path)

	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		c.stats.Hits++
		c.mu.Unlock()
		return e.Content, nil
	}
	f, ok := c.pending[path]
	if !ok {
		c.stats.Misses++
		c.stats.TotalRequested++
		f = c.startLocked(ctx, path)
	}
	// Joining under c.mu: while f is registered its fn has not returned,
	// so the key is still live in the group.
	ch := c.group.DoChan(f.key, f.fn)
	c.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Cache) startLocked(ctx context.Context, path string) *flight {
	c.seq++
	f := &flight{key: fmt.Sprintf("%s@%d", path, c.seq)}
	fetchCtx := context.WithoutCancel(ctx)
	f.fn = func() (interface{}, error) {
		start := time.Now()
		content, err := c.fetch(fetchCtx, path)
		c.settle(path, f, content, err, time.Since(start))
		return content, err
	}
	c.pending[path] = f
	return f
}

func (c *Cache) fetch(ctx context.Context, path string) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch %s: panic: %v", path, r)
		}
	}()
	return c.fetcher.ReadTextContent(ctx, path)
}

// settle records the outcome of f if it is still the registered flight.
func (c *Cache) settle(path string, f *flight, content string, err error, took time.Duration) {
	c.mu.Lock()
	current := c.pending[path] == f
	if current {
		delete(c.pending, path)
		if err != nil {
			c.stats.Errors++
		} else {
			size := int64(len(content))
			c.entries[path] = &models.CacheEntry{
				Path:      path,
				Content:   content,
				Size:      size,
				FetchedAt: time.Now(),
			}
			c.bytes += size
			c.stats.TotalFetched++
		}
	}
	c.mu.Unlock()

	switch {
	case !current:
		c.logger.Debug("discarding stale fetch result", zap.String("path", path))
	case err != nil:
		c.logger.Warn("content fetch failed",
			zap.String("path", path), zap.Duration("took", took), zap.Error(err))
	default:
		c.logger.Debug("content cached",
			zap.String("path", path), zap.Int("bytes", len(content)), zap.Duration("took", took))
	}
}

// IsCached reports whether content for path is stored.
func (c *Cache) IsCached(path string) bool {
	path = tree.Clean(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	return ok
}

// IsPending reports whether a fetch for path is in flight.
func (c *Cache) IsPending(path string) bool {
	path = tree.Clean(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[path]
	return ok
}

// IsCachedOrPending reports whether path needs no new fetch.
func (c *Cache) IsCachedOrPending(path string) bool {
	path = tree.Clean(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; ok {
		return true
	}
	_, ok := c.pending[path]
	return ok
}

// ClearFor drops the entry and any in-flight fetch for path.
// A fetch that completes afterwards is discarded.
func (c *Cache) ClearFor(path string) {
	path = tree.Clean(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		c.bytes -= e.Size
		delete(c.entries, path)
	}
	if f, ok := c.pending[path]; ok {
		delete(c.pending, path)
		c.group.Forget(f.key)
	}
}

// ResetAll empties the cache and zeroes every counter.
// Fetches still in flight are discarded when they complete.
func (c *Cache) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.pending {
		c.group.Forget(f.key)
	}
	c.entries = make(map[string]*models.CacheEntry)
	c.pending = make(map[string]*flight)
	c.bytes = 0
	c.stats = Snapshot{}
}

// RecordError counts a failure that happened outside a content fetch,
// such as a directory listing error during traversal.
func (c *Cache) RecordError() {
	c.mu.Lock()
	c.stats.Errors++
	c.mu.Unlock()
}

// Snapshot returns the current counters.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// View calls fn with the current counters while the cache is locked, so
// that fn can read other state consistently with them. fn must not call
// back into the cache.
func (c *Cache) View(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.snapshotLocked())
}

func (c *Cache) snapshotLocked() Snapshot {
	s := c.stats
	s.Entries = len(c.entries)
	s.Pending = len(c.pending)
	s.Bytes = c.bytes
	return s
}

// Paths returns the cached paths in sorted order.
func (c *Cache) Paths() []string {
	c.mu.Lock()
	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	c.mu.Unlock()

	sort.Strings(paths)
	return paths
}

// PendingPaths returns the paths with a fetch in flight, in sorted order.
func (c *Cache) PendingPaths() []string {
	c.mu.Lock()
	paths := make([]string, 0, len(c.pending))
	for p := range c.pending {
		paths = append(paths, p)
	}
	c.mu.Unlock()

	sort.Strings(paths)
	return paths
}
