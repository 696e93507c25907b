package prefetch

import (
	"context"

	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/cache"
)

// Remote is the remote file directory seen by a session.
type Remote interface {
	Lister
	cache.Fetcher
}

// Manager owns the content cache, the scheduler and the lifecycle
// controller of one session.
type Manager struct {
	cache  *cache.Cache
	sched  *Scheduler
	life   *Lifecycle
	logger *zap.Logger
}

// NewManager wires a session around remote. Call Init before use.
func NewManager(remote Remote, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cache.New(remote, cache.WithLogger(logger.Named("cache")))

	schedOpts := opts
	schedOpts.Logger = logger.Named("scheduler")
	s := NewScheduler(remote, c, schedOpts)

	return &Manager{
		cache:  c,
		sched:  s,
		life:   NewLifecycle(s, logger.Named("lifecycle")),
		logger: logger,
	}
}

// InitCacheManager creates a session and resets it.
func InitCacheManager(remote Remote, opts Options) *Manager {
	m := NewManager(remote, opts)
	m.Init()
	return m
}

// Init resets the cache, the counters, the queue and the visited set.
func (m *Manager) Init() {
	m.sched.Reset()
	m.cache.ResetAll()
	m.life.Reapply()
	m.logger.Info("cache manager initialized")
}

// StartBackgroundCaching starts the traversal at root.
func (m *Manager) StartBackgroundCaching(root string) {
	m.sched.Start(root)
}

// PrioritizeCachingForDirectory moves path to the front of the traversal.
func (m *Manager) PrioritizeCachingForDirectory(path string) {
	m.sched.Prioritize(path)
}

// GetCachedContent returns cached content without fetching.
func (m *Manager) GetCachedContent(path string) (string, bool) {
	return m.cache.Get(path)
}

// GetContentWithCache returns cached content or fetches it, sharing any
// fetch already in flight.
func (m *Manager) GetContentWithCache(ctx context.Context, path string) (string, error) {
	return m.cache.GetWithCachePriority(ctx, path)
}

// IsContentCached reports whether path is cached, without counting a lookup.
func (m *Manager) IsContentCached(path string) bool {
	return m.cache.IsCached(path)
}

// CachedPaths lists every cached path.
func (m *Manager) CachedPaths() []string {
	return m.cache.Paths()
}

// PendingPaths lists every path with a fetch in flight.
func (m *Manager) PendingPaths() []string {
	return m.cache.PendingPaths()
}

// PauseCaching pauses the traversal on behalf of the user.
func (m *Manager) PauseCaching() {
	m.sched.Pause()
	m.life.Release()
}

// ResumeCaching resumes the traversal on behalf of the user. A later
// hidden or offline signal pauses it again.
func (m *Manager) ResumeCaching() {
	m.sched.Resume()
	m.life.Release()
}

// ClearCacheFor invalidates the cached content of path.
func (m *Manager) ClearCacheFor(path string) {
	m.cache.ClearFor(path)
}

// State returns the scheduler run state.
func (m *Manager) State() RunState {
	return m.sched.State()
}

// Queue returns the directories waiting to be enumerated.
func (m *Manager) Queue() []QueueItem {
	return m.sched.Queue()
}

// Lifecycle returns the session's lifecycle controller.
func (m *Manager) Lifecycle() *Lifecycle {
	return m.life
}

// Wait blocks until the traversal is idle and all fetches have finished.
func (m *Manager) Wait(ctx context.Context) error {
	return m.sched.Wait(ctx)
}

// Close stops the traversal. Cached content stays readable.
func (m *Manager) Close() {
	m.sched.Close()
}
