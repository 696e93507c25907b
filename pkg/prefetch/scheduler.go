// Package prefetch walks the remote directory tree breadth-first in the
// background and warms the content cache with every text file it finds.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/filetype"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/models"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

// RunState is the externally visible state of the scheduler.
type RunState int

const (
	Idle RunState = iota
	Active
	Paused
)

func (s RunState) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// QueueItem is a directory waiting to be enumerated.
type QueueItem struct {
	Path  string `json:"path"`
	Level int    `json:"level"`
}

func (q QueueItem) key() string {
	return fmt.Sprintf("%s:%d", q.Path, q.Level)
}

// Lister enumerates a remote directory.
type Lister interface {
	ListDirectory(ctx context.Context, path string) ([]models.FileInfo, error)
}

// ContentCache is the part of the content cache the scheduler drives.
type ContentCache interface {
	IsCachedOrPending(path string) bool
	GetWithCachePriority(ctx context.Context, path string) (string, error)
	RecordError()
}

// Observer receives traversal events, typically for metrics.
type Observer interface {
	DirectoryListed(path string, entries int, took time.Duration, err error)
	FetchDispatched(path string)
}

type nopObserver struct{}

func (nopObserver) DirectoryListed(string, int, time.Duration, error) {}
func (nopObserver) FetchDispatched(string)                            {}

// TraversalError reports a directory that could not be enumerated.
type TraversalError struct {
	Path string
	Err  error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("traverse %s: %v", e.Path, e.Err)
}

func (e *TraversalError) Unwrap() error {
	return e.Err
}

// Options tunes the scheduler. Zero durations disable the corresponding wait.
type Options struct {
	StartDelay   time.Duration // before the first level after Start
	DirYield     time.Duration // between directories of one level
	LevelDelay   time.Duration // between levels
	ErrorBackoff time.Duration // after an unexpected failure
	FetchYield   time.Duration // before each content fetch is issued

	MaxConcurrentFetches int

	Yielder    Yielder
	Observer   Observer
	IsTextFile func(name string) bool
	Logger     *zap.Logger
}

// DefaultOptions returns the standard pacing.
func DefaultOptions() Options {
	return Options{
		StartDelay:           1 * time.Second,
		DirYield:             200 * time.Millisecond,
		LevelDelay:           500 * time.Millisecond,
		ErrorBackoff:         5 * time.Second,
		MaxConcurrentFetches: 4,
	}
}

var errStale = errors.New("traversal superseded")

// Scheduler performs a level-synchronized breadth-first traversal.
// All directories at one level are enumerated before any directory at the
// next level, except for directories moved to the front by Prioritize.
type Scheduler struct {
	lister Lister
	cache  ContentCache
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}

	mu       sync.Mutex
	queue    []QueueItem
	enqueued map[string]struct{} // QueueItem.key of every queued item
	visited  map[string]struct{}
	active   bool
	paused   bool
	resumed  chan struct{} // closed on Resume; nil unless paused
	gen      uint64        // bumped by Reset and Close to retire the running loop
	inflight int           // dispatched content fetches not yet finished
	quiet    chan struct{} // closed while inactive with nothing in flight
}

// NewScheduler creates an idle scheduler.
func NewScheduler(lister Lister, cache ContentCache, opts Options) *Scheduler {
	if opts.MaxConcurrentFetches <= 0 {
		opts.MaxConcurrentFetches = 4
	}
	if opts.Yielder == nil {
		opts.Yielder = SleepYielder{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.IsTextFile == nil {
		opts.IsTextFile = filetype.IsText
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	quiet := make(chan struct{})
	close(quiet)

	return &Scheduler{
		lister:   lister,
		cache:    cache,
		opts:     opts,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, opts.MaxConcurrentFetches),
		enqueued: make(map[string]struct{}),
		visited:  make(map[string]struct{}),
		quiet:    quiet,
	}
}

// Start begins a traversal at root. It does nothing while a traversal is
// already running.
func (s *Scheduler) Start(root string) {
	root = tree.Clean(root)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active || s.ctx.Err() != nil {
		return
	}
	s.enqueueLocked(QueueItem{Path: root, Level: 0})
	s.logger.Info("background caching started", zap.String("root", root))
	s.launchLocked(s.opts.StartDelay)
}

// Prioritize moves path to the front of the queue at level 0. Directories
// already enumerated are ignored. An idle, unpaused scheduler starts
// processing at once; on an active one it takes effect after the running
// batch.
func (s *Scheduler) Prioritize(path string) {
	path = tree.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.visited[path]; seen || s.ctx.Err() != nil {
		return
	}

	item := QueueItem{Path: path, Level: 0}
	if _, queued := s.enqueued[item.key()]; queued {
		for i, q := range s.queue {
			if q == item {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
	}
	s.queue = append([]QueueItem{item}, s.queue...)
	s.enqueued[item.key()] = struct{}{}

	s.logger.Debug("directory prioritized", zap.String("path", path))

	if !s.active && !s.paused {
		s.launchLocked(0)
	}
}

// Pause stops new enumerations and new content fetches. Fetches already
// in flight complete normally.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return
	}
	s.paused = true
	s.resumed = make(chan struct{})
	s.logger.Info("background caching paused")
}

// Resume continues from exactly where Pause stopped. With nothing queued
// and no traversal running the scheduler becomes Idle.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return
	}
	s.paused = false
	close(s.resumed)
	s.resumed = nil
	s.logger.Info("background caching resumed")

	if !s.active && len(s.queue) > 0 && s.ctx.Err() == nil {
		s.launchLocked(0)
	}
}

// IsPaused reports whether Pause is in effect.
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// State returns the current run state.
func (s *Scheduler) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Scheduler) stateLocked() RunState {
	switch {
	case s.paused:
		return Paused
	case s.active:
		return Active
	default:
		return Idle
	}
}

// IsVisited reports whether path was enumerated in this session.
func (s *Scheduler) IsVisited(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.visited[tree.Clean(path)]
	return ok
}

// Queue returns a copy of the pending queue in processing order.
func (s *Scheduler) Queue() []QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QueueItem(nil), s.queue...)
}

// Reset forgets the queue and the visited set and stops the running loop.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.queue = nil
	s.enqueued = make(map[string]struct{})
	s.visited = make(map[string]struct{})
	s.active = false
	if s.paused {
		s.paused = false
		close(s.resumed)
		s.resumed = nil
	}
	s.updateQuietLocked()
}

// Close stops the scheduler permanently.
func (s *Scheduler) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.active = false
	s.updateQuietLocked()
}

// Wait blocks until no traversal is running and every dispatched fetch
// has finished, or until ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		quiet := s.quiet
		s.mu.Unlock()

		select {
		case <-quiet:
			s.mu.Lock()
			idle := !s.active && s.inflight == 0
			s.mu.Unlock()
			if idle {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type schedulerSnapshot struct {
	queueSize int
	visited   int
	active    bool
	paused    bool
	state     RunState
}

func (s *Scheduler) snapshot() schedulerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schedulerSnapshot{
		queueSize: len(s.queue),
		visited:   len(s.visited),
		active:    s.active,
		paused:    s.paused,
		state:     s.stateLocked(),
	}
}

func (s *Scheduler) enqueueLocked(item QueueItem) bool {
	key := item.key()
	if _, ok := s.enqueued[key]; ok {
		return false
	}
	s.enqueued[key] = struct{}{}
	s.queue = append(s.queue, item)
	return true
}

func (s *Scheduler) launchLocked(delay time.Duration) {
	s.active = true
	s.updateQuietLocked()
	go s.run(s.gen, delay)
}

func (s *Scheduler) updateQuietLocked() {
	idle := !s.active && s.inflight == 0
	select {
	case <-s.quiet:
		if !idle {
			s.quiet = make(chan struct{})
		}
	default:
		if idle {
			close(s.quiet)
		}
	}
}

func (s *Scheduler) stopLocked(gen uint64) {
	if s.gen == gen {
		s.active = false
		s.updateQuietLocked()
	}
}

func (s *Scheduler) stop(gen uint64) {
	s.mu.Lock()
	s.stopLocked(gen)
	s.mu.Unlock()
}

func (s *Scheduler) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

func (s *Scheduler) run(gen uint64, delay time.Duration) {
	if !s.sleep(delay) {
		s.stop(gen)
		return
	}

	for {
		if !s.awaitResume() {
			s.stop(gen)
			return
		}

		batch, level, ok := s.takeBatch(gen)
		if !ok {
			return
		}

		err := s.processBatch(gen, batch)
		switch {
		case err == nil:
			if !s.sleep(s.opts.LevelDelay) {
				s.stop(gen)
				return
			}
		case errors.Is(err, errStale):
			return
		case s.ctx.Err() != nil:
			s.stop(gen)
			return
		default:
			s.logger.Error("traversal failed, backing off",
				zap.Int("level", level),
				zap.Duration("backoff", s.opts.ErrorBackoff),
				zap.Error(err))
			if !s.sleep(s.opts.ErrorBackoff) {
				s.stop(gen)
				return
			}
		}
	}
}

// takeBatch removes every item at the lowest queued level, keeping queue
// order. An empty queue ends the traversal.
func (s *Scheduler) takeBatch(gen uint64) ([]QueueItem, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return nil, 0, false
	}
	if len(s.queue) == 0 {
		s.active = false
		s.updateQuietLocked()
		s.logger.Info("background caching complete", zap.Int("visited_dirs", len(s.visited)))
		return nil, 0, false
	}

	level := s.queue[0].Level
	for _, q := range s.queue[1:] {
		if q.Level < level {
			level = q.Level
		}
	}

	var batch, rest []QueueItem
	for _, q := range s.queue {
		if q.Level == level {
			batch = append(batch, q)
			delete(s.enqueued, q.key())
		} else {
			rest = append(rest, q)
		}
	}
	s.queue = rest
	return batch, level, true
}

func (s *Scheduler) processBatch(gen uint64, batch []QueueItem) error {
	for i, item := range batch {
		if i > 0 {
			if err := s.opts.Yielder.Yield(s.ctx, s.opts.DirYield); err != nil {
				return err
			}
		}
		if !s.awaitResume() {
			return s.ctx.Err()
		}

		if err := s.safeProcess(gen, item); err != nil {
			if !errors.Is(err, errStale) {
				s.requeue(gen, batch[i+1:])
			}
			return err
		}
	}
	return nil
}

func (s *Scheduler) requeue(gen uint64, items []QueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || len(items) == 0 {
		return
	}
	var front []QueueItem
	for _, item := range items {
		if _, ok := s.enqueued[item.key()]; ok {
			continue
		}
		s.enqueued[item.key()] = struct{}{}
		front = append(front, item)
	}
	s.queue = append(front, s.queue...)
}

func (s *Scheduler) safeProcess(gen uint64, item QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing directory",
				zap.String("path", item.Path),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("processing %s: panic: %v", item.Path, r)
		}
	}()
	return s.processDirectory(gen, item)
}

func (s *Scheduler) processDirectory(gen uint64, item QueueItem) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return errStale
	}
	if _, seen := s.visited[item.Path]; seen {
		s.mu.Unlock()
		return nil
	}
	s.visited[item.Path] = struct{}{}
	s.mu.Unlock()

	start := time.Now()
	entries, err := s.lister.ListDirectory(s.ctx, item.Path)
	s.opts.Observer.DirectoryListed(item.Path, len(entries), time.Since(start), err)
	if err != nil {
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		terr := &TraversalError{Path: item.Path, Err: err}
		s.cache.RecordError()
		s.logger.Warn("directory listing failed", zap.Int("level", item.Level), zap.Error(terr))
		return nil
	}

	var files []string
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return errStale
	}
	for _, e := range entries {
		p := e.Path
		if p == "" {
			p = tree.BuildChildPath(item.Path, e.Name)
		}
		p = tree.Clean(p)

		if e.IsDirectory {
			if _, seen := s.visited[p]; !seen {
				s.enqueueLocked(QueueItem{Path: p, Level: item.Level + 1})
			}
			continue
		}
		if s.opts.IsTextFile(e.Name) {
			files = append(files, p)
		}
	}
	s.mu.Unlock()

	for _, p := range files {
		if s.cache.IsCachedOrPending(p) {
			continue
		}
		s.dispatch(gen, p)
	}

	s.logger.Debug("directory processed",
		zap.String("path", item.Path),
		zap.Int("level", item.Level),
		zap.Int("entries", len(entries)),
		zap.Int("text_files", len(files)))
	return nil
}

// dispatch fetches path in the background, bounded by the fetch semaphore.
// A dispatched fetch that has not been issued yet waits out a pause.
func (s *Scheduler) dispatch(gen uint64, path string) {
	s.mu.Lock()
	s.inflight++
	s.updateQuietLocked()
	s.mu.Unlock()

	s.opts.Observer.FetchDispatched(path)

	go func() {
		defer func() {
			s.mu.Lock()
			s.inflight--
			s.updateQuietLocked()
			s.mu.Unlock()
		}()

		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}
		defer func() { <-s.sem }()

		if err := s.opts.Yielder.Yield(s.ctx, s.opts.FetchYield); err != nil {
			return
		}
		if !s.awaitResume() || s.stale(gen) || s.cache.IsCachedOrPending(path) {
			return
		}
		if _, err := s.cache.GetWithCachePriority(s.ctx, path); err != nil && s.ctx.Err() == nil {
			s.logger.Debug("prefetch failed", zap.String("path", path), zap.Error(err))
		}
	}()
}

// awaitResume blocks while paused. It returns false once the scheduler is closed.
func (s *Scheduler) awaitResume() bool {
	for {
		s.mu.Lock()
		ch := s.resumed
		s.mu.Unlock()

		if ch == nil {
			return s.ctx.Err() == nil
		}
		select {
		case <-ch:
		case <-s.ctx.Done():
			return false
		}
	}
}

func (s *Scheduler) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
