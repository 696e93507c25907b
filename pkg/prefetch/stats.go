package prefetch

import "github.com/kanha321/mnnit-dark-web-reborn/pkg/cache"

// Stats is a consistent snapshot of a session.
type Stats struct {
	Hits           int64    `json:"hits"`
	Misses         int64    `json:"misses"`
	TotalFetched   int64    `json:"totalFetched"`
	TotalRequested int64    `json:"totalRequested"`
	Errors         int64    `json:"errors"`
	CacheSize      int      `json:"cacheSize"`
	CacheBytes     int64    `json:"cacheBytes"`
	PendingCount   int      `json:"pendingRequests"`
	VisitedCount   int      `json:"visitedDirs"`
	QueueSize      int      `json:"queueSize"`
	Active         bool     `json:"active"`
	Paused         bool     `json:"paused"`
	State          RunState `json:"-"`
	StateName      string   `json:"state"`
}

// HitRate returns hits over all lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// GetCacheStats returns counters and sizes taken under both the cache and
// the scheduler locks, in that order.
func (m *Manager) GetCacheStats() Stats {
	var st Stats
	m.cache.View(func(cs cache.Snapshot) {
		ss := m.sched.snapshot()
		st = Stats{
			Hits:           cs.Hits,
			Misses:         cs.Misses,
			TotalFetched:   cs.TotalFetched,
			TotalRequested: cs.TotalRequested,
			Errors:         cs.Errors,
			CacheSize:      cs.Entries,
			CacheBytes:     cs.Bytes,
			PendingCount:   cs.Pending,
			VisitedCount:   ss.visited,
			QueueSize:      ss.queueSize,
			Active:         ss.active,
			Paused:         ss.paused,
			State:          ss.state,
			StateName:      ss.state.String(),
		}
	})
	return st
}
