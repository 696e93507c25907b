package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/prefetch"
)

// TraversalObserver feeds scheduler events into the prefetch metrics.
type TraversalObserver struct{}

var _ prefetch.Observer = TraversalObserver{}

// DirectoryListed implements prefetch.Observer.
func (TraversalObserver) DirectoryListed(path string, entries int, took time.Duration, err error) {
	prefetchListingsTotal.WithLabelValues(outcome(err == nil)).Inc()
	prefetchListingDuration.Observe(took.Seconds())
}

// FetchDispatched implements prefetch.Observer.
func (TraversalObserver) FetchDispatched(path string) {
	prefetchFetchesDispatched.Inc()
}

// StatsCollector exports a session's cache statistics on every scrape.
type StatsCollector struct {
	source func() prefetch.Stats

	hits, misses, fetched, requested, errors *prometheus.Desc
	entries, bytes, pending, visited, queue  *prometheus.Desc
	state                                    *prometheus.Desc
}

// NewStatsCollector creates a collector reading from source.
func NewStatsCollector(source func() prefetch.Stats) *StatsCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, labels, nil)
	}
	return &StatsCollector{
		source:    source,
		hits:      desc("hits_total", "Cache lookups answered from memory"),
		misses:    desc("misses_total", "Cache lookups that found nothing"),
		fetched:   desc("fetched_total", "Files fetched and stored"),
		requested: desc("requested_total", "Fetches started"),
		errors:    desc("errors_total", "Failed fetches and listings"),
		entries:   desc("entries", "Files currently cached"),
		bytes:     desc("bytes", "Bytes of cached content"),
		pending:   desc("pending_requests", "Fetches in flight"),
		visited:   desc("visited_dirs", "Directories enumerated this session"),
		queue:     desc("queue_size", "Directories waiting to be enumerated"),
		state:     desc("state", "Scheduler run state (1 for the current state)", "state"),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.hits, c.misses, c.fetched, c.requested, c.errors,
		c.entries, c.bytes, c.pending, c.visited, c.queue, c.state,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()

	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.hits, s.Hits)
	counter(c.misses, s.Misses)
	counter(c.fetched, s.TotalFetched)
	counter(c.requested, s.TotalRequested)
	counter(c.errors, s.Errors)
	gauge(c.entries, float64(s.CacheSize))
	gauge(c.bytes, float64(s.CacheBytes))
	gauge(c.pending, float64(s.PendingCount))
	gauge(c.visited, float64(s.VisitedCount))
	gauge(c.queue, float64(s.QueueSize))

	for _, st := range []prefetch.RunState{prefetch.Idle, prefetch.Active, prefetch.Paused} {
		v := 0.0
		if s.State == st {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, st.String())
	}
}
