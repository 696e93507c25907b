package prefetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pauser is what the lifecycle controller suspends.
type Pauser interface {
	Pause()
	Resume()
	IsPaused() bool
}

// Prober checks whether the remote directory is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Lifecycle pauses background caching while the session is hidden or the
// server is unreachable, and resumes it once neither holds. It only ever
// resumes a pause it caused itself.
type Lifecycle struct {
	target Pauser
	logger *zap.Logger

	mu         sync.Mutex
	hidden     bool
	offline    bool
	pausedByUs bool
}

// NewLifecycle creates a controller for target with no suspension reasons.
func NewLifecycle(target Pauser, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{target: target, logger: logger}
}

// SetHidden records a visibility change.
func (l *Lifecycle) SetHidden(hidden bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hidden == hidden {
		return
	}
	l.hidden = hidden
	l.logger.Info("visibility changed", zap.Bool("hidden", hidden))
	l.applyLocked()
}

// SetOnline records a connectivity change.
func (l *Lifecycle) SetOnline(online bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.offline == !online {
		return
	}
	l.offline = !online
	l.logger.Info("connectivity changed", zap.Bool("online", online))
	l.applyLocked()
}

// Suspended reports whether any suspension reason holds.
func (l *Lifecycle) Suspended() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hidden || l.offline
}

// Reasons lists the suspension reasons currently in effect.
func (l *Lifecycle) Reasons() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var reasons []string
	if l.hidden {
		reasons = append(reasons, "hidden")
	}
	if l.offline {
		reasons = append(reasons, "offline")
	}
	return reasons
}

// Release gives up ownership of the current pause, so that a pause
// requested by the user is not undone when the reasons clear.
func (l *Lifecycle) Release() {
	l.mu.Lock()
	l.pausedByUs = false
	l.mu.Unlock()
}

// Reapply re-evaluates the reasons against a freshly reset target.
func (l *Lifecycle) Reapply() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pausedByUs = false
	l.applyLocked()
}

func (l *Lifecycle) applyLocked() {
	suspended := l.hidden || l.offline

	switch {
	case suspended:
		if !l.target.IsPaused() {
			l.target.Pause()
			l.pausedByUs = true
		}
	case l.pausedByUs:
		l.pausedByUs = false
		l.target.Resume()
	}
}

// MonitorConnectivity pings p every interval and feeds the outcome into
// SetOnline until ctx is done.
func (l *Lifecycle) MonitorConnectivity(ctx context.Context, p Prober, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			err := p.Ping(probeCtx)
			cancel()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				l.logger.Debug("connectivity probe failed", zap.Error(err))
			}
			l.SetOnline(err == nil)
		}
	}
}
