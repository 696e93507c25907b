package cacheapi

import (
	"context"

	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/prefetch"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/protocol"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

// Invalidate drops the cached content a change event makes stale, along
// with any fetch still in flight that would store pre-change content. A
// path may name a directory, so everything below it goes too. It returns
// the number of entries and fetches dropped.
func Invalidate(mgr *prefetch.Manager, ev protocol.Event) int {
	target := tree.Clean(ev.Path)
	cleared := 0
	for _, paths := range [][]string{mgr.CachedPaths(), mgr.PendingPaths()} {
		for _, p := range paths {
			if tree.IsWithin(target, p) {
				mgr.ClearCacheFor(p)
				cleared++
			}
		}
	}
	return cleared
}

// FollowEvents applies every event from events until the channel closes or
// ctx is done.
func FollowEvents(ctx context.Context, mgr *prefetch.Manager, events <-chan protocol.Event, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if n := Invalidate(mgr, ev); n > 0 {
				logger.Debug("invalidated cached content",
					zap.String("type", ev.Type), zap.String("path", ev.Path), zap.Int("entries", n))
			}
		}
	}
}
