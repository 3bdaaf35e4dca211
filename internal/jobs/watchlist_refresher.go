package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// Resolver is the slice of the basedata service the refresher needs. It uses
// the cache-bypassing path so every tick produces a fresh scrape, which in
// turn rewrites the snapshot store and re-publishes the snapshot event.
type Resolver interface {
	ResolveFresh(ctx context.Context, identifier string) (*model.Instrument, error)
}

// WatchlistRefresher re-resolves a fixed list of instruments on an interval
// so their snapshots never go stale between caller requests.
type WatchlistRefresher struct {
	logger    *zap.Logger
	resolver  Resolver
	watchlist []string
	interval  time.Duration
	stopCh    chan struct{}
}

// NewWatchlistRefresher constructs the background job. The watchlist comes
// from configuration; an empty list makes Start a no-op.
func NewWatchlistRefresher(logger *zap.Logger, resolver Resolver, watchlist []string, interval time.Duration) *WatchlistRefresher {
	return &WatchlistRefresher{
		logger:    logger,
		resolver:  resolver,
		watchlist: watchlist,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop is called or ctx is canceled.
func (r *WatchlistRefresher) Start(ctx context.Context) {
	if len(r.watchlist) == 0 {
		r.logger.Info("watchlist_refresher.disabled (empty watchlist)")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("watchlist_refresher.started",
		zap.Int("instruments", len(r.watchlist)),
		zap.Duration("interval", r.interval))

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("watchlist_refresher.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("watchlist_refresher.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the refresher.
func (r *WatchlistRefresher) Stop() {
	close(r.stopCh)
}

// runOnce refreshes every watched instrument. One instrument failing must not
// starve the rest of the list, so failures are logged and skipped.
func (r *WatchlistRefresher) runOnce(ctx context.Context) {
	start := time.Now()
	refreshed := 0

	for _, id := range r.watchlist {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.resolver.ResolveFresh(ctx, id); err != nil {
			r.logger.Warn("watchlist_refresher.refresh_failed",
				zap.String("identifier", id),
				zap.Error(err))
			continue
		}
		refreshed++
	}

	r.logger.Info("watchlist_refresher.cycle_done",
		zap.Int("refreshed", refreshed),
		zap.Int("watched", len(r.watchlist)),
		zap.Duration("duration", time.Since(start)))
}
