package cache

import (
	"context"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/metrics"
)

// Start runs the maintenance loop: every sweep interval it drops expired
// entries, and it purges the cache when the TLE catalog is replaced.
//
// Blocks until ctx is cancelled.
func (c *TrajectoryCache) Start(ctx context.Context) {
	if cat := c.catalogFetchedAt(); !cat.IsZero() {
		c.currentFetchedAt = cat
	}

	ticker := time.NewTicker(c.config.Sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("trajectory cache maintenance stopped", "component", "cache")
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick runs one iteration of the maintenance loop.
func (c *TrajectoryCache) tick() {
	if c.catalogChanged() {
		c.purge()
		return
	}
	c.evictExpired()
}

func (c *TrajectoryCache) catalogFetchedAt() time.Time {
	if c.store == nil {
		return time.Time{}
	}
	if cat := c.store.Get(); cat != nil {
		return cat.FetchedAt
	}
	return time.Time{}
}

// catalogChanged reports whether the catalog was replaced since the entries
// were computed.
func (c *TrajectoryCache) catalogChanged() bool {
	fetched := c.catalogFetchedAt()
	return !fetched.IsZero() && !fetched.Equal(c.currentFetchedAt)
}

// purge drops every entry after a catalog change. Cached trajectories were
// computed from superseded elements.
func (c *TrajectoryCache) purge() {
	fetched := c.catalogFetchedAt()

	c.mu.Lock()
	removed := len(c.entries)
	c.entries = make(map[Key]*Entry)
	c.mu.Unlock()

	c.evictions.Add(int64(removed))
	metrics.SetCacheEntries(0)

	c.logger.Info("catalog changed, trajectory cache purged",
		"component", "cache",
		"old_catalog_fetched_at", c.currentFetchedAt.UTC().Format(time.RFC3339),
		"new_catalog_fetched_at", fetched.UTC().Format(time.RFC3339),
		"entries_removed", removed,
	)
	c.currentFetchedAt = fetched
}
