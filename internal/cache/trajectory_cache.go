// Package cache keeps recently computed pass trajectories in memory.
//
// A trajectory search is tens of thousands of SGP4 evaluations, and the UI
// asks for the same satellite and station repeatedly. Entries expire after a
// TTL, the oldest are evicted beyond a size cap, and everything is dropped when
// the TLE catalog is replaced.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/metrics"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

// Config holds cache configuration loaded from environment variables.
type Config struct {
	TTL        time.Duration // entry lifetime (default: 10m)
	Sweep      time.Duration // eviction interval (default: 30s)
	MaxEntries int           // size cap (default: 256)
	Quantum    time.Duration // search start rounding (default: 1m)
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.Sweep <= 0 {
		c.Sweep = 30 * time.Second
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 256
	}
	if c.Quantum <= 0 {
		c.Quantum = time.Minute
	}
	return c
}

// Key identifies one search: element set, station and rounded start time.
type Key struct {
	NORADID  int
	Elements string // hash of both TLE lines
	LatE4    int64  // latitude × 1e4
	LonE4    int64  // longitude × 1e4
	AltM     int64
	Start    time.Time
}

// Entry wraps a trajectory with generation metadata.
type Entry struct {
	Trajectory  *passes.Trajectory
	GeneratedAt time.Time
}

// TrajectoryCache is an in-memory TTL cache of trajectory search results.
// Safe for concurrent use by multiple goroutines.
type TrajectoryCache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry

	config Config
	store  *tle.Store
	logger *slog.Logger

	// Catalog the entries were computed against, for change detection.
	currentFetchedAt time.Time

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	now func() time.Time
}

// New creates a trajectory cache. store may be nil, in which case catalog
// changes are not tracked.
func New(config Config, store *tle.Store, logger *slog.Logger) *TrajectoryCache {
	config = config.withDefaults()
	logger.Info("trajectory cache initialized",
		"component", "cache",
		"ttl_seconds", config.TTL.Seconds(),
		"sweep_seconds", config.Sweep.Seconds(),
		"max_entries", config.MaxEntries,
	)
	return &TrajectoryCache{
		entries: make(map[Key]*Entry),
		config:  config,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// RoundStart truncates a search start to the cache quantum in UTC. Callers
// search from the rounded time so cached and fresh results agree.
func (c *TrajectoryCache) RoundStart(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Quantum)
}

// KeyFor builds the key for searching e from obs starting at start.
func (c *TrajectoryCache) KeyFor(e tle.Element, obs transform.Observer, start time.Time) Key {
	sum := sha256.Sum256([]byte(e.Line1 + "\n" + e.Line2))
	return Key{
		NORADID:  e.NORADID,
		Elements: hex.EncodeToString(sum[:8]),
		LatE4:    int64(math.Round(obs.LatDeg * 1e4)),
		LonE4:    int64(math.Round(obs.LonDeg * 1e4)),
		AltM:     int64(math.Round(obs.AltKm * 1000)),
		Start:    c.RoundStart(start),
	}
}

// Get returns the cached trajectory for k if present and unexpired.
func (c *TrajectoryCache) Get(k Key) (*passes.Trajectory, bool) {
	c.mu.RLock()
	entry, ok := c.entries[k]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.GeneratedAt) < c.config.TTL {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return entry.Trajectory, true
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil, false
}

// Put stores a trajectory, evicting the oldest entries beyond the size cap.
func (c *TrajectoryCache) Put(k Key, traj *passes.Trajectory) {
	c.mu.Lock()
	c.entries[k] = &Entry{Trajectory: traj, GeneratedAt: c.now()}
	removed := c.trimLocked()
	count := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
	}
	metrics.SetCacheEntries(count)
}

// GetOrCompute returns the cached trajectory for k or runs compute and caches
// its result. Errors are never cached. The bool reports a cache hit.
func (c *TrajectoryCache) GetOrCompute(ctx context.Context, k Key, compute func(context.Context) (*passes.Trajectory, error)) (*passes.Trajectory, bool, error) {
	if traj, ok := c.Get(k); ok {
		return traj, true, nil
	}
	traj, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	c.Put(k, traj)
	return traj, false, nil
}

// trimLocked drops the oldest entries above MaxEntries. Caller holds mu.
func (c *TrajectoryCache) trimLocked() int {
	over := len(c.entries) - c.config.MaxEntries
	if over <= 0 {
		return 0
	}
	type aged struct {
		key Key
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.GeneratedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for _, a := range all[:over] {
		delete(c.entries, a.key)
	}
	return over
}

// evictExpired removes entries older than the TTL.
func (c *TrajectoryCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.TTL)
	var removed int

	c.mu.Lock()
	for k, e := range c.entries {
		if e.GeneratedAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.SetCacheEntries(count)
		c.logger.Debug("cache eviction", "component", "cache", "entries_removed", removed)
	}
	return removed
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries   int       `json:"entries"`
	Oldest    time.Time `json:"oldest,omitzero"`
	Newest    time.Time `json:"newest,omitzero"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Evictions int64     `json:"evictions"`
	TTL       float64   `json:"ttl_seconds"`
}

// Stats returns current cache statistics.
func (c *TrajectoryCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	var oldest, newest time.Time
	for _, e := range c.entries {
		if oldest.IsZero() || e.GeneratedAt.Before(oldest) {
			oldest = e.GeneratedAt
		}
		if newest.IsZero() || e.GeneratedAt.After(newest) {
			newest = e.GeneratedAt
		}
	}
	c.mu.RUnlock()

	return Stats{
		Entries:   count,
		Oldest:    oldest,
		Newest:    newest,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		TTL:       c.config.TTL.Seconds(),
	}
}
