package tle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/metrics"
)

// ErrFetchDisabled is returned by Refresh when network fetching is off.
var ErrFetchDisabled = errors.New("TLE fetching is disabled")

// Refresher keeps the store's catalog current: it seeds from the disk cache
// at startup and refetches once the catalog is older than MaxAge.
type Refresher struct {
	store   *Store
	fetcher *Fetcher
	cache   *Cache
	maxAge  time.Duration
	enabled bool
	// selector narrows every installed catalog; set before Run.
	selector Selector
	logger   *slog.Logger
}

// NewRefresher wires a refresher. cache may be nil. With fetching disabled
// only the disk cache is used.
func NewRefresher(store *Store, fetcher *Fetcher, cache *Cache, maxAge time.Duration, enableFetch bool, logger *slog.Logger) *Refresher {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Refresher{
		store:   store,
		fetcher: fetcher,
		cache:   cache,
		maxAge:  maxAge,
		enabled: enableFetch && fetcher != nil,
		logger:  logger,
	}
}

// FetchEnabled reports whether network refreshes are allowed.
func (r *Refresher) FetchEnabled() bool { return r.enabled }

// SetSelector restricts installed catalogs to the elements sel keeps. The
// disk cache still stores the full upstream data.
func (r *Refresher) SetSelector(sel Selector) { r.selector = sel }

// Selector returns the configured selector.
func (r *Refresher) Selector() Selector { return r.selector }

// LoadCache installs the newest disk snapshot, if any.
func (r *Refresher) LoadCache() error {
	if r.cache == nil {
		return ErrNoCache
	}
	cat, err := r.cache.LoadCatalog(r.logger)
	if err != nil {
		return err
	}
	if cat, err = cat.Select(r.selector); err != nil {
		return err
	}
	r.store.Set(cat)
	metrics.RecordTLEFetch("cache", cat.Len())
	r.logger.Info("loaded TLE catalog from cache",
		"component", "tle",
		"count", cat.Len(),
		"cached_at", cat.FetchedAt.Format(time.RFC3339),
	)
	return nil
}

// Refresh fetches the catalog, writes it to the disk cache and installs it.
// Concurrent refreshes are serialized on the store.
func (r *Refresher) Refresh(ctx context.Context) (*Catalog, error) {
	if !r.enabled {
		return nil, ErrFetchDisabled
	}

	r.store.Lock()
	defer r.store.Unlock()

	cat, raw, err := r.fetcher.FetchCatalog(ctx)
	if err != nil {
		metrics.RecordTLEFetch("error", 0)
		return nil, fmt.Errorf("refreshing TLE catalog: %w", err)
	}
	if r.cache != nil {
		if err := r.cache.Write(raw, cat.FetchedAt); err != nil {
			r.logger.Warn("failed to write TLE cache", "component", "tle", "error", err)
		}
	}
	if cat, err = cat.Select(r.selector); err != nil {
		metrics.RecordTLEFetch("error", 0)
		return nil, fmt.Errorf("refreshing TLE catalog: %w", err)
	}
	r.store.Set(cat)
	metrics.RecordTLEFetch("success", cat.Len())

	oldest, newest := cat.EpochRange()
	r.logger.Info("TLE catalog refreshed",
		"component", "tle",
		"source_url", r.fetcher.SourceURL(),
		"count", cat.Len(),
		"selector", r.selector.String(),
		"epoch_min", oldest.Format(time.RFC3339),
		"epoch_max", newest.Format(time.RFC3339),
	)
	return cat, nil
}

// Stale reports whether the loaded catalog is missing or older than MaxAge.
func (r *Refresher) Stale() bool {
	age := r.store.AgeSeconds()
	return age < 0 || time.Duration(age*float64(time.Second)) > r.maxAge
}

// Run refreshes immediately when stale and then checks every interval until
// ctx is cancelled. Failures are logged and retried on the next tick.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if !r.enabled {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	check := func() {
		if !r.Stale() {
			return
		}
		if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("TLE refresh failed", "component", "tle", "error", err)
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
