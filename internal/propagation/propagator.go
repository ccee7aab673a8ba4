package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/metrics"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

// ErrNoCatalog is returned when no TLE catalog has been loaded yet.
var ErrNoCatalog = errors.New("no TLE catalog loaded")

// maxTrajectoryPoints bounds a single Trajectory call.
const maxTrajectoryPoints = 100_000

// sgp4Cache holds preinitialized models for one catalog.
// Immutable after construction; safe for concurrent reads.
type sgp4Cache struct {
	catalog *tle.Catalog
	models  map[int]*SGP4
}

// Propagator owns the worker pool and the per-catalog model cache.
type Propagator struct {
	store  *tle.Store
	pool   *WorkerPool
	config Config
	logger *slog.Logger
	sgp4   atomic.Pointer[sgp4Cache]
	sgp4Mu sync.Mutex // serializes cache rebuilds
}

// NewPropagator creates a propagator reading from store.
func NewPropagator(store *tle.Store, config Config, logger *slog.Logger) *Propagator {
	if config.Step <= 0 {
		config.Step = 10 * time.Second
	}
	return &Propagator{
		store:  store,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// Step returns the default trajectory step.
func (p *Propagator) Step() time.Duration { return p.config.Step }

// cachedModels returns the models for cat, rebuilding the cache when the
// catalog has been replaced (double-checked locking).
func (p *Propagator) cachedModels(cat *tle.Catalog) map[int]*SGP4 {
	if c := p.sgp4.Load(); c != nil && c.catalog == cat {
		return c.models
	}

	p.sgp4Mu.Lock()
	defer p.sgp4Mu.Unlock()

	if c := p.sgp4.Load(); c != nil && c.catalog == cat {
		return c.models
	}

	models := make(map[int]*SGP4, cat.Len())
	var skipped int
	for _, e := range cat.Elements {
		m, err := NewSGP4(e)
		if err != nil {
			p.logger.Warn("sgp4 cache init failed", "component", "propagation", "norad_id", e.NORADID, "error", err)
			skipped++
			continue
		}
		models[e.NORADID] = m
	}

	p.logger.Info("sgp4 model cache rebuilt",
		"component", "propagation",
		"cached", len(models),
		"skipped", skipped,
		"catalog_fetched_at", cat.FetchedAt.UTC().Format(time.RFC3339),
	)
	p.sgp4.Store(&sgp4Cache{catalog: cat, models: models})
	return models
}

// Model returns an SGP4 model for e. When e matches the loaded catalog entry
// the cached model is reused.
func (p *Propagator) Model(e tle.Element) (*SGP4, error) {
	if cat := p.store.Get(); cat != nil {
		if m, ok := p.cachedModels(cat)[e.NORADID]; ok &&
			m.element.Line1 == e.Line1 && m.element.Line2 == e.Line2 {
			return m, nil
		}
	}
	return NewSGP4(e)
}

// Models returns the catalog models for ids in order, or every model in
// catalog order when ids is empty.
func (p *Propagator) Models(ids []int) ([]*SGP4, error) {
	cat := p.store.Get()
	if cat == nil {
		return nil, ErrNoCatalog
	}
	cached := p.cachedModels(cat)

	if len(ids) == 0 {
		models := make([]*SGP4, 0, len(cached))
		for _, e := range cat.Elements {
			if m, ok := cached[e.NORADID]; ok {
				models = append(models, m)
			}
		}
		return models, nil
	}
	models := make([]*SGP4, 0, len(ids))
	for _, id := range ids {
		m, ok := cached[id]
		if !ok {
			return nil, fmt.Errorf("NORAD %d: %w", id, tle.ErrNotFound)
		}
		models = append(models, m)
	}
	return models, nil
}

// SubPoints propagates the given catalog satellites (all of them when ids is
// empty) to every time in times using the worker pool.
func (p *Propagator) SubPoints(ctx context.Context, ids []int, times []time.Time) ([]sample.GeoSample, error) {
	models, err := p.Models(ids)
	if err != nil {
		return nil, err
	}

	out, stats := p.pool.GeoBatch(ctx, models, times)
	metrics.RecordPropagation(stats.Duration, stats.Success, stats.Errors)

	p.logger.Debug("sub-point batch complete",
		"component", "propagation",
		"satellites", len(models),
		"times", len(times),
		"success", stats.Success,
		"errors", stats.Errors,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// Trajectory samples m as seen from obs from start to end inclusive.
func Trajectory(ctx context.Context, m *SGP4, obs transform.Observer, start, end time.Time, step time.Duration) ([]sample.TrajectoryPoint, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %s", step)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	n := int(end.Sub(start)/step) + 1
	if n > maxTrajectoryPoints {
		return nil, fmt.Errorf("trajectory of %d points exceeds limit %d", n, maxTrajectoryPoints)
	}

	points := make([]sample.TrajectoryPoint, 0, n)
	for i := 0; i < n; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return points, err
			}
		}
		t := start.Add(time.Duration(i) * step)
		pt, err := m.Point(obs, t)
		if err != nil {
			return points, fmt.Errorf("point %d at %s: %w", i, t.Format(time.RFC3339), err)
		}
		points = append(points, pt)
	}
	return points, nil
}
