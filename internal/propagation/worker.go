package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/sample"
)

// geoJob is a unit of work for the worker pool: one satellite, all times.
type geoJob struct {
	model *SGP4
	times []time.Time
}

// geoResult is the output of a single satellite's ground track.
type geoResult struct {
	samples []sample.GeoSample
	err     error
	noradID int
}

// WorkerPool manages a fixed number of goroutines for parallel SGP4 propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// GeoBatch computes sub-points for every model at every time. Samples come
// back grouped per satellite in time order; satellite order follows models.
// Failed satellites are logged and skipped.
func (wp *WorkerPool) GeoBatch(ctx context.Context, models []*SGP4, times []time.Time) ([]sample.GeoSample, BatchStats) {
	start := time.Now()
	if len(models) == 0 || len(times) == 0 {
		return nil, BatchStats{}
	}

	jobs := make(chan geoJob, wp.workers*2)
	results := make(chan geoResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := geoSingle(job)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, m := range models {
			select {
			case jobs <- geoJob{model: m, times: times}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	byID := make(map[int][]sample.GeoSample, len(models))
	var stats BatchStats
	for result := range results {
		if result.err != nil {
			stats.Errors++
			wp.logger.Warn("propagation failed",
				"component", "propagation",
				"norad_id", result.noradID,
				"error", result.err,
			)
			continue
		}
		stats.Success++
		byID[result.noradID] = result.samples
	}

	out := make([]sample.GeoSample, 0, stats.Success*len(times))
	for _, m := range models {
		out = append(out, byID[m.element.NORADID]...)
		delete(byID, m.element.NORADID)
	}
	stats.Duration = time.Since(start)
	return out, stats
}

func geoSingle(job geoJob) geoResult {
	id := job.model.element.NORADID
	samples := make([]sample.GeoSample, 0, len(job.times))
	for _, t := range job.times {
		g, err := job.model.Geo(t)
		if err != nil {
			return geoResult{noradID: id, err: err}
		}
		samples = append(samples, g)
	}
	return geoResult{noradID: id, samples: samples}
}
