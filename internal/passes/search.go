package passes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ccdanpian/sat-yuntai/internal/metrics"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

// ErrNoPass is returned when no pass within the search horizon reaches the
// acceptance elevation.
var ErrNoPass = errors.New("no qualifying pass")

var tracer = otel.Tracer("github.com/ccdanpian/sat-yuntai/internal/passes")

// SearchConfig tunes the two-stage trajectory search.
type SearchConfig struct {
	Horizon              time.Duration // total span scanned (default 24h)
	CoarseStep           time.Duration // candidate scan step (default 3m)
	CandidateElevation   float64       // a coarse sample above this is a candidate (default 10°)
	WindowHalf           time.Duration // candidate window is hit ± this (default 15m)
	Skip                 time.Duration // jump after a candidate (default 20m)
	DetailStep           time.Duration // detail scan step (default 10s)
	VisibleElevation     float64       // detail points above this are kept (default 5°)
	AcceptancePeakDegree float64       // first candidate peaking at or above this wins (default 30°)
}

// DefaultSearchConfig returns the defaults used by the trajectory API.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Horizon:              24 * time.Hour,
		CoarseStep:           3 * time.Minute,
		CandidateElevation:   10,
		WindowHalf:           15 * time.Minute,
		Skip:                 20 * time.Minute,
		DetailStep:           10 * time.Second,
		VisibleElevation:     5,
		AcceptancePeakDegree: 30,
	}
}

// Validate rejects non-positive steps and spans.
func (c SearchConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"horizon":     c.Horizon,
		"coarse step": c.CoarseStep,
		"window":      c.WindowHalf,
		"skip":        c.Skip,
		"detail step": c.DetailStep,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// Window is a candidate span for the detail scan.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Trajectory is the accepted pass: its visible detail points and summary.
type Trajectory struct {
	Points       []sample.TrajectoryPoint `json:"trajectoryPoints"`
	MaxElevation float64                  `json:"maxElevation"`
	StartTime    time.Time                `json:"startTime"`
	EndTime      time.Time                `json:"endTime"`
	Candidates   int                      `json:"candidates"`
}

// Candidates runs the coarse scan. A sample is a candidate when elevation
// crosses from ≤ 0 to > 0 since the previous sample, or exceeds the
// candidate elevation. After a hit the scan jumps ahead and forgets the
// previous sample.
func Candidates(ctx context.Context, m *propagation.SGP4, obs transform.Observer, start time.Time, cfg SearchConfig) ([]Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	end := start.Add(cfg.Horizon)

	var (
		windows []Window
		prev    float64
		hasPrev bool
	)
	for t := start; !t.After(end); {
		if err := ctx.Err(); err != nil {
			return windows, err
		}
		pt, err := m.Point(obs, t)
		if err != nil {
			t = t.Add(cfg.CoarseStep)
			continue
		}
		el := pt.ElevationDeg
		if hasPrev && ((prev <= 0 && el > 0) || el > cfg.CandidateElevation) {
			windows = append(windows, Window{Start: t.Add(-cfg.WindowHalf), End: t.Add(cfg.WindowHalf)})
			t = t.Add(cfg.Skip)
			hasPrev = false
			continue
		}
		prev, hasPrev = el, true
		t = t.Add(cfg.CoarseStep)
	}
	return windows, nil
}

// Detail samples w at the detail step and keeps the points above the
// visible elevation.
func Detail(ctx context.Context, m *propagation.SGP4, obs transform.Observer, w Window, cfg SearchConfig) ([]sample.TrajectoryPoint, error) {
	all, err := propagation.Trajectory(ctx, m, obs, w.Start, w.End, cfg.DetailStep)
	if err != nil {
		return nil, err
	}
	visible := all[:0]
	for _, p := range all {
		if p.ElevationDeg > cfg.VisibleElevation {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// Search finds the first pass after start whose visible detail points peak
// at or above the acceptance elevation.
func Search(ctx context.Context, m *propagation.SGP4, obs transform.Observer, start time.Time, cfg SearchConfig) (traj *Trajectory, err error) {
	ctx, span := tracer.Start(ctx, "passes.Search")
	span.SetAttributes(
		attribute.Int("norad_id", m.Element().NORADID),
		attribute.String("start", start.UTC().Format(time.RFC3339)),
	)
	began := time.Now()
	defer func() {
		outcome := "found"
		switch {
		case errors.Is(err, ErrNoPass):
			outcome = "no_pass"
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.ObserveTrajectorySearch(time.Since(began), outcome)
		span.End()
	}()

	windows, err := Candidates(ctx, m, obs, start, cfg)
	if err != nil {
		return nil, fmt.Errorf("candidate scan: %w", err)
	}
	span.SetAttributes(attribute.Int("candidates", len(windows)))
	if len(windows) == 0 {
		return nil, fmt.Errorf("no candidate within %s: %w", cfg.Horizon, ErrNoPass)
	}

	for _, w := range windows {
		points, err := Detail(ctx, m, obs, w, cfg)
		if err != nil {
			return nil, fmt.Errorf("detail scan %s: %w", w.Start.Format(time.RFC3339), err)
		}
		if len(points) == 0 {
			continue
		}
		peak := points[0].ElevationDeg
		for _, p := range points[1:] {
			if p.ElevationDeg > peak {
				peak = p.ElevationDeg
			}
		}
		if peak >= cfg.AcceptancePeakDegree {
			return &Trajectory{
				Points:       points,
				MaxElevation: peak,
				StartTime:    points[0].Time(),
				EndTime:      points[len(points)-1].Time(),
				Candidates:   len(windows),
			}, nil
		}
	}
	return nil, fmt.Errorf("no candidate reached %.0f° in %s: %w", cfg.AcceptancePeakDegree, cfg.Horizon, ErrNoPass)
}
