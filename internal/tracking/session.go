// Package tracking runs a satellite tracking session: once per interval it
// samples the satellite, commands the gimbal and publishes a Frame for the
// polar view, the 3D scene and the stream endpoint.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
	"github.com/ccdanpian/sat-yuntai/internal/gimbal"
	"github.com/ccdanpian/sat-yuntai/internal/metrics"
	"github.com/ccdanpian/sat-yuntai/internal/pass"
	"github.com/ccdanpian/sat-yuntai/internal/passlog"
	"github.com/ccdanpian/sat-yuntai/internal/polar"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
	"github.com/ccdanpian/sat-yuntai/internal/scene"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

var tracer = otel.Tracer("github.com/ccdanpian/sat-yuntai/internal/tracking")

// Recorder persists sessions and completed passes. *passlog.Store satisfies it.
type Recorder interface {
	StartSession(ctx context.Context, s passlog.Session) error
	EndSession(ctx context.Context, id string, endedAt time.Time) error
	RecordPass(ctx context.Context, r passlog.Record) (int64, error)
}

// Config holds session tuning loaded from environment variables.
type Config struct {
	Interval         time.Duration  // cycle period (default: 1s)
	Viewport         polar.Viewport // polar view geometry (default: 400×400, 30px margin)
	BeamHalfAngleDeg float64        // outer beam half-angle (default: 5)
	EarthRadiusKm    float64        // scene sphere radius (default: 6371)
	DownlinkHz       float64        // carrier for Doppler readout, 0 disables
}

// DefaultConfig returns the defaults used by the service.
func DefaultConfig() Config {
	return Config{
		Interval:         time.Second,
		Viewport:         polar.ViewportFor(400, 400, 30),
		BeamHalfAngleDeg: 5,
		EarthRadiusKm:    scene.EarthRadiusKm,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Viewport.RadiusPx <= 0 {
		c.Viewport = d.Viewport
	}
	if c.BeamHalfAngleDeg <= 0 || c.BeamHalfAngleDeg >= 90 {
		c.BeamHalfAngleDeg = d.BeamHalfAngleDeg
	}
	if c.EarthRadiusKm <= 0 {
		c.EarthRadiusKm = d.EarthRadiusKm
	}
	return c
}

// Request describes a session to start.
type Request struct {
	Element    tle.Element
	Station    scene.GeoPoint
	Simulation bool
	// Start is the simulation clock origin. Ignored in real-time mode.
	Start      time.Time
	Convention polar.Convention
	// Planned is an optional precomputed trajectory shown alongside the live arc.
	Planned []sample.TrajectoryPoint
}

// Session is one running tracking loop. Exported methods are safe for
// concurrent use; the cycle state is owned by the loop goroutine.
type Session struct {
	id       string
	req      Request
	cfg      Config
	model    *propagation.SGP4
	observer transform.Observer
	driver   *gimbal.Driver
	analyzer *pass.Analyzer
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	beams     *scene.BeamRegistry
	planned   *polar.Path
	startedAt time.Time

	cycle int
	seg   pass.Segmenter
	trend pass.Trend

	arc     atomic.Pointer[pass.Arc]
	frame   atomic.Pointer[Frame]
	simTime atomic.Pointer[time.Time]

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newSession(req Request, cfg Config, driver *gimbal.Driver, analyzer *pass.Analyzer, recorder Recorder, now func() time.Time, logger *slog.Logger) (*Session, error) {
	conv, err := polar.ParseConvention(string(req.Convention))
	if err != nil {
		return nil, err
	}
	req.Convention = conv

	model, err := propagation.NewSGP4(req.Element)
	if err != nil {
		return nil, err
	}
	obs, err := transform.NewObserver(req.Station.LatDeg, req.Station.LonDeg, req.Station.AltKm)
	if err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	beams := scene.NewBeamRegistry(cfg.EarthRadiusKm, nil)
	if err := beams.SetObserver(req.Station); err != nil {
		return nil, err
	}

	startedAt := now().UTC()
	if req.Simulation && req.Start.IsZero() {
		req.Start = startedAt
	}

	s := &Session{
		id:        uuid.NewString(),
		req:       req,
		cfg:       cfg,
		model:     model,
		observer:  obs,
		driver:    driver,
		analyzer:  analyzer,
		recorder:  recorder,
		logger:    logger.With("component", "tracking"),
		now:       now,
		beams:     beams,
		startedAt: startedAt,
		done:      make(chan struct{}),
	}
	if len(req.Planned) > 0 {
		p, err := polar.ProjectPath(req.Planned, cfg.Viewport)
		if err != nil {
			return nil, fmt.Errorf("projecting planned trajectory: %w", err)
		}
		s.planned = &p
	}
	s.arc.Store(&pass.Arc{})
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Request returns the normalized request the session runs.
func (s *Session) Request() Request { return s.req }

// StartedAt returns the wall-clock start of the session.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Arc returns the current pass arc. It is replaced wholesale on every cycle
// and never mutated after publication.
func (s *Session) Arc() *pass.Arc { return s.arc.Load() }

// Frame returns the most recent frame, or nil before the first cycle.
func (s *Session) Frame() *Frame { return s.frame.Load() }

// SimulationTime returns the simulated clock of the latest cycle.
func (s *Session) SimulationTime() (time.Time, bool) {
	if !s.req.Simulation {
		return time.Time{}, false
	}
	t := s.simTime.Load()
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// start launches the loop. The first cycle runs immediately.
func (s *Session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("tracking loop started",
		"session_id", s.id,
		"satellite", s.req.Element.Name,
		"norad_id", s.req.Element.NORADID,
		"simulation", s.req.Simulation,
		"convention", string(s.req.Convention),
	)
	s.step(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tracking loop stopped", "session_id", s.id, "cycles", s.cycle)
			return
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

// Stop cancels the loop and waits for it to exit. The live beam volume is
// disposed and the session end is recorded. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		s.beams.Clear()

		if s.recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.recorder.EndSession(ctx, s.id, s.now().UTC()); err != nil {
				s.logger.Warn("failed to record session end", "session_id", s.id, "error", err)
			}
		}
	})
}

// clock returns the sample time for cycle n.
func (s *Session) clock(n int) time.Time {
	if s.req.Simulation {
		return s.req.Start.Add(time.Duration(n) * time.Second).UTC()
	}
	return s.now().UTC()
}

// step runs one cycle. Failures are logged and counted; the loop continues.
func (s *Session) step(ctx context.Context) (*Frame, error) {
	s.cycle++
	t := s.clock(s.cycle)

	ctx, span := tracer.Start(ctx, "tracking.cycle",
		trace.WithAttributes(
			attribute.String("session_id", s.id),
			attribute.Int("norad_id", s.req.Element.NORADID),
			attribute.Int("cycle", s.cycle),
		),
	)
	defer span.End()

	f, err := s.buildFrame(ctx, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.IncTrackingCycles("error")
		s.logger.Warn("tracking cycle failed",
			"session_id", s.id,
			"cycle", s.cycle,
			"time", t.Format(time.RFC3339),
			"error", err,
		)
		return nil, err
	}

	metrics.IncTrackingCycles("ok")
	s.frame.Store(f)
	if s.cycle%10 == 1 {
		s.logger.Debug("tracking cycle",
			"session_id", s.id,
			"cycle", s.cycle,
			"time", t.Format(time.RFC3339),
			"azimuth", f.Sample.AzimuthDeg,
			"elevation", f.Sample.ElevationDeg,
			"reported_azimuth", f.ReportedAzimuth,
		)
	}
	return f, nil
}

func (s *Session) buildFrame(ctx context.Context, t time.Time) (*Frame, error) {
	pt, err := s.model.Point(s.observer, t)
	if err != nil {
		return nil, fmt.Errorf("propagating: %w", err)
	}
	if s.req.Simulation {
		s.simTime.Store(&t)
	}

	f := &Frame{
		SessionID:  s.id,
		Cycle:      s.cycle,
		Time:       t,
		Simulation: s.req.Simulation,
		Satellite:  s.req.Element.Name,
		NORADID:    s.req.Element.NORADID,
		Convention: string(s.req.Convention),
		Sample:     pt,
		Planned:    s.planned,
	}

	// The mount is commanded before any display work.
	if f.ReportedAzimuth, err = polar.ToReported(pt.AzimuthDeg, s.req.Convention); err != nil {
		return nil, err
	}
	pos, err := s.driver.Point(ctx, f.ReportedAzimuth, pt.ElevationDeg)
	f.Gimbal = pos
	if err != nil {
		f.GimbalError = err.Error()
		s.logger.Warn("gimbal command failed", "session_id", s.id, "cycle", s.cycle, "error", err)
	}

	arc, closed := s.advanceArc(pt)

	if f.Polar, err = polar.Project(pt.AngularSample, s.cfg.Viewport); err != nil {
		return nil, err
	}
	if f.Path, err = polar.ProjectPath(arc.Points, s.cfg.Viewport); err != nil {
		return nil, err
	}

	if f.SubPoint, err = s.model.Geo(t); err != nil {
		return nil, fmt.Errorf("sub-point: %w", err)
	}
	geo := scene.GeoPoint{LatDeg: f.SubPoint.LatDeg, LonDeg: f.SubPoint.LonDeg, AltKm: max(f.SubPoint.AltKm, 0)}
	if f.ScenePoint, err = scene.ToScenePoint(geo, s.cfg.EarthRadiusKm); err != nil {
		return nil, err
	}

	if pt.RangeKm != nil {
		vol, err := s.beams.Rebuild(
			anglemath.Deg2Rad(pt.AzimuthDeg),
			anglemath.Deg2Rad(pt.ElevationDeg),
			*pt.RangeKm,
			anglemath.Deg2Rad(s.cfg.BeamHalfAngleDeg),
		)
		if err != nil {
			return nil, fmt.Errorf("rebuilding beam: %w", err)
		}
		f.Beam = &vol
	}
	if s.cfg.DownlinkHz > 0 && pt.RangeRateKmS != nil {
		d := transform.DopplerShiftHz(s.cfg.DownlinkHz, *pt.RangeRateKmS)
		f.DopplerHz = &d
	}

	if q, ok, err := s.trend.Push(pt.AzimuthDeg); err == nil && ok {
		f.Heading = q.String()
	}

	if !arc.Empty() {
		a, err := s.analyzer.Analyze(arc)
		switch {
		case err == nil:
			f.Analysis = &a
		case !errors.Is(err, pass.ErrEmptyPass):
			return nil, err
		}
	}
	if closed && f.Analysis != nil {
		s.recordPass(ctx, arc, *f.Analysis)
	}
	return f, nil
}

// advanceArc feeds pt to the segmenter and publishes the resulting arc. A
// closed arc stays published until the next rise so the last pass remains on
// screen; the segmenter itself is reset right away.
func (s *Session) advanceArc(pt sample.TrajectoryPoint) (*pass.Arc, bool) {
	closed := s.seg.Feed(pt)
	arc := s.seg.Arc()
	if closed {
		s.seg.Reset()
	}
	if arc.Empty() {
		if prev := s.arc.Load(); prev != nil && prev.Closed {
			return prev, false
		}
	}
	s.arc.Store(arc)
	return arc, closed
}

func (s *Session) recordPass(ctx context.Context, arc *pass.Arc, a pass.Analysis) {
	vis := arc.Visible()
	s.logger.Info("pass completed",
		"session_id", s.id,
		"satellite", s.req.Element.Name,
		"peak_elevation", a.Peak.ElevationDeg,
		"description", a.Description,
		"suggestion", a.Suggestion.Sector.String(),
	)
	if s.recorder == nil || len(vis) == 0 {
		return
	}

	rec := passlog.Record{
		SessionID:     s.id,
		Satellite:     s.req.Element.Name,
		NORADID:       s.req.Element.NORADID,
		Start:         vis[0].Time(),
		End:           arc.Points[len(arc.Points)-1].Time(),
		PeakTime:      a.Peak.Time(),
		PeakAzimuth:   a.Peak.AzimuthDeg,
		PeakElevation: a.Peak.ElevationDeg,
		Description:   a.Description,
		Sector:        a.Suggestion.Sector.String(),
		Rule:          a.Suggestion.Rule,
		Rationale:     a.Suggestion.Rationale,
		RecordedAt:    s.now().UTC(),
	}
	if _, err := s.recorder.RecordPass(ctx, rec); err != nil {
		s.logger.Warn("failed to record pass", "session_id", s.id, "error", err)
	}
}
