package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/gimbal"
	"github.com/ccdanpian/sat-yuntai/internal/metrics"
	"github.com/ccdanpian/sat-yuntai/internal/pass"
	"github.com/ccdanpian/sat-yuntai/internal/passlog"
)

var (
	// ErrNoSession is returned when no tracking session is running.
	ErrNoSession = errors.New("no active tracking session")
	// ErrNoFrame is returned before the first cycle of a session completes.
	ErrNoFrame = errors.New("no frame yet")
)

// Tracker owns at most one running session. Starting a new session stops the
// previous one first.
type Tracker struct {
	config   Config
	driver   *gimbal.Driver
	analyzer *pass.Analyzer
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	current *Session
}

// NewTracker creates a tracker. recorder may be nil to disable the pass log.
func NewTracker(driver *gimbal.Driver, analyzer *pass.Analyzer, recorder Recorder, config Config, logger *slog.Logger) *Tracker {
	return &Tracker{
		config:   config.withDefaults(),
		driver:   driver,
		analyzer: analyzer,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Start validates req, stops any running session and starts a new one. The
// session outlives ctx; only Stop ends it.
func (t *Tracker) Start(ctx context.Context, req Request) (*Session, error) {
	sess, err := newSession(req, t.config, t.driver, t.analyzer, t.recorder, t.now, t.logger)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.logger.Info("replacing running tracking session",
			"component", "tracking",
			"old_session_id", t.current.ID(),
			"new_session_id", sess.ID(),
		)
		t.current.Stop()
		t.current = nil
	}

	if t.recorder != nil {
		r := sess.Request()
		err := t.recorder.StartSession(ctx, passlog.Session{
			ID:         sess.ID(),
			Satellite:  r.Element.Name,
			NORADID:    r.Element.NORADID,
			Simulation: r.Simulation,
			Convention: string(r.Convention),
			StartedAt:  sess.StartedAt(),
		})
		if err != nil {
			t.logger.Warn("failed to record session start", "component", "tracking", "session_id", sess.ID(), "error", err)
		}
	}

	sess.start(context.WithoutCancel(ctx))
	t.current = sess
	metrics.SetTrackingActive(true)
	return sess, nil
}

// Stop ends the running session and waits for its loop to exit.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ErrNoSession
	}
	t.current.Stop()
	t.current = nil
	metrics.SetTrackingActive(false)
	return nil
}

// Current returns the running session.
func (t *Tracker) Current() (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil, ErrNoSession
	}
	return t.current, nil
}

// Frame returns the latest frame of the running session.
func (t *Tracker) Frame() (*Frame, error) {
	sess, err := t.Current()
	if err != nil {
		return nil, err
	}
	f := sess.Frame()
	if f == nil {
		return nil, ErrNoFrame
	}
	return f, nil
}

// Position reports the last commanded gimbal position. It is served with or
// without a running session.
func (t *Tracker) Position() Position {
	pos := t.driver.Position()
	out := Position{AzimuthDeg: pos.AzimuthDeg, ElevationDeg: pos.ElevationDeg}
	if sess, err := t.Current(); err == nil {
		out.IsTracking = true
		if st, ok := sess.SimulationTime(); ok {
			out.SimulationTime = &st
		}
	}
	return out
}

// Gimbal returns the driver shared by all sessions.
func (t *Tracker) Gimbal() *gimbal.Driver { return t.driver }
