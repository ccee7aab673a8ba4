package passes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
)

// overheadSetup places the observer under the ISS sub-point at predictStart,
// which guarantees a near-zenith pass there.
func overheadSetup(t *testing.T) (*propagation.SGP4, time.Time) {
	t.Helper()
	m, err := propagation.NewSGP4(issTLE)
	if err != nil {
		t.Fatal(err)
	}
	return m, predictStart
}

func TestSearch_FindsOverheadPass(t *testing.T) {
	m, zenith := overheadSetup(t)
	g, err := m.Geo(zenith)
	if err != nil {
		t.Fatal(err)
	}
	obs := mustObserver(t, g.LatDeg, g.LonDeg, 0)

	traj, err := Search(context.Background(), m, obs, zenith.Add(-30*time.Minute), DefaultSearchConfig())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if traj.MaxElevation < 80 {
		t.Errorf("max elevation = %.2f, want near zenith", traj.MaxElevation)
	}
	if traj.StartTime.After(zenith) || traj.EndTime.Before(zenith) {
		t.Errorf("pass %v..%v does not contain the zenith time %v", traj.StartTime, traj.EndTime, zenith)
	}
	if !sample.Ordered(traj.Points) {
		t.Error("points out of order")
	}
	for i, p := range traj.Points {
		if p.ElevationDeg <= 5 {
			t.Errorf("point %d at %.2f° should have been filtered", i, p.ElevationDeg)
		}
	}
	if traj.Candidates < 1 {
		t.Errorf("candidates = %d", traj.Candidates)
	}
}

func TestSearch_NoPass(t *testing.T) {
	m, zenith := overheadSetup(t)
	g, err := m.Geo(zenith)
	if err != nil {
		t.Fatal(err)
	}
	obs := mustObserver(t, g.LatDeg, g.LonDeg, 0)

	cfg := DefaultSearchConfig()
	cfg.Horizon = 30 * time.Minute
	_, err = Search(context.Background(), m, obs, zenith.Add(15*time.Minute), cfg)
	if !errors.Is(err, ErrNoPass) {
		t.Fatalf("err = %v, want ErrNoPass", err)
	}
}

func TestSearch_Cancelled(t *testing.T) {
	m, zenith := overheadSetup(t)
	obs := mustObserver(t, 0, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Search(ctx, m, obs, zenith, DefaultSearchConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCandidates_Windows(t *testing.T) {
	m, zenith := overheadSetup(t)
	g, err := m.Geo(zenith)
	if err != nil {
		t.Fatal(err)
	}
	obs := mustObserver(t, g.LatDeg, g.LonDeg, 0)
	cfg := DefaultSearchConfig()

	windows, err := Candidates(context.Background(), m, obs, zenith.Add(-12*time.Hour), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(windows) == 0 {
		t.Fatal("expected candidate windows around a zenith pass")
	}
	for i, w := range windows {
		if got := w.End.Sub(w.Start); got != 2*cfg.WindowHalf {
			t.Errorf("window %d spans %s, want %s", i, got, 2*cfg.WindowHalf)
		}
		if i > 0 && w.Start.Sub(windows[i-1].Start) < cfg.Skip {
			t.Errorf("window %d starts %s after the previous, want at least %s",
				i, w.Start.Sub(windows[i-1].Start), cfg.Skip)
		}
	}
}

func TestSearchConfig_Validate(t *testing.T) {
	cfg := DefaultSearchConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cfg.DetailStep = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero detail step should be rejected")
	}
}
