package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/gimbal"
	"github.com/ccdanpian/sat-yuntai/internal/scene"
)

func newTestTracker(t *testing.T, rec Recorder) *Tracker {
	t.Helper()
	driver := gimbal.NewDriver(gimbal.NewSimulated(testLogger()), testLogger())
	tr := NewTracker(driver, mustAnalyzer(t), rec, Config{Interval: 5 * time.Millisecond}, testLogger())
	t.Cleanup(func() { _ = tr.Stop() })
	return tr
}

func waitForFrame(t *testing.T, tr *Tracker, minCycle int) *Frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f, err := tr.Frame(); err == nil && f.Cycle >= minCycle {
			return f
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no frame with cycle >= %d before deadline", minCycle)
	return nil
}

func TestTracker_Lifecycle(t *testing.T) {
	rec := &fakeRecorder{}
	tr := newTestTracker(t, rec)

	if _, err := tr.Current(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Current err = %v, want ErrNoSession", err)
	}
	if _, err := tr.Frame(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Frame err = %v, want ErrNoSession", err)
	}
	if pos := tr.Position(); pos.IsTracking {
		t.Error("idle tracker reports tracking")
	}

	req := Request{
		Element:    issElement(t),
		Station:    scene.GeoPoint{LatDeg: 39.9, LonDeg: 116.4, AltKm: 0.05},
		Simulation: true,
		Start:      zenith,
	}
	ctx, cancel := context.WithCancel(context.Background())
	first, err := tr.Start(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	// The session must outlive the request context.
	cancel()

	f := waitForFrame(t, tr, 3)
	if f.SessionID != first.ID() {
		t.Errorf("frame session = %s, want %s", f.SessionID, first.ID())
	}
	pos := tr.Position()
	if !pos.IsTracking || pos.SimulationTime == nil || pos.SimulationTime.Before(zenith) {
		t.Errorf("position = %+v", pos)
	}

	second, err := tr.Start(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-first.done:
	default:
		t.Error("previous session loop still running after replacement")
	}
	if cur, _ := tr.Current(); cur != second {
		t.Error("current session was not replaced")
	}

	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Stop(); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Stop err = %v, want ErrNoSession", err)
	}
	select {
	case <-second.done:
	default:
		t.Error("Stop returned before the loop exited")
	}

	started, ended, _ := rec.snapshot()
	if len(started) != 2 || len(ended) != 2 {
		t.Errorf("recorder saw %d starts and %d ends, want 2 and 2", len(started), len(ended))
	}
	if started[0].Satellite != "ISS (ZARYA)" || !started[0].Simulation || started[0].Convention != "auto" {
		t.Errorf("session row = %+v", started[0])
	}
}

func TestTracker_InvalidRequestKeepsCurrent(t *testing.T) {
	tr := newTestTracker(t, nil)
	req := Request{Element: issElement(t), Station: scene.GeoPoint{LatDeg: 10, LonDeg: 10}, Simulation: true, Start: zenith}
	sess, err := tr.Start(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	bad := req
	bad.Convention = "sideways"
	if _, err := tr.Start(context.Background(), bad); err == nil {
		t.Fatal("expected error for bad convention")
	}
	if cur, err := tr.Current(); err != nil || cur != sess {
		t.Errorf("running session was disturbed by an invalid request")
	}
}
