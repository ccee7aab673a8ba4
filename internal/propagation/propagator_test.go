package propagation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ccdanpian/sat-yuntai/internal/sample"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

// ISS and a synthetic Starlink element set with valid checksums.
const (
	issLine1      = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	issLine2      = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"
	starlinkLine1 = "1 44713U 19074A   25045.50000000  .00001000  00000-0  10000-4 0  9997"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07"
)

var epochish = time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func mustElement(t *testing.T, name, l1, l2 string) tle.Element {
	t.Helper()
	e, err := tle.ParseElement(name, l1, l2)
	if err != nil {
		t.Fatalf("ParseElement(%s): %v", name, err)
	}
	return e
}

func mustModel(t *testing.T, name, l1, l2 string) *SGP4 {
	t.Helper()
	m, err := NewSGP4(mustElement(t, name, l1, l2))
	if err != nil {
		t.Fatalf("NewSGP4(%s): %v", name, err)
	}
	return m
}

func TestSGP4_At(t *testing.T) {
	m := mustModel(t, "ISS", issLine1, issLine2)

	teme, err := m.At(epochish)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	// ISS orbits at roughly 6371 + 420 km.
	if mag := r3.Norm(teme.Pos); mag < 6500 || mag > 7000 {
		t.Errorf("TEME position magnitude = %.1f km, expected ~6790 km", mag)
	}
	if speed := r3.Norm(teme.Vel); speed < 7.4 || speed > 7.9 {
		t.Errorf("TEME speed = %.3f km/s, expected ~7.66", speed)
	}

	ecef, err := m.ECEF(epochish)
	if err != nil {
		t.Fatal(err)
	}
	if d := math.Abs(r3.Norm(ecef.Pos) - r3.Norm(teme.Pos)); d > 1e-6 {
		t.Errorf("ECEF and TEME radii differ by %.9f km", d)
	}
}

func TestSGP4_SubSecond(t *testing.T) {
	m := mustModel(t, "ISS", issLine1, issLine2)

	a, err := m.At(epochish)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.At(epochish.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	mid, err := m.At(epochish.Add(500 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	want := r3.Scale(0.5, r3.Add(a.Pos, b.Pos))
	if d := r3.Norm(r3.Sub(mid.Pos, want)); d > 0.01 {
		t.Errorf("half-second position is %.4f km from the chord midpoint", d)
	}
}

func TestNewSGP4_InvalidTLE(t *testing.T) {
	tests := []struct {
		name   string
		l1, l2 string
	}{
		{"garbage", "invalid line 1", "invalid line 2"},
		{"swapped", issLine2, issLine1},
		{"truncated", issLine1[:40], issLine2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSGP4(tle.Element{NORADID: 99999, Line1: tt.l1, Line2: tt.l2})
			if err == nil {
				t.Fatal("expected error for invalid TLE, got nil")
			}
		})
	}
}

func TestSGP4_PointAndGeo(t *testing.T) {
	m := mustModel(t, "ISS", issLine1, issLine2)
	obs, err := transform.NewObserver(39.9, 116.4, 0.05)
	if err != nil {
		t.Fatal(err)
	}

	pt, err := m.Point(obs, epochish)
	if err != nil {
		t.Fatal(err)
	}
	if pt.TimestampMs != epochish.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", pt.TimestampMs, epochish.UnixMilli())
	}
	if pt.RangeKm == nil || pt.RangeRateKmS == nil {
		t.Fatal("point should carry range and range rate")
	}
	if *pt.RangeKm < 400 || *pt.RangeKm > 14000 {
		t.Errorf("range = %.1f km outside LEO bounds", *pt.RangeKm)
	}
	if pt.AzimuthDeg < 0 || pt.AzimuthDeg >= 360 {
		t.Errorf("azimuth %.3f outside [0, 360)", pt.AzimuthDeg)
	}
	if math.Abs(*pt.RangeRateKmS) > 8 {
		t.Errorf("range rate %.3f km/s exceeds orbital speed", *pt.RangeRateKmS)
	}

	g, err := m.Geo(epochish)
	if err != nil {
		t.Fatal(err)
	}
	if g.AltKm < 370 || g.AltKm > 460 {
		t.Errorf("altitude = %.1f km, expected ISS band", g.AltKm)
	}
	if math.Abs(g.LatDeg) > 52 {
		t.Errorf("latitude %.3f exceeds the orbit inclination", g.LatDeg)
	}
	if g.SatelliteName != "ISS" {
		t.Errorf("satellite name = %q", g.SatelliteName)
	}
}

func TestWorkerPoolGeoBatch(t *testing.T) {
	pool := NewWorkerPool(4, testLogger())
	models := []*SGP4{
		mustModel(t, "ISS", issLine1, issLine2),
		mustModel(t, "STARLINK-1007", starlinkLine1, starlinkLine2),
	}
	times := []time.Time{epochish, epochish.Add(time.Minute), epochish.Add(2 * time.Minute)}

	got, stats := pool.GeoBatch(context.Background(), models, times)
	if stats.Errors != 0 || stats.Success != 2 {
		t.Fatalf("stats = %+v, want 2 successes", stats)
	}
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	for i, g := range got {
		wantName := "ISS"
		if i >= 3 {
			wantName = "STARLINK-1007"
		}
		if g.SatelliteName != wantName {
			t.Errorf("sample %d from %q, want %q (grouped by satellite)", i, g.SatelliteName, wantName)
		}
		if !g.Time.Equal(times[i%3]) {
			t.Errorf("sample %d at %v, want %v", i, g.Time, times[i%3])
		}
	}
}

func TestWorkerPoolCancellation(t *testing.T) {
	pool := NewWorkerPool(2, testLogger())
	m := mustModel(t, "ISS", issLine1, issLine2)
	models := make([]*SGP4, 200)
	for i := range models {
		models[i] = m
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		pool.GeoBatch(ctx, models, []time.Time{epochish})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("GeoBatch did not return after cancellation")
	}
}

func TestPropagator_ModelCache(t *testing.T) {
	iss := mustElement(t, "ISS", issLine1, issLine2)
	store := tle.NewStore()
	store.Set(tle.NewCatalog("test", epochish, []tle.Element{iss}))
	p := NewPropagator(store, Config{Workers: 2}, testLogger())

	a, err := p.Model(iss)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Model(iss)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same element should reuse the cached model")
	}

	sl := mustElement(t, "STARLINK-1007", starlinkLine1, starlinkLine2)
	c, err := p.Model(sl)
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Error("element outside the catalog must get its own model")
	}
	if p.Step() != 10*time.Second {
		t.Errorf("default step = %s", p.Step())
	}
}

func TestPropagator_SubPoints(t *testing.T) {
	store := tle.NewStore()
	p := NewPropagator(store, Config{Workers: 2}, testLogger())
	ctx := context.Background()

	if _, err := p.SubPoints(ctx, nil, []time.Time{epochish}); !errors.Is(err, ErrNoCatalog) {
		t.Fatalf("err = %v, want ErrNoCatalog", err)
	}

	store.Set(tle.NewCatalog("test", epochish, []tle.Element{
		mustElement(t, "ISS", issLine1, issLine2),
		mustElement(t, "STARLINK-1007", starlinkLine1, starlinkLine2),
	}))

	all, err := p.SubPoints(ctx, nil, []time.Time{epochish})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all satellites: %d samples, want 2", len(all))
	}

	one, err := p.SubPoints(ctx, []int{44713}, []time.Time{epochish})
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].SatelliteName != "STARLINK-1007" {
		t.Errorf("filtered = %+v", one)
	}

	if _, err := p.SubPoints(ctx, []int{1}, []time.Time{epochish}); !errors.Is(err, tle.ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestPropagator_Models(t *testing.T) {
	store := tle.NewStore()
	p := NewPropagator(store, Config{Workers: 1}, testLogger())
	if _, err := p.Models(nil); !errors.Is(err, ErrNoCatalog) {
		t.Fatalf("err = %v, want ErrNoCatalog", err)
	}

	store.Set(tle.NewCatalog("test", epochish, []tle.Element{
		mustElement(t, "ISS", issLine1, issLine2),
		mustElement(t, "STARLINK-1007", starlinkLine1, starlinkLine2),
	}))

	all, err := p.Models(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Element().NORADID != 25544 || all[1].Element().NORADID != 44713 {
		t.Errorf("catalog order not kept: %d models", len(all))
	}

	picked, err := p.Models([]int{44713, 25544})
	if err != nil {
		t.Fatal(err)
	}
	if picked[0].Element().NORADID != 44713 || picked[1] != all[0] {
		t.Error("requested order not kept or model not shared")
	}
	if _, err := p.Models([]int{99999}); !errors.Is(err, tle.ErrNotFound) {
		t.Errorf("unknown id err = %v", err)
	}
}

func TestTrajectory(t *testing.T) {
	m := mustModel(t, "ISS", issLine1, issLine2)
	obs, err := transform.NewObserver(39.9, 116.4, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	points, err := Trajectory(ctx, m, obs, epochish, epochish.Add(10*time.Minute), 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 61 {
		t.Fatalf("len = %d, want 61 (inclusive end)", len(points))
	}
	if !sample.Ordered(points) {
		t.Error("trajectory timestamps must be non-decreasing")
	}

	if _, err := Trajectory(ctx, m, obs, epochish, epochish.Add(time.Minute), 0); err == nil {
		t.Error("zero step should be rejected")
	}
	if _, err := Trajectory(ctx, m, obs, epochish, epochish.Add(-time.Minute), time.Second); err == nil {
		t.Error("end before start should be rejected")
	}
}
