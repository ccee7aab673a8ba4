package passes

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/propagation"
)

func boxAroundZenith(t *testing.T) (*propagation.SGP4, SubPointQuery, time.Time) {
	t.Helper()
	m, zenith := overheadSetup(t)
	g, err := m.Geo(zenith)
	if err != nil {
		t.Fatal(err)
	}
	return m, SubPointQuery{
		Start:        zenith.Add(-10 * time.Minute),
		End:          zenith.Add(10 * time.Minute),
		Interval:     5 * time.Second,
		TargetLatDeg: g.LatDeg,
		TargetLonDeg: g.LonDeg,
		LatErrorDeg:  2,
		LonErrorDeg:  2,
		FrequencyHz:  1616e6,
	}, zenith
}

func TestSubPointSearch_Overhead(t *testing.T) {
	m, q, zenith := boxAroundZenith(t)
	obs := mustObserver(t, q.TargetLatDeg, q.TargetLonDeg, 0)

	hits, err := SubPointSearch(context.Background(), m, obs, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) < 3 {
		t.Fatalf("hits = %d, want several around the zenith", len(hits))
	}

	var sawZenith bool
	for i, h := range hits {
		if i > 0 && !h.Time.After(hits[i-1].Time) {
			t.Errorf("hit %d out of order", i)
		}
		if math.Abs(h.LatDeg-q.TargetLatDeg) > q.LatErrorDeg {
			t.Errorf("hit %d latitude %.3f outside the box", i, h.LatDeg)
		}
		if h.NORADID != 25544 || h.SatelliteName != "ISS (ZARYA)" {
			t.Errorf("hit %d identity = %d %q", i, h.NORADID, h.SatelliteName)
		}
		if h.Time.Equal(zenith) {
			sawZenith = true
			if h.ElevationDeg < 89 {
				t.Errorf("zenith elevation = %.2f", h.ElevationDeg)
			}
			if math.Abs(h.RangeKm-h.AltKm) > 5 {
				t.Errorf("zenith range %.1f km vs altitude %.1f km", h.RangeKm, h.AltKm)
			}
		}
		// Doppler and relative velocity agree in sign.
		if h.DopplerHz*h.RelativeVelocityMS < 0 {
			t.Errorf("hit %d doppler %.1f Hz vs velocity %.1f m/s", i, h.DopplerHz, h.RelativeVelocityMS)
		}
	}
	if !sawZenith {
		t.Error("zenith sample missing from hits")
	}
	if first := hits[0]; first.RelativeVelocityMS <= 0 || first.DopplerHz <= 0 {
		t.Errorf("first hit should be approaching: %.1f m/s, %.1f Hz", first.RelativeVelocityMS, first.DopplerHz)
	}
	if last := hits[len(hits)-1]; last.RelativeVelocityMS >= 0 || last.DopplerHz >= 0 {
		t.Errorf("last hit should be receding: %.1f m/s, %.1f Hz", last.RelativeVelocityMS, last.DopplerHz)
	}
}

func TestSubPointSearch_NoFrequency(t *testing.T) {
	m, q, _ := boxAroundZenith(t)
	q.FrequencyHz = 0
	hits, err := SubPointSearch(context.Background(), m, mustObserver(t, q.TargetLatDeg, q.TargetLonDeg, 0), q)
	if err != nil {
		t.Fatal(err)
	}
	for i, h := range hits {
		if h.DopplerHz != 0 {
			t.Errorf("hit %d doppler = %v without a frequency", i, h.DopplerHz)
		}
	}
}

func TestFindFirst(t *testing.T) {
	m, q, zenith := boxAroundZenith(t)
	obs := mustObserver(t, q.TargetLatDeg, q.TargetLonDeg, 0)

	res, err := FindFirst(context.Background(), []*propagation.SGP4{m}, obs, q)
	if err != nil {
		t.Fatal(err)
	}
	if res.Hit == nil {
		t.Fatal("expected a hit")
	}
	if res.Hit.Time.After(zenith) || res.Scanned != 1 || res.Skipped != 0 {
		t.Errorf("result = %+v at %v", res, res.Hit.Time)
	}

	// The ISS inclination keeps it well clear of 89°N.
	q.TargetLatDeg = 89
	res, err = FindFirst(context.Background(), []*propagation.SGP4{m}, obs, q)
	if err != nil {
		t.Fatal(err)
	}
	if res.Hit != nil || res.Scanned != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestFindFirst_Cancelled(t *testing.T) {
	m, q, _ := boxAroundZenith(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := FindFirst(ctx, []*propagation.SGP4{m}, mustObserver(t, 0, 0, 0), q); err == nil {
		t.Error("expected context error")
	}
}

func TestSubPointQuery_Validate(t *testing.T) {
	start := predictStart
	valid := SubPointQuery{Start: start, End: start.Add(time.Hour), Interval: time.Minute, LatErrorDeg: 1, LonErrorDeg: 1}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid query rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*SubPointQuery)
	}{
		{"zero interval", func(q *SubPointQuery) { q.Interval = 0 }},
		{"end before start", func(q *SubPointQuery) { q.End = start.Add(-time.Second) }},
		{"too many steps", func(q *SubPointQuery) { q.Interval = time.Millisecond }},
		{"negative error", func(q *SubPointQuery) { q.LatErrorDeg = -1 }},
		{"nan target", func(q *SubPointQuery) { q.TargetLonDeg = math.NaN() }},
		{"latitude range", func(q *SubPointQuery) { q.TargetLatDeg = 91 }},
		{"negative frequency", func(q *SubPointQuery) { q.FrequencyHz = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			if err := q.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSubPointQuery_LongitudeWraps(t *testing.T) {
	q := SubPointQuery{TargetLatDeg: 0, TargetLonDeg: 179.5, LatErrorDeg: 1, LonErrorDeg: 1}
	if !q.inBox(0, -179.8) {
		t.Error("box should wrap across the antimeridian")
	}
	if q.inBox(0, 170) {
		t.Error("170° is outside a 1° box at 179.5°")
	}
}
