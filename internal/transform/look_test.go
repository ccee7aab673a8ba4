package transform

import (
	"errors"
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
)

func mustObserver(t *testing.T, lat, lon, alt float64) Observer {
	t.Helper()
	o, err := NewObserver(lat, lon, alt)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestNewObserver_Radius(t *testing.T) {
	eq := mustObserver(t, 0, 0, 0)
	if got := r3.Norm(eq.ECEF()); math.Abs(got-6378.137) > 1e-6 {
		t.Errorf("equatorial radius = %.6f km, want 6378.137", got)
	}
	pole := mustObserver(t, 90, 0, 0)
	if got := r3.Norm(pole.ECEF()); math.Abs(got-6356.7523) > 1e-3 {
		t.Errorf("polar radius = %.4f km, want 6356.7523", got)
	}
	high := mustObserver(t, 0, 0, 0.1)
	if d := r3.Norm(high.ECEF()) - r3.Norm(eq.ECEF()); math.Abs(d-0.1) > 1e-9 {
		t.Errorf("altitude offset = %v km, want 0.1", d)
	}
}

func TestNewObserver_Invalid(t *testing.T) {
	if _, err := NewObserver(math.NaN(), 0, 0); !errors.Is(err, anglemath.ErrInvalidAngle) {
		t.Errorf("NaN latitude err = %v", err)
	}
	if _, err := NewObserver(95, 0, 0); err == nil {
		t.Error("expected error for latitude 95")
	}
	if _, err := NewObserver(0, 200, 0); err == nil {
		t.Error("expected error for longitude 200")
	}
}

func TestECEFToGeodetic_RoundTrip(t *testing.T) {
	for _, g := range []Geodetic{
		{39.9042, 116.4074, 0.05},
		{-33.86, 151.21, 0},
		{51.5, -0.12, 550},
		{0, 179.9, 35786},
	} {
		o := mustObserver(t, g.LatDeg, g.LonDeg, g.AltKm)
		back := ECEFToGeodetic(o.ECEF())
		if math.Abs(back.LatDeg-g.LatDeg) > 1e-8 || math.Abs(back.LonDeg-g.LonDeg) > 1e-8 || math.Abs(back.AltKm-g.AltKm) > 1e-6 {
			t.Errorf("round trip %+v -> %+v", g, back)
		}
	}
}

func TestLook_Overhead(t *testing.T) {
	o := mustObserver(t, 0, 0, 0)
	sat := StateVector{Pos: r3.Add(o.ECEF(), r3.Vec{X: 400})}
	la := o.Look(sat)
	if math.Abs(la.ElevationDeg-90) > 1e-9 {
		t.Errorf("elevation = %v, want 90", la.ElevationDeg)
	}
	if math.Abs(la.RangeKm-400) > 1e-9 {
		t.Errorf("range = %v, want 400", la.RangeKm)
	}
}

func TestLook_Directions(t *testing.T) {
	o := mustObserver(t, 0, 0, 0)
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantAz  float64
		maxDiff float64
	}{
		{"north", 10, 0, 0, 1e-6},
		{"east", 0, 10, 90, 1e-6},
		{"south", -10, 0, 180, 1e-6},
		{"west", 0, -10, 270, 1e-6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := mustObserver(t, tt.lat, tt.lon, 400)
			la := o.Look(StateVector{Pos: target.ECEF()})
			diff, _ := anglemath.CircularDiffDeg(la.AzimuthDeg, tt.wantAz)
			if math.Abs(diff) > tt.maxDiff {
				t.Errorf("azimuth = %.4f, want %.1f", la.AzimuthDeg, tt.wantAz)
			}
			if la.AzimuthDeg < 0 || la.AzimuthDeg >= 360 {
				t.Errorf("azimuth %v out of [0, 360)", la.AzimuthDeg)
			}
		})
	}
}

func TestLook_RangeRate(t *testing.T) {
	o := mustObserver(t, 0, 0, 0)
	pos := r3.Add(o.ECEF(), r3.Vec{X: 1000})

	away := o.Look(StateVector{Pos: pos, Vel: r3.Vec{X: 2}})
	if math.Abs(away.RangeRateKmS-2) > 1e-12 {
		t.Errorf("receding range rate = %v, want 2", away.RangeRateKmS)
	}
	toward := o.Look(StateVector{Pos: pos, Vel: r3.Vec{X: -3}})
	if math.Abs(toward.RangeRateKmS+3) > 1e-12 {
		t.Errorf("approaching range rate = %v, want -3", toward.RangeRateKmS)
	}
	across := o.Look(StateVector{Pos: pos, Vel: r3.Vec{Y: 7}})
	if math.Abs(across.RangeRateKmS) > 1e-12 {
		t.Errorf("transverse range rate = %v, want 0", across.RangeRateKmS)
	}
}

// At the equator go-satellite's spherical observer model coincides with the
// ellipsoid, so the full TEME → look-angle chain must match.
func TestLook_MatchesGoSatellite(t *testing.T) {
	tm := time.Date(2025, 2, 14, 13, 45, 10, 0, time.UTC)
	jday := satellite.JDay(tm.Year(), int(tm.Month()), tm.Day(), tm.Hour(), tm.Minute(), tm.Second())
	gmst := GMST(tm)

	for _, lon := range []float64{0, 75, -120} {
		o := mustObserver(t, 0, lon, 0)

		// Put the satellite 600 km up and 8° away from the observer's zenith.
		target := mustObserver(t, 5, lon+6, 600)
		ecef := target.ECEF()
		sinG, cosG := math.Sincos(gmst)
		teme := r3.Vec{X: ecef.X*cosG - ecef.Y*sinG, Y: ecef.X*sinG + ecef.Y*cosG, Z: ecef.Z}

		ours := o.Look(TEMEToECEFWithGMST(StateVector{Pos: teme}, gmst))
		ref := satellite.ECIToLookAngles(
			satellite.Vector3{X: teme.X, Y: teme.Y, Z: teme.Z},
			satellite.LatLong{Latitude: 0, Longitude: anglemath.Deg2Rad(lon)},
			0, jday,
		)

		azDiff, _ := anglemath.CircularDiffDeg(ours.AzimuthDeg, anglemath.Rad2Deg(ref.Az))
		if math.Abs(azDiff) > 0.05 {
			t.Errorf("lon %v: azimuth %.4f, go-satellite %.4f", lon, ours.AzimuthDeg, anglemath.Rad2Deg(ref.Az))
		}
		if d := ours.ElevationDeg - anglemath.Rad2Deg(ref.El); math.Abs(d) > 0.05 {
			t.Errorf("lon %v: elevation %.4f, go-satellite %.4f", lon, ours.ElevationDeg, anglemath.Rad2Deg(ref.El))
		}
		if d := ours.RangeKm - ref.Rg; math.Abs(d) > 0.5 {
			t.Errorf("lon %v: range %.3f, go-satellite %.3f", lon, ours.RangeKm, ref.Rg)
		}
	}
}

func TestDopplerShift(t *testing.T) {
	const f = 437e6
	if got := DopplerShiftHz(f, -7); got <= 0 {
		t.Errorf("approaching shift = %v, want positive", got)
	}
	if got := DopplerShiftHz(f, 7); math.Abs(got+f*7/SpeedOfLightKmS) > 1e-6 {
		t.Errorf("receding shift = %v", got)
	}
	if DopplerShiftHz(f, 0) != 0 {
		t.Error("zero range rate should give zero shift")
	}
}
