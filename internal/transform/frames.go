// Package transform converts SGP4 output into Earth-fixed positions and
// observer-relative look angles.
//
// SGP4 produces TEME (True Equator Mean Equinox) state vectors. The rotation to
// Earth-fixed uses GMST only (TEME → PEF ≈ ECEF), ignoring polar motion and the
// equation of the equinoxes. The error is tens of metres, well below what a
// pointing mount can resolve.
//
// All lengths are kilometres and all velocities km/s.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// j2000 is the Julian Date of the J2000.0 epoch.
	j2000 = 2451545.0

	// OmegaEarth is Earth's rotation rate in rad/s.
	OmegaEarth = 7.292115146706979e-5

	minOrbitRadiusKm = 6200.0
	maxOrbitRadiusKm = 50000.0
)

// StateVector is a position and velocity in one frame.
type StateVector struct {
	Pos r3.Vec // km
	Vel r3.Vec // km/s
}

// JulianDate converts t to a Julian Date, including sub-second precision.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y, m := float64(t.Year()), float64(t.Month())
	if m <= 2 {
		y--
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	dayFrac := (float64(t.Hour()) +
		float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600) / 24

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) +
		float64(t.Day()) + b - 1524.5 + dayFrac
}

// GMST returns Greenwich Mean Sidereal Time in radians (IAU-82 model,
// Vallado Eq. 3-47).
func GMST(t time.Time) float64 {
	tu := (JulianDate(t) - j2000) / 36525.0
	sec := 67310.54841 +
		(876600*3600+8640184.812866)*tu +
		0.093104*tu*tu -
		6.2e-6*tu*tu*tu
	sec = math.Mod(sec, 86400)
	if sec < 0 {
		sec += 86400
	}
	return sec / 86400 * 2 * math.Pi
}

// TEMEToECEF rotates a TEME state into the Earth-fixed frame at t.
func TEMEToECEF(s StateVector, t time.Time) StateVector {
	return TEMEToECEFWithGMST(s, GMST(t))
}

// TEMEToECEFWithGMST rotates by a precomputed GMST angle. The velocity loses
// the Earth-rotation term ω × r.
func TEMEToECEFWithGMST(s StateVector, gmst float64) StateVector {
	sinG, cosG := math.Sincos(gmst)
	rot := func(v r3.Vec) r3.Vec {
		return r3.Vec{X: v.X*cosG + v.Y*sinG, Y: -v.X*sinG + v.Y*cosG, Z: v.Z}
	}
	pos := rot(s.Pos)
	omega := r3.Vec{Z: OmegaEarth}
	vel := r3.Sub(rot(s.Vel), r3.Cross(omega, pos))
	return StateVector{Pos: pos, Vel: vel}
}

// Plausible reports whether pos is a finite position between the surface and
// a generous GEO bound.
func Plausible(pos r3.Vec) bool {
	for _, c := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	mag := r3.Norm(pos)
	return mag >= minOrbitRadiusKm && mag <= maxOrbitRadiusKm
}
