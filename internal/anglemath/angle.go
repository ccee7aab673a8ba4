// Package anglemath holds the azimuth/elevation helpers shared by the polar
// display, the scene builder and the pass heuristics.
//
// Azimuth is measured clockwise from true north in degrees. Elevation is
// degrees above the local horizon.
package anglemath

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidAngle is returned for non-finite angle input.
var ErrInvalidAngle = errors.New("invalid angle")

func check(x float64) error {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAngle, x)
	}
	return nil
}

// NormalizeDeg reduces x into [0, 360).
func NormalizeDeg(x float64) (float64, error) {
	if err := check(x); err != nil {
		return 0, err
	}
	return normalize(x), nil
}

func normalize(x float64) float64 {
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	// -1e-17 + 360 rounds to 360.
	if x >= 360 {
		x -= 360
	}
	return x
}

// CircularDiffDeg returns the shortest signed difference a-b in (-180, 180].
// A positive result means a lies clockwise of b.
func CircularDiffDeg(a, b float64) (float64, error) {
	if err := check(a); err != nil {
		return 0, err
	}
	if err := check(b); err != nil {
		return 0, err
	}
	return circularDiff(a, b), nil
}

func circularDiff(a, b float64) float64 {
	d := normalize(a - b)
	if d > 180 {
		d -= 360
	}
	return d
}

// ClampElevation limits x to [-90, 90].
func ClampElevation(x float64) (float64, error) {
	if err := check(x); err != nil {
		return 0, err
	}
	return math.Max(-90, math.Min(90, x)), nil
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(d float64) float64 { return d * math.Pi / 180 }

// Rad2Deg converts radians to degrees.
func Rad2Deg(r float64) float64 { return r * 180 / math.Pi }

// InBand reports whether azimuth az lies in the closed band [lo, hi] walking
// clockwise from lo. Bands may wrap through north, e.g. InBand(az, 330, 30).
func InBand(az, lo, hi float64) bool {
	az, lo, hi = normalize(az), normalize(lo), normalize(hi)
	if lo <= hi {
		return az >= lo && az <= hi
	}
	return az >= lo || az <= hi
}
