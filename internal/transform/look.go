package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
)

// SpeedOfLightKmS is c in km/s.
const SpeedOfLightKmS = 299792.458

// LookAngles is the direction and distance from an observer to a satellite.
type LookAngles struct {
	AzimuthDeg   float64 // clockwise from north, [0, 360)
	ElevationDeg float64 // above the horizon
	RangeKm      float64
	// RangeRateKmS is positive when the satellite is receding.
	RangeRateKmS float64
}

// Look computes look angles to a satellite whose Earth-fixed state is sat.
// The observer is fixed in ECEF, so the range rate is the satellite velocity
// projected onto the line of sight.
func (o Observer) Look(sat StateVector) LookAngles {
	rng := r3.Sub(sat.Pos, o.ecef)
	s := r3.Dot(o.south, rng)
	e := r3.Dot(o.east, rng)
	z := r3.Dot(o.zenith, rng)

	dist := r3.Norm(rng)
	if dist == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	az := math.Atan2(e, -s)
	if az < 0 {
		az += 2 * math.Pi
	}
	azDeg := anglemath.Rad2Deg(az)
	if azDeg >= 360 {
		azDeg = 0
	}

	return LookAngles{
		AzimuthDeg:   azDeg,
		ElevationDeg: anglemath.Rad2Deg(math.Asin(z / dist)),
		RangeKm:      dist,
		RangeRateKmS: r3.Dot(sat.Vel, rng) / dist,
	}
}

// DopplerShiftHz returns the received-minus-transmitted frequency offset for
// a carrier at freqHz given a range rate in km/s. Approaching satellites
// (negative range rate) shift upward.
func DopplerShiftHz(freqHz, rangeRateKmS float64) float64 {
	return -freqHz * rangeRateKmS / SpeedOfLightKmS
}
