package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
)

// WGS-84 ellipsoid.
const (
	wgs84AKm = 6378.137
	wgs84F   = 1.0 / 298.257223563
	wgs84E2  = wgs84F * (2 - wgs84F)
)

// Observer is a ground station with its Earth-fixed position and SEZ basis
// precomputed so it can be reused for many look-angle evaluations.
type Observer struct {
	LatDeg float64
	LonDeg float64
	AltKm  float64

	ecef r3.Vec
	// Rows of the ECEF → SEZ rotation.
	south, east, zenith r3.Vec
}

// NewObserver places an observer at geodetic latitude/longitude (degrees) and
// altitude above the ellipsoid (km).
func NewObserver(latDeg, lonDeg, altKm float64) (Observer, error) {
	for _, v := range []float64{latDeg, lonDeg, altKm} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Observer{}, fmt.Errorf("observer coordinate %v: %w", v, anglemath.ErrInvalidAngle)
		}
	}
	if latDeg < -90 || latDeg > 90 {
		return Observer{}, fmt.Errorf("observer latitude %v out of range [-90, 90]", latDeg)
	}
	if lonDeg < -180 || lonDeg > 180 {
		return Observer{}, fmt.Errorf("observer longitude %v out of range [-180, 180]", lonDeg)
	}

	lat, lon := anglemath.Deg2Rad(latDeg), anglemath.Deg2Rad(lonDeg)
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	n := wgs84AKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	return Observer{
		LatDeg: latDeg,
		LonDeg: lonDeg,
		AltKm:  altKm,
		ecef: r3.Vec{
			X: (n + altKm) * cosLat * cosLon,
			Y: (n + altKm) * cosLat * sinLon,
			Z: (n*(1-wgs84E2) + altKm) * sinLat,
		},
		south:  r3.Vec{X: sinLat * cosLon, Y: sinLat * sinLon, Z: -cosLat},
		east:   r3.Vec{X: -sinLon, Y: cosLon},
		zenith: r3.Vec{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat},
	}, nil
}

// ECEF returns the observer's Earth-fixed position in km.
func (o Observer) ECEF() r3.Vec { return o.ecef }

// Geodetic is a point in geodetic coordinates.
type Geodetic struct {
	LatDeg float64
	LonDeg float64
	AltKm  float64
}

// ECEFToGeodetic converts an Earth-fixed position (km) with Bowring's
// iteration. Five iterations converge for anything in Earth orbit.
func ECEFToGeodetic(p r3.Vec) Geodetic {
	lon := math.Atan2(p.Y, p.X)
	rho := math.Hypot(p.X, p.Y)
	lat := math.Atan2(p.Z, rho*(1-wgs84E2))

	var n float64
	for range 5 {
		sinLat := math.Sin(lat)
		n = wgs84AKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(p.Z+wgs84E2*n*sinLat, rho)
	}

	sinLat, cosLat := math.Sincos(lat)
	n = wgs84AKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = rho/cosLat - n
	} else {
		alt = math.Abs(p.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: anglemath.Rad2Deg(lat),
		LonDeg: anglemath.Rad2Deg(lon),
		AltKm:  alt,
	}
}
