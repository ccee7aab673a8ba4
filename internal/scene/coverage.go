package scene

import (
	"fmt"
	"math"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
)

// Coverage footprint defaults.
const (
	DefaultCoverageRadiusKm = 2000.0
	DefaultCoveragePoints   = 100
)

// CoverageRing returns a closed lon/lat ring (GeoJSON order, first vertex
// repeated last) of n vertices at great-circle distance radiusKm around the
// sub-point center. The result feeds BorderPolyline directly.
func CoverageRing(center GeoPoint, radiusKm float64, n int) ([][2]float64, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if n < 4 {
		return nil, fmt.Errorf("coverage ring needs at least 4 vertices, got %d", n)
	}
	delta := radiusKm / EarthRadiusKm
	if !(delta > 0) || delta >= math.Pi {
		return nil, fmt.Errorf("coverage radius %.1f km out of range (0, %.0f)", radiusKm, math.Pi*EarthRadiusKm)
	}

	lat0 := anglemath.Deg2Rad(center.LatDeg)
	lon0 := anglemath.Deg2Rad(center.LonDeg)
	sinLat0, cosLat0 := math.Sincos(lat0)
	sinD, cosD := math.Sincos(delta)

	ring := make([][2]float64, n)
	for i := 0; i < n-1; i++ {
		bearing := 2 * math.Pi * float64(i) / float64(n-1)
		sinB, cosB := math.Sincos(bearing)
		sinLat := sinLat0*cosD + cosLat0*sinD*cosB
		lat := math.Asin(math.Max(-1, math.Min(1, sinLat)))
		lon := lon0 + math.Atan2(sinB*sinD*cosLat0, cosD-sinLat0*sinLat)
		ring[i] = [2]float64{wrapLon(anglemath.Rad2Deg(lon)), anglemath.Rad2Deg(lat)}
	}
	ring[n-1] = ring[0]
	return ring, nil
}

// wrapLon folds a longitude into [-180, 180].
func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
