package propagation

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ccdanpian/sat-yuntai/internal/sample"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, explicit TEME output. Propagate() only accepts whole seconds, so
// At() propagates to the floor second and advances the position linearly by
// the sub-second remainder.
//
// Propagate() takes Satellite by value so SGP4 error codes are not visible to
// the caller. Failures are detected by checking the output for NaN/Inf and
// implausible radii.

// SGP4 wraps the go-satellite model for a single satellite.
type SGP4 struct {
	sat     satellite.Satellite
	element tle.Element
}

// NewSGP4 initializes the model for e.
//
// Lines are pre-validated because go-satellite calls log.Fatal on malformed
// input, which would kill the process.
func NewSGP4(e tle.Element) (*SGP4, error) {
	if err := validateTLELines(e.Line1, e.Line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", e.NORADID, err)
	}

	sat := satellite.TLEToSat(strings.TrimSpace(e.Line1), strings.TrimSpace(e.Line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", e.NORADID, sat.Error, sat.ErrorStr)
	}
	return &SGP4{sat: sat, element: e}, nil
}

// validateTLELines rejects lines go-satellite cannot parse safely.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Element returns the element set the model was built from.
func (p *SGP4) Element() tle.Element { return p.element }

// At returns the TEME state (km, km/s) at t.
func (p *SGP4) At(t time.Time) (transform.StateVector, error) {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	pos, vel := satellite.Propagate(p.sat,
		whole.Year(), int(whole.Month()), whole.Day(),
		whole.Hour(), whole.Minute(), whole.Second())

	s := transform.StateVector{
		Pos: r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		Vel: r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
	}
	if frac := t.Sub(whole).Seconds(); frac > 0 {
		s.Pos = r3.Add(s.Pos, r3.Scale(frac, s.Vel))
	}
	if !transform.Plausible(s.Pos) {
		return transform.StateVector{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: implausible position %.1f km",
			p.element.NORADID, r3.Norm(s.Pos))
	}
	return s, nil
}

// ECEF returns the Earth-fixed state at t.
func (p *SGP4) ECEF(t time.Time) (transform.StateVector, error) {
	teme, err := p.At(t)
	if err != nil {
		return transform.StateVector{}, err
	}
	return transform.TEMEToECEF(teme, t), nil
}

// Point returns the satellite as seen from obs at t, with range and range
// rate filled in.
func (p *SGP4) Point(obs transform.Observer, t time.Time) (sample.TrajectoryPoint, error) {
	ecef, err := p.ECEF(t)
	if err != nil {
		return sample.TrajectoryPoint{}, err
	}
	la := obs.Look(ecef)
	return sample.NewPoint(t, la.AzimuthDeg, la.ElevationDeg).WithRange(la.RangeKm, la.RangeRateKmS), nil
}

// Geo returns the geodetic sub-point and altitude at t.
func (p *SGP4) Geo(t time.Time) (sample.GeoSample, error) {
	ecef, err := p.ECEF(t)
	if err != nil {
		return sample.GeoSample{}, err
	}
	g := transform.ECEFToGeodetic(ecef.Pos)
	return sample.GeoSample{
		LatDeg:        g.LatDeg,
		LonDeg:        g.LonDeg,
		AltKm:         g.AltKm,
		Time:          t.UTC(),
		SatelliteName: p.element.Name,
	}, nil
}
