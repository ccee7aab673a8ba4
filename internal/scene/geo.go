// Package scene builds the 3D geometry of the globe view: points on a
// unit-radius Earth, local horizon frames at an observer, pointing-beam cones
// and the overlay primitives drawn around them.
//
// All geometry shares one frame: +Y is the north polar axis, and longitude
// -180° lies on +X. One scene unit is one Earth radius.
package scene

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
)

// EarthRadiusKm is the mean Earth radius used to scale altitudes.
const EarthRadiusKm = 6371.0

// ErrDegenerateFrame is returned when no local horizon frame exists at a point.
var ErrDegenerateFrame = errors.New("degenerate local frame")

// GeoPoint is a geodetic position on or above the sphere.
type GeoPoint struct {
	LatDeg float64 `json:"latitude"`
	LonDeg float64 `json:"longitude"`
	AltKm  float64 `json:"altitude"`
}

// Validate checks ranges and rejects non-finite values.
func (g GeoPoint) Validate() error {
	for _, v := range []float64{g.LatDeg, g.LonDeg, g.AltKm} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", anglemath.ErrInvalidAngle, v)
		}
	}
	if g.LatDeg < -90 || g.LatDeg > 90 {
		return fmt.Errorf("latitude %.4f out of range [-90, 90]", g.LatDeg)
	}
	if g.LonDeg < -180 || g.LonDeg > 180 {
		return fmt.Errorf("longitude %.4f out of range [-180, 180]", g.LonDeg)
	}
	if g.AltKm < 0 {
		return fmt.Errorf("altitude %.3f km must not be negative", g.AltKm)
	}
	return nil
}

// ToScenePoint maps g onto the scene sphere at radius 1 + alt/earthRadiusKm.
func ToScenePoint(g GeoPoint, earthRadiusKm float64) (r3.Vec, error) {
	if err := g.Validate(); err != nil {
		return r3.Vec{}, err
	}
	if earthRadiusKm <= 0 {
		return r3.Vec{}, fmt.Errorf("earth radius must be positive, got %v", earthRadiusKm)
	}
	return sphericalToScene(g.LatDeg, g.LonDeg, 1+g.AltKm/earthRadiusKm), nil
}

func sphericalToScene(latDeg, lonDeg, radius float64) r3.Vec {
	phi := anglemath.Deg2Rad(90 - latDeg)
	theta := anglemath.Deg2Rad(lonDeg + 180)
	sinPhi, cosPhi := math.Sincos(phi)
	sinTheta, cosTheta := math.Sincos(theta)
	return r3.Vec{
		X: -radius * sinPhi * cosTheta,
		Y: radius * cosPhi,
		Z: radius * sinPhi * sinTheta,
	}
}

// Frame is an orthonormal East-Up-North basis at a scene point.
type Frame struct {
	East  r3.Vec `json:"east"`
	Up    r3.Vec `json:"up"`
	North r3.Vec `json:"north"`
}

var (
	polarAxis    = r3.Vec{Y: 1}
	fallbackAxis = r3.Vec{Z: 1}
)

// collinearEps bounds |polarAxis × up| below which east is undefined.
const collinearEps = 1e-12

// LocalFrame returns the East-Up-North frame at observer.
//
// At the poles east is undefined. The frame then uses (0,0,1) in place of the
// polar axis, which yields the limit of the frame when approaching the pole
// along the 90°E meridian. The zero vector still fails with
// ErrDegenerateFrame.
func LocalFrame(observer r3.Vec) (Frame, error) {
	f, err := LocalFrameStrict(observer)
	if err == nil || !finite(observer) || r3.Norm(observer) == 0 {
		return f, err
	}
	up := r3.Unit(observer)
	east := r3.Unit(r3.Cross(fallbackAxis, up))
	north := r3.Unit(r3.Cross(up, east))
	return Frame{East: east, Up: up, North: north}, nil
}

// LocalFrameStrict is LocalFrame without the pole fallback: an observer on
// the polar axis fails with ErrDegenerateFrame.
func LocalFrameStrict(observer r3.Vec) (Frame, error) {
	if !finite(observer) || r3.Norm(observer) == 0 {
		return Frame{}, fmt.Errorf("%w: observer %v", ErrDegenerateFrame, observer)
	}
	up := r3.Unit(observer)
	c := r3.Cross(polarAxis, up)
	if r3.Norm(c) < collinearEps {
		return Frame{}, fmt.Errorf("%w: observer on polar axis", ErrDegenerateFrame)
	}
	east := r3.Unit(c)
	north := r3.Unit(r3.Cross(up, east))
	return Frame{East: east, Up: up, North: north}, nil
}

// ToScene maps local (east, up, north) components into scene coordinates.
func (f Frame) ToScene(local r3.Vec) r3.Vec {
	return r3.Add(r3.Add(r3.Scale(local.X, f.East), r3.Scale(local.Y, f.Up)), r3.Scale(local.Z, f.North))
}

func finite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
