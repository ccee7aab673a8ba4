package scene

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
)

// ErrObserverNotSet is returned when a beam is requested before an observer
// point has been placed.
var ErrObserverNotSet = errors.New("observer not set")

// Fixed proportions of the beam volume.
const (
	InnerHalfAngleDeg  = 1.8
	innerHeightFactor  = 0.98
	innerApexOffset    = 0.001
	markerRadiusFactor = 0.2
)

// Cone is one solid of the beam volume, apex at the volume apex and axis along
// the volume orientation.
type Cone struct {
	HalfAngleDeg float64 `json:"half_angle_deg"`
	Height       float64 `json:"height"`
	BaseRadius   float64 `json:"base_radius"`
	BaseCenter   r3.Vec  `json:"base_center"`
}

// BeamVolume is an antenna pattern drawn as two nested cones sharing one apex
// and axis: the full beamwidth and a narrow high-gain lobe. Lengths are in
// scene units.
type BeamVolume struct {
	Apex        r3.Vec      `json:"apex"`
	Axis        r3.Vec      `json:"axis"`
	Orientation quat.Number `json:"orientation"`
	HeightKm    float64     `json:"height_km"`
	Outer       Cone        `json:"outer"`
	Inner       Cone        `json:"inner"`
	// MarkerRadius is the radius of the ground disc drawn at the apex.
	MarkerRadius float64 `json:"marker_radius"`
}

// OuterHalfAngleDeg returns the beamwidth half-angle.
func (b BeamVolume) OuterHalfAngleDeg() float64 { return b.Outer.HalfAngleDeg }

// InnerHalfAngleDeg returns the high-gain lobe half-angle.
func (b BeamVolume) InnerHalfAngleDeg() float64 { return b.Inner.HalfAngleDeg }

// LocalDirection returns the unit pointing vector for azimuth/elevation in
// (east, up, north) components.
func LocalDirection(azRad, elRad float64) r3.Vec {
	sinAz, cosAz := math.Sincos(azRad)
	sinEl, cosEl := math.Sincos(elRad)
	return r3.Vec{X: sinAz * cosEl, Y: sinEl, Z: cosAz * cosEl}
}

// BuildBeam constructs a beam volume at apex pointing along azimuth/elevation
// in the apex's local frame.
func BuildBeam(apex r3.Vec, azRad, elRad, heightKm, halfAngleRad, earthRadiusKm float64) (BeamVolume, error) {
	for _, v := range []float64{azRad, elRad, heightKm, halfAngleRad} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BeamVolume{}, fmt.Errorf("%w: %v", anglemath.ErrInvalidAngle, v)
		}
	}
	if heightKm <= 0 {
		return BeamVolume{}, fmt.Errorf("beam height must be positive, got %v km", heightKm)
	}
	if halfAngleRad <= 0 || halfAngleRad >= math.Pi/2 {
		return BeamVolume{}, fmt.Errorf("beam half-angle %v rad out of range (0, π/2)", halfAngleRad)
	}
	if earthRadiusKm <= 0 {
		return BeamVolume{}, fmt.Errorf("earth radius must be positive, got %v", earthRadiusKm)
	}

	frame, err := LocalFrame(apex)
	if err != nil {
		return BeamVolume{}, fmt.Errorf("building beam: %w", err)
	}
	axis := r3.Unit(frame.ToScene(LocalDirection(azRad, elRad)))
	scale := heightKm / earthRadiusKm

	innerHalf := anglemath.Deg2Rad(InnerHalfAngleDeg)
	outerRadius := scale * math.Tan(halfAngleRad)
	innerHeight := scale * innerHeightFactor
	innerApex := r3.Add(apex, r3.Scale(innerApexOffset, axis))

	return BeamVolume{
		Apex:        apex,
		Axis:        axis,
		Orientation: rotationFromY(axis),
		HeightKm:    heightKm,
		Outer: Cone{
			HalfAngleDeg: anglemath.Rad2Deg(halfAngleRad),
			Height:       scale,
			BaseRadius:   outerRadius,
			BaseCenter:   r3.Add(apex, r3.Scale(scale, axis)),
		},
		Inner: Cone{
			HalfAngleDeg: InnerHalfAngleDeg,
			Height:       innerHeight,
			BaseRadius:   scale * math.Tan(innerHalf),
			BaseCenter:   r3.Add(innerApex, r3.Scale(innerHeight, axis)),
		},
		MarkerRadius: outerRadius * markerRadiusFactor,
	}, nil
}

// rotationFromY returns the unit quaternion rotating +Y onto unit vector d.
func rotationFromY(d r3.Vec) quat.Number {
	c := r3.Dot(polarAxis, d)
	switch {
	case c > 1-1e-12:
		return quat.Number{Real: 1}
	case c < -1+1e-12:
		// Half turn about X.
		return quat.Number{Imag: 1}
	}
	axis := r3.Cross(polarAxis, d)
	angle := math.Acos(math.Max(-1, math.Min(1, c)))
	return quat.Number(r3.NewRotation(angle, axis))
}

// Rotate applies the unit quaternion q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(v)
}

// BeamRegistry owns the single live beam volume of a scene. Rebuilding
// disposes the previous volume before the new one is registered.
type BeamRegistry struct {
	mu          sync.Mutex
	earthRadius float64
	observer    *r3.Vec
	current     *BeamVolume
	onDispose   func(BeamVolume)
	disposed    int
}

// NewBeamRegistry creates an empty registry. onDispose, if non-nil, is called
// with each volume as it is removed.
func NewBeamRegistry(earthRadiusKm float64, onDispose func(BeamVolume)) *BeamRegistry {
	return &BeamRegistry{earthRadius: earthRadiusKm, onDispose: onDispose}
}

// SetObserver places the observer used as beam apex.
func (r *BeamRegistry) SetObserver(g GeoPoint) error {
	p, err := ToScenePoint(g, r.earthRadius)
	if err != nil {
		return fmt.Errorf("placing observer: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = &p
	return nil
}

// Observer returns the observer scene point, if placed.
func (r *BeamRegistry) Observer() (r3.Vec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.observer == nil {
		return r3.Vec{}, false
	}
	return *r.observer, true
}

// Rebuild replaces the live beam. The new volume is built before the old
// one is disposed, so a build error leaves the previous volume live and at
// most one volume is ever live. It fails with ErrObserverNotSet, leaving the
// registry untouched, when no observer has been placed.
func (r *BeamRegistry) Rebuild(azRad, elRad, heightKm, halfAngleRad float64) (BeamVolume, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.observer == nil {
		return BeamVolume{}, ErrObserverNotSet
	}
	vol, err := BuildBeam(*r.observer, azRad, elRad, heightKm, halfAngleRad, r.earthRadius)
	if err != nil {
		return BeamVolume{}, err
	}
	r.disposeLocked()
	r.current = &vol
	return vol, nil
}

// Current returns the live volume, if any.
func (r *BeamRegistry) Current() (BeamVolume, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return BeamVolume{}, false
	}
	return *r.current, true
}

// Clear disposes the live volume and forgets the observer.
func (r *BeamRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposeLocked()
	r.observer = nil
}

// Live returns the number of registered volumes (0 or 1).
func (r *BeamRegistry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0
	}
	return 1
}

// Disposed returns how many volumes have been disposed so far.
func (r *BeamRegistry) Disposed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

func (r *BeamRegistry) disposeLocked() {
	if r.current == nil {
		return
	}
	old := *r.current
	r.current = nil
	r.disposed++
	if r.onDispose != nil {
		r.onDispose(old)
	}
}
