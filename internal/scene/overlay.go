package scene

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ccdanpian/sat-yuntai/internal/sample"
)

// Overlay constants in scene units.
const (
	BorderRadius      = 1.001
	LabelLift         = 1.05
	maxDashSize       = 0.02
	maxGapSize        = 0.01
	dashSizeDivisor   = 100
	dashGapDivisor    = 200
	minimumProjection = 1e-9
)

// Polyline is an ordered list of scene points.
type Polyline []r3.Vec

// BorderPolyline lifts a lon/lat ring (GeoJSON order) onto the sphere just
// above the surface so it is not hidden by the globe mesh.
func BorderPolyline(ring [][2]float64) (Polyline, error) {
	line := make(Polyline, 0, len(ring))
	for i, c := range ring {
		lon, lat := c[0], c[1]
		g := GeoPoint{LatDeg: lat, LonDeg: lon}
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("border vertex %d: %w", i, err)
		}
		line = append(line, sphericalToScene(lat, lon, BorderRadius))
	}
	return line, nil
}

// ProjectionLine is a dashed line from a satellite point down to the surface.
type ProjectionLine struct {
	From     r3.Vec  `json:"from"`
	To       r3.Vec  `json:"to"`
	DashSize float64 `json:"dash_size"`
	GapSize  float64 `json:"gap_size"`
}

// ProjectionToSurface drops p radially onto the unit sphere. Dash and gap
// lengths scale with the line length and are capped.
func ProjectionToSurface(p r3.Vec) (ProjectionLine, error) {
	n := r3.Norm(p)
	if !finite(p) || n < minimumProjection {
		return ProjectionLine{}, fmt.Errorf("cannot project point %v to surface", p)
	}
	surface := r3.Scale(1/n, p)
	d := r3.Norm(r3.Sub(p, surface))
	return ProjectionLine{
		From:     p,
		To:       surface,
		DashSize: math.Min(maxDashSize, d/dashSizeDivisor),
		GapSize:  math.Min(maxGapSize, d/dashGapDivisor),
	}, nil
}

// SatelliteLabel anchors a satellite name above its first point.
type SatelliteLabel struct {
	Text string `json:"text"`
	At   r3.Vec `json:"at"`
}

// Segment joins two consecutive points of one satellite's track.
type Segment struct {
	From r3.Vec `json:"from"`
	To   r3.Vec `json:"to"`
}

// SatelliteOverlay is everything drawn for a batch of geocentric samples.
type SatelliteOverlay struct {
	Points      []r3.Vec         `json:"points"`
	Projections []ProjectionLine `json:"projections"`
	Labels      []SatelliteLabel `json:"labels"`
	Segments    []Segment        `json:"segments"`
}

// BuildSatelliteOverlay converts samples into scene primitives. The first
// sample of each satellite gets a label; consecutive samples of the same
// satellite are joined by segments.
func BuildSatelliteOverlay(samples []sample.GeoSample, earthRadiusKm float64) (SatelliteOverlay, error) {
	var out SatelliteOverlay
	last := make(map[string]r3.Vec)
	for i, s := range samples {
		p, err := ToScenePoint(GeoPoint{LatDeg: s.LatDeg, LonDeg: s.LonDeg, AltKm: s.AltKm}, earthRadiusKm)
		if err != nil {
			return SatelliteOverlay{}, fmt.Errorf("sample %d (%s): %w", i, s.SatelliteName, err)
		}
		out.Points = append(out.Points, p)

		proj, err := ProjectionToSurface(p)
		if err != nil {
			return SatelliteOverlay{}, fmt.Errorf("sample %d (%s): %w", i, s.SatelliteName, err)
		}
		out.Projections = append(out.Projections, proj)

		prev, seen := last[s.SatelliteName]
		if !seen {
			out.Labels = append(out.Labels, SatelliteLabel{Text: s.SatelliteName, At: r3.Scale(LabelLift, p)})
		} else {
			out.Segments = append(out.Segments, Segment{From: prev, To: p})
		}
		last[s.SatelliteName] = p
	}
	return out, nil
}

// Billboard returns the orientation of a camera-facing marker: it copies the
// camera rotation so the marker plane stays parallel to the image plane.
func Billboard(camera quat.Number) quat.Number {
	n := quat.Abs(camera)
	if n == 0 || math.IsNaN(n) {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, camera)
}
