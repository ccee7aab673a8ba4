package polar

import (
	"fmt"
	"math"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
)

// Arrow head geometry for the direction-of-travel marker.
const (
	ArrowHeadLength = 12.0
	ArrowHeadSpread = math.Pi / 6
)

// Arrow is a direction marker: a tip and the two barb ends.
type Arrow struct {
	Tip   Point `json:"tip"`
	Left  Point `json:"left"`
	Right Point `json:"right"`
}

// Path is a projected arc ready for the rendering layer.
type Path struct {
	Points []Point `json:"points"`
	Start  *Point  `json:"start,omitempty"`
	End    *Point  `json:"end,omitempty"`
	Arrow  *Arrow  `json:"arrow,omitempty"`
}

// ProjectPath projects the visible points of a trajectory. Points at or below
// the horizon are skipped. Start and end markers and a mid-path arrow are
// filled in when at least two points remain.
func ProjectPath(points []sample.TrajectoryPoint, vp Viewport) (Path, error) {
	var path Path
	for i, p := range points {
		if !p.Visible() {
			continue
		}
		pt, err := Project(p.AngularSample, vp)
		if err != nil {
			return Path{}, fmt.Errorf("point %d: %w", i, err)
		}
		path.Points = append(path.Points, pt)
	}

	n := len(path.Points)
	if n == 0 {
		return path, nil
	}
	start, end := path.Points[0], path.Points[n-1]
	path.Start, path.End = &start, &end

	if n >= 2 {
		mid := n / 2
		if a, ok := arrowAt(path.Points[mid-1], path.Points[mid]); ok {
			path.Arrow = &a
		}
	}
	return path, nil
}

// arrowAt places an arrow head at "to" pointing away from "from". Returns
// false when the points coincide and no heading exists.
func arrowAt(from, to Point) (Arrow, bool) {
	dx, dy := to.X-from.X, to.Y-from.Y
	if dx == 0 && dy == 0 {
		return Arrow{}, false
	}
	heading := math.Atan2(dy, dx)
	barb := func(offset float64) Point {
		a := heading + math.Pi + offset
		return Point{X: to.X + ArrowHeadLength*math.Cos(a), Y: to.Y + ArrowHeadLength*math.Sin(a)}
	}
	return Arrow{Tip: to, Left: barb(-ArrowHeadSpread), Right: barb(ArrowHeadSpread)}, true
}

// Ring is an elevation circle on the background grid.
type Ring struct {
	ElevationDeg float64 `json:"elevation_deg"`
	RadiusPx     float64 `json:"radius_px"`
}

// Spoke is an azimuth line from the centre to the rim.
type Spoke struct {
	AzimuthDeg float64 `json:"azimuth_deg"`
	From       Point   `json:"from"`
	To         Point   `json:"to"`
}

// Label is a compass label anchored outside the rim.
type Label struct {
	Text string `json:"text"`
	At   Point  `json:"at"`
}

// Background is the static grid drawn under every path.
type Background struct {
	Rings  []Ring  `json:"rings"`
	Spokes []Spoke `json:"spokes"`
	Labels []Label `json:"labels"`
}

// Grid spacing of the background.
const (
	RingStepDeg   = 30.0
	SpokeStepDeg  = 30.0
	LabelOffsetPx = 20.0
)

// BackgroundFor builds the elevation rings at 0/30/60/90, spokes every 30°
// and the eight compass labels.
func BackgroundFor(vp Viewport) Background {
	var bg Background
	for el := 0.0; el <= MaxElevationDeg; el += RingStepDeg {
		bg.Rings = append(bg.Rings, Ring{ElevationDeg: el, RadiusPx: vp.RadiusPx * (1 - el/MaxElevationDeg)})
	}

	center := Point{X: vp.CenterX, Y: vp.CenterY}
	for az := 0.0; az < 360; az += SpokeStepDeg {
		rim, _ := projectAzEl(az, 0, vp)
		bg.Spokes = append(bg.Spokes, Spoke{AzimuthDeg: az, From: center, To: rim})
	}

	outer := vp
	outer.RadiusPx += LabelOffsetPx
	for o := anglemath.North; o <= anglemath.NorthWest; o++ {
		at, _ := projectAzEl(float64(o)*45, 0, outer)
		bg.Labels = append(bg.Labels, Label{Text: o.Abbrev(), At: at})
	}
	return bg
}
