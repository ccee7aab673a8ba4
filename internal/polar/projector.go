// Package polar maps azimuth/elevation samples onto a circular "radar" display.
//
// Zenith is the viewport centre and the horizon is the rim. Azimuth 0 (north)
// points to the top of the display, azimuth 90 (east) to the right, matching
// screen coordinates where y grows downward.
package polar

import (
	"fmt"
	"math"
	"strings"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
)

// MaxElevationDeg is the elevation mapped to the viewport centre.
const MaxElevationDeg = 90.0

// Viewport describes the drawable circle. It is derived from the container
// size on every draw and never cached.
type Viewport struct {
	CenterX  float64 `json:"center_x"`
	CenterY  float64 `json:"center_y"`
	RadiusPx float64 `json:"radius_px"`
}

// ViewportFor fits a viewport into a width×height container leaving margin
// pixels on every side for labels.
func ViewportFor(width, height, margin float64) Viewport {
	r := math.Min(width, height)/2 - margin
	if r < 0 {
		r = 0
	}
	return Viewport{CenterX: width / 2, CenterY: height / 2, RadiusPx: r}
}

// Point is a display coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Project maps a true-azimuth sample into the viewport. Elevation below the
// horizon is clamped to the rim.
func Project(s sample.AngularSample, vp Viewport) (Point, error) {
	return projectAzEl(s.AzimuthDeg, s.ElevationDeg, vp)
}

func projectAzEl(az, el float64, vp Viewport) (Point, error) {
	az, err := anglemath.NormalizeDeg(az)
	if err != nil {
		return Point{}, fmt.Errorf("projecting azimuth: %w", err)
	}
	el, err = anglemath.ClampElevation(el)
	if err != nil {
		return Point{}, fmt.Errorf("projecting elevation: %w", err)
	}
	if el < 0 {
		el = 0
	}
	r := vp.RadiusPx * (1 - el/MaxElevationDeg)
	theta := anglemath.Deg2Rad(az - 90)
	return Point{
		X: vp.CenterX + r*math.Cos(theta),
		Y: vp.CenterY + r*math.Sin(theta),
	}, nil
}

// Convention describes how a fixed-mount device's reported azimuth relates
// to true azimuth.
type Convention string

const (
	ConventionNorth Convention = "north"
	ConventionSouth Convention = "south"
	ConventionAuto  Convention = "auto"
)

// ParseConvention accepts north, south or auto (case-insensitive). An empty
// string selects auto.
func ParseConvention(s string) (Convention, error) {
	switch c := Convention(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ConventionAuto, nil
	case ConventionNorth, ConventionSouth, ConventionAuto:
		return c, nil
	default:
		return "", fmt.Errorf("unknown pointing convention %q", s)
	}
}

// ToReported converts a true azimuth into the value a mount using convention
// c expects. North and auto send (-180, 180]; south subtracts 180.
func ToReported(trueAz float64, c Convention) (float64, error) {
	az, err := anglemath.NormalizeDeg(trueAz)
	if err != nil {
		return 0, err
	}
	switch c {
	case ConventionSouth:
		r := az - 180
		if r < -180 {
			r += 360
		}
		return r, nil
	case ConventionNorth, ConventionAuto, "":
		if az > 180 {
			return az - 360, nil
		}
		return az, nil
	default:
		return 0, fmt.Errorf("unknown pointing convention %q", c)
	}
}

// Unproject recovers the true azimuth from a reported one.
// South adds 180 mod 360; north and auto add 360 to negative values.
func Unproject(reportedAz float64, c Convention) (float64, error) {
	if math.IsNaN(reportedAz) || math.IsInf(reportedAz, 0) {
		return 0, fmt.Errorf("%w: %v", anglemath.ErrInvalidAngle, reportedAz)
	}
	switch c {
	case ConventionSouth:
		return anglemath.NormalizeDeg(reportedAz + 180)
	case ConventionNorth, ConventionAuto, "":
		if reportedAz < 0 {
			reportedAz += 360
		}
		return anglemath.NormalizeDeg(reportedAz)
	default:
		return 0, fmt.Errorf("unknown pointing convention %q", c)
	}
}

// ProjectReported converts a reported sample back to true azimuth and
// projects it.
func ProjectReported(s sample.AngularSample, vp Viewport, c Convention) (Point, error) {
	az, err := Unproject(s.AzimuthDeg, c)
	if err != nil {
		return Point{}, err
	}
	return projectAzEl(az, s.ElevationDeg, vp)
}
