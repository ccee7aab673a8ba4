package pass

import (
	"fmt"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
)

// Analyzer turns arcs into peak, description and mount suggestion.
type Analyzer struct {
	rules Rules
}

// NewAnalyzer returns an Analyzer using rules. Invalid rules are rejected.
func NewAnalyzer(rules Rules) (*Analyzer, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{rules: rules}, nil
}

// Rules returns the analyzer's band configuration.
func (a *Analyzer) Rules() Rules { return a.rules }

// Analyze reports the peak, a start-to-end description and the suggested
// mount sector for arc. An arc without visible points yields ErrEmptyPass.
func (a *Analyzer) Analyze(arc *Arc) (Analysis, error) {
	visible := arc.Visible()
	if len(visible) == 0 {
		return Analysis{}, ErrEmptyPass
	}

	peak := Peak(arc.Points)

	desc, err := Describe(visible[0].AzimuthDeg, visible[len(visible)-1].AzimuthDeg)
	if err != nil {
		return Analysis{}, err
	}

	in := Input{Azimuths: make([]float64, 0, len(arc.Points)), Peak: peak}
	for i, p := range arc.Points {
		az, err := anglemath.NormalizeDeg(p.AzimuthDeg)
		if err != nil {
			return Analysis{}, fmt.Errorf("point %d: %w", i, err)
		}
		in.Azimuths = append(in.Azimuths, az)
	}
	if in.PeakAz, err = anglemath.NormalizeDeg(peak.AzimuthDeg); err != nil {
		return Analysis{}, fmt.Errorf("peak: %w", err)
	}

	return Analysis{
		Peak:        peak,
		Description: desc,
		Suggestion:  a.rules.Suggest(in),
	}, nil
}

// Peak returns the highest point; ties go to the earliest. points must not
// be empty.
func Peak(points []sample.TrajectoryPoint) sample.TrajectoryPoint {
	best := points[0]
	for _, p := range points[1:] {
		if p.ElevationDeg > best.ElevationDeg {
			best = p
		}
	}
	return best
}

// Describe names a pass by the octants of its first and last visible points.
func Describe(startAz, endAz float64) (string, error) {
	from, err := anglemath.OctantOf(startAz)
	if err != nil {
		return "", fmt.Errorf("start azimuth: %w", err)
	}
	to, err := anglemath.OctantOf(endAz)
	if err != nil {
		return "", fmt.Errorf("end azimuth: %w", err)
	}
	if from == to {
		return fmt.Sprintf("%s pass", from), nil
	}
	return fmt.Sprintf("from %s to %s", from, to), nil
}
