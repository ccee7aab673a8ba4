package pass

import (
	"fmt"
	"math"
	"strings"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
)

// Oblique fallback modes for peaks outside both near-pole bands.
const (
	ObliqueNorth      = "north"
	ObliqueHemisphere = "hemisphere"
)

// Band is a closed azimuth band walked clockwise from Lo to Hi. It may wrap
// through north.
type Band struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Contains reports whether az lies in the band.
func (b Band) Contains(az float64) bool {
	return anglemath.InBand(az, b.Lo, b.Hi)
}

func (b Band) String() string {
	return fmt.Sprintf("[%g°, %g°]", b.Lo, b.Hi)
}

// Rules holds the azimuth bands behind the mount suggestion. The values
// describe one particular mount and are kept adjustable.
type Rules struct {
	CrossNorth      Band   `json:"cross_north"`
	CrossSouth      Band   `json:"cross_south"`
	NearNorth       Band   `json:"near_north"`
	NearSouth       Band   `json:"near_south"`
	ObliqueFallback string `json:"oblique_fallback"`
}

// DefaultRules returns the stock band layout.
func DefaultRules() Rules {
	return Rules{
		CrossNorth:      Band{Lo: 330, Hi: 30},
		CrossSouth:      Band{Lo: 150, Hi: 210},
		NearNorth:       Band{Lo: 315, Hi: 45},
		NearSouth:       Band{Lo: 135, Hi: 225},
		ObliqueFallback: ObliqueNorth,
	}
}

// Validate checks that every band edge is finite and the fallback is known.
func (r Rules) Validate() error {
	bands := []struct {
		name string
		band Band
	}{
		{"cross_north", r.CrossNorth},
		{"cross_south", r.CrossSouth},
		{"near_north", r.NearNorth},
		{"near_south", r.NearSouth},
	}
	for _, nb := range bands {
		for _, v := range []float64{nb.band.Lo, nb.band.Hi} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("rules: %s edge %v: %w", nb.name, v, anglemath.ErrInvalidAngle)
			}
		}
	}
	switch strings.ToLower(r.ObliqueFallback) {
	case ObliqueNorth, ObliqueHemisphere:
		return nil
	default:
		return fmt.Errorf("rules: unknown oblique fallback %q", r.ObliqueFallback)
	}
}

// Input is what a rule sees: all arc azimuths (normalized) and the peak.
type Input struct {
	Azimuths []float64
	Peak     sample.TrajectoryPoint
	PeakAz   float64
}

// Rule is one entry in the suggestion precedence list.
type Rule struct {
	Name  string
	Match func(in Input) (Sector, string, bool)
}

// Ordered returns the rules evaluated top to bottom by Suggest. The first
// match wins; the last rule always matches.
func (r Rules) Ordered() []Rule {
	return []Rule{
		{Name: "crosses-north", Match: func(in Input) (Sector, string, bool) {
			for _, az := range in.Azimuths {
				if r.CrossNorth.Contains(az) {
					return North, fmt.Sprintf("track passes azimuth %.1f° inside north band %s", az, r.CrossNorth), true
				}
			}
			return 0, "", false
		}},
		{Name: "crosses-south", Match: func(in Input) (Sector, string, bool) {
			for _, az := range in.Azimuths {
				if r.CrossSouth.Contains(az) {
					return South, fmt.Sprintf("track passes azimuth %.1f° inside south band %s", az, r.CrossSouth), true
				}
			}
			return 0, "", false
		}},
		{Name: "near-north-peak", Match: func(in Input) (Sector, string, bool) {
			if r.NearNorth.Contains(in.PeakAz) {
				return North, fmt.Sprintf("peak azimuth %.1f° is near north %s", in.PeakAz, r.NearNorth), true
			}
			return 0, "", false
		}},
		{Name: "near-south-peak", Match: func(in Input) (Sector, string, bool) {
			if r.NearSouth.Contains(in.PeakAz) {
				return South, fmt.Sprintf("peak azimuth %.1f° is near south %s", in.PeakAz, r.NearSouth), true
			}
			return 0, "", false
		}},
		{Name: "oblique-peak", Match: func(in Input) (Sector, string, bool) {
			if strings.EqualFold(r.ObliqueFallback, ObliqueHemisphere) {
				return 0, "", false
			}
			return North, fmt.Sprintf("peak azimuth %.1f° is oblique, defaulting to north", in.PeakAz), true
		}},
		{Name: "hemisphere", Match: func(in Input) (Sector, string, bool) {
			if in.PeakAz < 180 {
				return East, fmt.Sprintf("peak azimuth %.1f° is in the east half", in.PeakAz), true
			}
			return West, fmt.Sprintf("peak azimuth %.1f° is in the west half", in.PeakAz), true
		}},
	}
}

// Suggest evaluates the ordered rules against in.
func (r Rules) Suggest(in Input) Suggestion {
	for _, rule := range r.Ordered() {
		if sec, why, ok := rule.Match(in); ok {
			return Suggestion{Sector: sec, Rule: rule.Name, Rationale: why}
		}
	}
	// Unreachable: the hemisphere rule always matches.
	return Suggestion{Sector: North, Rule: "none"}
}
