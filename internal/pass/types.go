// Package pass extracts visibility arcs from trajectory streams and turns
// them into pointing advice for a fixed-mount antenna.
package pass

import (
	"errors"
	"fmt"

	"github.com/ccdanpian/sat-yuntai/internal/sample"
)

// ErrEmptyPass is returned by Analyze for an arc with no visible point.
// It marks a valid "nothing above the horizon" outcome, not a failure.
var ErrEmptyPass = errors.New("no visible pass")

// Arc is the first rise-to-set sub-sequence of a trajectory. The first point
// is the rise; the last is the set point when the stream reached one.
type Arc struct {
	Points []sample.TrajectoryPoint `json:"points"`
	// Closed is true when the arc ended on a sample at or below the horizon.
	Closed bool `json:"closed"`
}

// Empty reports whether the stream never rose above the horizon.
func (a *Arc) Empty() bool {
	return a == nil || len(a.Points) == 0
}

// Len returns the number of points in the arc.
func (a *Arc) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Points)
}

// Visible returns the points strictly above the horizon, in order.
func (a *Arc) Visible() []sample.TrajectoryPoint {
	if a == nil {
		return nil
	}
	out := make([]sample.TrajectoryPoint, 0, len(a.Points))
	for _, p := range a.Points {
		if p.Visible() {
			out = append(out, p)
		}
	}
	return out
}

// Sector is one of the four directions a fixed mount can face.
type Sector int

const (
	North Sector = iota
	East
	South
	West
)

var sectorNames = [...]string{"north", "east", "south", "west"}

func (s Sector) String() string {
	if s < North || s > West {
		return "unknown"
	}
	return sectorNames[s]
}

// MarshalText encodes the sector by name.
func (s Sector) MarshalText() ([]byte, error) {
	if s < North || s > West {
		return nil, fmt.Errorf("invalid sector %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a sector name.
func (s *Sector) UnmarshalText(b []byte) error {
	for i, n := range sectorNames {
		if n == string(b) {
			*s = Sector(i)
			return nil
		}
	}
	return fmt.Errorf("unknown sector %q", b)
}

// Suggestion is the mount direction recommended for a pass.
type Suggestion struct {
	Sector    Sector `json:"sector"`
	Rule      string `json:"rule"`
	Rationale string `json:"rationale"`
}

// Analysis is the result of analysing one arc.
type Analysis struct {
	Peak        sample.TrajectoryPoint `json:"peak"`
	Description string                 `json:"description"`
	Suggestion  Suggestion             `json:"suggestion"`
}
