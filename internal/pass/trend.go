package pass

import (
	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
)

const (
	trendWindow     = 10
	trendMinSamples = 3
)

// Trend tracks recent azimuths and reports the quadrant the satellite is
// heading through. Not safe for concurrent use.
type Trend struct {
	history []float64
}

// Push records az and returns the current heading quadrant (NorthEast,
// SouthEast, SouthWest or NorthWest). ok is false until enough samples have
// been seen.
func (t *Trend) Push(az float64) (q anglemath.Octant, ok bool, err error) {
	az, err = anglemath.NormalizeDeg(az)
	if err != nil {
		return 0, false, err
	}
	t.history = append(t.history, az)
	if len(t.history) > trendWindow {
		t.history = t.history[len(t.history)-trendWindow:]
	}
	if len(t.history) < trendMinSamples {
		return 0, false, nil
	}

	recent := t.history[len(t.history)-trendMinSamples:]
	diff, err := anglemath.CircularDiffDeg(recent[2], recent[0])
	if err != nil {
		return 0, false, err
	}
	return quadrant(az, diff > 0), true, nil
}

// Len returns the number of samples retained.
func (t *Trend) Len() int { return len(t.history) }

// Reset clears the history.
func (t *Trend) Reset() { t.history = t.history[:0] }

func quadrant(az float64, increasing bool) anglemath.Octant {
	if az <= 180 {
		switch {
		case increasing && az > 90, !increasing && az >= 90:
			return anglemath.SouthEast
		default:
			return anglemath.NorthEast
		}
	}
	switch {
	case increasing && az > 270, !increasing && az >= 270:
		return anglemath.SouthWest
	default:
		return anglemath.NorthWest
	}
}
