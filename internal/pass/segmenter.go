package pass

import "github.com/ccdanpian/sat-yuntai/internal/sample"

type segState int

const (
	beforeRise segState = iota
	inPass
	done
)

// Segmenter incrementally cuts the first visibility arc out of an ordered
// point stream. The zero value is ready to use.
type Segmenter struct {
	state  segState
	points []sample.TrajectoryPoint
}

// Feed consumes one point and reports whether the arc is complete. Points
// fed after completion are ignored.
func (s *Segmenter) Feed(p sample.TrajectoryPoint) bool {
	switch s.state {
	case beforeRise:
		if p.ElevationDeg > 0 {
			s.points = append(s.points, p)
			s.state = inPass
		}
	case inPass:
		s.points = append(s.points, p)
		if p.ElevationDeg <= 0 {
			s.state = done
		}
	}
	return s.state == done
}

// Done reports whether a set point has been seen.
func (s *Segmenter) Done() bool { return s.state == done }

// Arc returns the arc collected so far. An arc still in progress is returned
// unclosed.
func (s *Segmenter) Arc() *Arc {
	pts := make([]sample.TrajectoryPoint, len(s.points))
	copy(pts, s.points)
	return &Arc{Points: pts, Closed: s.state == done}
}

// Reset discards the collected arc.
func (s *Segmenter) Reset() {
	s.state = beforeRise
	s.points = nil
}

// FirstPass returns the first rise-to-set arc in points. The rise point and
// the first following point at or below the horizon are both included; later
// passes are ignored. A stream that never rises yields an empty arc.
func FirstPass(points []sample.TrajectoryPoint) *Arc {
	var s Segmenter
	for _, p := range points {
		if s.Feed(p) {
			break
		}
	}
	return s.Arc()
}
