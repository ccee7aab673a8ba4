package anglemath

import "math"

// Octant is one of the eight compass sectors, each 45° wide and centred on
// its bearing, so North covers [337.5, 22.5).
type Octant int

const (
	North Octant = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var octantNames = [...]string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

var octantAbbrev = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func (o Octant) String() string {
	if o < North || o > NorthWest {
		return "unknown"
	}
	return octantNames[o]
}

// Abbrev returns the short compass form, e.g. "NE".
func (o Octant) Abbrev() string {
	if o < North || o > NorthWest {
		return "?"
	}
	return octantAbbrev[o]
}

// OctantOf buckets an azimuth into its compass octant.
func OctantOf(az float64) (Octant, error) {
	if err := check(az); err != nil {
		return 0, err
	}
	idx := int(math.Floor(normalize(az+22.5)/45)) % 8
	return Octant(idx), nil
}
