package tle

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySelection is returned when a selector keeps none of a catalog.
var ErrEmptySelection = errors.New("no satellites match the catalog selector")

// Selector narrows a catalog to part of a constellation. An element is kept
// when its name contains Tag or equals one of Names (case-insensitive). The
// zero Selector keeps everything.
type Selector struct {
	Tag   string   `json:"tag,omitempty"`
	Names []string `json:"names,omitempty"`
}

// Empty reports whether s keeps every element.
func (s Selector) Empty() bool {
	return strings.TrimSpace(s.Tag) == "" && len(s.Names) == 0
}

// Match reports whether an element named name is kept.
func (s Selector) Match(name string) bool {
	if s.Empty() {
		return true
	}
	key := nameKey(name)
	if tag := nameKey(s.Tag); tag != "" && strings.Contains(key, tag) {
		return true
	}
	for _, n := range s.Names {
		if nameKey(n) == key {
			return true
		}
	}
	return false
}

func (s Selector) String() string {
	switch {
	case s.Empty():
		return "all"
	case len(s.Names) == 0:
		return "tag " + s.Tag
	case s.Tag == "":
		return "names " + strings.Join(s.Names, ",")
	}
	return fmt.Sprintf("tag %s or names %s", s.Tag, strings.Join(s.Names, ","))
}

// Select returns a catalog holding only the elements s keeps. Source and
// fetch time carry over.
func (c *Catalog) Select(s Selector) (*Catalog, error) {
	if s.Empty() {
		return c, nil
	}
	kept := make([]Element, 0, len(c.Elements))
	for _, e := range c.Elements {
		if s.Match(e.Name) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w (%s)", ErrEmptySelection, s)
	}
	return NewCatalog(c.Source, c.FetchedAt, kept), nil
}

// Constellation is a named TLE source with the selector applied to it.
type Constellation struct {
	Name      string
	SourceURL string
	Selector  Selector
}

const celestrakGroup = "https://celestrak.org/NORAD/elements/gp.php?FORMAT=tle&GROUP="

// DefaultX2Names are the X2 satellites tracked when no list is configured.
var DefaultX2Names = []string{"x2-33686", "x2-33675", "x2-33655", "x2-33608"}

var constellations = map[string]Constellation{
	"active":       {Name: "active", SourceURL: celestrakGroup + "active"},
	"iridium":      {Name: "iridium", SourceURL: celestrakGroup + "iridium-NEXT"},
	"starlink":     {Name: "starlink", SourceURL: celestrakGroup + "starlink"},
	"starlink_dtc": {Name: "starlink_dtc", SourceURL: celestrakGroup + "starlink", Selector: Selector{Tag: "[DTC]"}},
	"x2":           {Name: "x2", SourceURL: celestrakGroup + "active", Selector: Selector{Names: DefaultX2Names}},
}

// LookupConstellation returns the preset for name (case-insensitive).
func LookupConstellation(name string) (Constellation, bool) {
	c, ok := constellations[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// ConstellationNames lists the known presets.
func ConstellationNames() []string {
	return []string{"active", "iridium", "starlink", "starlink_dtc", "x2"}
}
