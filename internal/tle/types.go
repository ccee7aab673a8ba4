// Package tle parses, fetches and indexes two-line element sets.
package tle

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrChecksum is returned for a TLE line whose modulo-10 checksum fails.
	ErrChecksum = errors.New("tle checksum mismatch")
	// ErrNotFound is returned when a catalog lookup has no match.
	ErrNotFound = errors.New("satellite not in catalog")
)

// Element is one satellite's two-line element set.
type Element struct {
	NORADID int       `json:"noradId"`
	Name    string    `json:"name"`
	Epoch   time.Time `json:"epoch"`
	Line1   string    `json:"line1"`
	Line2   string    `json:"line2"`
}

// Age returns how old the element set is at t.
func (e Element) Age(t time.Time) time.Duration {
	return t.Sub(e.Epoch)
}

// Catalog is an immutable, indexed set of elements from one source.
type Catalog struct {
	Source    string
	FetchedAt time.Time
	Elements  []Element

	byID   map[int]int
	byName map[string]int
}

// NewCatalog indexes elements by NORAD ID and by case-folded name. On
// duplicates the newest epoch wins.
func NewCatalog(source string, fetchedAt time.Time, elements []Element) *Catalog {
	c := &Catalog{
		Source:    source,
		FetchedAt: fetchedAt,
		byID:      make(map[int]int, len(elements)),
		byName:    make(map[string]int, len(elements)),
	}
	for _, e := range elements {
		if i, ok := c.byID[e.NORADID]; ok {
			if e.Epoch.After(c.Elements[i].Epoch) {
				c.Elements[i] = e
				c.byName[nameKey(e.Name)] = i
			}
			continue
		}
		c.byID[e.NORADID] = len(c.Elements)
		if e.Name != "" {
			c.byName[nameKey(e.Name)] = len(c.Elements)
		}
		c.Elements = append(c.Elements, e)
	}
	return c
}

// Len returns the number of distinct satellites.
func (c *Catalog) Len() int { return len(c.Elements) }

// ByID returns the element set for a NORAD catalog number.
func (c *Catalog) ByID(id int) (Element, error) {
	if i, ok := c.byID[id]; ok {
		return c.Elements[i], nil
	}
	return Element{}, ErrNotFound
}

// ByName returns the element set whose name matches, ignoring case and
// surrounding whitespace.
func (c *Catalog) ByName(name string) (Element, error) {
	if i, ok := c.byName[nameKey(name)]; ok {
		return c.Elements[i], nil
	}
	return Element{}, ErrNotFound
}

// EpochRange returns the oldest and newest epochs in the catalog.
func (c *Catalog) EpochRange() (oldest, newest time.Time) {
	for i, e := range c.Elements {
		if i == 0 || e.Epoch.Before(oldest) {
			oldest = e.Epoch
		}
		if i == 0 || e.Epoch.After(newest) {
			newest = e.Epoch
		}
	}
	return oldest, newest
}

func nameKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
