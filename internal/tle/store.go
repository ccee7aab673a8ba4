package tle

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the current catalog. Reads are lock-free; refreshes are
// serialized with Lock/Unlock.
type Store struct {
	catalog atomic.Pointer[Catalog]
	mu      sync.Mutex
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current catalog, or nil if none is loaded.
func (s *Store) Get() *Catalog {
	return s.catalog.Load()
}

// Set replaces the catalog wholesale.
func (s *Store) Set(c *Catalog) {
	s.catalog.Store(c)
}

// Lookup finds a satellite by NORAD ID, falling back to name when id is 0.
func (s *Store) Lookup(id int, name string) (Element, error) {
	c := s.catalog.Load()
	if c == nil {
		return Element{}, ErrNotFound
	}
	if id != 0 {
		return c.ByID(id)
	}
	return c.ByName(name)
}

// AgeSeconds returns the catalog age, or -1 when nothing is loaded.
func (s *Store) AgeSeconds() float64 {
	c := s.catalog.Load()
	if c == nil {
		return -1
	}
	return time.Since(c.FetchedAt).Seconds()
}

// Lock serializes refreshes.
func (s *Store) Lock() { s.mu.Lock() }

// Unlock releases the refresh lock.
func (s *Store) Unlock() { s.mu.Unlock() }
