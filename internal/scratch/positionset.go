// Package scratch holds the reusable per-query working state: an exact
// position set sized once for the corpus, a bloom filter, and a result
// buffer, bundled and recycled through a Pool.
package scratch

import "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"

// PositionSet is an exact set of positions pre-sized at construction. Clear
// keeps the allocated table, so refilling it up to the original capacity
// does not grow the map. Not safe for concurrent use.
type PositionSet struct {
	m   map[document.Position]struct{}
	cap int
}

// WithCapacity returns an empty set sized for n positions.
func WithCapacity(n int) *PositionSet {
	n = max(n, 0)
	return &PositionSet{
		m:   make(map[document.Position]struct{}, n),
		cap: n,
	}
}

// Clear removes every position.
func (s *PositionSet) Clear() {
	if len(s.m) == 0 {
		return
	}
	clear(s.m)
}

// Add inserts pos and reports whether it was newly added.
func (s *PositionSet) Add(pos document.Position) bool {
	if _, ok := s.m[pos]; ok {
		return false
	}
	s.m[pos] = struct{}{}
	return true
}

// Remove deletes pos and reports whether it was present.
func (s *PositionSet) Remove(pos document.Position) bool {
	if _, ok := s.m[pos]; !ok {
		return false
	}
	delete(s.m, pos)
	return true
}

func (s *PositionSet) Contains(pos document.Position) bool {
	_, ok := s.m[pos]
	return ok
}

func (s *PositionSet) Len() int {
	return len(s.m)
}

// Capacity returns the size hint the set was created with.
func (s *PositionSet) Capacity() int {
	return s.cap
}
