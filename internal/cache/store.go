package cache

import (
	"strings"

	"github.com/conneroisu/quilt/internal/syntax"
)

// Store groups the three process-wide caches.
//
// Templates maps an address to raw template text. Trees maps template
// source text to its parsed tree, so identical content under different
// addresses parses once. Data maps an address to a decoded data file or a
// loaded project config.
type Store struct {
	Templates *LRU[string, string]
	Trees     *LRU[string, *syntax.Tree]
	Data      *LRU[string, any]
}

// NewStore creates a Store whose caches each hold capacity entries.
func NewStore(capacity int) *Store {
	return &Store{
		Templates: New[string, string](capacity),
		Trees:     New[string, *syntax.Tree](capacity),
		Data:      New[string, any](capacity),
	}
}

// Invalidate drops address from the template and data caches. Parsed trees
// are keyed by content and stay valid.
func (s *Store) Invalidate(address string) {
	s.Templates.Remove(address)
	s.Data.Remove(address)
}

// InvalidatePrefix drops every template and data entry under prefix and
// returns how many entries were removed.
func (s *Store) InvalidatePrefix(prefix string) int {
	match := func(key string) bool { return strings.HasPrefix(key, prefix) }
	return s.Templates.RemoveFunc(match) + s.Data.RemoveFunc(match)
}

// Clear empties all three caches.
func (s *Store) Clear() {
	s.Templates.Clear()
	s.Trees.Clear()
	s.Data.Clear()
}
