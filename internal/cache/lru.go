// Package cache provides the bounded LRU caches shared by every render.
package cache

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 64

// LRU is a fixed-capacity least-recently-used cache. All operations are
// O(1) and safe for concurrent use.
type LRU[K comparable, V any] struct {
	entries  map[K]*entry[K, V]
	mutex    sync.Mutex
	capacity int
	// LRU doubly-linked list with sentinel head and tail
	head *entry[K, V]
	tail *entry[K, V]
	// Statistics tracking (atomic for thread safety)
	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	prev  *entry[K, V]
	next  *entry[K, V]
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Len       int
	Capacity  int
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// New creates an LRU holding at most capacity entries.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &LRU[K, V]{
		entries:  make(map[K]*entry[K, V], capacity),
		capacity: capacity,
		head:     &entry[K, V]{},
		tail:     &entry[K, V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		var zero V
		return zero, false
	}

	c.moveToFront(e)
	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// Peek returns the value for key without touching recency or statistics.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Set inserts or replaces key, evicting the least recently used entry when
// the cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	atomic.AddInt64(&c.sets, 1)

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	if len(c.entries) >= c.capacity {
		lru := c.tail.prev
		c.removeFromList(lru)
		delete(c.entries, lru.key)
		atomic.AddInt64(&c.evictions, 1)
	}

	e := &entry[K, V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)
}

// Remove deletes key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeFromList(e)
	delete(c.entries, key)
	return true
}

// RemoveFunc deletes every entry whose key satisfies match and returns how
// many were removed.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !match(key) {
			continue
		}
		c.removeFromList(e)
		delete(c.entries, key)
		removed++
	}
	return removed
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Capacity returns the fixed capacity.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Keys returns the keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	keys := make([]K, 0, len(c.entries))
	for e := c.head.next; e != c.tail; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Clear drops every entry and resets statistics.
func (c *LRU[K, V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[K]*entry[K, V], c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.sets, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

// Stats returns a snapshot of the cache counters.
func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Sets:      atomic.LoadInt64(&c.sets),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

func (c *LRU[K, V]) addToFront(e *entry[K, V]) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRU[K, V]) removeFromList(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *LRU[K, V]) moveToFront(e *entry[K, V]) {
	c.removeFromList(e)
	c.addToFront(e)
}
