//go:build property
// +build property

package cache

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLRUProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("length never exceeds capacity", prop.ForAll(
		func(capacity int, keys []int) bool {
			c := New[int, int](capacity)
			for _, k := range keys {
				c.Set(k, k)
				if c.Len() > capacity {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
		gen.SliceOf(gen.IntRange(0, 64)),
	))

	properties.Property("most recent set is always retrievable", prop.ForAll(
		func(capacity int, keys []int) bool {
			c := New[int, int](capacity)
			for _, k := range keys {
				c.Set(k, k*2)
				v, ok := c.Get(k)
				if !ok || v != k*2 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
		gen.SliceOf(gen.IntRange(0, 64)),
	))

	properties.Property("the last capacity distinct keys survive", prop.ForAll(
		func(capacity int, keys []int) bool {
			c := New[int, int](capacity)
			for _, k := range keys {
				c.Set(k, k)
			}
			seen := map[int]bool{}
			for i := len(keys) - 1; i >= 0 && len(seen) < capacity; i-- {
				seen[keys[i]] = true
			}
			for k := range seen {
				if _, ok := c.Peek(k); !ok {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.SliceOf(gen.IntRange(0, 32)),
	))

	properties.TestingRun(t)
}
