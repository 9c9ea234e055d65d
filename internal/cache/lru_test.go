package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/quilt/internal/syntax"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)

	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	assert.Equal(t, []string{"c", "a"}, c.Keys())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestLRUSetExistingPromotes(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	c.Set("c", 3)

	v, ok := c.Peek("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Peek("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRUCapacityDefaults(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New[int, int](0).Capacity())
	assert.Equal(t, DefaultCapacity, New[int, int](-3).Capacity())
}

func TestLRURemoveAndClear(t *testing.T) {
	c := New[string, int](4)
	c.Set("/r/a/x.html", 1)
	c.Set("/r/a/y.html", 2)
	c.Set("/r/b/z.html", 3)

	assert.True(t, c.Remove("/r/b/z.html"))
	assert.False(t, c.Remove("/r/b/z.html"))

	n := c.RemoveFunc(func(k string) bool { return k == "/r/a/x.html" })
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"/r/a/y.html"}, c.Keys())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Stats{Capacity: 4}, c.Stats())
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := New[int, int](8)
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(i%20, g)
				c.Get((i + g) % 20)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 8)
	assert.Len(t, c.Keys(), c.Len())
}

func TestStoreInvalidatePrefix(t *testing.T) {
	s := NewStore(8)
	s.Templates.Set("/r/p/index.html", "x")
	s.Templates.Set("/r/q/index.html", "y")
	s.Data.Set("/r/p/data/site.yml", map[string]any{})
	s.Trees.Set("x", &syntax.Tree{Source: "x"})

	assert.Equal(t, 2, s.InvalidatePrefix("/r/p/"))
	assert.Equal(t, 1, s.Templates.Len())
	assert.Equal(t, 1, s.Trees.Len(), "trees are keyed by content")

	s.Invalidate("/r/q/index.html")
	assert.Equal(t, 0, s.Templates.Len())

	s.Clear()
	assert.Equal(t, 0, s.Trees.Len())
}

func BenchmarkLRUGetSet(b *testing.B) {
	c := New[string, int](64)
	keys := make([]string, 128)
	for i := range keys {
		keys[i] = fmt.Sprintf("/r/p/%d.html", i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := keys[i%len(keys)]
		if _, ok := c.Get(k); !ok {
			c.Set(k, i)
		}
	}
}
