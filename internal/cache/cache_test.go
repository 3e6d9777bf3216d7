package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapCache_GetOrCreate(t *testing.T) {
	c := NewMapCache[string, int]()

	_, ok := c.Get("a")
	assert.False(t, ok)

	calls := 0
	create := func(k string) int {
		calls++
		return len(k)
	}

	assert.Equal(t, 3, c.GetOrCreate("abc", create))
	assert.Equal(t, 3, c.GetOrCreate("abc", create))
	assert.Equal(t, 1, calls, "second lookup must hit the cache")

	v, ok := c.Get("abc")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, c.Size())
}

func TestMapCache_ConcurrentCreateOnce(t *testing.T) {
	type key struct{ a, b bool }
	c := NewMapCache[key, *int]()

	var built atomic.Int32
	var wg sync.WaitGroup
	results := make([]*int, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetOrCreate(key{true, false}, func(key) *int {
				built.Add(1)
				v := 42
				return &v
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}
