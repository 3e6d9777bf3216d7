package cache

import (
	"sync"
)

// PrimitiveCache memoizes configured primitive instances. Construction of a
// primitive is a pure function of its configuration, so an instance built
// once can be shared by every caller asking for the same key.
type PrimitiveCache[K comparable, V any] interface {
	// Get retrieves a primitive from the cache.
	Get(key K) (V, bool)
	// GetOrCreate returns the cached primitive for key, building it with
	// create on the first request.
	GetOrCreate(key K, create func(K) V) V
	// Size returns the number of items in the cache.
	Size() int
}

// MapCache is a simple in-memory implementation of PrimitiveCache.
type MapCache[K comparable, V any] struct {
	data map[K]V
	mu   sync.RWMutex
}

func NewMapCache[K comparable, V any]() *MapCache[K, V] {
	return &MapCache[K, V]{
		data: make(map[K]V),
	}
}

func (c *MapCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.data[key]
	return v, ok
}

func (c *MapCache[K, V]) GetOrCreate(key K, create func(K) V) V {
	if v, ok := c.Get(key); ok {
		cacheHits.Inc()
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have built it while we waited for the write lock.
	if v, ok := c.data[key]; ok {
		cacheHits.Inc()
		return v
	}
	cacheMisses.Inc()
	v := create(key)
	c.data[key] = v
	return v
}

func (c *MapCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
