// Package cache is a tagged read-through cache for expensive query results.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TagLatestMetrics groups the cached "latest metric per server" views.
const TagLatestMetrics = "metrics-latest"

type entry struct {
	value   any
	expires time.Time // zero means no expiry
}

// Cache is a thread-safe in-memory store of loaded values, grouped by tag.
// Evicting a tag drops every key under it.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[string]entry
	gens    map[string]uint64 // bumped on eviction so in-flight loads are not stored

	loads singleflight.Group
	ttl   time.Duration
	now   func() time.Time
}

// New returns an empty cache. A ttl of zero keeps entries until their tag
// is evicted.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]map[string]entry),
		gens:    make(map[string]uint64),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetOrLoad returns the cached value for tag/key, calling load on a miss.
// Concurrent misses for the same key share one load. Load errors are not
// cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, tag, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.get(tag, key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	gen := c.generation(tag)
	v, err, _ := c.loads.Do(tag+"\x00"+key, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.put(tag, key, gen, val)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("loading %s/%s: %w", tag, key, err)
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("loading %s/%s: cached value is %T", tag, key, v)
	}
	return typed, nil
}

// EvictByTag drops every entry stored under tag.
func (c *Cache) EvictByTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tag)
	c.gens[tag]++
}

// Len returns the number of cached entries across all tags.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, keys := range c.entries {
		n += len(keys)
	}
	return n
}

func (c *Cache) get(tag, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tag][key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) generation(tag string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[tag]
}

func (c *Cache) put(tag, key string, gen uint64, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[tag] != gen {
		return
	}
	keys, ok := c.entries[tag]
	if !ok {
		keys = make(map[string]entry)
		c.entries[tag] = keys
	}
	e := entry{value: v}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	keys[key] = e
}
