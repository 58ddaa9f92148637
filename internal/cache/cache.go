// Package cache provides the in-process TTL cache used for aggregate prompt queries.
package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultTTL is used when New is given a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Well-known keys for the aggregate queries served from the cache.
const (
	KeyAllPrompts = "prompts:all"
	KeyByCategory = "prompts:by_category"
	KeyCategories = "prompts:categories"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Entries       int    `json:"entries"`
	Invalidations uint64 `json:"invalidations"`
}

// Cache is a key-value store whose entries expire after a fixed TTL.
// Invalidate flushes every entry; callers invalidate after a store mutation
// has completed, never before.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu            sync.RWMutex
	entries       map[string]*entry
	hits          uint64
	misses        uint64
	invalidations uint64
	// generation advances on every Invalidate.
	generation uint64

	lookups metric.Int64Counter
	flushes metric.Int64Counter
}

// New creates a cache with the given TTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	meter := otel.Meter("github.com/thebtf/promptvault/internal/cache")
	lookups, _ := meter.Int64Counter("promptvault.cache.lookups",
		metric.WithDescription("Cache lookups by result"))
	flushes, _ := meter.Int64Counter("promptvault.cache.invalidations",
		metric.WithDescription("Full cache flushes"))

	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
		lookups: lookups,
		flushes: flushes,
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the value for key if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		c.record(true)
		return e.value, true
	}

	c.record(false)
	if ok {
		// Expired: drop it unless someone refreshed it in between
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	return nil, false
}

// Set stores value under key. The last writer wins.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	c.entries[key] = &entry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes one key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Invalidate flushes every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.invalidations++
	c.generation++
	c.mu.Unlock()

	if c.flushes != nil {
		c.flushes.Add(context.Background(), 1)
	}
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// setIfGeneration stores value only if no Invalidate happened since gen was read.
func (c *Cache) setIfGeneration(key string, value any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.entries[key] = &entry{value: value, expiresAt: c.now().Add(c.ttl)}
	return true
}

// Stats returns hit/miss counters and the current entry count.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		Entries:       len(c.entries),
		Invalidations: c.invalidations,
	}
}

func (c *Cache) record(hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if c.lookups != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		c.lookups.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// Remember returns the cached value for key, or calls load and caches its
// result. Load errors are returned and nothing is cached. A cached value of
// the wrong type is treated as a miss. A result loaded across an Invalidate
// is returned to the caller but not cached.
func Remember[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	gen := c.currentGeneration()
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.setIfGeneration(key, v, gen)
	return v, nil
}
