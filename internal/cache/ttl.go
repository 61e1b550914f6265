// Package cache provides an in-memory key/value cache with per-entry expiry.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cryptoPositionWatch/internal/metrics"
)

// ErrInvalidTTL is returned by Set and GetOrLoad when ttl is not positive.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

// Stats is a snapshot of cache counters. Hits and Misses are monotonic.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	now  func() time.Time
	name string
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithName sets the "cache" label used for the Prometheus series.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// TTLCache is safe for concurrent use. Operations on different keys are
// independent; there is no multi-key atomicity.
type TTLCache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	hits    uint64
	misses  uint64

	now   func() time.Time
	name  string
	group singleflight.Group
}

// New creates an empty cache.
func New[V any](opts ...Option) *TTLCache[V] {
	o := options{now: time.Now, name: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[V]{
		entries: make(map[string]entry[V]),
		now:     o.now,
		name:    o.name,
	}
}

// Name returns the label the cache reports metrics under.
func (c *TTLCache[V]) Name() string { return c.name }

// Get returns the value for key if present and not expired.
// An expired entry is removed and counted as a miss.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && !c.now().After(e.expiresAt) {
		c.hits++
		metrics.CacheHits.WithLabelValues(c.name).Inc()
		return e.value, true
	}
	if ok {
		delete(c.entries, key)
		metrics.CacheEvictions.WithLabelValues(c.name).Inc()
		metrics.CacheSize.WithLabelValues(c.name).Set(float64(len(c.entries)))
	}
	c.misses++
	metrics.CacheMisses.WithLabelValues(c.name).Inc()
	var zero V
	return zero, false
}

// Set stores value under key for ttl, replacing any previous entry.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: got %s for key %q", ErrInvalidTTL, ttl, key)
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	size := len(c.entries)
	c.mu.Unlock()

	metrics.CacheSize.WithLabelValues(c.name).Set(float64(size))
	return nil
}

// Invalidate removes key. Absent keys are ignored.
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	size := len(c.entries)
	c.mu.Unlock()

	metrics.CacheSize.WithLabelValues(c.name).Set(float64(size))
}

// Sweep removes every expired entry and returns how many were removed.
func (c *TTLCache[V]) Sweep() int {
	c.mu.Lock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues(c.name).Add(float64(removed))
	}
	metrics.CacheSize.WithLabelValues(c.name).Set(float64(size))
	return removed
}

// Stats returns the current counters. Size may include expired entries not yet swept.
func (c *TTLCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}

// GetOrLoad returns the cached value for key or calls load and caches its
// result for ttl. Concurrent misses on the same key share a single load.
// Load errors are returned and not cached.
func (c *TTLCache[V]) GetOrLoad(key string, ttl time.Duration, load func() (V, error)) (V, error) {
	if ttl <= 0 {
		var zero V
		return zero, fmt.Errorf("%w: got %s for key %q", ErrInvalidTTL, ttl, key)
	}
	return c.GetOrLoadTTL(key, func() (V, time.Duration, error) {
		v, err := load()
		return v, ttl, err
	})
}

// GetOrLoadTTL is GetOrLoad where load also picks the ttl of the value it returns.
func (c *TTLCache[V]) GetOrLoadTTL(key string, load func() (V, time.Duration, error)) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, ttl, err := load()
		if err != nil {
			return nil, err
		}
		if err := c.Set(key, v, ttl); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}
