// Package cache implements a generic TTL cache used to avoid
// re-querying expensive system state within a short window.
//
// Keys are strings with a category prefix ("connections:active",
// "sessions:details:3") so statistics can be broken down per category.
// The TTL is supplied per call: fast-changing connection lists get a
// few seconds, slower session metadata can live longer.
package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"sever/util"
)

type entry[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is a TTL cache generic over its value type.
//
// Concurrency model: a singleflight group guarantees at most one
// factory invocation in flight per key, and a weighted semaphore caps
// how many factories may run concurrently across all keys.  Every read
// checks expiry, so the background sweeper is cleanup only.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]

	flight  singleflight.Group
	permits *semaphore.Weighted

	hits   atomic.Int64
	misses atomic.Int64

	logger *util.Logger
	done   chan struct{}
	once   sync.Once
}

// New creates a cache whose factories are bounded to maxConcurrentFills
// concurrent invocations, and starts a background sweeper that removes
// expired entries every sweepInterval.  Close must be called to stop
// the sweeper.
func New[V any](maxConcurrentFills int64, sweepInterval time.Duration, logger *util.Logger) *Cache[V] {
	if maxConcurrentFills < 1 {
		maxConcurrentFills = 1
	}
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	c := &Cache[V]{
		entries: make(map[string]entry[V]),
		permits: semaphore.NewWeighted(maxConcurrentFills),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

// GetOrSet returns the cached value for key if present and unexpired,
// otherwise computes it via factory, stores it with the given TTL, and
// returns it.  Concurrent callers racing the same expired key trigger
// exactly one factory invocation.
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	res, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// Double-check under the flight: a racing caller may have
		// filled the key while we waited our turn.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		if err := c.permits.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.permits.Release(1)

		v, err := factory(ctx)
		if err != nil {
			var zero V
			return zero, err
		}

		now := time.Now()
		c.mu.Lock()
		c.entries[key] = entry[V]{value: v, createdAt: now, expiresAt: now.Add(ttl)}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Invalidate removes key immediately.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry and resets the hit/miss counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Len returns the number of entries currently stored, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background sweeper.  The cache remains usable.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}

// ── Statistics ───────────────────────────────────────────────────────

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits        int64          `json:"hits"`
	Misses      int64          `json:"misses"`
	HitRatio    float64        `json:"hit_ratio"`
	Size        int            `json:"size"`
	SizeByGroup map[string]int `json:"size_by_group,omitempty"`
}

// Stats returns current counters plus per-category sizes, where the
// category is the key segment before the first ':'.
func (c *Cache[V]) Stats() Stats {
	s := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	s.Size = len(c.entries)
	if len(c.entries) > 0 {
		s.SizeByGroup = make(map[string]int)
		for k := range c.entries {
			group := k
			if i := strings.IndexByte(k, ':'); i >= 0 {
				group = k[:i]
			}
			s.SizeByGroup[group]++
		}
	}
	return s
}

// ── internal ─────────────────────────────────────────────────────────

// lookup returns the value for key if present and unexpired.
func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if n := c.sweep(); n > 0 {
				c.logger.Debug("swept %d expired entries", n)
			}
		}
	}
}

func (c *Cache[V]) sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
