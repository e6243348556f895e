// Package cache provides a concurrency-safe get-or-compute store for results
// of git invocations.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/thv-git-api/internal/telemetry"
)

// Options configures a Cache
type Options struct {
	// MaxEntries bounds the number of entries. Zero means unbounded.
	MaxEntries int
	// TTL is how long an entry stays valid. Zero means entries never expire.
	TTL time.Duration
	// Metrics records hits and misses. May be nil.
	Metrics *telemetry.CacheMetrics
}

// Cache stores computed values by key. Concurrent misses for the same key
// share a single computation, and failed computations are never stored.
type Cache[T any] struct {
	name    string
	entries *expirable.LRU[string, T]
	group   singleflight.Group
	metrics *telemetry.CacheMetrics

	// pending holds the computation in flight per key. Invalidating a key
	// marks its computation stale so the result is returned but not stored.
	mu      sync.Mutex
	pending map[string]*computation
}

type computation struct {
	stale bool
}

// New creates a named cache
func New[T any](name string, opts Options) *Cache[T] {
	return &Cache[T]{
		name:    name,
		entries: expirable.NewLRU[string, T](opts.MaxEntries, nil, opts.TTL),
		metrics: opts.Metrics,
		pending: make(map[string]*computation),
	}
}

// Name returns the cache name used in metrics and logs
func (c *Cache[T]) Name() string {
	return c.name
}

// GetOrCompute returns the value stored under key, computing and storing it
// on a miss. The computation runs detached from the caller's cancellation so
// that other callers waiting on the same key are not failed by it; a caller
// whose context ends stops waiting and gets the context error.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (T, error)) (T, error) {
	if v, ok := c.entries.Get(key); ok {
		c.metrics.RecordHit(ctx, c.name)
		return v, nil
	}
	c.metrics.RecordMiss(ctx, c.name)

	computeCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}
		comp := c.begin(key)
		v, err := compute(computeCtx)
		c.finish(key, comp, v, err == nil)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// Get returns the value stored under key
func (c *Cache[T]) Get(key string) (T, bool) {
	return c.entries.Get(key)
}

// Set stores value under key, replacing any previous value
func (c *Cache[T]) Set(key string, value T) {
	c.entries.Add(key, value)
}

// Invalidate removes key
func (c *Cache[T]) Invalidate(key string) {
	c.markStale(func(k string) bool { return k == key })
	c.group.Forget(key)
	c.entries.Remove(key)
}

// InvalidatePrefix removes every key starting with prefix and returns how many were removed
func (c *Cache[T]) InvalidatePrefix(prefix string) int {
	match := func(k string) bool { return strings.HasPrefix(k, prefix) }
	c.markStale(match)
	removed := 0
	for _, key := range c.entries.Keys() {
		if match(key) {
			c.group.Forget(key)
			if c.entries.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Purge removes every entry
func (c *Cache[T]) Purge() {
	c.markStale(func(string) bool { return true })
	for _, key := range c.entries.Keys() {
		c.group.Forget(key)
	}
	c.entries.Purge()
}

// Len returns the number of stored entries, including expired ones not yet evicted
func (c *Cache[T]) Len() int {
	return c.entries.Len()
}

func (c *Cache[T]) begin(key string) *computation {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp := &computation{}
	c.pending[key] = comp
	return comp
}

// finish stores value unless the key was invalidated while it was computed.
func (c *Cache[T]) finish(key string, comp *computation, value T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[key] == comp {
		delete(c.pending, key)
	}
	if ok && !comp.stale {
		c.entries.Add(key, value)
	}
}

func (c *Cache[T]) markStale(match func(string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, comp := range c.pending {
		if match(key) {
			comp.stale = true
			c.group.Forget(key)
			delete(c.pending, key)
		}
	}
}
