// Package cache implements the TTL+LRU read-through cache described in
// spec.md §4.5, adapted from the teacher's cache.LRU/cache.Stats
// (github.com/hashicorp/golang-lru wrapper plus an atomic hit/miss
// counter) generalized with expiry and a read-through backend.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type entry struct {
	value      []byte
	insertedAt time.Time
	expiresAt  time.Time
}

// Stats tracks {hits, misses, writes} and derives a hit rate, mirroring the
// teacher's cache.Stats shape.
type Stats struct {
	mu             sync.Mutex
	hits, misses, writes int64
}

func (s *Stats) recordHit()   { s.mu.Lock(); s.hits++; s.mu.Unlock() }
func (s *Stats) recordMiss()  { s.mu.Lock(); s.misses++; s.mu.Unlock() }
func (s *Stats) recordWrite() { s.mu.Lock(); s.writes++; s.mu.Unlock() }

// Snapshot returns the current counters and the derived hit rate.
func (s *Stats) Snapshot() (hits, misses, writes int64, hitRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits, misses, writes = s.hits, s.misses, s.writes
	lookups := hits + misses
	if lookups > 0 {
		hitRate = float64(hits) / float64(lookups)
	}
	return
}

// Cache is an LRU with capacity and TTL. On Get, expired entries are
// treated as absent without removal; Cleanup removes all expired entries
// in one pass. On Insert at capacity, the oldest-by-insertion-time entry
// is evicted: Get reads with Peek, so only Add moves an entry to the
// front of golang-lru's list.
type Cache struct {
	inner *lru.Cache
	ttl   time.Duration
	stats Stats

	mu   sync.Mutex
	keys map[string]struct{}
}

// New builds a Cache with the given capacity and TTL.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	inner, _ := lru.New(capacity)
	return &Cache{inner: inner, ttl: ttl, keys: map[string]struct{}{}}
}

// Get returns the value for key if present and not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	v, ok := c.inner.Peek(key)
	if !ok {
		c.stats.recordMiss()
		return nil, false
	}
	e := v.(entry)
	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.stats.recordMiss()
		return nil, false
	}
	c.stats.recordHit()
	return e.value, true
}

// Insert stores value under key with the cache's configured TTL.
func (c *Cache) Insert(key string, value []byte) {
	now := time.Now()
	e := entry{value: value, insertedAt: now}
	if c.ttl > 0 {
		e.expiresAt = now.Add(c.ttl)
	}
	c.inner.Add(key, e)
	c.stats.recordWrite()

	c.mu.Lock()
	c.keys[key] = struct{}{}
	c.mu.Unlock()
}

// Remove invalidates key.
func (c *Cache) Remove(key string) {
	c.inner.Remove(key)
	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
}

// Cleanup removes every expired entry in one pass and returns the count removed.
func (c *Cache) Cleanup() int {
	if c.ttl <= 0 {
		return 0
	}
	now := time.Now()
	removed := 0

	c.mu.Lock()
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for _, k := range keys {
		v, ok := c.inner.Peek(k)
		if !ok {
			c.mu.Lock()
			delete(c.keys, k)
			c.mu.Unlock()
			continue
		}
		e := v.(entry)
		if now.After(e.expiresAt) {
			c.inner.Remove(k)
			c.mu.Lock()
			delete(c.keys, k)
			c.mu.Unlock()
			removed++
		}
	}
	return removed
}

// Stats returns the cache's hit/miss/write counters.
func (c *Cache) Stats() *Stats { return &c.stats }
