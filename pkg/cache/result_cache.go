// Package cache provides result caching for ontology lookups.
//
// The ontology is loaded once at boot and never changes, so the outcome of a
// search or a SPARQL query depends only on its inputs. Caching those outcomes
// avoids re-running the same pattern joins for popular requests.
//
// Features:
//   - LRU eviction for bounded memory
//   - optional TTL expiration
//   - hit/miss statistics
//
// Usage:
//
//	c := cache.New(1000, 5*time.Minute)
//
//	key := cache.Key("buscar", q, class)
//	if hits, ok := c.Get(key); ok {
//		return hits.([]SearchHit), nil
//	}
//	hits := search(q, class)
//	c.Put(key, hits)
package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxSize is used when New gets a non-positive size.
const DefaultMaxSize = 1000

// ResultCache is a thread-safe LRU cache keyed by 64-bit hashes.
//
// Values are shared between callers and must be treated as read-only.
type ResultCache struct {
	mu sync.Mutex

	maxSize int
	ttl     time.Duration
	enabled bool

	list  *list.List
	items map[uint64]*list.Element

	hits   atomic.Uint64
	misses atomic.Uint64

	now func() time.Time
}

type entry struct {
	key       uint64
	value     any
	expiresAt time.Time
}

// New creates a cache holding at most maxSize entries. A zero ttl disables
// expiration.
func New(maxSize int, ttl time.Duration) *ResultCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &ResultCache{
		maxSize: maxSize,
		ttl:     ttl,
		enabled: true,
		list:    list.New(),
		items:   make(map[uint64]*list.Element, maxSize),
		now:     time.Now,
	}
}

// Key hashes parts into a cache key. Parts are separated so that
// ("ab", "c") and ("a", "bc") produce different keys.
func Key(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Get returns the value stored under key if present and not expired.
func (c *ResultCache) Get(key uint64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		c.misses.Add(1)
		return nil, false
	}

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	e := elem.Value.(*entry)
	if c.ttl > 0 && c.now().After(e.expiresAt) {
		c.removeElement(elem)
		c.misses.Add(1)
		return nil, false
	}

	c.list.MoveToFront(elem)
	c.hits.Add(1)
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *ResultCache) Put(key uint64, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.removeElement(c.list.Back())
	}

	c.items[key] = c.list.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
}

// GetOrCompute returns the cached value for key or stores the result of fn.
// Errors are returned and not cached. Concurrent misses on the same key may
// each call fn.
func (c *ResultCache) GetOrCompute(key uint64, fn func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	c.Put(key, v)
	return v, nil
}

// Remove deletes key from the cache.
func (c *ResultCache) Remove(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes all entries. Statistics are kept.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// SetEnabled turns the cache on or off. Disabling drops every entry and
// makes Get always miss.
func (c *ResultCache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.reset()
	}
}

// Stats holds cache performance statistics.
type Stats struct {
	Enabled bool    `json:"enabled"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"` // percentage, 0-100
}

// Stats returns a snapshot of the cache statistics.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	size := c.list.Len()
	enabled := c.enabled
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{
		Enabled: enabled,
		Size:    size,
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}

// caller holds mu
func (c *ResultCache) reset() {
	c.list.Init()
	c.items = make(map[uint64]*list.Element, c.maxSize)
}

// caller holds mu
func (c *ResultCache) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}
