package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"privalytics/domain/core"
	"privalytics/domain/research"
	"privalytics/ports"
)

type cacheEntry struct {
	key      core.Hash
	result   *research.QueryResult
	storedAt time.Time
}

// QueryCache is a bounded in-memory result cache with TTL expiry and
// oldest-inserted-first eviction. Insertion order, not recency of access,
// decides eviction: the cache is a latency optimization and simplicity wins
// over hit rate here.
type QueryCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[core.Hash]*list.Element
	order    *list.List // front = oldest inserted
	clock    core.Clock
}

// NewQueryCache creates a cache with the given capacity and TTL.
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[core.Hash]*list.Element),
		order:    list.New(),
		clock:    core.SystemClock,
	}
}

// WithClock overrides the cache clock; used by TTL tests.
func (c *QueryCache) WithClock(clock core.Clock) *QueryCache {
	c.clock = clock
	return c
}

// Get returns the cached result for a content hash if present and fresh.
func (c *QueryCache) Get(ctx context.Context, key core.Hash) (*research.QueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.clock().Sub(entry.storedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	copied := *entry.result
	return &copied, true
}

// Put stores a result under the content hash, evicting the oldest-inserted
// entry once capacity is exceeded. The write replaces any existing entry for
// the key atomically, so two identical queries racing resolve to one value.
func (c *QueryCache) Put(ctx context.Context, key core.Hash, result *research.QueryResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		copied := *result
		entry.result = &copied
		entry.storedAt = c.clock()
		return nil
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	copied := *result
	elem := c.order.PushBack(&cacheEntry{key: key, result: &copied, storedAt: c.clock()})
	c.entries[key] = elem
	return nil
}

// Delete removes one entry.
func (c *QueryCache) Delete(ctx context.Context, key core.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
	return nil
}

// Len returns the current number of live entries.
func (c *QueryCache) Len(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

var _ ports.QueryCache = (*QueryCache)(nil)
