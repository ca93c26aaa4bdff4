// Package cache provides a bounded in-memory cache with TTL expiry and
// FIFO eviction.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// Cache evicts the oldest entry when full and drops expired entries
// lazily on lookup. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List
	items   map[string]*list.Element
}

// New creates a cache holding at most maxSize entries for at most ttl.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Get returns the cached value for key, or false if absent or expired.
// Expired entries are removed on access; insertion order is not
// refreshed by reads.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value, evicting the oldest entry if the cache is full.
// Overwriting an existing key refreshes its TTL but keeps its position
// in the eviction order.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = time.Now().Add(c.ttl)
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}

	elem := c.order.PushBack(&entry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.items[key] = elem
}

// Purge removes all entries and returns how many were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	c.order.Init()
	c.items = make(map[string]*list.Element)
	return n
}

// Len returns the number of entries, counting not-yet-collected
// expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
