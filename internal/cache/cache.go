// Package cache provides the in-memory, TTL-bounded store used to memoize
// station summaries for the lifetime of the process.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long a summary stays fresh.
const DefaultTTL = 300 * time.Second

// Cache is a keyed store whose entries expire.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Invalidate(key string)
}

// TTLCache is a thread-safe cache whose entries expire a fixed duration after
// they were written. Expired entries are removed lazily when read; there is
// no background sweeper. When maxEntries is positive the least recently used
// entry is evicted once the bound is exceeded.
type TTLCache[V any] struct {
	ttl        time.Duration
	maxEntries int
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry[V]
	head    *entry[V] // most recently used
	tail    *entry[V] // least recently used
}

type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	prev      *entry[V]
	next      *entry[V]
}

// New creates a TTLCache. A nil clock uses the real clock; a non-positive
// ttl uses DefaultTTL; maxEntries <= 0 leaves the cache unbounded.
func New[V any](ttl time.Duration, maxEntries int, clock clockwork.Clock) *TTLCache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TTLCache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
		entries:    make(map[string]*entry[V]),
	}
}

// Get returns the value for key if present and not older than the TTL. An
// expired entry is deleted and reported absent.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.clock.Since(e.createdAt) > c.ttl {
		c.delete(e)
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

// Set stores value under key, replacing any existing entry and restarting
// its TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.createdAt = now
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value, createdAt: now}
	c.entries[key] = e
	c.addToFront(e)

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.delete(c.tail)
	}
}

// Invalidate removes key. Other keys are untouched.
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.delete(e)
	}
}

// Len reports the number of stored entries, expired or not.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTLCache[V]) delete(e *entry[V]) {
	if e == nil {
		return
	}
	delete(c.entries, e.key)
	c.unlink(e)
}

func (c *TTLCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *TTLCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *TTLCache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}
