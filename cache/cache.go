package cache

import (
	"sync"
	"time"
)

// node is a cache entry threaded through the recency list.
// The head of the list is the most-recently-used entry, the tail the least.
type node[K comparable, V any] struct {
	key         K
	value       V
	createdAt   time.Time
	ttl         time.Duration
	accessCount uint64
	prev        *node[K, V]
	next        *node[K, V]
}

// expired reports whether the entry's TTL has elapsed at the given time.
// A zero TTL means the entry never expires.
func (n *node[K, V]) expired(now time.Time) bool {
	return n.ttl > 0 && now.Sub(n.createdAt) > n.ttl
}

// Cache is a fixed-capacity LRU cache with per-entry TTL.
// It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*node[K, V]
	head    *node[K, V]
	tail    *node[K, V]

	maxSize    int
	defaultTTL time.Duration

	// Stats (only updated when statsEnabled)
	statsEnabled bool
	requests     uint64
	hits         uint64
	misses       uint64
	evictions    uint64
	expirations  uint64

	// Sweep lifecycle
	sweepInterval time.Duration
	done          chan struct{}
	disposed      bool
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	maxSize       int
	defaultTTL    time.Duration
	sweepInterval time.Duration
	stats         bool
}

// WithMaxSize sets the maximum number of entries (default 100).
func WithMaxSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithDefaultTTL sets the TTL applied by Set (default 0, no expiry).
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl >= 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithSweepInterval sets how often the background sweep removes expired
// entries (default 60s). A zero interval disables the sweep; expired entries
// are then only removed lazily on access.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) {
		c.sweepInterval = d
	}
}

// WithStats enables hit/miss statistics collection.
func WithStats() Option {
	return func(c *config) {
		c.stats = true
	}
}

// New creates a cache with the given options.
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	cfg := config{
		maxSize:       100,
		sweepInterval: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Cache[K, V]{
		entries:       make(map[K]*node[K, V]),
		maxSize:       cfg.maxSize,
		defaultTTL:    cfg.defaultTTL,
		sweepInterval: cfg.sweepInterval,
		statsEnabled:  cfg.stats,
		done:          make(chan struct{}),
	}

	if c.sweepInterval > 0 {
		go c.sweepLoop()
	}

	return c
}

// Set stores a value under key with the cache's default TTL.
// An existing entry is updated in place and promoted to most-recently-used.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with an explicit TTL (0 = never expires).
// Inserting beyond capacity evicts the least-recently-used entry.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}

	if n, ok := c.entries[key]; ok {
		n.value = value
		n.createdAt = time.Now()
		n.ttl = ttl
		c.moveToFront(n)
		return
	}

	n := &node[K, V]{
		key:       key,
		value:     value,
		createdAt: time.Now(),
		ttl:       ttl,
	}
	c.entries[key] = n
	c.pushFront(n)

	if len(c.entries) > c.maxSize {
		c.evictTail()
	}
}

// Get returns the value for key. An expired entry is removed and reported as
// a miss. A hit promotes the entry to most-recently-used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	if c.statsEnabled {
		c.requests++
	}

	n, ok := c.entries[key]
	if !ok {
		if c.statsEnabled {
			c.misses++
		}
		return zero, false
	}

	if n.expired(time.Now()) {
		c.removeNode(n)
		if c.statsEnabled {
			c.misses++
			c.expirations++
		}
		return zero, false
	}

	n.accessCount++
	c.moveToFront(n)
	if c.statsEnabled {
		c.hits++
	}
	return n.value, true
}

// Has reports whether key is present and unexpired.
// Unlike Get it does not promote the entry or count toward statistics.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		return false
	}
	if n.expired(time.Now()) {
		c.removeNode(n)
		return false
	}
	return true
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeNode(n)
	return true
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*node[K, V])
	c.head = nil
	c.tail = nil
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns all keys in recency order, most-recently-used first.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.entries))
	for n := c.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Stats returns cache statistics. Counters are zero unless the cache was
// created with WithStats.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if c.requests > 0 {
		hitRate = float64(c.hits) / float64(c.requests)
	}

	return Stats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Requests:    c.requests,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		HitRate:     hitRate,
	}
}

// Dispose stops the background sweep and clears all entries.
// The cache must not be used afterward.
func (c *Cache[K, V]) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.disposed = true
	close(c.done)

	c.entries = make(map[K]*node[K, V])
	c.head = nil
	c.tail = nil
}

// sweepLoop periodically removes expired entries so that keys which are never
// re-read do not linger until eviction.
func (c *Cache[K, V]) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes every expired entry.
func (c *Cache[K, V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for n := c.head; n != nil; {
		next := n.next
		if n.expired(now) {
			c.removeNode(n)
			if c.statsEnabled {
				c.expirations++
			}
		}
		n = next
	}
}

// List manipulation. All callers hold c.mu.

func (c *Cache[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (c *Cache[K, V]) moveToFront(n *node[K, V]) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *Cache[K, V]) removeNode(n *node[K, V]) {
	c.unlink(n)
	delete(c.entries, n.key)
}

func (c *Cache[K, V]) evictTail() {
	if c.tail == nil {
		return
	}
	c.removeNode(c.tail)
	if c.statsEnabled {
		c.evictions++
	}
}

// Stats holds cache statistics.
type Stats struct {
	Size        int     // Current number of entries
	MaxSize     int     // Maximum entries allowed
	Requests    uint64  // Total Get calls
	Hits        uint64  // Gets that found an unexpired entry
	Misses      uint64  // Gets that found nothing or an expired entry
	Evictions   uint64  // Entries evicted at capacity
	Expirations uint64  // Entries removed because their TTL elapsed
	HitRate     float64 // Hits / Requests (0.0 - 1.0)
}
