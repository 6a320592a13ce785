// Package pool provides a reusable-object allocator that reduces allocation
// churn on hot paths. The pool pre-allocates a configurable number of objects
// and grows its pre-allocation target adaptively when the miss ratio stays
// high under sustained load.
package pool

import (
	"sync"
	"time"
)

const (
	// adjustEvery is how many acquisitions pass between growth checks.
	adjustEvery = 1000

	// growMissRatio is the miss ratio above which the pool grows.
	growMissRatio = 0.2

	// growFactor is the multiplier applied to the pre-allocation target.
	growFactor = 1.5

	// adjustCooldown is the minimum time between growth adjustments.
	adjustCooldown = 5 * time.Second
)

// Pool is a fixed-capacity object pool.
// It is safe for concurrent use.
type Pool[T any] struct {
	mu      sync.Mutex
	free    []T
	factory func() T
	reset   func(T)

	maxSize     int
	preallocate int

	// Adaptive growth bookkeeping
	acquires   uint64
	misses     uint64
	releases   uint64
	discards   uint64
	lastAdjust time.Time
}

// Option configures a Pool.
type Option func(*config)

type config struct {
	maxSize     int
	preallocate int
}

// WithMaxSize sets the maximum number of pooled objects (default 64).
// Released objects beyond this limit are dropped for the GC to reclaim.
func WithMaxSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithPreallocate sets how many objects are created eagerly at construction.
func WithPreallocate(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.preallocate = n
		}
	}
}

// New creates a pool that allocates with factory and cleans returned objects
// with reset. reset may be nil when objects need no cleaning.
func New[T any](factory func() T, reset func(T), opts ...Option) *Pool[T] {
	cfg := config{maxSize: 64}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.preallocate > cfg.maxSize {
		cfg.preallocate = cfg.maxSize
	}

	p := &Pool[T]{
		factory:     factory,
		reset:       reset,
		maxSize:     cfg.maxSize,
		preallocate: cfg.preallocate,
		lastAdjust:  time.Now(),
	}

	p.free = make([]T, 0, cfg.maxSize)
	for i := 0; i < cfg.preallocate; i++ {
		p.free = append(p.free, factory())
	}

	return p
}

// Acquire returns a pooled object, allocating a fresh one on a pool miss.
func (p *Pool[T]) Acquire() T {
	p.mu.Lock()

	p.acquires++
	if p.acquires%adjustEvery == 0 {
		p.maybeGrow()
	}

	if n := len(p.free); n > 0 {
		obj := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return obj
	}

	p.misses++
	p.mu.Unlock()
	return p.factory()
}

// Release resets an object and returns it to the pool.
// Objects released while the pool is at capacity are dropped.
func (p *Pool[T]) Release(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.releases++
	if len(p.free) >= p.maxSize {
		p.discards++
		return
	}
	p.free = append(p.free, obj)
}

// Clear drops all pooled objects.
func (p *Pool[T]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = p.free[:0]
}

// Len returns the number of objects currently available.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Stats returns pool statistics.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var missRate float64
	if p.acquires > 0 {
		missRate = float64(p.misses) / float64(p.acquires)
	}

	return Stats{
		Available:   len(p.free),
		MaxSize:     p.maxSize,
		Preallocate: p.preallocate,
		Acquires:    p.acquires,
		Misses:      p.misses,
		Releases:    p.releases,
		Discards:    p.discards,
		MissRate:    missRate,
	}
}

// maybeGrow raises the pre-allocation target when the observed miss ratio
// stays high. The pool never shrinks; a workload whose demand drops
// permanently will over-retain memory.
// Caller holds p.mu.
func (p *Pool[T]) maybeGrow() {
	ratio := float64(p.misses) / float64(p.acquires)
	if ratio <= growMissRatio {
		return
	}
	if time.Since(p.lastAdjust) < adjustCooldown {
		return
	}

	target := int(float64(p.preallocate) * growFactor)
	if target <= p.preallocate {
		target = p.preallocate + 1
	}
	if target > p.maxSize {
		target = p.maxSize
	}

	extra := target - p.preallocate
	for i := 0; i < extra && len(p.free) < p.maxSize; i++ {
		p.free = append(p.free, p.factory())
	}
	p.preallocate = target
	p.lastAdjust = time.Now()

	// Restart the observation window.
	p.acquires = 0
	p.misses = 0
}

// Stats holds pool statistics.
type Stats struct {
	Available   int     // Objects currently pooled
	MaxSize     int     // Maximum pooled objects
	Preallocate int     // Current pre-allocation target
	Acquires    uint64  // Acquire calls in the current observation window
	Misses      uint64  // Acquires served by the factory
	Releases    uint64  // Release calls
	Discards    uint64  // Releases dropped at capacity
	MissRate    float64 // Misses / Acquires (0.0 - 1.0)
}
