package batch

import "sync"

// FlushFunc observes the set of dirty store ids drained by one flush.
type FlushFunc func(storeIDs []string)

// Coordinator coalesces mark-dirty signals.
// It is safe for concurrent use.
type Coordinator struct {
	mu       sync.Mutex
	batching bool
	pending  map[string]struct{}
	order    []string
	handlers map[string]func()
	onFlush  FlushFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithOnFlush sets a callback invoked with the dirty id set on every
// non-empty flush.
func WithOnFlush(fn FlushFunc) Option {
	return func(c *Coordinator) {
		c.onFlush = fn
	}
}

// New creates an idle Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		pending:  make(map[string]struct{}),
		handlers: make(map[string]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs the flush handler for a store id. The handler runs once
// per flush in which the id was marked dirty.
func (c *Coordinator) Register(storeID string, flush func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[storeID] = flush
}

// Deregister removes a store's flush handler and any pending mark.
func (c *Coordinator) Deregister(storeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.handlers, storeID)
	if _, ok := c.pending[storeID]; ok {
		delete(c.pending, storeID)
		for i, id := range c.order {
			if id == storeID {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// Start transitions the coordinator to the batching state.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batching = true
}

// End transitions back to idle and flushes whatever is pending.
// Flushing an empty set is a no-op.
func (c *Coordinator) End() {
	c.mu.Lock()
	c.batching = false
	ids, handlers := c.drainLocked()
	c.mu.Unlock()

	c.dispatch(ids, handlers)
}

// IsBatching reports whether the coordinator is in the batching state.
func (c *Coordinator) IsBatching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batching
}

// MarkDirty records a store id. While batching the signal is deferred until
// End; while idle it flushes immediately. Marking an id multiple times within
// one batch still flushes it once.
func (c *Coordinator) MarkDirty(storeID string) {
	c.mu.Lock()

	if _, ok := c.pending[storeID]; !ok {
		c.pending[storeID] = struct{}{}
		c.order = append(c.order, storeID)
	}

	if c.batching {
		c.mu.Unlock()
		return
	}

	ids, handlers := c.drainLocked()
	c.mu.Unlock()

	c.dispatch(ids, handlers)
}

// Batch runs fn between Start and End. End runs even when fn panics.
func (c *Coordinator) Batch(fn func()) {
	c.Start()
	defer c.End()
	fn()
}

// Run runs fn between Start and End on c and returns fn's result.
func Run[T any](c *Coordinator, fn func() T) T {
	c.Start()
	defer c.End()
	return fn()
}

// drainLocked snapshots and clears the pending set. Caller holds c.mu.
func (c *Coordinator) drainLocked() ([]string, []func()) {
	if len(c.order) == 0 {
		return nil, nil
	}

	ids := c.order
	c.order = nil
	c.pending = make(map[string]struct{})

	handlers := make([]func(), 0, len(ids))
	for _, id := range ids {
		if h, ok := c.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	return ids, handlers
}

// dispatch invokes flush handlers and the OnFlush callback outside the lock.
func (c *Coordinator) dispatch(ids []string, handlers []func()) {
	if len(ids) == 0 {
		return
	}
	for _, h := range handlers {
		h()
	}
	if c.onFlush != nil {
		c.onFlush(ids)
	}
}

var (
	defaultMu          sync.RWMutex
	defaultCoordinator = New()
)

// Default returns the process-wide coordinator.
func Default() *Coordinator {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultCoordinator
}

// SetDefault replaces the process-wide coordinator and returns the previous
// one so tests can restore it. A nil argument is ignored.
func SetDefault(c *Coordinator) *Coordinator {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	prev := defaultCoordinator
	if c != nil {
		defaultCoordinator = c
	}
	return prev
}
