package middleware

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Pipeline is an ordered set of middlewares keyed by name.
// It is safe for concurrent use.
type Pipeline struct {
	mu     sync.Mutex
	byName map[string]Middleware
	order  []string // registration order, tie-break for equal priorities

	// sorted is the priority-ascending execution list, computed lazily and
	// invalidated whenever the set changes.
	sorted []Middleware

	logger *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger used for non-fatal conditions.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates an empty pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		byName: make(map[string]Middleware),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use registers a middleware. Registering a name that already exists logs a
// warning and overwrites the previous middleware at its original position.
func (p *Pipeline) Use(m Middleware) {
	if m == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byName[m.Name()]; exists {
		p.logger.Warn("middleware: duplicate name, overwriting", "name", m.Name())
	} else {
		p.order = append(p.order, m.Name())
	}
	p.byName[m.Name()] = m
	p.sorted = nil
}

// Remove deletes a middleware by name and reports whether it was present.
func (p *Pipeline) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byName[name]; !ok {
		return false
	}
	delete(p.byName, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.sorted = nil
	return true
}

// Get returns a middleware by name.
func (p *Pipeline) Get(name string) (Middleware, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.byName[name]
	return m, ok
}

// Has reports whether a middleware with the given name is registered.
func (p *Pipeline) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// GetAll returns the middlewares in execution order.
func (p *Pipeline) GetAll() []Middleware {
	p.mu.Lock()
	defer p.mu.Unlock()

	chain := p.chainLocked()
	out := make([]Middleware, len(chain))
	copy(out, chain)
	return out
}

// Len returns the number of registered middlewares.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byName)
}

// Clear removes all middlewares.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byName = make(map[string]Middleware)
	p.order = nil
	p.sorted = nil
}

// Execute runs the chain over mc with no commit at the tail.
func (p *Pipeline) Execute(ctx context.Context, mc *Context) error {
	return p.ExecuteWith(ctx, mc, nil)
}

// ExecuteWith runs the chain over mc with commit as the tail continuation:
// commit runs only if every stage called next. The first stage error aborts
// the chain and is returned to the caller.
func (p *Pipeline) ExecuteWith(ctx context.Context, mc *Context, commit Next) error {
	p.mu.Lock()
	chain := p.chainLocked()
	p.mu.Unlock()

	var run func(i int) error
	run = func(i int) error {
		if i >= len(chain) {
			if commit != nil {
				return commit()
			}
			return nil
		}
		return chain[i].Handle(ctx, mc, func() error { return run(i + 1) })
	}
	return run(0)
}

// chainLocked returns the cached execution order, rebuilding it if the set
// changed. Caller holds p.mu.
func (p *Pipeline) chainLocked() []Middleware {
	if p.sorted != nil {
		return p.sorted
	}

	chain := make([]Middleware, 0, len(p.order))
	for _, name := range p.order {
		chain = append(chain, p.byName[name])
	}
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Priority() < chain[j].Priority()
	})

	p.sorted = chain
	return chain
}

var (
	defaultMu       sync.RWMutex
	defaultPipeline = NewPipeline()
)

// Default returns the process-wide pipeline used by stores constructed
// without an explicit one.
func Default() *Pipeline {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultPipeline
}

// SetDefault replaces the process-wide pipeline and returns the previous one
// so tests can restore it. A nil argument is ignored.
func SetDefault(p *Pipeline) *Pipeline {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	prev := defaultPipeline
	if p != nil {
		defaultPipeline = p
	}
	return prev
}
