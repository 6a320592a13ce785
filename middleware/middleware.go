package middleware

import (
	"context"
	"strings"
)

// Kind classifies a state transition as it flows through the pipeline.
// State kinds share the "state:" prefix so middlewares can filter on the
// state/action split without enumerating every kind.
type Kind string

const (
	// KindDirect is a whole-state replacement (SetState, Reset, restore).
	KindDirect Kind = "state:direct"

	// KindPatchObject is a shallow merge of a partial state object.
	KindPatchObject Kind = "state:patch-object"

	// KindPatchFunction is an in-place mutation by a caller function.
	KindPatchFunction Kind = "state:patch-function"

	// KindAction is an action dispatch.
	KindAction Kind = "action"
)

// IsState reports whether the kind mutates state (as opposed to dispatching
// an action).
func (k Kind) IsState() bool {
	return strings.HasPrefix(string(k), "state:")
}

// Context describes one state transition. It is constructed per mutation and
// discarded after the pipeline completes.
//
// State is the store's live tree, passed by reference: stages may read it and
// may, in rare documented cases, rewrite it, but commit authority stays with
// the store that initiated the mutation.
type Context struct {
	StoreID string
	State   map[string]any
	Kind    Kind
	Payload any
	Meta    map[string]any
}

// Next continues the chain. A stage that never calls next short-circuits the
// remaining stages and the commit at the tail of the chain.
type Next func() error

// Middleware is one pipeline stage. Name must be unique within a pipeline;
// lower priorities run earlier.
type Middleware interface {
	Name() string
	Priority() int
	Handle(ctx context.Context, mc *Context, next Next) error
}

// Func adapts a function to the Middleware interface.
type Func struct {
	name     string
	priority int
	fn       func(ctx context.Context, mc *Context, next Next) error
}

// NewFunc creates a function-backed middleware.
func NewFunc(name string, priority int, fn func(ctx context.Context, mc *Context, next Next) error) *Func {
	return &Func{name: name, priority: priority, fn: fn}
}

// Name implements Middleware.
func (f *Func) Name() string { return f.name }

// Priority implements Middleware.
func (f *Func) Priority() int { return f.priority }

// Handle implements Middleware.
func (f *Func) Handle(ctx context.Context, mc *Context, next Next) error {
	if f.fn == nil {
		return next()
	}
	return f.fn(ctx, mc, next)
}
