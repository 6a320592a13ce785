package store

import "context"

// Kind classifies a descriptor entry.
type Kind string

const (
	// KindAction declares a named callable on the store.
	KindAction Kind = "action"

	// KindDerived declares a value computed from the state tree.
	KindDerived Kind = "derived"
)

// ActionFunc is the body of a named action. It receives its own store and may
// mutate it through the store's patch and reset operations.
type ActionFunc func(ctx context.Context, s *Store, args ...any) (any, error)

// DerivedFunc computes a derived value from a state snapshot. The snapshot is
// a deep copy; mutating it has no effect on the store.
type DerivedFunc func(state map[string]any) any

// Descriptor declares one action or derived value for store construction.
// How the caller produced the descriptor list (reflection, code generation,
// manual registration) is the caller's concern; the store only consumes it.
type Descriptor struct {
	Kind    Kind
	Name    string
	Options Options
}

// Options carries the kind-specific parts of a Descriptor.
type Options struct {
	// Action is required for KindAction.
	Action ActionFunc

	// Derived is required for KindDerived.
	Derived DerivedFunc

	// Deps names the top-level state keys a derived value reads. An empty
	// list means the whole tree.
	Deps []string

	// Cached memoizes the entry: derived values on the hash of their
	// dependency values, actions on the hash of their arguments.
	Cached bool
}

// Action builds an action descriptor.
func Action(name string, fn ActionFunc) Descriptor {
	return Descriptor{Kind: KindAction, Name: name, Options: Options{Action: fn}}
}

// CachedAction builds an action descriptor whose results are memoized on the
// argument hash.
func CachedAction(name string, fn ActionFunc) Descriptor {
	return Descriptor{Kind: KindAction, Name: name, Options: Options{Action: fn, Cached: true}}
}

// Derive builds a derived-value descriptor recomputed on every access.
func Derive(name string, fn DerivedFunc, deps ...string) Descriptor {
	return Descriptor{Kind: KindDerived, Name: name, Options: Options{Derived: fn, Deps: deps}}
}

// CachedDerive builds a derived-value descriptor memoized on the hash of its
// dependency values, so it recomputes only when a dependency changed.
func CachedDerive(name string, fn DerivedFunc, deps ...string) Descriptor {
	return Descriptor{Kind: KindDerived, Name: name, Options: Options{Derived: fn, Deps: deps, Cached: true}}
}
