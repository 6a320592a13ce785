// Package store binds a state tree, a priority-ordered subscriber bus,
// lifecycle events, batching and the middleware pipeline into one addressable
// unit.
//
// A store owns its state tree exclusively. Mutations flow through the
// middleware pipeline with the commit as the tail of the chain, then notify
// subscribers in priority order and emit a state:changed lifecycle event.
// When the store's batch coordinator is batching, notification is deferred
// and coalesced into the flush. Disposal is terminal: every mutating or
// subscribing operation on a disposed store returns ErrStoreDisposed.
package store
