// Package event provides a typed, wildcard-capable signal channel for
// lifecycle events (store created, state changed, store disposed).
//
// A process-wide default bus exists for ambient lifecycle signals; components
// accept a private injected bus for isolation in tests. Substitute the
// default with SetDefault rather than relying on hidden global state.
package event
