package store

import "errors"

var (
	// ErrStoreDisposed is returned by mutating and subscribing operations on
	// a disposed store. Disposal is terminal.
	ErrStoreDisposed = errors.New("store disposed")

	// ErrNilFactory is returned by New when no state factory is given.
	ErrNilFactory = errors.New("nil state factory")

	// ErrUnknownAction is returned by Do for an undeclared action name.
	ErrUnknownAction = errors.New("unknown action")

	// ErrUnknownDerived is returned by Derived for an undeclared name.
	ErrUnknownDerived = errors.New("unknown derived value")

	// ErrBadDescriptor is returned by New for a descriptor whose options do
	// not match its kind.
	ErrBadDescriptor = errors.New("bad descriptor")
)
