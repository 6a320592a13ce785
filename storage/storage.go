// Package storage defines the minimal key/value adapter consumed by the
// persistence middleware, with in-memory, file-backed and SQLite-backed
// implementations.
package storage

// Adapter is the minimal storage surface persistence writes through.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// GetItem returns the stored value for key. ok is false when the key is
	// absent.
	GetItem(key string) (value string, ok bool, err error)

	// SetItem stores value under key, replacing any existing value.
	SetItem(key, value string) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(key string) error

	// Clear removes every key.
	Clear() error
}
