package event

import (
	"slices"
	"sync"
	"time"
)

// Type names a kind of event. The Wildcard type receives every event.
type Type string

// Wildcard matches all event types.
const Wildcard Type = "*"

// Lifecycle event types emitted by the store package.
const (
	StoreCreated  Type = "store:created"
	StoreDisposed Type = "store:disposed"
	StateChanged  Type = "state:changed"
)

// Event is the record delivered to listeners.
type Event struct {
	Type      Type
	Payload   any
	Timestamp time.Time
}

// Listener receives emitted events.
type Listener func(Event)

// Unsubscribe removes the listener it was returned for.
// Calls after the first are no-ops.
type Unsubscribe func()

// Bus is a minimal event channel keyed by event type.
// It is safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	listeners map[Type]map[uint64]Listener
	nextID    uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{listeners: make(map[Type]map[uint64]Listener)}
}

// On registers a listener for an event type, or for all events when t is
// Wildcard. It returns an idempotent Unsubscribe.
func (b *Bus) On(t Type, l Listener) Unsubscribe {
	if l == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.listeners[t] == nil {
		b.listeners[t] = make(map[uint64]Listener)
	}
	b.listeners[t][id] = l
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.off(t, id) })
	}
}

// Once registers a listener that unsubscribes itself after its first call.
func (b *Bus) Once(t Type, l Listener) Unsubscribe {
	if l == nil {
		return func() {}
	}

	var unsub Unsubscribe
	var once sync.Once
	unsub = b.On(t, func(e Event) {
		once.Do(func() {
			unsub()
			l(e)
		})
	})
	return unsub
}

// Off removes every listener for the given type.
func (b *Bus) Off(t Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, t)
}

// Emit delivers an event to exact-type listeners first, then to wildcard
// listeners, each group in registration order. Delivery is synchronous in
// the caller's goroutine.
func (b *Bus) Emit(t Type, payload any) {
	e := Event{Type: t, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	targets := b.orderedLocked(t)
	if t != Wildcard {
		targets = append(targets, b.orderedLocked(Wildcard)...)
	}
	b.mu.Unlock()

	for _, l := range targets {
		l(e)
	}
}

// orderedLocked returns a type's listeners in registration order. Ids are
// assigned from a monotonic counter, so ascending id is registration order.
// Caller holds b.mu.
func (b *Bus) orderedLocked(t Type) []Listener {
	ls := b.listeners[t]
	if len(ls) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(ls))
	for id := range ls {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = ls[id]
	}
	return out
}

// Clear removes all listeners.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[Type]map[uint64]Listener)
}

// Count returns the number of listeners for a type.
func (b *Bus) Count(t Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[t])
}

func (b *Bus) off(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ls, ok := b.listeners[t]; ok {
		delete(ls, id)
		if len(ls) == 0 {
			delete(b.listeners, t)
		}
	}
}

var (
	defaultMu  sync.RWMutex
	defaultBus = New()
)

// Default returns the process-wide bus used for ambient lifecycle signals.
func Default() *Bus {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultBus
}

// SetDefault replaces the process-wide bus. It returns the previous bus so
// tests can restore it. A nil argument is ignored.
func SetDefault(b *Bus) *Bus {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	prev := defaultBus
	if b != nil {
		defaultBus = b
	}
	return prev
}
