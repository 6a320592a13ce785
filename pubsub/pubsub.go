package pubsub

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxListeners bounds total subscriptions on a bus unless overridden
// with WithMaxListeners.
const DefaultMaxListeners = 1000

// Callback receives the data passed to Notify.
type Callback func(data any)

// Unsubscribe removes the subscription it was returned for.
// It is safe to call more than once; calls after the first are no-ops.
type Unsubscribe func()

// entry is one subscription. The invariant is that an entry present in the
// event index at priority P is always present in the priority bucket P;
// remove deletes from both.
type entry struct {
	id       string
	event    string
	priority int
	cb       Callback
}

// Bus is a priority-ordered notification bus.
// It is safe for concurrent use.
type Bus struct {
	mu         sync.Mutex
	byEvent    map[string]map[string]*entry // event -> subscription id -> entry
	byPriority map[int][]*entry             // priority -> insertion-ordered bucket

	maxListeners int
	logger       *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxListeners overrides the total-subscription guard (default 1000).
func WithMaxListeners(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxListeners = n
		}
	}
}

// WithLogger sets the logger used for non-fatal conditions.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		byEvent:      make(map[string]map[string]*entry),
		byPriority:   make(map[int][]*entry),
		maxListeners: DefaultMaxListeners,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	priority int
}

// WithPriority sets the subscription priority (default 0).
// Higher priorities are delivered first.
func WithPriority(p int) SubscribeOption {
	return func(c *subscribeConfig) {
		c.priority = p
	}
}

// Subscribe registers cb for event and returns an idempotent Unsubscribe.
//
// Exceeding the bus's maximum listener count is non-fatal: a warning is
// logged and the returned Unsubscribe is a no-op for a subscription that was
// never registered.
func (b *Bus) Subscribe(event string, cb Callback, opts ...SubscribeOption) Unsubscribe {
	if cb == nil {
		return func() {}
	}

	cfg := subscribeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.Lock()
	if b.total() >= b.maxListeners {
		b.mu.Unlock()
		b.logger.Warn("pubsub: max listener count exceeded, subscription dropped",
			"event", event, "max", b.maxListeners)
		return func() {}
	}

	e := &entry{
		id:       uuid.NewString(),
		event:    event,
		priority: cfg.priority,
		cb:       cb,
	}

	if b.byEvent[event] == nil {
		b.byEvent[event] = make(map[string]*entry)
	}
	b.byEvent[event][e.id] = e
	b.byPriority[e.priority] = append(b.byPriority[e.priority], e)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(e) })
	}
}

// Notify delivers data to every subscriber of event, in descending priority
// order and insertion order within a priority. A panicking subscriber is
// recovered and logged; delivery continues with the remaining subscribers.
func (b *Bus) Notify(event string, data any) {
	b.mu.Lock()

	members := b.byEvent[event]
	if len(members) == 0 {
		b.mu.Unlock()
		return
	}

	priorities := make([]int, 0, len(b.byPriority))
	for p := range b.byPriority {
		priorities = append(priorities, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(priorities)))

	// Snapshot delivery order so callbacks may subscribe/unsubscribe freely.
	var targets []*entry
	for _, p := range priorities {
		for _, e := range b.byPriority[p] {
			if _, ok := members[e.id]; ok {
				targets = append(targets, e)
			}
		}
	}
	b.mu.Unlock()

	for _, e := range targets {
		b.invoke(e, data)
	}
}

// invoke runs one callback with panic isolation.
func (b *Bus) invoke(e *entry, data any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("pubsub: subscriber panicked",
				"event", e.event, "priority", e.priority, "panic", r)
		}
	}()
	e.cb(data)
}

// Count returns the number of subscriptions for event.
func (b *Bus) Count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byEvent[event])
}

// TotalCount returns the number of subscriptions across all events.
func (b *Bus) TotalCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total()
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byEvent = make(map[string]map[string]*entry)
	b.byPriority = make(map[int][]*entry)
}

// total counts subscriptions. Caller holds b.mu.
func (b *Bus) total() int {
	n := 0
	for _, members := range b.byEvent {
		n += len(members)
	}
	return n
}

// remove deletes e from both indexes.
func (b *Bus) remove(e *entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members := b.byEvent[e.event]
	if _, ok := members[e.id]; !ok {
		return
	}
	delete(members, e.id)
	if len(members) == 0 {
		delete(b.byEvent, e.event)
	}

	bucket := b.byPriority[e.priority]
	for i, other := range bucket {
		if other.id == e.id {
			b.byPriority[e.priority] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(b.byPriority[e.priority]) == 0 {
		delete(b.byPriority, e.priority)
	}
}
