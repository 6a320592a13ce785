package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/statekit/internal/deepcopy"
	"github.com/dshills/statekit/serial"
	"github.com/dshills/statekit/storage"
)

// PersistName is the registration name of the built-in persistence stage.
const PersistName = "persist"

// PersistPriority places persistence last in the chain, so it observes state
// after the commit at the chain's tail has run.
const PersistPriority = 100

// DefaultKeyPrefix prefixes every persisted record's storage key.
const DefaultKeyPrefix = "statekit:"

// DefaultDebounce is the quiet period collapsing rapid writes into one.
const DefaultDebounce = 100 * time.Millisecond

// Persistence writes state to a storage adapter after state-kind mutations.
// Writes are debounced per store: N rapid mutations within the debounce
// window produce exactly one write, containing the latest state. Storage and
// serialization failures are logged and skipped, never surfaced to the
// mutation's caller.
type Persistence struct {
	adapter    storage.Adapter
	serializer serial.Serializer
	keyPrefix  string
	allow      map[string]struct{} // nil allows every store
	paths      []string            // dot-separated; empty persists the full tree
	debounce   time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]map[string]any
	closed  bool
}

// PersistOption configures a Persistence stage.
type PersistOption func(*Persistence)

// WithPersistSerializer overrides the JSON default serializer.
// The path filter (WithPersistPaths) operates on JSON documents and requires
// the JSON serializer.
func WithPersistSerializer(s serial.Serializer) PersistOption {
	return func(p *Persistence) {
		if s != nil {
			p.serializer = s
		}
	}
}

// WithKeyPrefix overrides the storage key prefix.
func WithKeyPrefix(prefix string) PersistOption {
	return func(p *Persistence) {
		p.keyPrefix = prefix
	}
}

// WithAllowList restricts persistence to the given store ids.
// Without an allow-list every store persists.
func WithAllowList(storeIDs ...string) PersistOption {
	return func(p *Persistence) {
		p.allow = make(map[string]struct{}, len(storeIDs))
		for _, id := range storeIDs {
			p.allow[id] = struct{}{}
		}
	}
}

// WithPersistPaths persists only the given dot-separated paths of the state
// tree instead of the whole tree.
func WithPersistPaths(paths ...string) PersistOption {
	return func(p *Persistence) {
		p.paths = paths
	}
}

// WithDebounce overrides the 100ms write debounce. Zero writes synchronously
// on every mutation.
func WithDebounce(d time.Duration) PersistOption {
	return func(p *Persistence) {
		if d >= 0 {
			p.debounce = d
		}
	}
}

// WithPersistLogger sets the logger for skipped writes.
func WithPersistLogger(l *slog.Logger) PersistOption {
	return func(p *Persistence) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPersistence creates the persistence stage writing through adapter.
func NewPersistence(adapter storage.Adapter, opts ...PersistOption) *Persistence {
	p := &Persistence{
		adapter:    adapter,
		serializer: serial.Default(),
		keyPrefix:  DefaultKeyPrefix,
		debounce:   DefaultDebounce,
		logger:     slog.Default(),
		timers:     make(map[string]*time.Timer),
		pending:    make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Middleware.
func (p *Persistence) Name() string { return PersistName }

// Priority implements Middleware.
func (p *Persistence) Priority() int { return PersistPriority }

// Handle implements Middleware.
func (p *Persistence) Handle(ctx context.Context, mc *Context, next Next) error {
	err := next()
	if err != nil {
		return err
	}
	if !mc.Kind.IsState() || !p.allowed(mc.StoreID) {
		return nil
	}

	p.schedule(mc.StoreID, deepcopy.Map(mc.State))
	return nil
}

// Flush writes all pending state immediately and cancels the timers.
func (p *Persistence) Flush() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
		if t := p.timers[id]; t != nil {
			t.Stop()
			delete(p.timers, id)
		}
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.fire(id)
	}
}

// Close flushes pending writes and stops accepting new ones.
func (p *Persistence) Close() {
	p.Flush()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// schedule records the latest state for a store and (re)arms its debounce
// timer. Standard debounce semantics: every new request cancels and
// reschedules the pending write.
func (p *Persistence) schedule(storeID string, state map[string]any) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	p.pending[storeID] = state

	if p.debounce <= 0 {
		p.mu.Unlock()
		p.fire(storeID)
		return
	}

	if t := p.timers[storeID]; t != nil {
		t.Stop()
	}
	p.timers[storeID] = time.AfterFunc(p.debounce, func() { p.fire(storeID) })
	p.mu.Unlock()
}

// fire writes the pending state for a store, if any remains.
func (p *Persistence) fire(storeID string) {
	p.mu.Lock()
	state, ok := p.pending[storeID]
	delete(p.pending, storeID)
	delete(p.timers, storeID)
	p.mu.Unlock()

	if !ok {
		return
	}

	text, err := p.serializer.Serialize(state)
	if err != nil {
		p.logger.Warn("persist: serialization failed, write skipped",
			"store", storeID, "error", err)
		return
	}

	if len(p.paths) > 0 {
		text, err = filterPaths(text, p.paths)
		if err != nil {
			p.logger.Warn("persist: path filter failed, write skipped",
				"store", storeID, "error", err)
			return
		}
	}

	if err := p.adapter.SetItem(p.keyPrefix+storeID, text); err != nil {
		p.logger.Warn("persist: storage write failed",
			"store", storeID, "error", err)
	}
}

func (p *Persistence) allowed(storeID string) bool {
	if p.allow == nil {
		return true
	}
	_, ok := p.allow[storeID]
	return ok
}

// filterPaths builds a JSON document containing only the given dot-separated
// paths of doc.
func filterPaths(doc string, paths []string) (string, error) {
	out := "{}"
	for _, path := range paths {
		r := gjson.Get(doc, path)
		if !r.Exists() {
			continue
		}
		var err error
		out, err = sjson.SetRaw(out, path, r.Raw)
		if err != nil {
			return "", fmt.Errorf("set path %q: %w", path, err)
		}
	}
	return out, nil
}

// RestoreState reads and deserializes the persisted state for a store id,
// independent of any pipeline, for use at store-construction time. ok is
// false when no record exists.
func RestoreState(adapter storage.Adapter, serializer serial.Serializer, keyPrefix, storeID string) (map[string]any, bool, error) {
	if serializer == nil {
		serializer = serial.Default()
	}
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	text, ok, err := adapter.GetItem(keyPrefix + storeID)
	if err != nil || !ok {
		return nil, false, err
	}

	v, err := serializer.Deserialize(text)
	if err != nil {
		return nil, false, fmt.Errorf("restore %s: %w", storeID, err)
	}

	state, ok := v.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("restore %s: persisted value is not a state tree", storeID)
	}
	return state, true, nil
}
