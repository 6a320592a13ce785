package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dshills/statekit/batch"
	"github.com/dshills/statekit/cache"
	"github.com/dshills/statekit/event"
	"github.com/dshills/statekit/hashkey"
	"github.com/dshills/statekit/internal/deepcopy"
	"github.com/dshills/statekit/middleware"
	"github.com/dshills/statekit/pubsub"
	"github.com/dshills/statekit/serial"
	"github.com/dshills/statekit/storage"
)

// Internal bus topics.
const (
	stateTopic  = "state"
	actionTopic = "action"
)

// Mutation is delivered to state subscribers after a commit. OldState and
// State are deep copies; mutating them has no effect on the store.
type Mutation struct {
	StoreID     string
	Kind        middleware.Kind
	ChangedKeys []string
	OldState    map[string]any
	State       map[string]any
}

// ActionEvent is delivered to action subscribers after a dispatch completes.
type ActionEvent struct {
	StoreID string
	Name    string
	Args    []any
	Result  any
	Err     error
}

// SubscribeFunc receives committed mutations.
type SubscribeFunc func(Mutation)

// ActionSubscribeFunc receives completed action dispatches.
type ActionSubscribeFunc func(ActionEvent)

// Unsubscribe removes the subscription it was returned for.
// Calls after the first are no-ops.
type Unsubscribe = pubsub.Unsubscribe

// Store is one addressable state unit.
// It is safe for concurrent use.
type Store struct {
	id      string
	factory func() map[string]any

	// mu guards state, disposed and lastMut. mutateMu serializes whole
	// pipeline runs so stages read a quiescent tree without holding mu,
	// and nested mutations from action bodies cannot interleave. Neither
	// lock is held during subscriber notification.
	mu       sync.Mutex
	mutateMu sync.Mutex
	state    map[string]any
	disposed bool
	lastMut  *Mutation

	pipeline *middleware.Pipeline
	bus      *pubsub.Bus
	events   *event.Bus
	coord    *batch.Coordinator
	logger   *slog.Logger

	actions map[string]Options
	derived map[string]Options
	memo    *cache.Cache[string, any]
}

type config struct {
	pipeline    *middleware.Pipeline
	events      *event.Bus
	bus         *pubsub.Bus
	coord       *batch.Coordinator
	logger      *slog.Logger
	descriptors []Descriptor

	adapter    storage.Adapter
	serializer serial.Serializer
	keyPrefix  string
}

// StoreOption configures a Store at construction.
type StoreOption func(*config)

// WithPipeline attaches a private middleware pipeline instead of the process
// default.
func WithPipeline(p *middleware.Pipeline) StoreOption {
	return func(c *config) {
		if p != nil {
			c.pipeline = p
		}
	}
}

// WithEventBus attaches a private lifecycle event bus instead of the process
// default.
func WithEventBus(b *event.Bus) StoreOption {
	return func(c *config) {
		if b != nil {
			c.events = b
		}
	}
}

// WithBus attaches a subscriber bus. The default is a private bus per store.
func WithBus(b *pubsub.Bus) StoreOption {
	return func(c *config) {
		if b != nil {
			c.bus = b
		}
	}
}

// WithCoordinator attaches a batch coordinator instead of the process default.
func WithCoordinator(co *batch.Coordinator) StoreOption {
	return func(c *config) {
		if co != nil {
			c.coord = co
		}
	}
}

// WithDescriptors declares the store's actions and derived values.
func WithDescriptors(descs ...Descriptor) StoreOption {
	return func(c *config) {
		c.descriptors = append(c.descriptors, descs...)
	}
}

// WithLogger sets the logger for non-fatal conditions.
func WithLogger(l *slog.Logger) StoreOption {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRestoreFrom restores persisted state from adapter at construction,
// overriding the factory when a record exists. A nil serializer selects the
// JSON default; an empty prefix selects the default key prefix.
func WithRestoreFrom(adapter storage.Adapter, serializer serial.Serializer, keyPrefix string) StoreOption {
	return func(c *config) {
		c.adapter = adapter
		c.serializer = serializer
		c.keyPrefix = keyPrefix
	}
}

// New creates a store, seeds its state from the factory (or from persisted
// state when WithRestoreFrom finds a record) and emits store:created.
func New(id string, factory func() map[string]any, opts ...StoreOption) (*Store, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}

	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.pipeline == nil {
		cfg.pipeline = middleware.Default()
	}
	if cfg.events == nil {
		cfg.events = event.Default()
	}
	if cfg.bus == nil {
		cfg.bus = pubsub.New(pubsub.WithLogger(cfg.logger))
	}
	if cfg.coord == nil {
		cfg.coord = batch.Default()
	}

	s := &Store{
		id:       id,
		factory:  factory,
		pipeline: cfg.pipeline,
		bus:      cfg.bus,
		events:   cfg.events,
		coord:    cfg.coord,
		logger:   cfg.logger,
		actions:  make(map[string]Options),
		derived:  make(map[string]Options),
		memo:     cache.New[string, any](),
	}

	for _, d := range cfg.descriptors {
		if err := s.declare(d); err != nil {
			return nil, err
		}
	}

	s.state = factory()
	if s.state == nil {
		s.state = make(map[string]any)
	}
	if cfg.adapter != nil {
		restored, ok, err := middleware.RestoreState(cfg.adapter, cfg.serializer, cfg.keyPrefix, id)
		if err != nil {
			s.logger.Warn("store: restore failed, using factory state", "store", id, "error", err)
		} else if ok {
			s.state = restored
		}
	}

	s.coord.Register(id, s.flush)
	s.wireTimeTravel()
	s.events.Emit(event.StoreCreated, s)
	return s, nil
}

// declare installs one descriptor, warning and overwriting on duplicates.
func (s *Store) declare(d Descriptor) error {
	switch d.Kind {
	case KindAction:
		if d.Options.Action == nil {
			return fmt.Errorf("%w: action %q has no function", ErrBadDescriptor, d.Name)
		}
		if _, exists := s.actions[d.Name]; exists {
			s.logger.Warn("store: duplicate action, overwriting", "store", s.id, "action", d.Name)
		}
		s.actions[d.Name] = d.Options
	case KindDerived:
		if d.Options.Derived == nil {
			return fmt.Errorf("%w: derived %q has no function", ErrBadDescriptor, d.Name)
		}
		if _, exists := s.derived[d.Name]; exists {
			s.logger.Warn("store: duplicate derived value, overwriting", "store", s.id, "derived", d.Name)
		}
		s.derived[d.Name] = d.Options
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrBadDescriptor, d.Kind)
	}
	return nil
}

// wireTimeTravel points the pipeline's time-travel stage, when present, at
// this store's commit path. A stage shared by several stores routes restores
// by the snapshot's store id, so only matching restores apply here.
func (s *Store) wireTimeTravel() {
	m, ok := s.pipeline.Get(middleware.TimeTravelName)
	if !ok {
		return
	}
	tt, ok := m.(*middleware.TimeTravel)
	if !ok {
		return
	}
	tt.SetRestore(func(storeID string, state map[string]any) error {
		if storeID != s.id {
			return fmt.Errorf("restore: snapshot belongs to store %q", storeID)
		}
		return s.SetState(context.Background(), state)
	})
}

// ID returns the store's identifier.
func (s *Store) ID() string { return s.id }

// State returns a deep copy of the state tree.
func (s *Store) State() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepcopy.Map(s.state)
}

// Disposed reports whether the store has been disposed.
func (s *Store) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// SetState replaces the whole state tree.
func (s *Store) SetState(ctx context.Context, state map[string]any) error {
	next := deepcopy.Map(state)
	return s.mutate(ctx, middleware.KindDirect, nil, func(tree map[string]any) []string {
		replaceTree(tree, next)
		return nil
	})
}

// Reset replaces the state with a fresh evaluation of the original factory.
func (s *Store) Reset(ctx context.Context) error {
	return s.mutate(ctx, middleware.KindDirect, nil, func(tree map[string]any) []string {
		next := s.factory()
		replaceTree(tree, next)
		return nil
	})
}

// Patch shallow-merges partial into the state tree and records which top-level
// keys changed.
func (s *Store) Patch(ctx context.Context, partial map[string]any) error {
	next := deepcopy.Map(partial)
	return s.mutate(ctx, middleware.KindPatchObject, partial, func(tree map[string]any) []string {
		changed := make([]string, 0, len(next))
		for k, v := range next {
			tree[k] = v
			changed = append(changed, k)
		}
		return changed
	})
}

// PatchFunc applies fn to the state tree in place.
func (s *Store) PatchFunc(ctx context.Context, fn func(state map[string]any)) error {
	if fn == nil {
		return nil
	}
	return s.mutate(ctx, middleware.KindPatchFunction, nil, func(tree map[string]any) []string {
		fn(tree)
		return nil
	})
}

// mutate runs one state mutation through the pipeline with the commit as the
// tail continuation, then hands notification to the batch coordinator.
//
// mutateMu is released before MarkDirty: while idle the coordinator flushes
// synchronously into subscriber callbacks, and a subscriber reacting with a
// follow-up mutation re-enters mutate on the same goroutine.
func (s *Store) mutate(ctx context.Context, kind middleware.Kind, payload any, apply func(tree map[string]any) []string) error {
	s.mutateMu.Lock()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		s.mutateMu.Unlock()
		return s.disposedErr()
	}
	old := deepcopy.Map(s.state)
	mc := &middleware.Context{StoreID: s.id, State: s.state, Kind: kind, Payload: payload}
	s.mu.Unlock()

	var changed []string
	commit := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		changed = apply(s.state)
		return nil
	}

	committed := false
	wrapped := func() error {
		committed = true
		return commit()
	}
	if err := s.pipeline.ExecuteWith(ctx, mc, wrapped); err != nil {
		s.mutateMu.Unlock()
		return err
	}
	if !committed {
		// A stage vetoed the mutation by not continuing the chain.
		s.mutateMu.Unlock()
		return nil
	}

	s.mu.Lock()
	mut := Mutation{
		StoreID:     s.id,
		Kind:        kind,
		ChangedKeys: changed,
		OldState:    old,
		State:       deepcopy.Map(s.state),
	}
	if prev := s.lastMut; prev != nil {
		// Coalesce within a batch: keep the oldest pre-state, union keys.
		mut.OldState = prev.OldState
		mut.ChangedKeys = unionKeys(prev.ChangedKeys, mut.ChangedKeys)
	}
	s.lastMut = &mut
	s.mu.Unlock()
	s.mutateMu.Unlock()

	s.coord.MarkDirty(s.id)
	return nil
}

// flush delivers the pending mutation, if any. Registered with the batch
// coordinator; runs synchronously on MarkDirty while idle and once per batch
// otherwise.
func (s *Store) flush() {
	s.mu.Lock()
	mut := s.lastMut
	s.lastMut = nil
	s.mu.Unlock()

	if mut == nil {
		return
	}
	s.bus.Notify(stateTopic, *mut)
	s.events.Emit(event.StateChanged, *mut)
}

// Subscribe registers a state subscriber. Higher priorities are delivered
// first; equal priorities follow subscription order.
func (s *Store) Subscribe(cb SubscribeFunc, opts ...pubsub.SubscribeOption) (Unsubscribe, error) {
	if err := s.checkActive(); err != nil {
		return nil, err
	}
	if cb == nil {
		return func() {}, nil
	}
	return s.bus.Subscribe(stateTopic, func(data any) {
		if mut, ok := data.(Mutation); ok {
			cb(mut)
		}
	}, opts...), nil
}

// OnAction registers an action subscriber, called after every dispatch.
func (s *Store) OnAction(cb ActionSubscribeFunc, opts ...pubsub.SubscribeOption) (Unsubscribe, error) {
	if err := s.checkActive(); err != nil {
		return nil, err
	}
	if cb == nil {
		return func() {}, nil
	}
	return s.bus.Subscribe(actionTopic, func(data any) {
		if ae, ok := data.(ActionEvent); ok {
			cb(ae)
		}
	}, opts...), nil
}

// Do dispatches a declared action through the pipeline. Cached actions return
// their memoized result when the argument hash matches a previous dispatch.
func (s *Store) Do(ctx context.Context, name string, args ...any) (any, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, s.disposedErr()
	}
	opts, ok := s.actions[name]
	snapshot := deepcopy.Map(s.state)
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAction, s.id, name)
	}

	var memoKey string
	if opts.Cached {
		memoKey = hashkey.Tuple(append([]any{name}, args...)...)
		if v, hit := s.memo.Get(memoKey); hit {
			return v, nil
		}
	}

	mc := &middleware.Context{
		StoreID: s.id,
		State:   snapshot,
		Kind:    middleware.KindAction,
		Payload: map[string]any{"action": name},
	}

	var result any
	dispatch := func() error {
		var err error
		result, err = opts.Action(ctx, s, args...)
		return err
	}
	err := s.pipeline.ExecuteWith(ctx, mc, dispatch)

	s.bus.Notify(actionTopic, ActionEvent{
		StoreID: s.id,
		Name:    name,
		Args:    args,
		Result:  result,
		Err:     err,
	})

	if err != nil {
		return nil, err
	}
	if opts.Cached {
		s.memo.Set(memoKey, result)
	}
	return result, nil
}

// Derived computes a declared derived value. Cached entries memoize on the
// hash of their dependency values, so they recompute only when a dependency
// actually changed.
func (s *Store) Derived(name string) (any, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, s.disposedErr()
	}
	opts, ok := s.derived[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownDerived, s.id, name)
	}
	snapshot := deepcopy.Map(s.state)
	s.mu.Unlock()

	if !opts.Cached {
		return opts.Derived(snapshot), nil
	}

	key := name + ":" + hashkey.Hash(depTuple(snapshot, opts.Deps))
	if v, hit := s.memo.Get(key); hit {
		return v, nil
	}
	v := opts.Derived(snapshot)
	s.memo.Set(key, v)
	return v, nil
}

// Dispose makes the store unusable: subscribers are cleared, the flush
// handler is deregistered and store:disposed is emitted. Disposing twice is
// a no-op.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.lastMut = nil
	s.mu.Unlock()

	s.coord.Deregister(s.id)
	s.bus.Clear()
	s.memo.Dispose()
	s.events.Emit(event.StoreDisposed, s.id)
}

func (s *Store) checkActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return s.disposedErr()
	}
	return nil
}

func (s *Store) disposedErr() error {
	return fmt.Errorf("%w: %s", ErrStoreDisposed, s.id)
}

// replaceTree swaps the contents of tree for next in place, preserving the
// map identity the pipeline stages hold a reference to.
func replaceTree(tree, next map[string]any) {
	for k := range tree {
		delete(tree, k)
	}
	for k, v := range next {
		tree[k] = v
	}
}

// depTuple projects the dependency values out of a state snapshot, or the
// whole snapshot when no dependencies were declared.
func depTuple(state map[string]any, deps []string) any {
	if len(deps) == 0 {
		return state
	}
	tuple := make([]any, len(deps))
	for i, d := range deps {
		tuple[i] = state[d]
	}
	return tuple
}

// unionKeys merges two changed-key lists preserving first-seen order.
func unionKeys(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, ks := range [][]string{a, b} {
		for _, k := range ks {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
