package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/statekit/internal/deepcopy"
)

// TimeTravelName is the registration name of the built-in time-travel stage.
const TimeTravelName = "time-travel"

// TimeTravelPriority places time travel between logging and persistence.
const TimeTravelPriority = 50

// DefaultMaxHistory bounds the history length; the oldest snapshot is
// evicted on overflow.
const DefaultMaxHistory = 100

// Snapshot is one history entry: a deep copy of a store's state at a point
// in time.
type Snapshot struct {
	Timestamp time.Time
	State     map[string]any
	Kind      Kind
	StoreID   string
}

// RestoreFunc replaces a store's state during undo/redo. The store package
// supplies one that routes through the store's own commit path.
type RestoreFunc func(storeID string, state map[string]any) error

// TimeTravel records state snapshots around state-kind mutations and exposes
// a Controller for walking the history.
//
// The history is an append-only, capacity-bounded array with a cursor at the
// entry matching the current state. Appending while the cursor is not at the
// end first truncates everything after it, so a new mutation after undo
// discards the stale redo branch. Restoring a snapshot sets a traveling flag
// so the restoration is not re-captured as history.
type TimeTravel struct {
	mu         sync.Mutex
	history    []Snapshot
	cursor     int // index of the snapshot matching current state; -1 when empty
	maxEntries int
	restore    RestoreFunc
	traveling  bool
}

// TimeTravelOption configures a TimeTravel stage.
type TimeTravelOption func(*TimeTravel)

// WithMaxHistory overrides the default history bound of 100.
func WithMaxHistory(n int) TimeTravelOption {
	return func(tt *TimeTravel) {
		if n > 0 {
			tt.maxEntries = n
		}
	}
}

// WithRestore sets the function used to apply a snapshot to its store.
func WithRestore(fn RestoreFunc) TimeTravelOption {
	return func(tt *TimeTravel) {
		tt.restore = fn
	}
}

// NewTimeTravel creates the time-travel stage.
func NewTimeTravel(opts ...TimeTravelOption) *TimeTravel {
	tt := &TimeTravel{
		cursor:     -1,
		maxEntries: DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(tt)
	}
	return tt
}

// SetRestore installs the restore function after construction. The store
// package calls this when the stage is attached to a store.
func (tt *TimeTravel) SetRestore(fn RestoreFunc) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.restore = fn
}

// Name implements Middleware.
func (tt *TimeTravel) Name() string { return TimeTravelName }

// Priority implements Middleware.
func (tt *TimeTravel) Priority() int { return TimeTravelPriority }

// Handle implements Middleware. The pre-mutation state is captured before the
// chain continues; once the mutation has committed, the post-mutation state
// is appended under the branch-truncation rule.
func (tt *TimeTravel) Handle(ctx context.Context, mc *Context, next Next) error {
	if !mc.Kind.IsState() || tt.isTraveling() {
		return next()
	}

	pre := deepcopy.Map(mc.State)

	err := next()
	if err != nil {
		return err
	}

	tt.record(mc, pre, deepcopy.Map(mc.State))
	return nil
}

// record appends the post-mutation snapshot, seeding the history with the
// pre-mutation state on first capture so the very first mutation is undoable.
func (tt *TimeTravel) record(mc *Context, pre, post map[string]any) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if tt.traveling {
		return
	}

	now := time.Now()

	// Branch truncation: a new entry after undo discards the redo branch.
	if tt.cursor < len(tt.history)-1 {
		tt.history = tt.history[:tt.cursor+1]
	}

	if len(tt.history) == 0 {
		tt.history = append(tt.history, Snapshot{
			Timestamp: now,
			State:     pre,
			Kind:      mc.Kind,
			StoreID:   mc.StoreID,
		})
	}

	tt.history = append(tt.history, Snapshot{
		Timestamp: now,
		State:     post,
		Kind:      mc.Kind,
		StoreID:   mc.StoreID,
	})
	tt.cursor = len(tt.history) - 1

	// Capacity eviction removes from the head and drags the cursor with it.
	for len(tt.history) > tt.maxEntries {
		tt.history = tt.history[1:]
		if tt.cursor > 0 {
			tt.cursor--
		}
	}
}

func (tt *TimeTravel) isTraveling() bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.traveling
}

// Controller returns the independent undo/redo controller for this stage.
func (tt *TimeTravel) Controller() *Controller {
	return &Controller{tt: tt}
}

// Controller walks a TimeTravel history.
type Controller struct {
	tt *TimeTravel
}

// CanUndo reports whether an earlier snapshot exists.
func (c *Controller) CanUndo() bool {
	c.tt.mu.Lock()
	defer c.tt.mu.Unlock()
	return c.tt.cursor > 0
}

// CanRedo reports whether a later snapshot exists.
func (c *Controller) CanRedo() bool {
	c.tt.mu.Lock()
	defer c.tt.mu.Unlock()
	return c.tt.cursor >= 0 && c.tt.cursor < len(c.tt.history)-1
}

// Undo restores the previous snapshot.
func (c *Controller) Undo() error {
	return c.travel(func(cursor, length int) (int, error) {
		if cursor <= 0 {
			return 0, ErrNothingToUndo
		}
		return cursor - 1, nil
	})
}

// Redo restores the next snapshot.
func (c *Controller) Redo() error {
	return c.travel(func(cursor, length int) (int, error) {
		if cursor < 0 || cursor >= length-1 {
			return 0, ErrNothingToRedo
		}
		return cursor + 1, nil
	})
}

// Goto restores the snapshot at index.
func (c *Controller) Goto(index int) error {
	return c.travel(func(cursor, length int) (int, error) {
		if index < 0 || index >= length {
			return 0, ErrInvalidHistoryIndex
		}
		return index, nil
	})
}

// History returns a copy of the history entries, oldest first.
func (c *Controller) History() []Snapshot {
	c.tt.mu.Lock()
	defer c.tt.mu.Unlock()

	out := make([]Snapshot, len(c.tt.history))
	for i, s := range c.tt.history {
		out[i] = Snapshot{
			Timestamp: s.Timestamp,
			State:     deepcopy.Map(s.State),
			Kind:      s.Kind,
			StoreID:   s.StoreID,
		}
	}
	return out
}

// Cursor returns the index of the snapshot matching the current state, or -1
// when the history is empty.
func (c *Controller) Cursor() int {
	c.tt.mu.Lock()
	defer c.tt.mu.Unlock()
	return c.tt.cursor
}

// Clear discards the entire history.
func (c *Controller) Clear() {
	c.tt.mu.Lock()
	defer c.tt.mu.Unlock()
	c.tt.history = nil
	c.tt.cursor = -1
}

// travel moves the cursor with move and restores the snapshot it lands on.
// The traveling flag suppresses re-capturing the restoration as history.
func (c *Controller) travel(move func(cursor, length int) (int, error)) error {
	tt := c.tt

	tt.mu.Lock()
	if tt.restore == nil {
		tt.mu.Unlock()
		return ErrNoRestore
	}

	target, err := move(tt.cursor, len(tt.history))
	if err != nil {
		tt.mu.Unlock()
		return err
	}

	snap := tt.history[target]
	state := deepcopy.Map(snap.State)
	tt.cursor = target
	tt.traveling = true
	tt.mu.Unlock()

	defer func() {
		tt.mu.Lock()
		tt.traveling = false
		tt.mu.Unlock()
	}()

	return tt.restore(snap.StoreID, state)
}
