package middleware

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// travelHarness drives a TimeTravel stage the way a store would: mutations
// flow through Handle with a commit that replaces the tree, and the restore
// function swaps the tree back in.
type travelHarness struct {
	tt    *TimeTravel
	ctl   *Controller
	state map[string]any
}

func newTravelHarness(opts ...TimeTravelOption) *travelHarness {
	h := &travelHarness{state: map[string]any{}}
	h.tt = NewTimeTravel(opts...)
	h.tt.SetRestore(func(_ string, state map[string]any) error {
		h.state = state
		return nil
	})
	h.ctl = h.tt.Controller()
	return h
}

func (h *travelHarness) mutate(t *testing.T, next map[string]any) {
	t.Helper()
	mc := &Context{StoreID: "s", State: h.state, Kind: KindDirect}
	err := h.tt.Handle(context.Background(), mc, func() error {
		h.state = next
		mc.State = next
		return nil
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
}

func (h *travelHarness) value(t *testing.T) int {
	t.Helper()
	v, ok := h.state["n"].(int)
	if !ok {
		t.Fatalf("state %v has no int n", h.state)
	}
	return v
}

func TestTimeTravelUndoRedo(t *testing.T) {
	h := newTravelHarness()
	h.mutate(t, map[string]any{"n": 1})
	h.mutate(t, map[string]any{"n": 2})
	h.mutate(t, map[string]any{"n": 3})

	if !h.ctl.CanUndo() {
		t.Fatal("CanUndo() = false after mutations")
	}

	if err := h.ctl.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := h.value(t); got != 2 {
		t.Errorf("after undo n = %d, want 2", got)
	}

	if err := h.ctl.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := h.value(t); got != 1 {
		t.Errorf("after second undo n = %d, want 1", got)
	}

	if err := h.ctl.Redo(); err != nil {
		t.Fatalf("Redo() error = %v", err)
	}
	if got := h.value(t); got != 2 {
		t.Errorf("after redo n = %d, want 2", got)
	}
}

func TestTimeTravelUndoReachesInitialState(t *testing.T) {
	h := newTravelHarness()
	h.state = map[string]any{"n": 0}
	h.mutate(t, map[string]any{"n": 1})

	if err := h.ctl.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := h.value(t); got != 0 {
		t.Errorf("after undo n = %d, want the pre-first-mutation value 0", got)
	}
	if h.ctl.CanUndo() {
		t.Error("CanUndo() = true at the oldest snapshot")
	}
}

func TestTimeTravelExhaustion(t *testing.T) {
	h := newTravelHarness()

	if err := h.ctl.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Undo() on empty history = %v, want ErrNothingToUndo", err)
	}
	if err := h.ctl.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo() on empty history = %v, want ErrNothingToRedo", err)
	}

	h.mutate(t, map[string]any{"n": 1})
	if err := h.ctl.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo() at history head = %v, want ErrNothingToRedo", err)
	}
}

func TestTimeTravelBranchTruncation(t *testing.T) {
	h := newTravelHarness()
	h.mutate(t, map[string]any{"n": 1})
	h.mutate(t, map[string]any{"n": 2})
	h.mutate(t, map[string]any{"n": 3})

	if err := h.ctl.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	// A fresh mutation from the undone position discards the redo branch.
	h.mutate(t, map[string]any{"n": 20})

	if h.ctl.CanRedo() {
		t.Error("CanRedo() = true after the branch was discarded")
	}

	if err := h.ctl.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := h.value(t); got != 2 {
		t.Errorf("undo after branch n = %d, want 2", got)
	}
	if err := h.ctl.Redo(); err != nil {
		t.Fatalf("Redo() error = %v", err)
	}
	if got := h.value(t); got != 20 {
		t.Errorf("redo after branch n = %d, want 20", got)
	}
}

func TestTimeTravelGoto(t *testing.T) {
	h := newTravelHarness()
	for i := 1; i <= 4; i++ {
		h.mutate(t, map[string]any{"n": i})
	}

	if err := h.ctl.Goto(1); err != nil {
		t.Fatalf("Goto(1) error = %v", err)
	}
	if got := h.value(t); got != 1 {
		t.Errorf("after Goto(1) n = %d, want 1", got)
	}

	if err := h.ctl.Goto(99); !errors.Is(err, ErrInvalidHistoryIndex) {
		t.Errorf("Goto(99) = %v, want ErrInvalidHistoryIndex", err)
	}
	if err := h.ctl.Goto(-1); !errors.Is(err, ErrInvalidHistoryIndex) {
		t.Errorf("Goto(-1) = %v, want ErrInvalidHistoryIndex", err)
	}
}

func TestTimeTravelMaxHistoryEviction(t *testing.T) {
	h := newTravelHarness(WithMaxHistory(3))
	for i := 1; i <= 10; i++ {
		h.mutate(t, map[string]any{"n": i})
	}

	hist := h.ctl.History()
	if len(hist) != 3 {
		t.Fatalf("History() len = %d, want 3", len(hist))
	}
	// Oldest entries evicted; the tail holds the most recent states.
	if got := hist[2].State["n"].(int); got != 10 {
		t.Errorf("newest snapshot n = %d, want 10", got)
	}
	if got := hist[0].State["n"].(int); got != 8 {
		t.Errorf("oldest surviving snapshot n = %d, want 8", got)
	}
	if h.ctl.Cursor() != 2 {
		t.Errorf("Cursor() = %d, want 2", h.ctl.Cursor())
	}
}

func TestTimeTravelRestoreNotRecaptured(t *testing.T) {
	h := newTravelHarness()
	h.mutate(t, map[string]any{"n": 1})
	h.mutate(t, map[string]any{"n": 2})

	before := len(h.ctl.History())
	if err := h.ctl.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := len(h.ctl.History()); got != before {
		t.Errorf("History() len = %d after undo, want unchanged %d", got, before)
	}
}

func TestTimeTravelIgnoresActions(t *testing.T) {
	h := newTravelHarness()
	mc := &Context{StoreID: "s", State: h.state, Kind: KindAction}
	if err := h.tt.Handle(context.Background(), mc, func() error { return nil }); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if got := len(h.ctl.History()); got != 0 {
		t.Errorf("History() len = %d after action, want 0", got)
	}
}

func TestTimeTravelSkipsFailedMutations(t *testing.T) {
	h := newTravelHarness()
	mc := &Context{StoreID: "s", State: h.state, Kind: KindDirect}
	wantErr := fmt.Errorf("commit refused")
	err := h.tt.Handle(context.Background(), mc, func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("Handle() error = %v, want %v", err, wantErr)
	}
	if got := len(h.ctl.History()); got != 0 {
		t.Errorf("History() len = %d after failed mutation, want 0", got)
	}
}

func TestTimeTravelNoRestoreConfigured(t *testing.T) {
	tt := NewTimeTravel()
	ctl := tt.Controller()
	if err := ctl.Undo(); !errors.Is(err, ErrNoRestore) {
		t.Errorf("Undo() without restore = %v, want ErrNoRestore", err)
	}
}

func TestTimeTravelClear(t *testing.T) {
	h := newTravelHarness()
	h.mutate(t, map[string]any{"n": 1})
	h.ctl.Clear()

	if len(h.ctl.History()) != 0 {
		t.Error("History() not empty after Clear")
	}
	if h.ctl.Cursor() != -1 {
		t.Errorf("Cursor() = %d after Clear, want -1", h.ctl.Cursor())
	}
	if h.ctl.CanUndo() || h.ctl.CanRedo() {
		t.Error("Can{Undo,Redo}() = true after Clear")
	}
}

func TestTimeTravelHistorySnapshotsAreCopies(t *testing.T) {
	h := newTravelHarness()
	h.mutate(t, map[string]any{"n": 1})

	hist := h.ctl.History()
	hist[len(hist)-1].State["n"] = 999

	if err := h.ctl.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if err := h.ctl.Redo(); err != nil {
		t.Fatalf("Redo() error = %v", err)
	}
	if got := h.value(t); got != 1 {
		t.Errorf("history entry mutated through History() copy: n = %d", got)
	}
}
