package batch

import (
	"reflect"
	"testing"
)

func TestCoordinator_ImmediateFlushWhenIdle(t *testing.T) {
	var flushes [][]string
	c := New(WithOnFlush(func(ids []string) { flushes = append(flushes, ids) }))

	c.MarkDirty("a")
	c.MarkDirty("b")

	want := [][]string{{"a"}, {"b"}}
	if !reflect.DeepEqual(flushes, want) {
		t.Errorf("flushes = %v, want %v", flushes, want)
	}
}

func TestCoordinator_BatchCoalesces(t *testing.T) {
	var flushes [][]string
	c := New(WithOnFlush(func(ids []string) { flushes = append(flushes, ids) }))

	c.Batch(func() {
		c.MarkDirty("a")
		c.MarkDirty("b")
		c.MarkDirty("a")
		c.MarkDirty("a")
	})

	// One flush, each id exactly once, insertion order.
	want := [][]string{{"a", "b"}}
	if !reflect.DeepEqual(flushes, want) {
		t.Errorf("flushes = %v, want %v", flushes, want)
	}
}

func TestCoordinator_EndWithNothingPending(t *testing.T) {
	calls := 0
	c := New(WithOnFlush(func([]string) { calls++ }))

	c.Start()
	c.End()

	if calls != 0 {
		t.Errorf("empty flush should be a no-op, got %d calls", calls)
	}
	if c.IsBatching() {
		t.Error("coordinator should be idle after End")
	}
}

func TestCoordinator_RegisteredHandlers(t *testing.T) {
	c := New()

	flushed := map[string]int{}
	c.Register("a", func() { flushed["a"]++ })
	c.Register("b", func() { flushed["b"]++ })

	c.Batch(func() {
		c.MarkDirty("a")
		c.MarkDirty("a")
		c.MarkDirty("b")
	})

	if flushed["a"] != 1 || flushed["b"] != 1 {
		t.Errorf("flushed = %v, want each handler called once", flushed)
	}
}

func TestCoordinator_Deregister(t *testing.T) {
	c := New()

	called := false
	c.Register("a", func() { called = true })

	c.Start()
	c.MarkDirty("a")
	c.Deregister("a")
	c.End()

	if called {
		t.Error("deregistered handler should not run")
	}
}

func TestCoordinator_RunReturnsValue(t *testing.T) {
	c := New()

	got := Run(c, func() int {
		c.MarkDirty("a")
		return 42
	})

	if got != 42 {
		t.Errorf("Run = %d, want 42", got)
	}
}

func TestCoordinator_IsBatching(t *testing.T) {
	c := New()

	if c.IsBatching() {
		t.Error("new coordinator should be idle")
	}
	c.Start()
	if !c.IsBatching() {
		t.Error("should be batching after Start")
	}
	c.End()
	if c.IsBatching() {
		t.Error("should be idle after End")
	}
}

func TestCoordinator_EndRunsOnPanic(t *testing.T) {
	var flushes [][]string
	c := New(WithOnFlush(func(ids []string) { flushes = append(flushes, ids) }))

	func() {
		defer func() { recover() }()
		c.Batch(func() {
			c.MarkDirty("a")
			panic("boom")
		})
	}()

	if len(flushes) != 1 {
		t.Errorf("flushes = %v, want one flush despite panic", flushes)
	}
	if c.IsBatching() {
		t.Error("coordinator should be idle after panicking batch")
	}
}

// Reentrant batches flush at the inner End. There is no depth counter; the
// inner End drains everything marked so far and the outer batch only covers
// what is marked after it.
func TestCoordinator_NestedBatchFlushesEarly(t *testing.T) {
	var flushes [][]string
	c := New(WithOnFlush(func(ids []string) { flushes = append(flushes, ids) }))

	c.Batch(func() {
		c.MarkDirty("outer-1")
		c.Batch(func() {
			c.MarkDirty("inner")
		})
		// The inner End flushed and left the coordinator idle, so this
		// flushes immediately.
		c.MarkDirty("outer-2")
	})

	want := [][]string{{"outer-1", "inner"}, {"outer-2"}}
	if !reflect.DeepEqual(flushes, want) {
		t.Errorf("flushes = %v, want %v", flushes, want)
	}
}
