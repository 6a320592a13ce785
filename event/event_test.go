package event

import (
	"testing"
	"time"
)

func TestBus_OnEmit(t *testing.T) {
	b := New()

	var got Event
	b.On("state:changed", func(e Event) { got = e })

	before := time.Now()
	b.Emit("state:changed", "payload")

	if got.Type != "state:changed" {
		t.Errorf("Type = %s, want state:changed", got.Type)
	}
	if got.Payload != "payload" {
		t.Errorf("Payload = %v, want payload", got.Payload)
	}
	if got.Timestamp.Before(before) {
		t.Error("Timestamp should be set at emit time")
	}
}

func TestBus_TypeIsolation(t *testing.T) {
	b := New()

	called := false
	b.On("a", func(Event) { called = true })
	b.Emit("b", nil)

	if called {
		t.Error("listener for a should not receive b")
	}
}

func TestBus_Wildcard(t *testing.T) {
	b := New()

	var order []string
	b.On("a", func(Event) { order = append(order, "exact") })
	b.On(Wildcard, func(Event) { order = append(order, "wildcard") })

	b.Emit("a", nil)
	b.Emit("b", nil)

	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 deliveries", order)
	}
	// Exact listeners run before wildcard listeners.
	if order[0] != "exact" || order[1] != "wildcard" || order[2] != "wildcard" {
		t.Errorf("order = %v", order)
	}
}

func TestBus_EmitRegistrationOrder(t *testing.T) {
	b := New()

	var order []string
	listen := func(name string) {
		b.On("a", func(Event) { order = append(order, name) })
	}
	listen("first")
	listen("second")
	listen("third")
	listen("fourth")
	b.On(Wildcard, func(Event) { order = append(order, "wildcard") })

	for i := 0; i < 20; i++ {
		order = order[:0]
		b.Emit("a", nil)

		want := []string{"first", "second", "third", "fourth", "wildcard"}
		if len(order) != len(want) {
			t.Fatalf("order = %v, want %v", order, want)
		}
		for j := range want {
			if order[j] != want[j] {
				t.Fatalf("order = %v, want %v", order, want)
			}
		}
	}
}

func TestBus_Once(t *testing.T) {
	b := New()

	calls := 0
	b.Once("a", func(Event) { calls++ })

	b.Emit("a", nil)
	b.Emit("a", nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if b.Count("a") != 0 {
		t.Errorf("Count(a) = %d, want 0 after once fired", b.Count("a"))
	}
}

func TestBus_OnceUnsubscribeBeforeEmit(t *testing.T) {
	b := New()

	calls := 0
	unsub := b.Once("a", func(Event) { calls++ })
	unsub()
	b.Emit("a", nil)

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestBus_Off(t *testing.T) {
	b := New()

	b.On("a", func(Event) { t.Error("should not be called") })
	b.On("a", func(Event) { t.Error("should not be called") })
	b.Off("a")
	b.Emit("a", nil)

	if b.Count("a") != 0 {
		t.Errorf("Count(a) = %d, want 0", b.Count("a"))
	}
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	b := New()

	b.On("a", func(Event) {})
	unsub := b.On("a", func(Event) {})

	unsub()
	unsub()

	if b.Count("a") != 1 {
		t.Errorf("Count(a) = %d, want 1", b.Count("a"))
	}
}

func TestBus_Clear(t *testing.T) {
	b := New()

	b.On("a", func(Event) {})
	b.On(Wildcard, func(Event) {})
	b.Clear()

	if b.Count("a") != 0 || b.Count(Wildcard) != 0 {
		t.Error("Clear should remove all listeners")
	}
}

func TestDefault_SetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	isolated := New()
	prev := SetDefault(isolated)

	if prev != orig {
		t.Error("SetDefault should return the previous bus")
	}
	if Default() != isolated {
		t.Error("Default should return the substituted bus")
	}

	// Nil is ignored.
	SetDefault(nil)
	if Default() != isolated {
		t.Error("SetDefault(nil) should not replace the bus")
	}
}
