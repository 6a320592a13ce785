package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/statekit/batch"
	"github.com/dshills/statekit/event"
	"github.com/dshills/statekit/middleware"
	"github.com/dshills/statekit/store"
)

// recorder is a test plugin implementing every optional hook.
type recorder struct {
	name     string
	failWith error
	installs int
	removals int
	created  []string
	disposed []string
	changes  []string
	log      *[]string // shared call log for ordering assertions
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Install(_ *Context, _ map[string]any) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.installs++
	r.logCall("install")
	return nil
}

func (r *recorder) Uninstall(_ *Context) error {
	r.removals++
	r.logCall("uninstall")
	return nil
}

func (r *recorder) OnStoreCreated(s *store.Store) { r.created = append(r.created, s.ID()) }

func (r *recorder) OnStoreDisposed(id string) { r.disposed = append(r.disposed, id) }

func (r *recorder) OnStateChange(id string, _, _ map[string]any) {
	r.changes = append(r.changes, id)
}

func (r *recorder) logCall(what string) {
	if r.log != nil {
		*r.log = append(*r.log, r.name+":"+what)
	}
}

func newLifecycleStore(t *testing.T, bus *event.Bus, id string) *store.Store {
	t.Helper()
	s, err := store.New(id, func() map[string]any { return map[string]any{"n": 0} },
		store.WithEventBus(bus),
		store.WithPipeline(middleware.NewPipeline()),
		store.WithCoordinator(batch.New()),
	)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	return s
}

func TestManagerRoutesLifecycleHooks(t *testing.T) {
	bus := event.New()
	m := NewManager(WithEventBus(bus))
	defer m.Close()

	r := &recorder{name: "rec"}
	if err := m.Install(r, nil); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	s := newLifecycleStore(t, bus, "a")
	if err := s.Patch(context.Background(), map[string]any{"n": 1}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	s.Dispose()

	if len(r.created) != 1 || r.created[0] != "a" {
		t.Errorf("created hooks = %v, want [a]", r.created)
	}
	if len(r.changes) != 1 || r.changes[0] != "a" {
		t.Errorf("change hooks = %v, want [a]", r.changes)
	}
	if len(r.disposed) != 1 || r.disposed[0] != "a" {
		t.Errorf("disposed hooks = %v, want [a]", r.disposed)
	}
}

func TestManagerDuplicateOverwrites(t *testing.T) {
	m := NewManager(WithEventBus(event.New()))
	defer m.Close()

	first := &recorder{name: "dup"}
	second := &recorder{name: "dup"}
	if err := m.Install(first, nil); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if err := m.Install(second, nil); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	got, _ := m.Get("dup")
	if got != second {
		t.Error("Get() returned the overwritten plugin")
	}
}

func TestManagerUninstall(t *testing.T) {
	m := NewManager(WithEventBus(event.New()))
	defer m.Close()

	r := &recorder{name: "rec"}
	if err := m.Install(r, nil); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	ok, err := m.Uninstall("rec")
	if err != nil || !ok {
		t.Fatalf("Uninstall() = %v, %v", ok, err)
	}
	if r.removals != 1 {
		t.Errorf("removals = %d, want 1", r.removals)
	}
	if ok, _ := m.Uninstall("rec"); ok {
		t.Error("Uninstall() = true for absent plugin")
	}
}

func TestManagerInstallError(t *testing.T) {
	m := NewManager(WithEventBus(event.New()))
	defer m.Close()

	sentinel := errors.New("refused")
	err := m.Install(&recorder{name: "bad", failWith: sentinel}, nil)
	if !errors.Is(err, sentinel) {
		t.Errorf("Install() error = %v, want %v", err, sentinel)
	}
	if m.Has("bad") {
		t.Error("failed plugin was registered")
	}
}

func TestComposeInstallOrderUninstallReverse(t *testing.T) {
	var log []string
	composed := Compose("bundle",
		&recorder{name: "a", log: &log},
		&recorder{name: "b", log: &log},
		&recorder{name: "c", log: &log},
	)

	ctx := &Context{Events: event.New()}
	if err := composed.Install(ctx, nil); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if u, ok := composed.(Uninstaller); !ok {
		t.Fatal("composed plugin does not uninstall")
	} else if err := u.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}

	want := []string{
		"a:install", "b:install", "c:install",
		"c:uninstall", "b:uninstall", "a:uninstall",
	}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestComposeRollsBackOnInstallFailure(t *testing.T) {
	var log []string
	sentinel := errors.New("refused")
	composed := Compose("bundle",
		&recorder{name: "a", log: &log},
		&recorder{name: "bad", failWith: sentinel, log: &log},
		&recorder{name: "c", log: &log},
	)

	err := composed.Install(&Context{Events: event.New()}, nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("Install() error = %v, want %v", err, sentinel)
	}

	want := []string{"a:install", "a:uninstall"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestComposeFansOutHooks(t *testing.T) {
	a := &recorder{name: "a"}
	b := &recorder{name: "b"}
	composed := Compose("bundle", a, b)

	h, ok := composed.(StateChangeHook)
	if !ok {
		t.Fatal("composed plugin does not receive state changes")
	}
	h.OnStateChange("s", nil, nil)

	if len(a.changes) != 1 || len(b.changes) != 1 {
		t.Errorf("hook fan-out = %v / %v, want one each", a.changes, b.changes)
	}
}

func TestSetDefault(t *testing.T) {
	custom := NewManager(WithEventBus(event.New()))
	defer custom.Close()

	prev := SetDefault(custom)
	defer SetDefault(prev)

	if Default() != custom {
		t.Error("Default() did not return the installed manager")
	}
}
