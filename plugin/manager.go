package plugin

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dshills/statekit/event"
	"github.com/dshills/statekit/store"
)

// Manager tracks installed plugins by name and routes store lifecycle events
// to their hooks. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	plugins map[string]Plugin
	order   []string
	unsubs  []event.Unsubscribe

	events *event.Bus
	logger *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEventBus attaches the lifecycle bus to listen on instead of the
// process default.
func WithEventBus(b *event.Bus) ManagerOption {
	return func(m *Manager) {
		if b != nil {
			m.events = b
		}
	}
}

// WithLogger sets the logger for non-fatal conditions.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager and subscribes it to the lifecycle bus.
// Call Close to detach the subscriptions.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		plugins: make(map[string]Plugin),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.events == nil {
		m.events = event.Default()
	}

	m.unsubs = append(m.unsubs,
		m.events.On(event.StoreCreated, func(e event.Event) {
			s, ok := e.Payload.(*store.Store)
			if !ok {
				return
			}
			for _, p := range m.snapshot() {
				if h, ok := p.(StoreCreatedHook); ok {
					h.OnStoreCreated(s)
				}
			}
		}),
		m.events.On(event.StoreDisposed, func(e event.Event) {
			id, ok := e.Payload.(string)
			if !ok {
				return
			}
			for _, p := range m.snapshot() {
				if h, ok := p.(StoreDisposedHook); ok {
					h.OnStoreDisposed(id)
				}
			}
		}),
		m.events.On(event.StateChanged, func(e event.Event) {
			mut, ok := e.Payload.(store.Mutation)
			if !ok {
				return
			}
			for _, p := range m.snapshot() {
				if h, ok := p.(StateChangeHook); ok {
					h.OnStateChange(mut.StoreID, mut.State, mut.OldState)
				}
			}
		}),
	)
	return m
}

// Install installs a plugin. A duplicate name logs a warning and replaces the
// previous plugin without uninstalling it.
func (m *Manager) Install(p Plugin, opts map[string]any) error {
	if p == nil {
		return nil
	}

	ctx := m.context()
	if err := p.Install(ctx, opts); err != nil {
		return fmt.Errorf("install %s: %w", p.Name(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plugins[p.Name()]; exists {
		m.logger.Warn("plugin: duplicate name, overwriting", "plugin", p.Name())
	} else {
		m.order = append(m.order, p.Name())
	}
	m.plugins[p.Name()] = p
	return nil
}

// Uninstall removes a plugin by name, running its Uninstall hook when it has
// one. It reports whether the plugin was installed.
func (m *Manager) Uninstall(name string) (bool, error) {
	m.mu.Lock()
	p, ok := m.plugins[name]
	if ok {
		delete(m.plugins, name)
		for i, n := range m.order {
			if n == name {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	if u, ok := p.(Uninstaller); ok {
		if err := u.Uninstall(m.context()); err != nil {
			return true, fmt.Errorf("uninstall %s: %w", name, err)
		}
	}
	return true, nil
}

// Get returns an installed plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plugins[name]
	return p, ok
}

// Has reports whether a plugin is installed.
func (m *Manager) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Names returns the installed plugin names in install order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of installed plugins.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.plugins)
}

// Close uninstalls every plugin in reverse install order and detaches the
// manager from the lifecycle bus.
func (m *Manager) Close() {
	m.mu.Lock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		if _, err := m.Uninstall(names[i]); err != nil {
			m.logger.Warn("plugin: uninstall failed on close",
				"plugin", names[i], "error", err)
		}
	}
	for _, u := range unsubs {
		u()
	}
}

// snapshot returns the installed plugins in install order.
func (m *Manager) snapshot() []Plugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Plugin, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.plugins[name])
	}
	return out
}

func (m *Manager) context() *Context {
	return &Context{Events: m.events, Logger: m.logger}
}

var (
	defaultMu      sync.RWMutex
	defaultManager *Manager
	defaultOnce    sync.Once
)

// Default returns the process-wide manager listening on the default event
// bus. It is created on first use.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		if defaultManager == nil {
			defaultManager = NewManager()
		}
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultManager
}

// SetDefault replaces the process-wide manager and returns the previous one
// so tests can restore it. A nil argument is ignored.
func SetDefault(m *Manager) *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	prev := defaultManager
	if m != nil {
		defaultManager = m
	}
	return prev
}
