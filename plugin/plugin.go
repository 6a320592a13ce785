package plugin

import (
	"fmt"
	"log/slog"

	"github.com/dshills/statekit/event"
	"github.com/dshills/statekit/store"
)

// Context is the surface handed to a plugin at install and uninstall time.
type Context struct {
	Events *event.Bus
	Logger *slog.Logger
}

// Plugin is an installable extension.
type Plugin interface {
	Name() string
	Install(ctx *Context, opts map[string]any) error
}

// Versioned is implemented by plugins that report a version string.
type Versioned interface {
	Version() string
}

// Uninstaller is implemented by plugins with teardown work.
type Uninstaller interface {
	Uninstall(ctx *Context) error
}

// StoreCreatedHook receives every store construction.
type StoreCreatedHook interface {
	OnStoreCreated(s *store.Store)
}

// StoreDisposedHook receives every store disposal.
type StoreDisposedHook interface {
	OnStoreDisposed(storeID string)
}

// StateChangeHook receives every committed state mutation.
type StateChangeHook interface {
	OnStateChange(storeID string, state, oldState map[string]any)
}

// Compose folds plugins into a single plugin under one name. Install runs in
// argument order; a failure uninstalls the already-installed members in
// reverse before returning. Uninstall and the lifecycle hooks fan out to
// every member, uninstalling in reverse install order.
func Compose(name string, plugins ...Plugin) Plugin {
	return &composite{name: name, members: plugins}
}

type composite struct {
	name    string
	members []Plugin
}

func (c *composite) Name() string { return c.name }

func (c *composite) Install(ctx *Context, opts map[string]any) error {
	for i, p := range c.members {
		if err := p.Install(ctx, opts); err != nil {
			for j := i - 1; j >= 0; j-- {
				if u, ok := c.members[j].(Uninstaller); ok {
					if uerr := u.Uninstall(ctx); uerr != nil && ctx != nil && ctx.Logger != nil {
						ctx.Logger.Warn("plugin: rollback uninstall failed",
							"plugin", c.members[j].Name(), "error", uerr)
					}
				}
			}
			return fmt.Errorf("install %s: %w", p.Name(), err)
		}
	}
	return nil
}

func (c *composite) Uninstall(ctx *Context) error {
	var firstErr error
	for i := len(c.members) - 1; i >= 0; i-- {
		u, ok := c.members[i].(Uninstaller)
		if !ok {
			continue
		}
		if err := u.Uninstall(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("uninstall %s: %w", c.members[i].Name(), err)
		}
	}
	return firstErr
}

func (c *composite) OnStoreCreated(s *store.Store) {
	for _, p := range c.members {
		if h, ok := p.(StoreCreatedHook); ok {
			h.OnStoreCreated(s)
		}
	}
}

func (c *composite) OnStoreDisposed(storeID string) {
	for _, p := range c.members {
		if h, ok := p.(StoreDisposedHook); ok {
			h.OnStoreDisposed(storeID)
		}
	}
}

func (c *composite) OnStateChange(storeID string, state, oldState map[string]any) {
	for _, p := range c.members {
		if h, ok := p.(StateChangeHook); ok {
			h.OnStateChange(storeID, state, oldState)
		}
	}
}
