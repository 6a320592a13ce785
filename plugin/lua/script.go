package lua

import (
	"fmt"
	"log/slog"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/statekit/plugin"
	"github.com/dshills/statekit/store"
)

// ScriptPlugin adapts one Lua script to the plugin interfaces.
//
// gopher-lua states are not goroutine-safe; every call into the script runs
// under the plugin's mutex.
type ScriptPlugin struct {
	name string

	mu     sync.Mutex
	state  *lua.LState
	logger *slog.Logger
	closed bool
}

// NewScript compiles and runs script once, leaving its globals declared.
func NewScript(name, script string) (*ScriptPlugin, error) {
	L := lua.NewState()
	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("lua plugin %s: %w", name, err)
	}
	return &ScriptPlugin{name: name, state: L, logger: slog.Default()}, nil
}

// Name implements plugin.Plugin.
func (sp *ScriptPlugin) Name() string { return sp.name }

// Version reports the script's global `version` string, if declared.
func (sp *ScriptPlugin) Version() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return ""
	}
	if v, ok := sp.state.GetGlobal("version").(lua.LString); ok {
		return string(v)
	}
	return ""
}

// Install implements plugin.Plugin.
func (sp *ScriptPlugin) Install(ctx *plugin.Context, opts map[string]any) error {
	if ctx != nil && ctx.Logger != nil {
		sp.mu.Lock()
		sp.logger = ctx.Logger
		sp.mu.Unlock()
	}
	return sp.call("install", opts)
}

// Uninstall implements plugin.Uninstaller. The Lua state stays usable until
// Close.
func (sp *ScriptPlugin) Uninstall(*plugin.Context) error {
	return sp.call("uninstall")
}

// OnStoreCreated implements plugin.StoreCreatedHook.
func (sp *ScriptPlugin) OnStoreCreated(s *store.Store) {
	sp.hook("on_store_created", s.ID())
}

// OnStoreDisposed implements plugin.StoreDisposedHook.
func (sp *ScriptPlugin) OnStoreDisposed(storeID string) {
	sp.hook("on_store_disposed", storeID)
}

// OnStateChange implements plugin.StateChangeHook.
func (sp *ScriptPlugin) OnStateChange(storeID string, state, oldState map[string]any) {
	sp.hook("on_state_change", storeID, state, oldState)
}

// Close releases the Lua state. The plugin is unusable afterward.
func (sp *ScriptPlugin) Close() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return
	}
	sp.closed = true
	sp.state.Close()
}

// hook runs a lifecycle function, logging rather than returning failures:
// a broken script must not disturb store mutation flow.
func (sp *ScriptPlugin) hook(fn string, args ...any) {
	if err := sp.call(fn, args...); err != nil {
		sp.mu.Lock()
		l := sp.logger
		sp.mu.Unlock()
		l.Warn("lua plugin: hook failed",
			"plugin", sp.name, "hook", fn, "error", err)
	}
}

// call invokes the global function fn with args converted to Lua values.
// A missing function is a no-op.
func (sp *ScriptPlugin) call(fn string, args ...any) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return fmt.Errorf("lua plugin %s: closed", sp.name)
	}

	f := sp.state.GetGlobal(fn)
	if f.Type() != lua.LTFunction {
		return nil
	}

	lvs := make([]lua.LValue, len(args))
	for i, a := range args {
		lvs[i] = toLua(sp.state, a)
	}
	if err := sp.state.CallByParam(lua.P{Fn: f, NRet: 0, Protect: true}, lvs...); err != nil {
		return fmt.Errorf("lua plugin %s: %s: %w", sp.name, fn, err)
	}
	return nil
}

// toLua converts a structural Go value to its Lua equivalent. Values outside
// the structural set degrade to their string form.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
