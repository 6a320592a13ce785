package lua

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/statekit/plugin"
)

const testScript = `
version = "1.2.3"
installed = false
removed = false
changes = 0
last_store = ""
last_count = -1

function install(opts)
	installed = true
	if opts ~= nil and opts.fail then
		error("refused")
	end
end

function uninstall()
	removed = true
end

function on_store_created(store_id)
	last_store = store_id
end

function on_state_change(store_id, state, old_state)
	changes = changes + 1
	last_store = store_id
	last_count = state.count
end
`

// global reads a script global under the plugin's lock.
func global(sp *ScriptPlugin, name string) lua.LValue {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.state.GetGlobal(name)
}

func TestNewScriptRejectsBrokenSource(t *testing.T) {
	if _, err := NewScript("bad", "this is not lua"); err == nil {
		t.Error("NewScript() error = nil for invalid source")
	}
}

func TestScriptVersion(t *testing.T) {
	sp, err := NewScript("p", testScript)
	if err != nil {
		t.Fatalf("NewScript() error = %v", err)
	}
	defer sp.Close()

	if v := sp.Version(); v != "1.2.3" {
		t.Errorf("Version() = %q, want 1.2.3", v)
	}
}

func TestScriptInstallAndUninstall(t *testing.T) {
	sp, err := NewScript("p", testScript)
	if err != nil {
		t.Fatalf("NewScript() error = %v", err)
	}
	defer sp.Close()

	if err := sp.Install(&plugin.Context{}, nil); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if global(sp, "installed") != lua.LTrue {
		t.Error("install function did not run")
	}

	if err := sp.Uninstall(nil); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if global(sp, "removed") != lua.LTrue {
		t.Error("uninstall function did not run")
	}
}

func TestScriptInstallErrorPropagates(t *testing.T) {
	sp, err := NewScript("p", testScript)
	if err != nil {
		t.Fatalf("NewScript() error = %v", err)
	}
	defer sp.Close()

	if err := sp.Install(nil, map[string]any{"fail": true}); err == nil {
		t.Error("Install() error = nil, want script error")
	}
}

func TestScriptStateChangeHook(t *testing.T) {
	sp, err := NewScript("p", testScript)
	if err != nil {
		t.Fatalf("NewScript() error = %v", err)
	}
	defer sp.Close()

	sp.OnStateChange("cart", map[string]any{"count": 7}, map[string]any{"count": 6})
	sp.OnStateChange("cart", map[string]any{"count": 8}, map[string]any{"count": 7})

	if got := global(sp, "changes"); got != lua.LNumber(2) {
		t.Errorf("changes = %v, want 2", got)
	}
	if got := global(sp, "last_store"); got != lua.LString("cart") {
		t.Errorf("last_store = %v, want cart", got)
	}
	if got := global(sp, "last_count"); got != lua.LNumber(8) {
		t.Errorf("last_count = %v, want 8", got)
	}
}

func TestScriptMissingHookIsNoop(t *testing.T) {
	sp, err := NewScript("p", `x = 1`)
	if err != nil {
		t.Fatalf("NewScript() error = %v", err)
	}
	defer sp.Close()

	if err := sp.Install(nil, nil); err != nil {
		t.Errorf("Install() with no install function error = %v", err)
	}
	sp.OnStoreDisposed("s") // must not panic
}

func TestScriptClosedIsError(t *testing.T) {
	sp, err := NewScript("p", testScript)
	if err != nil {
		t.Fatalf("NewScript() error = %v", err)
	}
	sp.Close()
	sp.Close() // idempotent

	if err := sp.Install(nil, nil); err == nil {
		t.Error("Install() on closed plugin error = nil")
	}
}
