// Package lua hosts plugins whose lifecycle hooks are written in Lua.
//
// A script declares plain global functions and the host calls them as the
// corresponding plugin hooks fire:
//
//	function install(opts) end
//	function uninstall() end
//	function on_store_created(store_id) end
//	function on_store_disposed(store_id) end
//	function on_state_change(store_id, state, old_state) end
//
// Missing functions are skipped. State trees cross the boundary as Lua
// tables; the optional global string `version` is reported as the plugin
// version.
package lua
