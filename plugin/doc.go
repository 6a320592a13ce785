// Package plugin extends the engine with installable behaviors hooked into
// store lifecycle events.
//
// A plugin implements Plugin and any of the optional hook interfaces; the
// Manager routes lifecycle events from an event bus to the hooks of every
// installed plugin. Compose folds several plugins into one, installing in
// order and uninstalling in reverse.
package plugin
