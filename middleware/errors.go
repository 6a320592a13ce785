package middleware

import "errors"

// Sentinel errors for the time-travel controller.
var (
	// ErrNothingToUndo is returned when no earlier snapshot exists.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned when no later snapshot exists.
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrInvalidHistoryIndex is returned by Goto for an out-of-range index.
	ErrInvalidHistoryIndex = errors.New("invalid history index")

	// ErrNoRestore is returned when time travel is attempted without a
	// restore function configured.
	ErrNoRestore = errors.New("no restore function configured")
)
