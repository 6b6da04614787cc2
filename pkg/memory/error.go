package memory

import "errors"

// ErrClosed is returned by Session operations after Close.
var ErrClosed = errors.New("memory session closed")

// ErrNoEngine is returned by NewSession when no engine is configured.
var ErrNoEngine = errors.New("memory session requires an engine")
