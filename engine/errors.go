package engine

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by every engine call made before EnsureReady succeeded
// or after the session was torn down.
var ErrNotReady = errors.New("engine not ready")

// errClosed is returned to in-flight IPC calls when the connection goes away.
var errClosed = errors.New("engine connection closed")

// CommandError is an engine call that failed, either because the engine rejected it
// or because the session was not ready to send it.
type CommandError struct {
	Name  string
	Cause error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("engine command %q: %v", e.Name, e.Cause)
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}
