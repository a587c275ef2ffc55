package backend

import (
	"errors"
	"fmt"
)

// ErrFollowUpNotSupported is returned by SpawnFollowUp on kinds without
// the session-fork capability. No process is started.
var ErrFollowUpNotSupported = errors.New("follow-up not supported")

// ErrSetupHelperNotSupported is returned by SetupHelperAction on kinds
// without the setup-helper capability.
var ErrSetupHelperNotSupported = errors.New("setup helper not supported")

// ErrNotLocalBackend is returned when a marker kind (claude-hub) is asked
// to spawn a local process.
var ErrNotLocalBackend = errors.New("backend does not run locally")

// ExecutableNotFoundError reports a missing agent binary.
type ExecutableNotFoundError struct {
	Program string
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("executable %q not found in PATH", e.Program)
}

// SpawnError wraps an OS-level failure to start the agent process.
type SpawnError struct {
	Kind Kind
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Kind, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
