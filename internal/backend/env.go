package backend

import (
	"fmt"
	"os/exec"
	"sort"
)

// Env is the set of environment variables injected into agent processes.
type Env map[string]string

// Merge returns a copy of e with overrides applied. Incoming keys win.
func (e Env) Merge(overrides map[string]string) Env {
	merged := make(Env, len(e)+len(overrides))
	for k, v := range e {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Contains reports whether the key is set.
func (e Env) Contains(key string) bool {
	_, ok := e[key]
	return ok
}

// ApplyTo appends the variables to a command's environment on top of the
// parent process environment. Keys are applied in sorted order so the
// result is deterministic.
func (e Env) ApplyTo(cmd *exec.Cmd) {
	if len(e) == 0 {
		return
	}
	if cmd.Env == nil {
		cmd.Env = cmd.Environ()
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, e[k]))
	}
}
