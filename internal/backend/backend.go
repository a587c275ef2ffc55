// Package backend defines the coding-agent adapters. Each Kind wraps one
// external agent CLI (or a hosted integration) behind a uniform interface:
// spawn, follow-up, log normalization, availability and capability
// reporting.
package backend

import (
	"context"

	"github.com/nibzard/foreman/internal/backend/proc"
	"github.com/nibzard/foreman/internal/logstream"
)

// Kind identifies one coding-agent backend.
type Kind string

const (
	KindClaudeCode  Kind = "claude-code"
	KindAmp         Kind = "amp"
	KindGemini      Kind = "gemini"
	KindCodex       Kind = "codex"
	KindOpencode    Kind = "opencode"
	KindCursorAgent Kind = "cursor-agent"
	KindQwenCode    Kind = "qwen-code"
	KindCopilot     Kind = "copilot"
	KindDroid       Kind = "droid"
	// KindClaudeHub is the GitHub-issue-triggered integration. It is a
	// marker kind and never spawns a local process.
	KindClaudeHub Kind = "claude-hub"
)

// Kinds returns every backend kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindClaudeCode,
		KindAmp,
		KindGemini,
		KindCodex,
		KindOpencode,
		KindCursorAgent,
		KindQwenCode,
		KindCopilot,
		KindDroid,
		KindClaudeHub,
	}
}

// Capability is an optional feature a backend kind may support.
type Capability string

const (
	// CapSessionFork means the backend can resume a prior session via
	// a follow-up spawn.
	CapSessionFork Capability = "session_fork"
	// CapSetupHelper means the backend offers a one-time setup action,
	// typically an interactive login.
	CapSetupHelper Capability = "setup_helper"
)

var kindCapabilities = map[Kind][]Capability{
	KindClaudeCode:  {CapSessionFork},
	KindAmp:         {CapSessionFork},
	KindGemini:      {CapSessionFork},
	KindQwenCode:    {CapSessionFork},
	KindDroid:       {CapSessionFork},
	KindOpencode:    {CapSessionFork},
	KindCodex:       {CapSessionFork, CapSetupHelper},
	KindCursorAgent: {CapSetupHelper},
	KindCopilot:     {},
	KindClaudeHub:   {},
}

// Capabilities returns the capability set for a kind.
func (k Kind) Capabilities() []Capability {
	return kindCapabilities[k]
}

// Supports reports whether the kind has the given capability.
func (k Kind) Supports(c Capability) bool {
	for _, have := range kindCapabilities[k] {
		if have == c {
			return true
		}
	}
	return false
}

// APIProvider maps a kind to the streaming API provider used for
// credential lookup. The second return is false for CLI-only kinds.
func (k Kind) APIProvider() (string, bool) {
	switch k {
	case KindClaudeCode, KindAmp, KindDroid:
		return "anthropic", true
	case KindCodex, KindOpencode:
		return "openai", true
	case KindGemini:
		return "google", true
	default:
		return "", false
	}
}

// AvailabilityState classifies how usable a backend looks on this host.
type AvailabilityState string

const (
	// LoginDetected means the CLI is installed and credentials were found.
	LoginDetected AvailabilityState = "login_detected"
	// InstallationFound means the CLI is installed but no login evidence
	// was found.
	InstallationFound AvailabilityState = "installation_found"
	// NotFound means the CLI is not installed.
	NotFound AvailabilityState = "not_found"
)

// Availability reports installation and authentication status.
type Availability struct {
	State AvailabilityState
	// LastAuthUnix is the unix timestamp of the newest credential
	// evidence, set only when State is LoginDetected.
	LastAuthUnix int64
}

// Usable reports whether the backend can plausibly be spawned.
func (a Availability) Usable() bool {
	return a.State == LoginDetected || a.State == InstallationFound
}

// SetupAction describes a one-time setup step a backend needs before use.
type SetupAction struct {
	Description string
	Command     string
	Args        []string
}

// SpawnRequest carries everything needed to start one agent run. It is
// consumed once per spawn call.
type SpawnRequest struct {
	// WorkDir is the workspace the agent operates in.
	WorkDir string
	// Prompt is the task text handed to the agent.
	Prompt string
	// SessionID resumes a prior session. Only follow-up spawns read it.
	SessionID string
	// Model overrides the backend's default model, for CLIs that accept
	// a model flag.
	Model string
	// Env holds extra environment values injected into the process.
	Env Env
}

// CombinePrompt joins a task prompt with extra standing instructions,
// separated by a blank line. Either side may be empty.
func CombinePrompt(base, extra string) string {
	switch {
	case extra == "":
		return base
	case base == "":
		return extra
	}
	return base + "\n\n" + extra
}

// Process is a spawned agent: the supervised process group plus the raw
// output stream its stdout/stderr feed into.
type Process struct {
	Handle *proc.Handle
	// Raw receives the backend's own output, line by line, before any
	// normalization. It is closed once both pipes drain.
	Raw *logstream.Store
}

// Backend is one coding-agent adapter.
type Backend interface {
	Kind() Kind

	// Spawn starts a fresh agent session.
	Spawn(ctx context.Context, req SpawnRequest) (*Process, error)

	// SpawnFollowUp continues a prior session. Kinds without the
	// session-fork capability fail without starting a process.
	SpawnFollowUp(ctx context.Context, req SpawnRequest) (*Process, error)

	// NormalizeLogs attaches a consumer translating the backend's own
	// log format into canonical events written to out. It returns
	// immediately; the returned channel closes once raw is drained and
	// the terminal Finished event has been written to out.
	NormalizeLogs(raw *logstream.Store, out logstream.Sink, worktree string) <-chan struct{}

	// AvailabilityInfo reports whether the backend is installed and
	// authenticated on this host.
	AvailabilityInfo() Availability

	// SetupHelperAction returns the one-time setup step for kinds with
	// the setup-helper capability.
	SetupHelperAction() (*SetupAction, error)

	// DefaultMCPConfigPath is the backend's tool-server config file
	// location. ok is false for kinds without MCP support.
	DefaultMCPConfigPath() (path string, ok bool)
}
