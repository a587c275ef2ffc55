package backend

import (
	"context"

	"github.com/nibzard/foreman/internal/logstream"
)

// claudeHub is the GitHub-issue-triggered integration. It never runs
// locally; executions for this kind are carried out by assigning a
// GitHub issue, so every spawn path fails deterministically.
type claudeHub struct{}

// NewClaudeHub creates the claude-hub marker adapter.
func NewClaudeHub() Backend {
	return claudeHub{}
}

func (claudeHub) Kind() Kind {
	return KindClaudeHub
}

func (claudeHub) Spawn(ctx context.Context, req SpawnRequest) (*Process, error) {
	return nil, ErrNotLocalBackend
}

func (claudeHub) SpawnFollowUp(ctx context.Context, req SpawnRequest) (*Process, error) {
	return nil, ErrFollowUpNotSupported
}

func (claudeHub) NormalizeLogs(raw *logstream.Store, out logstream.Sink, worktree string) <-chan struct{} {
	// Nothing to translate; this kind produces no local logs.
	done := make(chan struct{})
	close(done)
	return done
}

func (claudeHub) AvailabilityInfo() Availability {
	// Always available: the work happens on GitHub's side.
	return Availability{State: InstallationFound}
}

func (claudeHub) SetupHelperAction() (*SetupAction, error) {
	return nil, ErrSetupHelperNotSupported
}

func (claudeHub) DefaultMCPConfigPath() (string, bool) {
	return "", false
}
