package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GracePeriodSeconds != DefaultGraceSecs {
		t.Errorf("GracePeriodSeconds = %d, want %d", cfg.GracePeriodSeconds, DefaultGraceSecs)
	}
	if cfg.TimeoutMinutes != DefaultTimeoutMins {
		t.Errorf("TimeoutMinutes = %d, want %d", cfg.TimeoutMinutes, DefaultTimeoutMins)
	}
	if cfg.Credentials["anthropic"] != "ANTHROPIC_API_KEY" {
		t.Errorf("anthropic credential var = %q", cfg.Credentials["anthropic"])
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foreman.toml")
	content := `
db_path = "/data/foreman.db"
grace_period_seconds = 12
worker = "builder-3"

[credentials]
anthropic = "MY_ANTHROPIC_KEY"

[backends.claude-code]
binary = "/opt/claude/bin/claude"
model = "claude-sonnet-4"
mcp_config_path = "/etc/foreman/claude-mcp.json"

[backends.claude-code.env]
CLAUDE_DISABLE_TELEMETRY = "1"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/data/foreman.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.GracePeriod() != 12*time.Second {
		t.Errorf("GracePeriod() = %s, want 12s", cfg.GracePeriod())
	}
	if cfg.Worker != "builder-3" {
		t.Errorf("Worker = %q", cfg.Worker)
	}
	if cfg.Credentials["anthropic"] != "MY_ANTHROPIC_KEY" {
		t.Errorf("credential override = %q", cfg.Credentials["anthropic"])
	}

	bc := cfg.BackendFor("claude-code")
	if bc.Binary != "/opt/claude/bin/claude" {
		t.Errorf("backend binary = %q", bc.Binary)
	}
	if bc.Model != "claude-sonnet-4" {
		t.Errorf("backend model = %q", bc.Model)
	}
	if bc.MCPConfigPath != "/etc/foreman/claude-mcp.json" {
		t.Errorf("backend mcp path = %q", bc.MCPConfigPath)
	}
	if bc.Env["CLAUDE_DISABLE_TELEMETRY"] != "1" {
		t.Errorf("backend env = %v", bc.Env)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foreman.toml")
	if err := os.WriteFile(path, []byte(`worker = "from-file"`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FOREMAN_WORKER", "from-env")
	t.Setenv("FOREMAN_GRACE_SECONDS", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Worker != "from-env" {
		t.Errorf("Worker = %q, env must win over file", cfg.Worker)
	}
	if cfg.GracePeriodSeconds != 30 {
		t.Errorf("GracePeriodSeconds = %d, want 30", cfg.GracePeriodSeconds)
	}
}

func TestCredentialFor(t *testing.T) {
	cfg := defaults()
	cfg.Credentials = map[string]string{"anthropic": "TEST_ANTHROPIC_KEY"}

	if _, ok := cfg.CredentialFor("anthropic"); ok {
		t.Error("unset variable should resolve to not-ok")
	}

	t.Setenv("TEST_ANTHROPIC_KEY", "sk-test")
	key, ok := cfg.CredentialFor("anthropic")
	if !ok || key != "sk-test" {
		t.Errorf("CredentialFor = (%q, %v)", key, ok)
	}

	if _, ok := cfg.CredentialFor("unknown-provider"); ok {
		t.Error("unmapped provider should resolve to not-ok")
	}
}

func TestAttemptLogPath(t *testing.T) {
	cfg := defaults()
	cfg.LogDir = "/var/log/foreman"
	got := cfg.AttemptLogPath("attempt-1")
	want := filepath.Join("/var/log/foreman", "attempt-1.jsonl")
	if got != want {
		t.Errorf("AttemptLogPath = %q, want %q", got, want)
	}
}
