// Package config handles configuration loading and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default values.
const (
	DefaultDBPath      = "~/.foreman/foreman.db"
	DefaultLogDir      = "~/.foreman/logs"
	DefaultGraceSecs   = 5
	DefaultTimeoutMins = 60
)

// BackendConfig overrides per-backend behavior.
type BackendConfig struct {
	// Binary replaces the default executable name.
	Binary string `toml:"binary"`
	// Model overrides the backend's default model.
	Model string `toml:"model"`
	// AppendPrompt is appended to every task prompt for this backend.
	AppendPrompt string `toml:"append_prompt"`
	// MCPConfigPath replaces the backend's default tool-server config
	// file location.
	MCPConfigPath string `toml:"mcp_config_path"`
	// Env is injected into every process of this backend.
	Env map[string]string `toml:"env"`
}

// Config holds the full configuration for foreman.
type Config struct {
	// DBPath is the sqlite database holding approvals and attempts.
	DBPath string `toml:"db_path"`
	// LogDir receives per-attempt JSONL event logs.
	LogDir string `toml:"log_dir"`
	// GracePeriodSeconds bounds the wait between interrupt and kill.
	GracePeriodSeconds int `toml:"grace_period_seconds"`
	// TimeoutMinutes bounds one attempt. Zero disables the timeout.
	TimeoutMinutes int `toml:"timeout_minutes"`
	// Worker identifies this host in attempt records.
	Worker string `toml:"worker"`

	// Credentials maps an API provider name (anthropic, openai, google)
	// to the environment variable holding its key.
	Credentials map[string]string `toml:"credentials"`

	// Backends holds per-backend overrides keyed by kind.
	Backends map[string]BackendConfig `toml:"backends"`
}

// Load builds the configuration from defaults, an optional config file
// and environment variables, in that priority order. An empty path
// means the default location (~/.foreman/foreman.toml); a missing file
// is not an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = "~/.foreman/foreman.toml"
	}
	path = expandHome(path)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	loadFromEnv(cfg)

	if cfg.GracePeriodSeconds <= 0 {
		cfg.GracePeriodSeconds = DefaultGraceSecs
	}
	cfg.DBPath = expandHome(cfg.DBPath)
	cfg.LogDir = expandHome(cfg.LogDir)
	return cfg, nil
}

func defaults() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		DBPath:             DefaultDBPath,
		LogDir:             DefaultLogDir,
		GracePeriodSeconds: DefaultGraceSecs,
		TimeoutMinutes:     DefaultTimeoutMins,
		Worker:             hostname,
		Credentials: map[string]string{
			"anthropic": "ANTHROPIC_API_KEY",
			"openai":    "OPENAI_API_KEY",
			"google":    "GEMINI_API_KEY",
		},
	}
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("FOREMAN_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FOREMAN_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("FOREMAN_WORKER"); v != "" {
		cfg.Worker = v
	}
	if v := os.Getenv("FOREMAN_GRACE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GracePeriodSeconds = n
		}
	}
	if v := os.Getenv("FOREMAN_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.TimeoutMinutes = n
		}
	}
}

// GracePeriod returns the interrupt-to-kill window as a duration.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Timeout returns the per-attempt timeout, or zero when disabled.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// CredentialFor resolves the API key for a provider through the
// configured environment variable indirection. ok is false when no
// variable is mapped or the variable is unset.
func (c *Config) CredentialFor(provider string) (string, bool) {
	envVar, mapped := c.Credentials[provider]
	if !mapped {
		return "", false
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", false
	}
	return value, true
}

// BackendFor returns the overrides for a backend kind, zero-valued when
// none are configured.
func (c *Config) BackendFor(kind string) BackendConfig {
	return c.Backends[kind]
}

// AttemptLogPath is where the canonical event log of one attempt lands.
func (c *Config) AttemptLogPath(attemptID string) string {
	return filepath.Join(c.LogDir, attemptID+".jsonl")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
