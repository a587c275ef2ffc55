// Package main provides the foreman CLI: spawn and supervise coding
// agents, manage approvals, and inspect attempts.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nibzard/foreman/internal/approval"
	"github.com/nibzard/foreman/internal/attempt"
	"github.com/nibzard/foreman/internal/config"
	"github.com/nibzard/foreman/internal/storage"
)

var version = "dev"

var (
	configPath string
	verbose    bool
)

// app bundles the shared collaborators commands wire up on demand.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	gate    *approval.Gate
	tracker *attempt.Tracker
	logger  *log.Logger
}

func (a *app) init() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.cfg = cfg
	a.db = db
	a.gate = approval.NewGate(db)
	a.tracker = attempt.NewTracker(db)

	a.logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if verbose {
		a.logger.SetLevel(log.DebugLevel)
	}
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "foreman",
		Short:         "Supervise coding-agent executions",
		Long:          "Foreman spawns coding agents against a workspace, normalizes their output,\ngates sensitive actions behind approvals, and tracks retried attempts.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.foreman/foreman.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		newRunCmd(a),
		newBackendsCmd(a),
		newApprovalsCmd(a),
		newAttemptsCmd(a),
		newNormalizeCmd(a),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
