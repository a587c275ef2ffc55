package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nibzard/foreman/internal/logstream"
	"github.com/nibzard/foreman/internal/normalize"
)

// newNormalizeCmd translates a provider's SSE stream on stdin into
// canonical JSONL on stdout. Useful for replaying captured API traffic
// through the same pipeline attempt logs go through.
func newNormalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <provider>",
		Short: "Normalize a provider SSE stream from stdin to canonical JSONL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := normalize.Provider(args[0])
			if !slices.Contains(normalize.Providers(), provider) {
				return fmt.Errorf("unknown provider %q (anthropic|google|openai)", args[0])
			}

			logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
			if verbose {
				logger.SetLevel(log.DebugLevel)
			}
			n := normalize.New(provider, logger)
			return n.Stream(cmd.InOrStdin(), logstream.NewIOSink(cmd.OutOrStdout()))
		},
	}
}
