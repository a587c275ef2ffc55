package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAttemptsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Inspect execution attempts",
	}

	listCmd := &cobra.Command{
		Use:   "list <execution-id>",
		Short: "List attempts of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			defer a.close()

			attempts, err := a.tracker.ListByExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, at := range attempts {
				detail := at.Summary
				if at.ErrorMessage != "" {
					detail = at.ErrorMessage
				}
				if at.ExitCode.Valid {
					detail = fmt.Sprintf("%s (exit %d)", detail, at.ExitCode.Int64)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%-3d %-10s %-12s %-24s %s\n",
					at.AttemptNumber, at.Status, at.Worker, at.Model, detail)
			}
			return nil
		},
	}

	tokensCmd := &cobra.Command{
		Use:   "tokens <execution-id>",
		Short: "Show aggregate token usage of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			defer a.close()

			total, err := a.tracker.TotalTokens(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"input: %d\noutput: %d\ncache_read: %d\ncache_write: %d\n",
				total.Input, total.Output, total.CacheRead, total.CacheWrite)
			return nil
		},
	}

	cmd.AddCommand(listCmd, tokensCmd)
	return cmd
}
