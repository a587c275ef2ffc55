package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nibzard/foreman/internal/backend"
)

func newBackendsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List backend kinds and their availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kind := range backend.Kinds() {
				b, err := backend.New(kind)
				if err != nil {
					return err
				}
				avail := b.AvailabilityInfo()

				status := string(avail.State)
				if avail.State == backend.LoginDetected {
					ts := time.Unix(avail.LastAuthUnix, 0).Format("2006-01-02")
					status = fmt.Sprintf("%s (auth %s)", status, ts)
				}

				caps := make([]string, 0, 2)
				for _, c := range kind.Capabilities() {
					caps = append(caps, string(c))
				}
				capCol := "-"
				if len(caps) > 0 {
					capCol = strings.Join(caps, ",")
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-28s %s\n", kind, status, capCol)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "setup <kind>",
		Short: "Print the one-time setup action for a backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := backend.New(backend.Kind(args[0]))
			if err != nil {
				return err
			}
			action, err := b.SetupHelperAction()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:\n  %s %s\n",
				action.Description, action.Command, strings.Join(action.Args, " "))
			return nil
		},
	})
	return cmd
}
