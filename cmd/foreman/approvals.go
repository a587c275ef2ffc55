package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nibzard/foreman/internal/approval"
)

func newApprovalsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Manage approval requests",
	}

	var (
		approvalType string
		risk         string
		details      string
		expiresIn    time.Duration
	)
	createCmd := &cobra.Command{
		Use:   "create <execution-id> <action>",
		Short: "Create a pending approval request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			defer a.close()

			req, err := a.gate.Create(cmd.Context(), approval.CreateParams{
				ExecutionID: args[0],
				Type:        approval.Type(approvalType),
				Action:      args[1],
				Details:     details,
				Risk:        approval.RiskLevel(risk),
				ExpiresIn:   expiresIn,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), req.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&approvalType, "type", string(approval.TypeCustom), "approval type (tool_execution|file_write|destructive_action|external_api|custom)")
	createCmd.Flags().StringVar(&risk, "risk", string(approval.RiskMedium), "risk level (low|medium|high|critical)")
	createCmd.Flags().StringVar(&details, "details", "", "action details")
	createCmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "expiry window (0 = none)")

	var reason string
	approveCmd := &cobra.Command{
		Use:   "approve <id> <reviewer>",
		Short: "Approve a pending request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			defer a.close()
			req, err := a.gate.Approve(cmd.Context(), args[0], args[1], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", req.ID, req.Status)
			return nil
		},
	}
	approveCmd.Flags().StringVar(&reason, "reason", "", "decision reason")

	rejectCmd := &cobra.Command{
		Use:   "reject <id> <reviewer>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			defer a.close()
			req, err := a.gate.Reject(cmd.Context(), args[0], args[1], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", req.ID, req.Status)
			return nil
		},
	}
	rejectCmd.Flags().StringVar(&reason, "reason", "", "decision reason")

	listCmd := &cobra.Command{
		Use:   "list <execution-id>",
		Short: "List approval requests for an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			defer a.close()
			reqs, err := a.gate.ListByExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, req := range reqs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-13s %-8s %-18s %s\n",
					req.ID, req.Status, req.Risk, req.Type, req.Action)
			}
			return nil
		},
	}

	autoApproveCmd := &cobra.Command{
		Use:   "auto-approve <id> <rule>",
		Short: "Approve a pending request under a named policy rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			defer a.close()
			req, err := a.gate.AutoApprove(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", req.ID, req.Status)
			return nil
		},
	}

	expireCmd := &cobra.Command{
		Use:   "expire",
		Short: "Sweep expired pending requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			defer a.close()
			n, err := a.gate.ExpireOld(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d request(s)\n", n)
			return nil
		},
	}

	cmd.AddCommand(createCmd, approveCmd, rejectCmd, autoApproveCmd, listCmd, expireCmd)
	return cmd
}
