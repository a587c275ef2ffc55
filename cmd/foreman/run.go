package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nibzard/foreman/internal/backend"
	"github.com/nibzard/foreman/internal/logstream"
	"github.com/nibzard/foreman/internal/orchestrator"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		kindName      string
		workDir       string
		sessionID     string
		model         string
		attemptNumber int
		follow        bool
	)

	cmd := &cobra.Command{
		Use:   "run <execution-id> <prompt>",
		Short: "Run one agent attempt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(); err != nil {
				return err
			}
			defer a.close()

			executionID, prompt := args[0], args[1]

			kind := backend.Kind(kindName)
			overrides := a.cfg.BackendFor(string(kind))
			b, err := backend.New(kind, backend.WithBinary(overrides.Binary))
			if err != nil {
				return err
			}
			if avail := b.AvailabilityInfo(); !avail.Usable() {
				return fmt.Errorf("backend %s is not installed", kind)
			}

			mcpPath, hasMCP := b.DefaultMCPConfigPath()
			if overrides.MCPConfigPath != "" {
				mcpPath, hasMCP = overrides.MCPConfigPath, true
			}
			if hasMCP {
				if err := backend.ValidateMCPConfig(kind, mcpPath); err != nil {
					return err
				}
			}
			if model == "" {
				model = overrides.Model
			}
			prompt = backend.CombinePrompt(prompt, overrides.AppendPrompt)

			if workDir == "" {
				workDir, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			env := backend.Env{}
			if provider, ok := kind.APIProvider(); ok {
				if key, ok := a.cfg.CredentialFor(provider); ok {
					env[a.cfg.Credentials[provider]] = key
				}
			}
			env = env.Merge(overrides.Env)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch := orchestrator.New(orchestrator.Options{
				Approvals: a.gate,
				Attempts:  a.tracker,
				Logger:    a.logger,
				Grace:     a.cfg.GracePeriod(),
				Timeout:   a.cfg.Timeout(),
				Worker:    a.cfg.Worker,
			})

			if attemptNumber == 0 {
				attemptNumber = nextAttemptNumber(ctx, a, executionID)
			}

			fileSink, err := logstream.NewFileSink(a.cfg.AttemptLogPath(fmt.Sprintf("%s-%d", executionID, attemptNumber)))
			if err != nil {
				return err
			}
			defer fileSink.Close()
			sink := logstream.NewMultiSink(fileSink, logstream.NewIOSink(os.Stdout))

			result, err := orch.Run(ctx, orchestrator.RunRequest{
				ExecutionID:   executionID,
				AttemptNumber: attemptNumber,
				Backend:       b,
				Spawn: backend.SpawnRequest{
					WorkDir:   workDir,
					Prompt:    prompt,
					SessionID: sessionID,
					Model:     model,
					Env:       env,
				},
				FollowUp: follow,
				Sink:     sink,
			})
			if result != nil {
				a.logger.Info("attempt recorded",
					"id", result.ID,
					"status", result.Status,
					"log", fileSink.Path())
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&kindName, "backend", "b", string(backend.KindClaudeCode), "backend kind")
	cmd.Flags().StringVarP(&workDir, "workdir", "C", "", "workspace directory (default current)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to resume (with --follow-up)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override (default from config)")
	cmd.Flags().IntVar(&attemptNumber, "attempt", 0, "attempt number (default next free)")
	cmd.Flags().BoolVar(&follow, "follow-up", false, "continue a prior session")
	return cmd
}

func nextAttemptNumber(ctx context.Context, a *app, executionID string) int {
	latest, err := a.tracker.Latest(ctx, executionID)
	if err != nil {
		return 1
	}
	return latest.AttemptNumber + 1
}
