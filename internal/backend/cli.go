package backend

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/nibzard/foreman/internal/backend/proc"
	"github.com/nibzard/foreman/internal/logstream"
)

// cliSpec consolidates the per-kind differences of CLI-spawned backends:
// binary name, argument construction, stdin handling, and an optional
// stream watcher that drives the exit signal from the agent's own
// completion record.
type cliSpec struct {
	kind   Kind
	binary string

	// buildArgs builds the fresh-session command line.
	buildArgs func(req SpawnRequest) []string
	// buildFollowUpArgs builds the resume command line. nil means the
	// kind has no session fork.
	buildFollowUpArgs func(req SpawnRequest) []string
	// modelFlag, when set, carries req.Model onto the command line.
	modelFlag string
	// promptOnStdin pipes the prompt through stdin instead of argv.
	promptOnStdin bool
	// watchLine inspects each stdout line. Returning ok=true fires the
	// exit signal with the given status.
	watchLine func(line string) (proc.ExitStatus, bool)
}

// withModel prepends the model override flag when the kind has one and
// the request names a model.
func (s cliSpec) withModel(req SpawnRequest, args []string) []string {
	if s.modelFlag == "" || req.Model == "" {
		return args
	}
	return append([]string{s.modelFlag, req.Model}, args...)
}

// spawn starts the CLI with the given argv and wires its output pipes
// into a raw event store.
func (s cliSpec) spawn(ctx context.Context, req SpawnRequest, args []string) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := exec.LookPath(s.binary)
	if err != nil {
		return nil, &ExecutableNotFoundError{Program: s.binary}
	}

	cmd := exec.Command(path, args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}
	req.Env.ApplyTo(cmd)
	if s.promptOnStdin {
		cmd.Stdin = strings.NewReader(req.Prompt)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Kind: s.kind, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Kind: s.kind, Err: err}
	}

	raw := logstream.NewStore()

	var opts []proc.Option
	var exitSignal chan proc.ExitStatus
	if s.watchLine != nil {
		exitSignal = make(chan proc.ExitStatus, 1)
		opts = append(opts, proc.WithExitSignal(exitSignal))
	}

	handle, err := proc.Start(cmd, opts...)
	if err != nil {
		return nil, &SpawnError{Kind: s.kind, Err: err}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		fired := false
		for scanner.Scan() {
			line := scanner.Text()
			raw.Push(logstream.Stdout(line))
			if s.watchLine != nil && !fired {
				if status, ok := s.watchLine(line); ok {
					fired = true
					exitSignal <- status
				}
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			raw.Push(logstream.Stderr(scanner.Text()))
		}
	}()
	go func() {
		wg.Wait()
		raw.Close()
	}()

	return &Process{Handle: handle, Raw: raw}, nil
}

// cliBackend implements Backend for all locally spawned CLI kinds on top
// of a cliSpec. Kind-specific normalization is layered by the variant
// constructors.
type cliBackend struct {
	spec      cliSpec
	normalize func(raw *logstream.Store, out logstream.Sink, worktree string) <-chan struct{}
	setup     *SetupAction
	mcpPath   string
	avail     *availabilityProbe
}

func (b *cliBackend) Kind() Kind {
	return b.spec.kind
}

func (b *cliBackend) Spawn(ctx context.Context, req SpawnRequest) (*Process, error) {
	return b.spec.spawn(ctx, req, b.spec.withModel(req, b.spec.buildArgs(req)))
}

func (b *cliBackend) SpawnFollowUp(ctx context.Context, req SpawnRequest) (*Process, error) {
	if b.spec.buildFollowUpArgs == nil {
		return nil, ErrFollowUpNotSupported
	}
	return b.spec.spawn(ctx, req, b.spec.withModel(req, b.spec.buildFollowUpArgs(req)))
}

func (b *cliBackend) NormalizeLogs(raw *logstream.Store, out logstream.Sink, worktree string) <-chan struct{} {
	if b.normalize != nil {
		return b.normalize(raw, out, worktree)
	}
	return passthroughLogs(raw, out)
}

func (b *cliBackend) AvailabilityInfo() Availability {
	return b.avail.lookup()
}

func (b *cliBackend) SetupHelperAction() (*SetupAction, error) {
	if b.setup == nil {
		return nil, ErrSetupHelperNotSupported
	}
	action := *b.setup
	return &action, nil
}

func (b *cliBackend) DefaultMCPConfigPath() (string, bool) {
	if b.mcpPath == "" {
		return "", false
	}
	return expandHome(b.mcpPath), true
}

// passthroughLogs forwards raw lines unchanged. Line-oriented backends
// already speak the canonical stdout/stderr split, so translation only
// appends the final Finished marker.
func passthroughLogs(raw *logstream.Store, out logstream.Sink) <-chan struct{} {
	events, cancel := raw.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		for ev := range events {
			_ = out.Write(ev)
		}
		_ = out.Write(logstream.Finished())
	}()
	return done
}
