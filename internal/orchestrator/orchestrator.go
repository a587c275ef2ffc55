// Package orchestrator drives one agent attempt end to end: it selects
// the backend, spawns and supervises the process, routes output through
// the backend's log normalization, gates on pending approvals, and
// records attempt transitions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nibzard/foreman/internal/attempt"
	"github.com/nibzard/foreman/internal/backend"
	"github.com/nibzard/foreman/internal/backend/proc"
	"github.com/nibzard/foreman/internal/logstream"
)

// Approvals is the approval-gate surface the orchestrator consults.
type Approvals interface {
	ExpireOld(ctx context.Context) (int64, error)
	HasPending(ctx context.Context, executionID string) (bool, error)
}

// Attempts is the attempt-tracking surface the orchestrator records to.
type Attempts interface {
	Create(ctx context.Context, p attempt.CreateParams) (*attempt.Attempt, error)
	MarkStarted(ctx context.Context, id string) (*attempt.Attempt, error)
	RecordExit(ctx context.Context, id string, code int) (*attempt.Attempt, error)
	MarkCompleted(ctx context.Context, id, summary string) (*attempt.Attempt, error)
	MarkFailed(ctx context.Context, id, errorMessage string) (*attempt.Attempt, error)
	MarkCancelled(ctx context.Context, id string) (*attempt.Attempt, error)
	MarkTimeout(ctx context.Context, id string) (*attempt.Attempt, error)
}

// Notifier receives lifecycle notifications for external collaborators.
type Notifier interface {
	AttemptStarted(a *attempt.Attempt)
	AttemptFinished(a *attempt.Attempt)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) AttemptStarted(*attempt.Attempt)  {}
func (NopNotifier) AttemptFinished(*attempt.Attempt) {}

var (
	// ErrExecutionBusy means the execution already has an active
	// process handle.
	ErrExecutionBusy = errors.New("execution already has an active attempt")
	// ErrApprovalPending means a pending approval blocks the spawn.
	ErrApprovalPending = errors.New("execution blocked by pending approval")
)

// Options configure an Orchestrator.
type Options struct {
	Approvals Approvals
	Attempts  Attempts
	Notifier  Notifier
	Logger    *log.Logger
	// Grace bounds the interrupt-to-kill window on cancellation.
	Grace time.Duration
	// Timeout bounds one attempt. Zero disables it.
	Timeout time.Duration
	// Worker identifies this host in attempt records.
	Worker string
}

// Orchestrator supervises agent attempts. Safe for concurrent use; each
// execution holds at most one active process at a time.
type Orchestrator struct {
	approvals Approvals
	attempts  Attempts
	notifier  Notifier
	logger    *log.Logger
	grace     time.Duration
	timeout   time.Duration
	worker    string

	mu     sync.Mutex
	active map[string]*backend.Process
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Orchestrator{
		approvals: opts.Approvals,
		attempts:  opts.Attempts,
		notifier:  notifier,
		logger:    logger,
		grace:     grace,
		timeout:   opts.Timeout,
		worker:    opts.Worker,
		active:    make(map[string]*backend.Process),
	}
}

// RunRequest describes one attempt to run.
type RunRequest struct {
	ExecutionID   string
	AttemptNumber int
	Backend       backend.Backend
	Spawn         backend.SpawnRequest
	// FollowUp resumes the session named in Spawn.SessionID.
	FollowUp bool
	// Sink receives the canonical event stream of the attempt.
	Sink logstream.Sink
}

// Run executes one attempt to completion and returns its terminal
// record. Every failure lands in a terminal attempt status with an
// error message; the returned error describes the same failure for the
// caller.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*attempt.Attempt, error) {
	provider, _ := req.Backend.Kind().APIProvider()
	a, err := o.attempts.Create(ctx, attempt.CreateParams{
		ExecutionID:   req.ExecutionID,
		AttemptNumber: req.AttemptNumber,
		Worker:        o.worker,
		Model:         req.Spawn.Model,
		Provider:      provider,
	})
	if err != nil {
		return nil, err
	}

	logger := o.logger.With(
		"execution", req.ExecutionID,
		"attempt", req.AttemptNumber,
		"backend", req.Backend.Kind(),
	)

	if err := o.reserve(req.ExecutionID); err != nil {
		return o.fail(ctx, a, err)
	}

	// Approval gate, re-checked at the boundary: a cached earlier read
	// could race a concurrently created approval.
	if _, err := o.approvals.ExpireOld(ctx); err != nil {
		o.release(req.ExecutionID, nil)
		return o.fail(ctx, a, fmt.Errorf("expire approvals: %w", err))
	}
	pending, err := o.approvals.HasPending(ctx, req.ExecutionID)
	if err != nil {
		o.release(req.ExecutionID, nil)
		return o.fail(ctx, a, fmt.Errorf("check approvals: %w", err))
	}
	if pending {
		o.release(req.ExecutionID, nil)
		return o.fail(ctx, a, ErrApprovalPending)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if o.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var p *backend.Process
	if req.FollowUp {
		p, err = req.Backend.SpawnFollowUp(runCtx, req.Spawn)
	} else {
		p, err = req.Backend.Spawn(runCtx, req.Spawn)
	}
	if err != nil {
		o.release(req.ExecutionID, nil)
		return o.fail(ctx, a, err)
	}
	o.register(req.ExecutionID, p)
	defer o.release(req.ExecutionID, p)

	sink := logstream.Normalize(req.Sink)
	logsDone := req.Backend.NormalizeLogs(p.Raw, sink, req.Spawn.WorkDir)

	a, err = o.attempts.MarkStarted(ctx, a.ID)
	if err != nil {
		p.Handle.Kill()
		<-logsDone
		return nil, err
	}
	o.notifier.AttemptStarted(a)
	logger.Info("attempt started", "pid", p.Handle.Pid())

	return o.supervise(ctx, runCtx, logger, a, p, logsDone)
}

// supervise waits for the process to finish or the context to end, then
// records the terminal status.
func (o *Orchestrator) supervise(ctx, runCtx context.Context, logger *log.Logger, a *attempt.Attempt, p *backend.Process, logsDone <-chan struct{}) (*attempt.Attempt, error) {
	select {
	case <-p.Handle.Done():
		return o.finishFromExit(ctx, logger, a, p, logsDone)
	case <-runCtx.Done():
	}

	// Cancellation or timeout: graceful interrupt first, then a hard
	// kill of the process group once the grace period passes.
	logger.Info("stopping attempt", "cause", runCtx.Err())
	stopCtx, cancel := context.WithTimeout(context.Background(), o.grace+5*time.Second)
	defer cancel()
	if err := p.Handle.Stop(stopCtx); err != nil {
		logger.Error("stop did not confirm, process group killed", "err", err)
	}
	// The pipes close once the process group is gone, so the log stream
	// always drains. Waiting keeps the terminal status after the last
	// forwarded event.
	<-logsDone

	var (
		final *attempt.Attempt
		err   error
	)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		final, err = o.attempts.MarkTimeout(context.WithoutCancel(ctx), a.ID)
	} else {
		final, err = o.attempts.MarkCancelled(context.WithoutCancel(ctx), a.ID)
	}
	if err != nil {
		return nil, err
	}
	o.notifier.AttemptFinished(final)
	logger.Info("attempt stopped", "status", final.Status)
	return final, runCtx.Err()
}

func (o *Orchestrator) finishFromExit(ctx context.Context, logger *log.Logger, a *attempt.Attempt, p *backend.Process, logsDone <-chan struct{}) (*attempt.Attempt, error) {
	// Drain the log stream before recording the terminal status so the
	// caller may close its sink as soon as Run returns.
	<-logsDone
	status := p.Handle.Status()
	recordCtx := context.WithoutCancel(ctx)
	if _, err := o.attempts.RecordExit(recordCtx, a.ID, status.Code); err != nil {
		logger.Error("record exit code", "attempt", a.ID, "err", err)
	}

	var (
		final *attempt.Attempt
		err   error
	)
	if status.Success() {
		final, err = o.attempts.MarkCompleted(recordCtx, a.ID, "")
	} else {
		final, err = o.attempts.MarkFailed(recordCtx, a.ID, exitMessage(status))
	}
	if err != nil {
		return nil, err
	}
	o.notifier.AttemptFinished(final)
	logger.Info("attempt finished", "status", final.Status, "exit_code", status.Code, "external", status.External)
	if final.Status == attempt.StatusFailed {
		return final, fmt.Errorf("attempt failed: %s", final.ErrorMessage)
	}
	return final, nil
}

// fail records a pre-spawn failure on the attempt and propagates it.
func (o *Orchestrator) fail(ctx context.Context, a *attempt.Attempt, cause error) (*attempt.Attempt, error) {
	final, err := o.attempts.MarkFailed(context.WithoutCancel(ctx), a.ID, cause.Error())
	if err != nil {
		o.logger.Error("record attempt failure", "attempt", a.ID, "err", err)
		return nil, errors.Join(cause, err)
	}
	o.notifier.AttemptFinished(final)
	return final, cause
}

// Cancel stops the active process of an execution, if any.
func (o *Orchestrator) Cancel(ctx context.Context, executionID string) error {
	o.mu.Lock()
	p := o.active[executionID]
	o.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Handle.Stop(ctx)
}

// Active reports whether the execution holds the run slot. The slot is
// claimed before the process spawns, so a reserved entry counts too.
func (o *Orchestrator) Active(executionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[executionID]
	return ok
}

// reserve claims the execution slot before spawning so two attempts of
// one execution can never run concurrently.
func (o *Orchestrator) reserve(executionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[executionID]; busy {
		return ErrExecutionBusy
	}
	o.active[executionID] = nil
	return nil
}

func (o *Orchestrator) register(executionID string, p *backend.Process) {
	o.mu.Lock()
	o.active[executionID] = p
	o.mu.Unlock()
}

// release frees the execution slot when it still holds the given value.
func (o *Orchestrator) release(executionID string, p *backend.Process) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.active[executionID]; ok && current == p {
		delete(o.active, executionID)
	}
}

func exitMessage(status proc.ExitStatus) string {
	switch {
	case status.External:
		return fmt.Sprintf("agent reported failure (code %d)", status.Code)
	case status.Err != nil:
		return fmt.Sprintf("process exited with code %d: %v", status.Code, status.Err)
	default:
		return fmt.Sprintf("process exited with code %d", status.Code)
	}
}
