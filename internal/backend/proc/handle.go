// Package proc manages spawned agent processes. A Handle owns one child
// process group and reports exactly one exit status, whether the process
// exits on its own, an external exit signal fires first, or the handle is
// stopped.
package proc

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

// DefaultGracePeriod is how long Stop waits after a graceful interrupt
// before killing the process group.
const DefaultGracePeriod = 5 * time.Second

// ExitStatus describes how a process ended.
type ExitStatus struct {
	// Code is the process exit code, or -1 when the process was killed
	// or never produced one.
	Code int
	// Err is the wait error, if any.
	Err error
	// External is true when the status came from an exit signal rather
	// than the process itself.
	External bool
}

// Success reports whether the process exited cleanly.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Err == nil
}

// Handle supervises one spawned process group.
type Handle struct {
	cmd        *exec.Cmd
	exitSignal <-chan ExitStatus
	interrupt  func() error
	grace      time.Duration

	done chan struct{}

	mu          sync.Mutex
	status      ExitStatus
	interrupted bool
}

// Option configures a Handle before the supervisor starts.
type Option func(*Handle)

// WithExitSignal attaches a one-shot external exit channel. The first value
// received before the process exits becomes the handle's status and the
// process group is reaped. Closing the channel without sending detaches it.
func WithExitSignal(ch <-chan ExitStatus) Option {
	return func(h *Handle) { h.exitSignal = ch }
}

// WithInterrupt registers a graceful interrupt used by Stop before the
// process group is killed. It is invoked at most once.
func WithInterrupt(fn func() error) Option {
	return func(h *Handle) { h.interrupt = fn }
}

// WithGracePeriod overrides how long Stop waits after an interrupt.
func WithGracePeriod(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.grace = d
		}
	}
}

// Start launches cmd in its own process group and begins supervising it.
func Start(cmd *exec.Cmd, opts ...Option) (*Handle, error) {
	if cmd == nil {
		return nil, errors.New("proc: nil command")
	}
	h := &Handle{
		cmd:   cmd,
		grace: DefaultGracePeriod,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	configureCommandProcess(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go h.supervise()
	return h, nil
}

// Done is closed once the handle has a final status.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Status returns the final exit status. It is only meaningful after Done
// is closed.
func (h *Handle) Status() ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// ExitCode returns the final exit code, or -1 before the handle is done.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return h.Status().Code
	default:
		return -1
	}
}

// Pid returns the child process id.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stop ends the process: graceful interrupt first when one is registered,
// then a process-group kill once the grace period or ctx expires. It
// returns nil once the handle is done.
func (h *Handle) Stop(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if h.markInterrupted() {
		interrupt := h.interrupt
		if interrupt == nil {
			interrupt = func() error { return interruptCommandProcess(h.cmd) }
		}
		if err := interrupt(); err == nil {
			timer := time.NewTimer(h.grace)
			defer timer.Stop()
			select {
			case <-h.done:
				return nil
			case <-timer.C:
			case <-ctx.Done():
			}
		}
	}

	terminateCommandProcess(h.cmd)
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill terminates the process group immediately, skipping the interrupt.
func (h *Handle) Kill() {
	h.markInterrupted()
	terminateCommandProcess(h.cmd)
}

func (h *Handle) markInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupted {
		return false
	}
	h.interrupted = true
	return true
}

func (h *Handle) interruptRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

func (h *Handle) finish(status ExitStatus) {
	h.mu.Lock()
	h.status = status
	h.mu.Unlock()
	close(h.done)
}

// supervise waits for whichever comes first: the process exiting or an
// external exit signal. An exit signal that arrives after an interrupt was
// requested is informational only; the stop sequence decides the outcome.
func (h *Handle) supervise() {
	waitCh := make(chan error, 1)
	go func() { waitCh <- h.cmd.Wait() }()

	exitSignal := h.exitSignal
	for {
		select {
		case err := <-waitCh:
			h.finish(statusFromWait(err))
			return
		case status, ok := <-exitSignal:
			if !ok {
				exitSignal = nil
				continue
			}
			if h.interruptRequested() {
				continue
			}
			terminateCommandProcess(h.cmd)
			<-waitCh
			status.External = true
			h.finish(status)
			return
		}
	}
}

func statusFromWait(err error) ExitStatus {
	if err == nil {
		return ExitStatus{Code: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExitStatus{Code: exitErr.ExitCode(), Err: err}
	}
	return ExitStatus{Code: -1, Err: err}
}
