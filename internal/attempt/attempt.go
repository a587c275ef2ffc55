// Package attempt records numbered, retryable execution attempts with
// status transitions and token accounting.
package attempt

import (
	"database/sql"
	"errors"
	"time"
)

// Status of one attempt. Pending moves to Running, then to exactly one
// of the terminal states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// TokenUsage holds accumulated token counters.
type TokenUsage struct {
	Input      int64
	Output     int64
	CacheRead  int64
	CacheWrite int64
}

// Add returns the element-wise sum.
func (u TokenUsage) Add(delta TokenUsage) TokenUsage {
	return TokenUsage{
		Input:      u.Input + delta.Input,
		Output:     u.Output + delta.Output,
		CacheRead:  u.CacheRead + delta.CacheRead,
		CacheWrite: u.CacheWrite + delta.CacheWrite,
	}
}

// Attempt is one numbered try of an execution.
type Attempt struct {
	ID            string
	ExecutionID   string
	AttemptNumber int
	Status        Status
	Worker        string
	// Model and Provider record which agent configuration ran the
	// attempt.
	Model        string
	Provider     string
	Summary      string
	ErrorMessage string
	// ExitCode is the process exit code, unset when no process ran.
	ExitCode   sql.NullInt64
	Tokens     TokenUsage
	CreatedAt  time.Time
	StartedAt  sql.NullTime
	FinishedAt sql.NullTime
}

var (
	// ErrNotFound means no attempt exists with the given id.
	ErrNotFound = errors.New("attempt not found")
	// ErrDuplicateAttempt means the attempt number is already taken for
	// the execution.
	ErrDuplicateAttempt = errors.New("duplicate attempt number")
)
