package attempt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tracker is the sqlite-backed attempt store.
type Tracker struct {
	db  *sql.DB
	now func() time.Time
}

// NewTracker wraps an opened database.
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateParams describe a new attempt.
type CreateParams struct {
	ExecutionID   string
	AttemptNumber int
	Worker        string
	Model         string
	Provider      string
}

// Create inserts a new Pending attempt. Reusing an attempt number for
// the same execution fails with ErrDuplicateAttempt; the uniqueness is
// enforced by the database, not a check-then-insert.
func (t *Tracker) Create(ctx context.Context, p CreateParams) (*Attempt, error) {
	id := uuid.NewString()
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO execution_attempts (id, execution_id, attempt_number, status, worker, model, provider, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ExecutionID, p.AttemptNumber, string(StatusPending), p.Worker, p.Model, p.Provider, t.now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAttempt
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return t.FindByID(ctx, id)
}

// FindByID fetches one attempt.
func (t *Tracker) FindByID(ctx context.Context, id string) (*Attempt, error) {
	row := t.db.QueryRowContext(ctx, selectAttempt+` WHERE id = ?`, id)
	return scanAttempt(row)
}

// MarkStarted moves the attempt to Running.
func (t *Tracker) MarkStarted(ctx context.Context, id string) (*Attempt, error) {
	return t.transition(ctx, id,
		`UPDATE execution_attempts SET status = ?, started_at = ? WHERE id = ?`,
		string(StatusRunning), t.now(), id)
}

// MarkCompleted moves the attempt to Completed with an optional summary.
func (t *Tracker) MarkCompleted(ctx context.Context, id, summary string) (*Attempt, error) {
	return t.transition(ctx, id,
		`UPDATE execution_attempts SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		string(StatusCompleted), summary, t.now(), id)
}

// MarkFailed moves the attempt to Failed and records the error message.
func (t *Tracker) MarkFailed(ctx context.Context, id, errorMessage string) (*Attempt, error) {
	return t.transition(ctx, id,
		`UPDATE execution_attempts SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		string(StatusFailed), errorMessage, t.now(), id)
}

// MarkCancelled moves the attempt to Cancelled.
func (t *Tracker) MarkCancelled(ctx context.Context, id string) (*Attempt, error) {
	return t.transition(ctx, id,
		`UPDATE execution_attempts SET status = ?, finished_at = ? WHERE id = ?`,
		string(StatusCancelled), t.now(), id)
}

// MarkTimeout moves the attempt to Timeout.
func (t *Tracker) MarkTimeout(ctx context.Context, id string) (*Attempt, error) {
	return t.transition(ctx, id,
		`UPDATE execution_attempts SET status = ?, finished_at = ? WHERE id = ?`,
		string(StatusTimeout), t.now(), id)
}

// RecordExit stores the process exit code once the spawned agent has
// terminated. Attempts that never spawned keep it unset.
func (t *Tracker) RecordExit(ctx context.Context, id string, code int) (*Attempt, error) {
	return t.transition(ctx, id,
		`UPDATE execution_attempts SET exit_code = ? WHERE id = ?`,
		code, id)
}

func (t *Tracker) transition(ctx context.Context, id, query string, args ...any) (*Attempt, error) {
	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return t.FindByID(ctx, id)
}

// UpdateTokens adds the deltas to the stored counters. Counters only
// accumulate; partial updates from a streaming response never overwrite
// earlier ones.
func (t *Tracker) UpdateTokens(ctx context.Context, id string, delta TokenUsage) (*Attempt, error) {
	res, err := t.db.ExecContext(ctx,
		`UPDATE execution_attempts
		 SET input_tokens = COALESCE(input_tokens, 0) + ?,
		     output_tokens = COALESCE(output_tokens, 0) + ?,
		     cache_read_tokens = COALESCE(cache_read_tokens, 0) + ?,
		     cache_write_tokens = COALESCE(cache_write_tokens, 0) + ?
		 WHERE id = ?`,
		delta.Input, delta.Output, delta.CacheRead, delta.CacheWrite, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update tokens: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return t.FindByID(ctx, id)
}

// TotalTokens sums the counters across all attempts of an execution.
func (t *Tracker) TotalTokens(ctx context.Context, executionID string) (TokenUsage, error) {
	var total TokenUsage
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(cache_read_tokens), 0),
		        COALESCE(SUM(cache_write_tokens), 0)
		 FROM execution_attempts WHERE execution_id = ?`,
		executionID,
	).Scan(&total.Input, &total.Output, &total.CacheRead, &total.CacheWrite)
	if err != nil {
		return TokenUsage{}, fmt.Errorf("total tokens: %w", err)
	}
	return total, nil
}

// ListByExecution returns all attempts of an execution ordered by
// attempt number.
func (t *Tracker) ListByExecution(ctx context.Context, executionID string) ([]*Attempt, error) {
	rows, err := t.db.QueryContext(ctx,
		selectAttempt+` WHERE execution_id = ? ORDER BY attempt_number`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Latest returns the highest-numbered attempt of an execution.
func (t *Tracker) Latest(ctx context.Context, executionID string) (*Attempt, error) {
	row := t.db.QueryRowContext(ctx,
		selectAttempt+` WHERE execution_id = ? ORDER BY attempt_number DESC LIMIT 1`, executionID)
	return scanAttempt(row)
}

const selectAttempt = `
	SELECT id, execution_id, attempt_number, status,
	       COALESCE(worker, ''), COALESCE(model, ''), COALESCE(provider, ''),
	       COALESCE(summary, ''), COALESCE(error_message, ''), exit_code,
	       input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
	       created_at, started_at, finished_at
	FROM execution_attempts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var a Attempt
	var status string
	err := row.Scan(&a.ID, &a.ExecutionID, &a.AttemptNumber, &status,
		&a.Worker, &a.Model, &a.Provider,
		&a.Summary, &a.ErrorMessage, &a.ExitCode,
		&a.Tokens.Input, &a.Tokens.Output, &a.Tokens.CacheRead, &a.Tokens.CacheWrite,
		&a.CreatedAt, &a.StartedAt, &a.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	a.Status = Status(status)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
