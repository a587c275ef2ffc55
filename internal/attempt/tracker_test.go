package attempt

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nibzard/foreman/internal/storage"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTracker(db)
}

func TestCreateStartsPending(t *testing.T) {
	tr := newTestTracker(t)
	a, err := tr.Create(context.Background(), CreateParams{ExecutionID: "exec-1", AttemptNumber: 1, Worker: "worker-a"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.Status != StatusPending {
		t.Errorf("Status = %s, want pending", a.Status)
	}
	if a.AttemptNumber != 1 || a.Worker != "worker-a" {
		t.Errorf("attempt = %+v", a)
	}
	if a.Tokens != (TokenUsage{}) {
		t.Errorf("Tokens = %+v, want zero", a.Tokens)
	}
}

func TestCreateRecordsModelAndProvider(t *testing.T) {
	tr := newTestTracker(t)
	a, err := tr.Create(context.Background(), CreateParams{
		ExecutionID:   "exec-1",
		AttemptNumber: 1,
		Model:         "claude-sonnet-4",
		Provider:      "anthropic",
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Model != "claude-sonnet-4" || a.Provider != "anthropic" {
		t.Errorf("attempt = %+v", a)
	}
}

func TestRecordExit(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, _ := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1})
	if a.ExitCode.Valid {
		t.Error("ExitCode should start unset")
	}

	got, err := tr.RecordExit(ctx, a.ID, 3)
	if err != nil {
		t.Fatalf("RecordExit() error = %v", err)
	}
	if !got.ExitCode.Valid || got.ExitCode.Int64 != 3 {
		t.Errorf("ExitCode = %+v, want 3", got.ExitCode)
	}
}

func TestDuplicateAttemptNumber(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1, Worker: "worker-a"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1, Worker: "worker-b"})
	if !errors.Is(err, ErrDuplicateAttempt) {
		t.Fatalf("duplicate Create error = %v, want ErrDuplicateAttempt", err)
	}

	// Existing row untouched.
	got, err := tr.FindByID(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Worker != "worker-a" {
		t.Errorf("Worker = %q, duplicate create must not mutate the row", got.Worker)
	}

	// Same number on another execution is fine.
	if _, err := tr.Create(ctx, CreateParams{ExecutionID: "exec-2", AttemptNumber: 1, Worker: "worker-b"}); err != nil {
		t.Errorf("Create on other execution error = %v", err)
	}
}

func TestStatusMachine(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, err := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1})
	if err != nil {
		t.Fatal(err)
	}

	started, err := tr.MarkStarted(ctx, a.ID)
	if err != nil {
		t.Fatalf("MarkStarted() error = %v", err)
	}
	if started.Status != StatusRunning || !started.StartedAt.Valid {
		t.Errorf("after start: %+v", started)
	}

	completed, err := tr.MarkCompleted(ctx, a.ID, "all tests pass")
	if err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if completed.Status != StatusCompleted || completed.Summary != "all tests pass" {
		t.Errorf("after complete: %+v", completed)
	}
	if !completed.FinishedAt.Valid {
		t.Error("FinishedAt should be set")
	}
}

func TestMarkFailedRecordsError(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, _ := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1})
	failed, err := tr.MarkFailed(ctx, a.ID, "spawn claude: executable not found")
	if err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if failed.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", failed.Status)
	}
	if failed.ErrorMessage == "" {
		t.Error("failed attempt must carry an error message")
	}
}

func TestExternalCancelAndTimeout(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, _ := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1})
	cancelled, err := tr.MarkCancelled(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("Status = %s, want cancelled", cancelled.Status)
	}

	b, _ := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 2})
	timedOut, err := tr.MarkTimeout(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if timedOut.Status != StatusTimeout {
		t.Errorf("Status = %s, want timeout", timedOut.Status)
	}
}

func TestUpdateTokensAccumulates(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, _ := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1})
	if _, err := tr.UpdateTokens(ctx, a.ID, TokenUsage{Input: 100, Output: 20}); err != nil {
		t.Fatal(err)
	}
	got, err := tr.UpdateTokens(ctx, a.ID, TokenUsage{Input: 50, Output: 5, CacheRead: 700})
	if err != nil {
		t.Fatal(err)
	}

	want := TokenUsage{Input: 150, Output: 25, CacheRead: 700}
	if got.Tokens != want {
		t.Errorf("Tokens = %+v, want %+v (deltas must accumulate)", got.Tokens, want)
	}
}

func TestConcurrentTokenUpdates(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, _ := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1})

	const updates = 20
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.UpdateTokens(ctx, a.ID, TokenUsage{Input: 10, Output: 1}); err != nil {
				t.Errorf("UpdateTokens() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := tr.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tokens.Input != updates*10 || got.Tokens.Output != updates {
		t.Errorf("Tokens = %+v, want no lost updates (%d/%d)", got.Tokens, updates*10, updates)
	}
}

func TestTotalTokensAcrossAttempts(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, _ := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1})
	b, _ := tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 2})
	other, _ := tr.Create(ctx, CreateParams{ExecutionID: "exec-2", AttemptNumber: 1})

	tr.UpdateTokens(ctx, a.ID, TokenUsage{Input: 100, Output: 10, CacheWrite: 3})
	tr.UpdateTokens(ctx, b.ID, TokenUsage{Input: 200, Output: 20, CacheRead: 5})
	tr.UpdateTokens(ctx, other.ID, TokenUsage{Input: 999})

	total, err := tr.TotalTokens(ctx, "exec-1")
	if err != nil {
		t.Fatalf("TotalTokens() error = %v", err)
	}
	want := TokenUsage{Input: 300, Output: 30, CacheRead: 5, CacheWrite: 3}
	if total != want {
		t.Errorf("TotalTokens = %+v, want %+v", total, want)
	}

	empty, err := tr.TotalTokens(ctx, "exec-none")
	if err != nil {
		t.Fatal(err)
	}
	if empty != (TokenUsage{}) {
		t.Errorf("TotalTokens for unknown execution = %+v, want zero", empty)
	}
}

func TestListAndLatest(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 1})
	tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 3})
	tr.Create(ctx, CreateParams{ExecutionID: "exec-1", AttemptNumber: 2})

	list, err := tr.ListByExecution(ctx, "exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for i, a := range list {
		if a.AttemptNumber != i+1 {
			t.Errorf("list[%d].AttemptNumber = %d, want %d", i, a.AttemptNumber, i+1)
		}
	}

	latest, err := tr.Latest(ctx, "exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if latest.AttemptNumber != 3 {
		t.Errorf("Latest().AttemptNumber = %d, want 3", latest.AttemptNumber)
	}
}

func TestTransitionOnMissingAttempt(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.MarkStarted(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
