package approval

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Gate is the sqlite-backed approval store.
type Gate struct {
	db  *sql.DB
	now func() time.Time
}

// NewGate wraps an opened database.
func NewGate(db *sql.DB) *Gate {
	return &Gate{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateParams describes a new approval request.
type CreateParams struct {
	ExecutionID string
	// Type defaults to TypeCustom when empty.
	Type    Type
	Action  string
	Details string
	Risk    RiskLevel
	// ExpiresIn bounds how long the request stays decidable. Zero means
	// no expiry.
	ExpiresIn time.Duration
}

// Create inserts a new Pending request.
func (g *Gate) Create(ctx context.Context, p CreateParams) (*Request, error) {
	id := uuid.NewString()
	now := g.now()

	if p.Type == "" {
		p.Type = TypeCustom
	}
	var expiresAt sql.NullTime
	if p.ExpiresIn > 0 {
		expiresAt = sql.NullTime{Time: now.Add(p.ExpiresIn), Valid: true}
	}

	_, err := g.db.ExecContext(ctx,
		`INSERT INTO approval_requests (id, execution_id, approval_type, action, details, risk_level, status, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ExecutionID, string(p.Type), p.Action, p.Details, string(p.Risk), string(StatusPending), expiresAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	return g.FindByID(ctx, id)
}

// FindByID fetches one request.
func (g *Gate) FindByID(ctx context.Context, id string) (*Request, error) {
	row := g.db.QueryRowContext(ctx, selectRequest+` WHERE id = ?`, id)
	return scanRequest(row)
}

// Approve moves a Pending request to Approved. A Pending request whose
// expiry has passed is atomically marked Expired instead and ErrExpired
// is returned: a late decision never wins.
func (g *Gate) Approve(ctx context.Context, id, reviewer, reason string) (*Request, error) {
	return g.decide(ctx, id, StatusApproved, reviewer, reason)
}

// Reject moves a Pending request to Rejected, with the same expiry
// handling as Approve.
func (g *Gate) Reject(ctx context.Context, id, reviewer, reason string) (*Request, error) {
	return g.decide(ctx, id, StatusRejected, reviewer, reason)
}

func (g *Gate) decide(ctx context.Context, id string, to Status, reviewer, reason string) (*Request, error) {
	now := g.now()
	if err := g.expirePast(ctx, id, now); err != nil {
		return nil, err
	}

	res, err := g.db.ExecContext(ctx,
		`UPDATE approval_requests
		 SET status = ?, decided_by = ?, decision_reason = ?, decided_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), reviewer, reason, now, id, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("decide approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, g.decideConflict(ctx, id)
	}
	return g.FindByID(ctx, id)
}

// expirePast flips a Pending request whose expiry has passed to Expired
// and reports ErrExpired. Expiry first, in one statement, closes the
// decide-after-expiry race.
func (g *Gate) expirePast(ctx context.Context, id string, now time.Time) error {
	res, err := g.db.ExecContext(ctx,
		`UPDATE approval_requests SET status = ?, decided_at = ?
		 WHERE id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at < ?`,
		string(StatusExpired), now, id, string(StatusPending), now,
	)
	if err != nil {
		return fmt.Errorf("expire approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return ErrExpired
	}
	return nil
}

// decideConflict maps a failed decision update to the precise error.
func (g *Gate) decideConflict(ctx context.Context, id string) error {
	current, err := g.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusExpired {
		return ErrExpired
	}
	return ErrAlreadyDecided
}

// AutoApprove moves a Pending request to AutoApproved under a named
// policy rule, with the same expiry handling as Approve.
func (g *Gate) AutoApprove(ctx context.Context, id, rule string) (*Request, error) {
	now := g.now()
	if err := g.expirePast(ctx, id, now); err != nil {
		return nil, err
	}
	res, err := g.db.ExecContext(ctx,
		`UPDATE approval_requests
		 SET status = ?, decision_reason = ?, decided_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusAutoApproved), rule, now, id, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("auto-approve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, g.decideConflict(ctx, id)
	}
	return g.FindByID(ctx, id)
}

// ExpireOld sweeps every Pending request past its expiry into Expired
// and returns how many were transitioned.
func (g *Gate) ExpireOld(ctx context.Context) (int64, error) {
	now := g.now()
	res, err := g.db.ExecContext(ctx,
		`UPDATE approval_requests SET status = ?, decided_at = ?
		 WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?`,
		string(StatusExpired), now, string(StatusPending), now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire old approvals: %w", err)
	}
	return res.RowsAffected()
}

// HasPending reports whether any Pending request blocks the execution.
func (g *Gate) HasPending(ctx context.Context, executionID string) (bool, error) {
	var count int
	err := g.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approval_requests WHERE execution_id = ? AND status = ?`,
		executionID, string(StatusPending),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count pending approvals: %w", err)
	}
	return count > 0, nil
}

// ListByExecution returns all requests for an execution, oldest first.
func (g *Gate) ListByExecution(ctx context.Context, executionID string) ([]*Request, error) {
	rows, err := g.db.QueryContext(ctx,
		selectRequest+` WHERE execution_id = ? ORDER BY created_at`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

const selectRequest = `
	SELECT id, execution_id, COALESCE(approval_type, 'custom'), action, details,
	       risk_level, status, expires_at,
	       COALESCE(decided_by, ''), COALESCE(decision_reason, ''), created_at, decided_at
	FROM approval_requests`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var req Request
	var approvalType, risk, status string
	err := row.Scan(&req.ID, &req.ExecutionID, &approvalType, &req.Action, &req.Details,
		&risk, &status, &req.ExpiresAt, &req.DecidedBy, &req.Reason,
		&req.CreatedAt, &req.DecidedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	req.Type = Type(approvalType)
	req.Risk = RiskLevel(risk)
	req.Status = Status(status)
	return &req, nil
}
