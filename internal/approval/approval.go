// Package approval tracks human-in-the-loop approval requests gating
// sensitive agent actions. A request starts Pending and moves to exactly
// one terminal state: Approved, Rejected, Expired or AutoApproved.
package approval

import (
	"database/sql"
	"errors"
	"time"
)

// Status of an approval request. Every status except Pending is terminal.
type Status string

const (
	StatusPending      Status = "pending"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusExpired      Status = "expired"
	StatusAutoApproved Status = "auto_approved"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Type categorizes what kind of action the request gates.
type Type string

const (
	TypeToolExecution     Type = "tool_execution"
	TypeFileWrite         Type = "file_write"
	TypeDestructiveAction Type = "destructive_action"
	TypeExternalAPI       Type = "external_api"
	TypeCustom            Type = "custom"
)

// RiskLevel classifies how dangerous the gated action is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Request is one approval record.
type Request struct {
	ID          string
	ExecutionID string
	Type        Type
	Action      string
	Details     string
	Risk        RiskLevel
	Status      Status
	ExpiresAt   sql.NullTime
	DecidedBy   string
	Reason      string
	CreatedAt   time.Time
	DecidedAt   sql.NullTime
}

var (
	// ErrNotFound means no request exists with the given id.
	ErrNotFound = errors.New("approval not found")
	// ErrAlreadyDecided means the request already reached a terminal
	// state other than Expired.
	ErrAlreadyDecided = errors.New("approval already decided")
	// ErrExpired means the request expired before the decision landed.
	ErrExpired = errors.New("approval expired")
)
