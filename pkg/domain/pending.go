package domain

import (
	"fmt"
	"time"
)

// PendingStatus is the lifecycle state of a PendingAction.
type PendingStatus string

const (
	StatusPending  PendingStatus = "pending"
	StatusApproved PendingStatus = "approved"
	StatusRejected PendingStatus = "rejected"
	StatusExpired  PendingStatus = "expired"
	StatusExecuted PendingStatus = "executed"
	StatusFailed   PendingStatus = "failed"
)

// DefaultApprovalExpiry is how long a pending action waits for review.
const DefaultApprovalExpiry = 5 * time.Minute

var pendingTransitions = map[PendingStatus][]PendingStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved: {StatusExecuted, StatusFailed},
}

// IsTerminal reports whether no further transition is possible.
func (s PendingStatus) IsTerminal() bool {
	_, ok := pendingTransitions[s]
	return !ok
}

// CanTransition reports whether s -> to is a legal move.
func (s PendingStatus) CanTransition(to PendingStatus) bool {
	for _, next := range pendingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status.
func (s PendingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// PendingAction is a tool call held back for human review.
type PendingAction struct {
	ID               string        `json:"id"`
	SessionID        string        `json:"session_id"`
	CharacterID      string        `json:"character_id,omitempty"`
	RequestingUserID string        `json:"requesting_user_id"`
	ToolName         string        `json:"tool_name"`
	Parameters       Document      `json:"parameters"`
	Description      string        `json:"description"`
	Status           PendingStatus `json:"status"`
	Reasoning        string        `json:"reasoning,omitempty"`
	ConversationTurn int           `json:"conversation_turn"`
	BatchID          string        `json:"batch_id,omitempty"`
	BatchOrder       int           `json:"batch_order"`
	CreatedAt        time.Time     `json:"created_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	ReviewedAt       *time.Time    `json:"reviewed_at,omitempty"`
	ReviewedBy       string        `json:"reviewed_by,omitempty"`
	RejectionReason  string        `json:"rejection_reason,omitempty"`
	ExecutionResult  Document      `json:"execution_result,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
}

// Transition moves the action to a new status, enforcing the lifecycle.
func (p *PendingAction) Transition(to PendingStatus) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	return nil
}

// IsExpired reports whether a pending action has outlived its review window.
func (p *PendingAction) IsExpired(now time.Time) bool {
	return p.Status == StatusPending && !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// TimeRemaining returns how long the reviewer still has, floored at zero.
func (p *PendingAction) TimeRemaining(now time.Time) time.Duration {
	if p.Status != StatusPending {
		return 0
	}
	remaining := p.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
