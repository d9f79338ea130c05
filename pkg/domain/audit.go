package domain

import "time"

// ExecutionStatus is the outcome recorded on an AuditRecord.
type ExecutionStatus string

const (
	ExecutionExecuted   ExecutionStatus = "executed"
	ExecutionRolledBack ExecutionStatus = "rolled_back"
	ExecutionFailed     ExecutionStatus = "failed"
)

// TriggerSource records who caused a tool call to run.
type TriggerSource string

const (
	TriggerAI             TriggerSource = "ai"
	TriggerPlayerApproval TriggerSource = "player_approval"
)

// AuditRecord describes one executed or failed tool call. Records of a
// session are totally ordered by (CreatedAt, ID); that order is the rewind
// stack.
type AuditRecord struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"session_id"`
	CharacterID      string          `json:"character_id"`
	ToolName         string          `json:"tool_name"`
	Parameters       Document        `json:"parameters"`
	Result           Document        `json:"result"`
	StateBefore      *StateSnapshot  `json:"state_before"`
	StateAfter       *StateSnapshot  `json:"state_after"`
	ExecutionStatus  ExecutionStatus `json:"execution_status"`
	TriggerSource    TriggerSource   `json:"trigger_source"`
	ConversationTurn int             `json:"conversation_turn"`
	ExecutionTimeMs  int64           `json:"execution_time_ms"`
	BatchID          string          `json:"batch_id,omitempty"`
	BatchOrder       int             `json:"batch_order"`
	PendingActionID  string          `json:"pending_action_id,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	RollbackReason   string          `json:"rollback_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Before reports whether r sorts strictly before other in ledger order.
func (r *AuditRecord) Before(other *AuditRecord) bool {
	if !r.CreatedAt.Equal(other.CreatedAt) {
		return r.CreatedAt.Before(other.CreatedAt)
	}
	return r.ID < other.ID
}
