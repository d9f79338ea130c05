package executor

import (
	"time"

	"github.com/harun/tablekeeper/pkg/domain"
)

// ErrorKind classifies a failed Result.
type ErrorKind string

const (
	KindUnknownTool       ErrorKind = "unknown_tool"
	KindInvalidParameters ErrorKind = "invalid_parameters"
	KindNotFound          ErrorKind = "not_found"
	KindLocked            ErrorKind = "locked"
	KindHandlerFailure    ErrorKind = "handler_failure"
	KindInternal          ErrorKind = "internal"
)

// Options scopes one tool call.
type Options struct {
	SessionID        string
	CharacterID      string
	UserID           string
	Reasoning        string
	ConversationTurn int
	BatchID          string
	BatchOrder       int

	// SkipApproval runs an approval-required tool immediately. The approval
	// workflow sets it when re-executing an approved action.
	SkipApproval bool
	// Force bypasses the gameplay lock policy.
	Force bool
	// RequestApproval queues any tool for review, including tools the lock
	// policy would otherwise refuse.
	RequestApproval bool

	TriggerSource   domain.TriggerSource
	PendingActionID string
}

// Result is the outcome of one Execute call.
type Result struct {
	Success bool `json:"success"`
	// Queued is set when the call was stored as a pending action instead of
	// running. Nothing was mutated and no audit record exists yet.
	Queued      bool   `json:"queued,omitempty"`
	ActionID    string `json:"action_id,omitempty"`
	Description string `json:"description,omitempty"`

	ToolName      string          `json:"tool_name"`
	Message       string          `json:"message,omitempty"`
	Data          domain.Document `json:"data,omitempty"`
	Error         string          `json:"error,omitempty"`
	ErrorKind     ErrorKind       `json:"error_kind,omitempty"`
	AuditID       string          `json:"audit_id,omitempty"`
	Suggestions   []string        `json:"suggestions,omitempty"`
	ExecutionTime time.Duration   `json:"execution_time"`

	err error
}

// Err returns the error behind a failed result; errors.Is matches the domain
// sentinels.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	switch r.ErrorKind {
	case KindUnknownTool:
		return domain.ErrUnknownTool
	case KindInvalidParameters:
		return domain.ErrInvalidParameters
	case KindNotFound:
		return domain.ErrNotFound
	case KindLocked:
		return domain.ErrCharacterLocked
	}
	return &internalError{msg: r.Error}
}

// Document renders the result for storage on a pending action.
func (r Result) Document() domain.Document {
	doc := domain.Document{"success": r.Success}
	for k, v := range r.Data {
		doc[k] = v
	}
	if r.Message != "" {
		doc["message"] = r.Message
	}
	if r.Error != "" {
		doc["error"] = r.Error
	}
	if r.AuditID != "" {
		doc["audit_id"] = r.AuditID
	}
	return doc
}

type internalError struct{ msg string }

func (e *internalError) Error() string { return e.msg }

// BatchCall is one step of a compound action.
type BatchCall struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// BatchResult aggregates the steps of ExecuteBatch.
type BatchResult struct {
	BatchID string   `json:"batch_id"`
	Success bool     `json:"success"`
	Results []Result `json:"results"`
}
