package catalog

import (
	"context"
	"time"

	"github.com/harun/tablekeeper/pkg/domain"
)

// Call is what a handler receives: the validated parameters, the scope of
// the call and the open unit of work.
type Call struct {
	Tx          domain.Tx
	SessionID   string
	CharacterID string
	UserID      string
	Params      Params
	Now         time.Time
}

// Result is the uniform handler output.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    domain.Document `json:"data,omitempty"`
}

// Document flattens the result into {success, message, ...data}.
func (r Result) Document() domain.Document {
	doc := domain.Document{}
	for k, v := range r.Data {
		doc[k] = v
	}
	doc["success"] = r.Success
	doc["message"] = r.Message
	return doc
}

// OK builds a successful result.
func OK(message string, data domain.Document) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Handler executes one tool inside the executor's transaction.
//
// Domain failures (not enough gold, unknown quest) are returned as
// domain.HandlerError or as a Result with Success=false; any other error is
// treated as an internal failure. Both roll the transaction back.
type Handler interface {
	Execute(ctx context.Context, call Call) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, call Call) (Result, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, call Call) (Result, error) {
	return f(ctx, call)
}

// Tool pairs a definition with its handler.
type Tool struct {
	Definition ToolDefinition
	Handler    Handler
}
