package executor

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// NewBatchID returns a short id grouping the steps of a compound action.
func NewBatchID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return newAuditID()
	}
	return "batch_" + id
}

// ExecuteBatch runs calls in order under one batch id and stops at the first
// step that does not succeed. Queued steps count as successful; steps before
// a failure are not undone.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []BatchCall, opts Options) BatchResult {
	batchID := opts.BatchID
	if batchID == "" {
		batchID = NewBatchID()
	}

	out := BatchResult{BatchID: batchID, Success: true, Results: make([]Result, 0, len(calls))}
	for i, call := range calls {
		stepOpts := opts
		stepOpts.BatchID = batchID
		stepOpts.BatchOrder = i

		res := e.Execute(ctx, call.ToolName, call.Parameters, stepOpts)
		out.Results = append(out.Results, res)
		if !res.Success {
			out.Success = false
			log.Info().
				Str("batch_id", batchID).
				Int("step", i).
				Str("tool", call.ToolName).
				Msg("Batch halted at failing step")
			break
		}
	}
	return out
}
