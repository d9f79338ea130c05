package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/tablekeeper/internal/observability"
	"github.com/harun/tablekeeper/internal/tracing"
	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/events"
)

// Queue stores approval-gated calls. The approval workflow implements it.
type Queue interface {
	// Enqueue persists a new pending action, filling ID, status and times.
	Enqueue(ctx context.Context, action *domain.PendingAction) error
}

// Config holds the executor's collaborators.
type Config struct {
	Registry   *catalog.Registry
	Store      domain.Store
	Publisher  events.Publisher
	Suggester  Suggester
	LockPolicy *LockPolicy
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

// Executor runs tool calls.
type Executor struct {
	registry  *catalog.Registry
	store     domain.Store
	publisher *events.Async
	suggester Suggester
	lock      *LockPolicy
	clock     func() time.Time

	mu    sync.RWMutex
	queue Queue
}

// New creates an executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}

	e := &Executor{
		registry:  cfg.Registry,
		store:     cfg.Store,
		publisher: events.EnsureAsync(cfg.Publisher),
		suggester: cfg.Suggester,
		lock:      cfg.LockPolicy,
		clock:     cfg.Clock,
	}
	if e.lock == nil {
		e.lock = NewLockPolicy(nil, nil)
	}
	if e.clock == nil {
		e.clock = func() time.Time { return time.Now().UTC() }
	}
	return e, nil
}

// SetQueue wires the approval workflow.
func (e *Executor) SetQueue(q Queue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = q
}

// Registry returns the tool catalog the executor dispatches against.
func (e *Executor) Registry() *catalog.Registry {
	return e.registry
}

// Wait blocks until background notifications have been handed off.
func (e *Executor) Wait() {
	e.publisher.Wait()
}

// Execute runs one tool call. See the package documentation for the flow.
func (e *Executor) Execute(ctx context.Context, toolName string, params map[string]interface{}, opts Options) (res Result) {
	start := time.Now()
	ctx = tracing.WithSessionID(ctx, opts.SessionID)
	if opts.UserID != "" {
		ctx = tracing.WithActor(ctx, opts.UserID)
	}
	ctx, span := tracing.StartSpan(ctx, "executor.Execute",
		attribute.String("tool", toolName),
		attribute.String("session_id", opts.SessionID),
		attribute.String("character_id", opts.CharacterID),
	)
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().
		Str("tool", toolName).
		Str("character_id", opts.CharacterID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered panic at executor boundary")
			observability.RecordToolPanic(toolName)
			res = e.internalFailure(toolName, fmt.Errorf("panic: %v", r))
		}
		res.ToolName = toolName
		res.ExecutionTime = time.Since(start)
		span.SetAttributes(
			attribute.Bool("success", res.Success),
			attribute.Bool("queued", res.Queued),
			attribute.String("error_kind", string(res.ErrorKind)),
		)
		tracing.EndSpan(span, res.Err())
	}()

	tool, ok := e.registry.Lookup(toolName)
	if !ok {
		logger.Warn().Msg("Tool not found")
		return e.refuse(KindUnknownTool, domain.ErrUnknownTool, fmt.Sprintf("unknown tool: %s", toolName))
	}
	def := tool.Definition

	if v := e.registry.Validate(def, params); !v.Valid {
		logger.Warn().Str("error", v.Error).Msg("Parameter validation failed")
		return e.refuse(KindInvalidParameters, domain.ErrInvalidParameters, v.Error)
	}
	if opts.SessionID == "" || opts.CharacterID == "" {
		return e.refuse(KindInvalidParameters, domain.ErrInvalidParameters, "session id and character id are required")
	}

	character, err := e.store.Characters().Get(ctx, opts.CharacterID)
	if err != nil || character.SessionID != opts.SessionID {
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			return e.refuse(KindNotFound, domain.ErrNotFound,
				fmt.Sprintf("character %s not found in session %s", opts.CharacterID, opts.SessionID))
		}
		logger.Error().Err(err).Msg("Failed to load character")
		return e.internalFailure(toolName, err)
	}

	if e.lock.Blocks(def, character, opts) {
		logger.Info().Msg("Tool blocked by gameplay lock")
		return e.refuse(KindLocked, domain.ErrCharacterLocked, fmt.Sprintf(
			"%s is blocked while %s is locked for gameplay; resubmit with approval requested",
			toolName, character.Name))
	}

	if (def.ApprovalRequired || opts.RequestApproval) && !opts.SkipApproval {
		return e.enqueue(ctx, logger, def, params, opts)
	}

	return e.executeImmediately(ctx, logger, tool, params, opts, start)
}

func (e *Executor) refuse(kind ErrorKind, sentinel error, msg string) Result {
	observability.RecordToolRejected(string(kind))
	return Result{
		Success:   false,
		Error:     msg,
		ErrorKind: kind,
		err:       fmt.Errorf("%w: %s", sentinel, msg),
	}
}

func (e *Executor) internalFailure(toolName string, err error) Result {
	observability.RecordToolError(toolName, string(KindInternal))
	return Result{
		Success:   false,
		Error:     fmt.Sprintf("internal error while executing %s", toolName),
		ErrorKind: KindInternal,
		err:       &internalError{msg: err.Error()},
	}
}

func (e *Executor) enqueue(ctx context.Context, logger zerolog.Logger, def catalog.ToolDefinition, params map[string]interface{}, opts Options) Result {
	e.mu.RLock()
	queue := e.queue
	e.mu.RUnlock()
	if queue == nil {
		logger.Error().Msg("Approval required but no approval queue is configured")
		return e.internalFailure(def.Name, errors.New("approval queue not configured"))
	}

	action := &domain.PendingAction{
		SessionID:        opts.SessionID,
		CharacterID:      opts.CharacterID,
		RequestingUserID: opts.UserID,
		ToolName:         def.Name,
		Parameters:       domain.Document(params),
		Description:      catalog.Describe(def, params),
		Reasoning:        opts.Reasoning,
		ConversationTurn: opts.ConversationTurn,
		BatchID:          opts.BatchID,
		BatchOrder:       opts.BatchOrder,
	}
	if err := queue.Enqueue(ctx, action); err != nil {
		logger.Error().Err(err).Msg("Failed to queue tool call for approval")
		return e.internalFailure(def.Name, err)
	}

	logger.Info().Str("action_id", action.ID).Msg("Tool call queued for approval")
	return Result{
		Success:     true,
		Queued:      true,
		ActionID:    action.ID,
		Description: action.Description,
		Message:     "Awaiting player approval: " + action.Description,
	}
}

// errHandlerReported marks a handler that returned Success=false without an error.
var errHandlerReported = errors.New("handler reported failure")

type panicError struct {
	value interface{}
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("handler panic: %v", p.value) }

func (e *Executor) executeImmediately(ctx context.Context, logger zerolog.Logger, tool catalog.Tool, params map[string]interface{}, opts Options, start time.Time) Result {
	def := tool.Definition
	callParams := catalog.ApplyDefaults(def, params)
	trigger := opts.TriggerSource
	if trigger == "" {
		trigger = domain.TriggerAI
	}

	var (
		before     *domain.StateSnapshot
		handlerRes catalog.Result
		handlerErr error
		record     *domain.AuditRecord
	)

	txErr := e.store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		c, err := tx.Characters().Get(ctx, opts.CharacterID)
		if err != nil {
			return fmt.Errorf("load character: %w", err)
		}
		snap := c.Snapshot()
		before = &snap

		now := e.clock()
		handlerRes, handlerErr = invoke(ctx, tool.Handler, catalog.Call{
			Tx:          tx,
			SessionID:   opts.SessionID,
			CharacterID: opts.CharacterID,
			UserID:      opts.UserID,
			Params:      callParams,
			Now:         now,
		})
		if handlerErr != nil {
			return handlerErr
		}
		if !handlerRes.Success {
			return errHandlerReported
		}

		c, err = tx.Characters().Get(ctx, opts.CharacterID)
		if err != nil {
			return fmt.Errorf("reload character: %w", err)
		}
		after := c.Snapshot()

		record = e.newRecord(def.Name, params, opts, trigger, now)
		record.Result = handlerRes.Document()
		record.StateBefore = before
		record.StateAfter = &after
		record.ExecutionStatus = domain.ExecutionExecuted
		record.ExecutionTimeMs = time.Since(start).Milliseconds()
		return tx.Audit().Append(ctx, record)
	})

	duration := time.Since(start)
	if txErr == nil {
		observability.RecordToolExecution(def.Name, duration, true)
		logger.Info().Str("audit_id", record.ID).Dur("duration", duration).Msg("Tool executed")

		res := Result{
			Success: true,
			Message: handlerRes.Message,
			Data:    handlerRes.Data,
			AuditID: record.ID,
		}
		e.notify(ctx, events.Event{
			Type:        events.StateChanged,
			SessionID:   opts.SessionID,
			CharacterID: opts.CharacterID,
			Payload: domain.Document{
				"tool":         def.Name,
				"audit_id":     record.ID,
				"state_before": record.StateBefore,
				"state_after":  record.StateAfter,
				"message":      handlerRes.Message,
			},
		})
		res.Suggestions = e.suggest(ctx, logger, def, handlerRes)
		return res
	}

	observability.RecordToolExecution(def.Name, duration, false)

	kind := KindInternal
	msg := fmt.Sprintf("internal error while executing %s", def.Name)
	resultErr := txErr
	switch {
	case domain.IsHandlerError(handlerErr):
		kind = KindHandlerFailure
		msg = handlerErr.Error()
	case errors.Is(txErr, errHandlerReported):
		kind = KindHandlerFailure
		msg = handlerRes.Message
		if msg == "" {
			msg = def.Name + " failed"
		}
		resultErr = &domain.HandlerError{Kind: domain.ErrRuleViolation, Message: msg}
	default:
		var pe *panicError
		if errors.As(txErr, &pe) {
			logger.Error().Interface("panic", pe.value).Bytes("stack", pe.stack).Msg("Recovered handler panic")
			observability.RecordToolPanic(def.Name)
		} else {
			logger.Error().Err(txErr).Msg("Tool execution failed with internal error")
		}
		resultErr = &internalError{msg: txErr.Error()}
	}
	observability.RecordToolError(def.Name, string(kind))
	if kind == KindHandlerFailure {
		logger.Info().Str("error", msg).Msg("Tool handler reported failure")
	}

	res := Result{Success: false, Error: msg, ErrorKind: kind, Data: handlerRes.Data, err: resultErr}
	if before != nil {
		res.AuditID = e.recordFailure(ctx, logger, def.Name, params, opts, trigger, before, msg, start)
	}
	return res
}

// recordFailure appends a failed audit record in its own unit of work. The
// mutation was rolled back, so the after snapshot is the before snapshot.
func (e *Executor) recordFailure(ctx context.Context, logger zerolog.Logger, toolName string, params map[string]interface{}, opts Options, trigger domain.TriggerSource, before *domain.StateSnapshot, msg string, start time.Time) string {
	after := before.Clone()
	record := e.newRecord(toolName, params, opts, trigger, e.clock())
	record.Result = domain.Document{"success": false, "message": msg}
	record.StateBefore = before
	record.StateAfter = &after
	record.ExecutionStatus = domain.ExecutionFailed
	record.ErrorMessage = msg
	record.ExecutionTimeMs = time.Since(start).Milliseconds()

	err := e.store.Atomic(context.WithoutCancel(ctx), func(ctx context.Context, tx domain.Tx) error {
		return tx.Audit().Append(ctx, record)
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to record failed tool execution")
		return ""
	}
	return record.ID
}

func (e *Executor) newRecord(toolName string, params map[string]interface{}, opts Options, trigger domain.TriggerSource, now time.Time) *domain.AuditRecord {
	return &domain.AuditRecord{
		ID:               newAuditID(),
		SessionID:        opts.SessionID,
		CharacterID:      opts.CharacterID,
		ToolName:         toolName,
		Parameters:       domain.Document(params),
		TriggerSource:    trigger,
		ConversationTurn: opts.ConversationTurn,
		BatchID:          opts.BatchID,
		BatchOrder:       opts.BatchOrder,
		PendingActionID:  opts.PendingActionID,
		CreatedAt:        now,
	}
}

// newAuditID returns a time-ordered id so records created in the same clock
// tick still sort by creation.
func newAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func invoke(ctx context.Context, h catalog.Handler, call catalog.Call) (res catalog.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return h.Execute(ctx, call)
}

func (e *Executor) suggest(ctx context.Context, logger zerolog.Logger, def catalog.ToolDefinition, res catalog.Result) (out []string) {
	if e.suggester == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Interface("panic", r).Msg("Suggester panicked")
			out = nil
		}
	}()
	suggestions, err := e.suggester.Suggest(ctx, def, res)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to build suggestions")
		return nil
	}
	return suggestions
}

func (e *Executor) notify(ctx context.Context, ev events.Event) {
	_ = e.publisher.Publish(ctx, ev)
}
