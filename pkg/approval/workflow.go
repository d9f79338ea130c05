package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/tablekeeper/internal/observability"
	"github.com/harun/tablekeeper/internal/tracing"
	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/events"
	"github.com/harun/tablekeeper/pkg/executor"
)

// Runner re-executes an approved tool call. *executor.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, toolName string, params map[string]interface{}, opts executor.Options) executor.Result
}

// Config holds the workflow's collaborators.
type Config struct {
	Store     domain.Store
	Runner    Runner
	Publisher events.Publisher
	// Expiry is the review window. Zero selects domain.DefaultApprovalExpiry.
	Expiry time.Duration
	Clock  func() time.Time
}

// Workflow manages pending actions.
type Workflow struct {
	store     domain.Store
	runner    Runner
	publisher *events.Async
	expiry    atomic.Int64
	clock     func() time.Time
}

// New creates a workflow.
func New(cfg Config) (*Workflow, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}

	w := &Workflow{
		store:     cfg.Store,
		runner:    cfg.Runner,
		publisher: events.EnsureAsync(cfg.Publisher),
		clock:     cfg.Clock,
	}
	w.SetExpiry(cfg.Expiry)
	if w.clock == nil {
		w.clock = func() time.Time { return time.Now().UTC() }
	}
	return w, nil
}

// Expiry returns the configured review window.
func (w *Workflow) Expiry() time.Duration {
	return time.Duration(w.expiry.Load())
}

// SetExpiry changes the review window for actions enqueued from now on.
// Zero or less selects domain.DefaultApprovalExpiry.
func (w *Workflow) SetExpiry(d time.Duration) {
	if d <= 0 {
		d = domain.DefaultApprovalExpiry
	}
	w.expiry.Store(int64(d))
}

// Wait blocks until background notifications have been handed off.
func (w *Workflow) Wait() {
	w.publisher.Wait()
}

// Enqueue stores a new pending action. It implements executor.Queue.
func (w *Workflow) Enqueue(ctx context.Context, action *domain.PendingAction) error {
	if action.SessionID == "" || action.ToolName == "" {
		return fmt.Errorf("%w: pending action needs a session and a tool", domain.ErrInvalidParameters)
	}

	now := w.clock()
	action.ID = uuid.NewString()
	action.Status = domain.StatusPending
	action.CreatedAt = now
	action.ExpiresAt = now.Add(w.Expiry())
	action.ReviewedAt = nil

	if err := w.store.PendingActions().Create(ctx, action); err != nil {
		return fmt.Errorf("failed to store pending action: %w", err)
	}

	observability.RecordPendingCreated(action.ToolName)
	log.Info().
		Str("action_id", action.ID).
		Str("session_id", action.SessionID).
		Str("tool", action.ToolName).
		Time("expires_at", action.ExpiresAt).
		Msg("Pending action created")

	w.notify(ctx, events.PendingCreated, action)
	return nil
}

// Get returns a pending action by id.
func (w *Workflow) Get(ctx context.Context, id string) (*domain.PendingAction, error) {
	return w.store.PendingActions().Get(ctx, id)
}

// Approve runs a pending action on behalf of reviewer. The returned action
// always ends executed or failed; the executor result says why. Approving a
// terminal action returns ErrInvalidTransition, an expired one
// ErrActionExpired.
func (w *Workflow) Approve(ctx context.Context, id, reviewer string) (action *domain.PendingAction, res executor.Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Approve",
		attribute.String("action_id", id),
		attribute.String("reviewer", reviewer),
	)
	defer func() { tracing.EndSpan(span, err) }()

	action, err = w.claim(ctx, id)
	if err != nil {
		return action, res, err
	}

	now := w.clock()
	action.ReviewedAt = &now
	action.ReviewedBy = reviewer
	if err := action.Transition(domain.StatusApproved); err != nil {
		return action, res, err
	}
	if err := w.store.PendingActions().Save(ctx, action, domain.StatusPending); err != nil {
		return action, res, fmt.Errorf("failed to approve %s: %w", id, err)
	}

	res = w.runner.Execute(ctx, action.ToolName, action.Parameters, executor.Options{
		SessionID:        action.SessionID,
		CharacterID:      action.CharacterID,
		UserID:           reviewer,
		Reasoning:        action.Reasoning,
		ConversationTurn: action.ConversationTurn,
		BatchID:          action.BatchID,
		BatchOrder:       action.BatchOrder,
		SkipApproval:     true,
		Force:            true,
		TriggerSource:    domain.TriggerPlayerApproval,
		PendingActionID:  action.ID,
	})

	final := domain.StatusExecuted
	if !res.Success {
		final = domain.StatusFailed
		action.ErrorMessage = res.Error
	}
	action.ExecutionResult = res.Document()
	if err := action.Transition(final); err != nil {
		return action, res, err
	}
	if err := w.store.PendingActions().Save(context.WithoutCancel(ctx), action, domain.StatusApproved); err != nil {
		log.Error().Err(err).Str("action_id", id).Msg("Failed to record approval outcome")
		return action, res, fmt.Errorf("failed to record outcome of %s: %w", id, err)
	}

	w.resolved(ctx, action, reviewer, map[string]interface{}{"tool": action.ToolName, "audit_id": res.AuditID})
	log.Info().
		Str("action_id", id).
		Str("reviewer", reviewer).
		Str("status", string(action.Status)).
		Msg("Pending action approved")
	return action, res, nil
}

// Reject closes a pending action without running it.
func (w *Workflow) Reject(ctx context.Context, id, reviewer, reason string) (*domain.PendingAction, error) {
	action, err := w.claim(ctx, id)
	if err != nil {
		return action, err
	}

	now := w.clock()
	action.ReviewedAt = &now
	action.ReviewedBy = reviewer
	action.RejectionReason = reason
	if err := action.Transition(domain.StatusRejected); err != nil {
		return action, err
	}
	if err := w.store.PendingActions().Save(ctx, action, domain.StatusPending); err != nil {
		return action, fmt.Errorf("failed to reject %s: %w", id, err)
	}

	w.resolved(ctx, action, reviewer, map[string]interface{}{"tool": action.ToolName, "reason": reason})
	log.Info().Str("action_id", id).Str("reviewer", reviewer).Msg("Pending action rejected")
	return action, nil
}

// claim loads an action that is still open for review, expiring it first
// when its window has passed.
func (w *Workflow) claim(ctx context.Context, id string) (*domain.PendingAction, error) {
	action, err := w.store.PendingActions().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pending action %s: %w", id, err)
	}

	if action.IsExpired(w.clock()) {
		if err := w.expire(ctx, action); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return action, err
		}
		return action, fmt.Errorf("%w: %s expired at %s", domain.ErrActionExpired, id, action.ExpiresAt.Format(time.RFC3339))
	}

	switch action.Status {
	case domain.StatusPending:
		return action, nil
	case domain.StatusExpired:
		return action, fmt.Errorf("%w: %s expired at %s", domain.ErrActionExpired, id, action.ExpiresAt.Format(time.RFC3339))
	default:
		return action, fmt.Errorf("%w: %s is already %s", domain.ErrInvalidTransition, id, action.Status)
	}
}

func (w *Workflow) expire(ctx context.Context, action *domain.PendingAction) error {
	if err := action.Transition(domain.StatusExpired); err != nil {
		return err
	}
	if err := w.store.PendingActions().Save(ctx, action, domain.StatusPending); err != nil {
		return err
	}
	w.resolved(ctx, action, "system", map[string]interface{}{"tool": action.ToolName})
	return nil
}

// Outcome is one step of BatchApprove.
type Outcome struct {
	Action *domain.PendingAction `json:"action"`
	Result executor.Result       `json:"result"`
	Error  string                `json:"error,omitempty"`
}

// Succeeded reports whether the step approved and executed cleanly.
func (o Outcome) Succeeded() bool {
	return o.Error == "" && o.Result.Success
}

// BatchApprove approves ids in their recorded batch order and stops after
// the first step that does not execute. Later actions stay pending.
func (w *Workflow) BatchApprove(ctx context.Context, ids []string, reviewer string) ([]Outcome, error) {
	actions := make([]*domain.PendingAction, 0, len(ids))
	for _, id := range ids {
		a, err := w.store.PendingActions().Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("pending action %s: %w", id, err)
		}
		actions = append(actions, a)
	}
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].BatchOrder != actions[j].BatchOrder {
			return actions[i].BatchOrder < actions[j].BatchOrder
		}
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})

	outcomes := make([]Outcome, 0, len(actions))
	for _, a := range actions {
		action, res, err := w.Approve(ctx, a.ID, reviewer)
		if action == nil {
			action = a
		}
		out := Outcome{Action: action, Result: res}
		if err != nil {
			out.Error = err.Error()
		}
		outcomes = append(outcomes, out)
		if !out.Succeeded() {
			log.Info().Str("action_id", a.ID).Msg("Batch approval halted")
			break
		}
	}
	return outcomes, nil
}

// SweepExpired expires every pending action whose window has passed and
// returns how many changed.
func (w *Workflow) SweepExpired(ctx context.Context) (int, error) {
	stale, err := w.store.PendingActions().ListStale(ctx, w.clock())
	if err != nil {
		return 0, fmt.Errorf("failed to list stale pending actions: %w", err)
	}

	expired := 0
	for _, a := range stale {
		if err := w.expire(ctx, a); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return expired, fmt.Errorf("failed to expire %s: %w", a.ID, err)
		}
		expired++
	}
	if expired > 0 {
		log.Info().Int("expired", expired).Msg("Expired stale pending actions")
	}
	return expired, nil
}

// View is a pending action as a reviewer sees it.
type View struct {
	*domain.PendingAction
	TimeRemaining time.Duration `json:"time_remaining"`
}

// List returns a session's actions, oldest first. An empty status lists all.
func (w *Workflow) List(ctx context.Context, sessionID string, status domain.PendingStatus) ([]View, error) {
	actions, err := w.store.PendingActions().ListBySession(ctx, sessionID, status)
	if err != nil {
		return nil, err
	}

	now := w.clock()
	views := make([]View, 0, len(actions))
	open := 0
	for _, a := range actions {
		if a.Status == domain.StatusPending {
			open++
		}
		views = append(views, View{PendingAction: a, TimeRemaining: a.TimeRemaining(now)})
	}
	if status == "" || status == domain.StatusPending {
		observability.SetPendingOpen(sessionID, open)
	}
	return views, nil
}

func (w *Workflow) resolved(ctx context.Context, action *domain.PendingAction, actor string, metadata map[string]interface{}) {
	observability.RecordPendingResolved(string(action.Status))
	observability.RecordReview(ctx, action.SessionID, action.ID, actor, string(action.Status), metadata)
	w.notify(ctx, events.PendingResolved, action)
}

func (w *Workflow) notify(ctx context.Context, t events.Type, action *domain.PendingAction) {
	payload := domain.Document{
		"action_id":   action.ID,
		"tool":        action.ToolName,
		"status":      string(action.Status),
		"description": action.Description,
		"expires_at":  action.ExpiresAt,
	}
	if action.ErrorMessage != "" {
		payload["error"] = action.ErrorMessage
	}
	if action.RejectionReason != "" {
		payload["reason"] = action.RejectionReason
	}
	_ = w.publisher.Publish(ctx, events.Event{
		Type:        t,
		SessionID:   action.SessionID,
		CharacterID: action.CharacterID,
		Payload:     payload,
	})
}
