// Package audit reads the tool-call ledger and rewinds sessions.
//
// Rewind restores the character snapshot fields only. Inventory, quest
// progress, NPCs and faction reputation changed by the rewound calls stay as
// they are, even though their records are marked rolled back.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/tablekeeper/internal/observability"
	"github.com/harun/tablekeeper/internal/tracing"
	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/events"
)

// Config holds the ledger's collaborators.
type Config struct {
	Store     domain.Store
	Publisher events.Publisher
}

// Ledger exposes history queries and rewind for one store.
type Ledger struct {
	store     domain.Store
	publisher *events.Async
}

// New creates a ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	return &Ledger{store: cfg.Store, publisher: events.EnsureAsync(cfg.Publisher)}, nil
}

// Wait blocks until background notifications have been handed off.
func (l *Ledger) Wait() {
	l.publisher.Wait()
}

// RewindableActions returns up to n executed records of a session, newest
// first. n <= 0 returns all of them.
func (l *Ledger) RewindableActions(ctx context.Context, sessionID string, n int) ([]*domain.AuditRecord, error) {
	return l.store.Audit().ListExecuted(ctx, sessionID, n)
}

// RewindTarget returns the executed record k positions back, k=0 being the
// most recent. ok is false when the history is shorter.
func (l *Ledger) RewindTarget(ctx context.Context, sessionID string, k int) (record *domain.AuditRecord, ok bool, err error) {
	if k < 0 {
		return nil, false, nil
	}
	records, err := l.store.Audit().ListExecuted(ctx, sessionID, k+1)
	if err != nil {
		return nil, false, err
	}
	if len(records) <= k {
		return nil, false, nil
	}
	return records[k], true, nil
}

// ExecutedByTool returns executed records of the given tools, newest first.
func (l *Ledger) ExecutedByTool(ctx context.Context, sessionID string, tools []string, limit int) ([]*domain.AuditRecord, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	return l.store.Audit().ListExecutedByTool(ctx, sessionID, tools, limit)
}

// History returns every record of a session, failed and rolled back ones
// included, newest first.
func (l *Ledger) History(ctx context.Context, sessionID string, limit int) ([]*domain.AuditRecord, error) {
	return l.store.Audit().List(ctx, sessionID, limit)
}

// StateAtTurn folds the executed records of one character up to and
// including a conversation turn. ok is false if no record qualifies.
func (l *Ledger) StateAtTurn(ctx context.Context, sessionID, characterID string, turn int) (snapshot domain.StateSnapshot, ok bool, err error) {
	records, err := l.store.Audit().ListExecutedThroughTurn(ctx, sessionID, turn)
	if err != nil {
		return snapshot, false, err
	}
	for _, r := range records {
		if r.CharacterID != characterID || r.StateAfter == nil {
			continue
		}
		snapshot = r.StateAfter.Clone()
		ok = true
	}
	return snapshot, ok, nil
}

// RewindRequest describes one rewind.
type RewindRequest struct {
	SessionID string
	// Steps counts executed records to undo, newest first. Must be >= 1.
	Steps  int
	Reason string
	Actor  string
}

// RewindResult reports what a rewind changed.
type RewindResult struct {
	Target     *domain.AuditRecord             `json:"target"`
	RolledBack int                             `json:"rolled_back"`
	Restored   map[string]domain.StateSnapshot `json:"restored"`
}

// Rewind undoes the last Steps executed records of a session. The character
// snapshots are restored in one unit of work; only once that has committed
// are the undone records marked rolled back. Asking for more steps than
// exist returns ErrRewindOutOfRange and changes nothing.
func (l *Ledger) Rewind(ctx context.Context, req RewindRequest) (result RewindResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Rewind",
		attribute.String("session_id", req.SessionID),
		attribute.Int("steps", req.Steps),
	)
	defer func() {
		tracing.EndSpan(span, err)
		observability.RecordRewind(err == nil, result.RolledBack)
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.RecordRewindTrail(ctx, req.SessionID, req.Actor, status, map[string]interface{}{
			"steps":       req.Steps,
			"reason":      req.Reason,
			"rolled_back": result.RolledBack,
		})
	}()

	available, err := l.store.Audit().CountExecuted(ctx, req.SessionID)
	if err != nil {
		return result, fmt.Errorf("failed to count rewindable actions: %w", err)
	}
	if req.Steps < 1 || req.Steps > available {
		return result, fmt.Errorf("%w: requested %d steps, %d available", domain.ErrRewindOutOfRange, req.Steps, available)
	}

	target, ok, err := l.RewindTarget(ctx, req.SessionID, req.Steps-1)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, fmt.Errorf("%w: requested %d steps, %d available", domain.ErrRewindOutOfRange, req.Steps, available)
	}
	result.Target = target

	restored := make(map[string]domain.StateSnapshot)
	err = l.store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		undone, err := tx.Audit().ListExecutedFrom(ctx, target)
		if err != nil {
			return err
		}
		// Oldest first: the first record seen per character holds the state
		// to go back to.
		for _, r := range undone {
			if _, seen := restored[r.CharacterID]; seen || r.StateBefore == nil {
				continue
			}
			restored[r.CharacterID] = r.StateBefore.Clone()
		}
		for characterID, snap := range restored {
			c, err := tx.Characters().Get(ctx, characterID)
			if err != nil {
				return fmt.Errorf("load character %s: %w", characterID, err)
			}
			c.Restore(snap)
			if err := tx.Characters().Update(ctx, c); err != nil {
				return fmt.Errorf("restore character %s: %w", characterID, err)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to restore state: %w", err)
	}
	result.Restored = restored

	reason := req.Reason
	if reason == "" {
		reason = "rewind"
	}
	err = l.store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		n, err := tx.Audit().MarkRolledBackFrom(ctx, target, reason)
		result.RolledBack = n
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("State restored but records could not be marked rolled back")
		return result, fmt.Errorf("failed to mark records rolled back: %w", err)
	}

	log.Info().
		Str("session_id", req.SessionID).
		Int("steps", req.Steps).
		Int("rolled_back", result.RolledBack).
		Str("target", target.ID).
		Msg("Session rewound")

	_ = l.publisher.Publish(ctx, events.Event{
		Type:      events.SessionRewound,
		SessionID: req.SessionID,
		Timestamp: time.Now().UTC(),
		Payload: domain.Document{
			"target_id":   target.ID,
			"steps":       req.Steps,
			"rolled_back": result.RolledBack,
			"reason":      reason,
		},
	})
	return result, nil
}
