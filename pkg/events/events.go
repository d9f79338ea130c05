// Package events carries best-effort session notifications. Delivery is
// at-most-once: a lost event never affects stored state.
package events

import (
	"context"
	"time"

	"github.com/harun/tablekeeper/pkg/domain"
)

// Type names an event.
type Type string

const (
	// StateChanged is published after a tool call commits.
	StateChanged Type = "state.changed"
	// PendingCreated is published when a tool call is queued for approval.
	PendingCreated Type = "pending.created"
	// PendingResolved is published when a pending action is approved,
	// rejected or expired.
	PendingResolved Type = "pending.resolved"
	// SessionRewound is published after a rewind.
	SessionRewound Type = "session.rewound"
)

// Event is one notification for a session's subscribers.
type Event struct {
	Type        Type            `json:"type"`
	SessionID   string          `json:"session_id"`
	CharacterID string          `json:"character_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     domain.Document `json:"payload,omitempty"`
}

// Publisher delivers events. Implementations must not block for long; the
// executor calls Publish off the request path.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Discard is a Publisher that drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) error { return nil }

// Multi fans one event out to several publishers. Every publisher is tried;
// the first error is returned.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
