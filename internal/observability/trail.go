package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TrailEvent is one operator-facing record: who reviewed, rewound or asked
// for a recommendation. Tool executions themselves live in the audit ledger.
type TrailEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// Trail writes TrailEvents as JSON lines.
type Trail struct {
	logger zerolog.Logger
	mu     sync.Mutex
	closer io.Closer
}

var (
	trailMu   sync.RWMutex
	trailInst *Trail
)

// GetTrail returns the process trail, writing to stderr until InitTrail is called.
func GetTrail() *Trail {
	trailMu.RLock()
	t := trailInst
	trailMu.RUnlock()
	if t != nil {
		return t
	}

	trailMu.Lock()
	defer trailMu.Unlock()
	if trailInst == nil {
		trailInst = NewTrail(os.Stderr)
	}
	return trailInst
}

// NewTrail creates a trail on w.
func NewTrail(w io.Writer) *Trail {
	t := &Trail{logger: zerolog.New(w).With().Timestamp().Logger()}
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		t.closer = c
	}
	return t
}

// InitTrail points the process trail at an append-only file.
func InitTrail(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	trailMu.Lock()
	trailInst = NewTrail(file)
	trailMu.Unlock()
	return nil
}

// Record writes an event and mirrors it onto the active span, if any.
func (t *Trail) Record(ctx context.Context, event TrailEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("trail.type", event.Type),
			attribute.String("trail.status", event.Status),
			attribute.String("trail.actor", event.Actor),
		))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.logger.Log().
		Str("type", event.Type).
		Str("session_id", event.SessionID).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the trail's file handle.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// RecordReview records an approval, rejection or expiry.
func RecordReview(ctx context.Context, sessionID, actionID, reviewer, status string, metadata map[string]interface{}) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["action_id"] = actionID
	GetTrail().Record(ctx, TrailEvent{
		Type:      "review",
		SessionID: sessionID,
		Actor:     reviewer,
		Action:    "review:" + status,
		Status:    status,
		Metadata:  metadata,
	})
}

// RecordRewindTrail records a rewind request.
func RecordRewindTrail(ctx context.Context, sessionID, actor, status string, metadata map[string]interface{}) {
	GetTrail().Record(ctx, TrailEvent{
		Type:      "rewind",
		SessionID: sessionID,
		Actor:     actor,
		Action:    "rewind",
		Status:    status,
		Metadata:  metadata,
	})
}

// RecordRecommendation records a decision engine's output and reasoning.
func RecordRecommendation(ctx context.Context, sessionID, engine string, metadata map[string]interface{}) {
	GetTrail().Record(ctx, TrailEvent{
		Type:      "decision",
		SessionID: sessionID,
		Actor:     engine,
		Action:    "recommend:" + engine,
		Status:    "success",
		Metadata:  metadata,
	})
}
