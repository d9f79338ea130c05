package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/tablekeeper/internal/observability"
)

// DefaultPublishTimeout bounds one background publish.
const DefaultPublishTimeout = 5 * time.Second

// Async publishes on a background goroutine so callers never wait on the
// transport. Failures are logged and counted, then dropped.
type Async struct {
	next    Publisher
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsync wraps next. A nil next drops everything.
func NewAsync(next Publisher, timeout time.Duration) *Async {
	if next == nil {
		next = Discard{}
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Async{next: next, timeout: timeout}
}

// EnsureAsync returns p unchanged if it already is an *Async.
func EnsureAsync(p Publisher) *Async {
	if a, ok := p.(*Async); ok {
		return a
	}
	return NewAsync(p, DefaultPublishTimeout)
}

// Publish implements Publisher. It returns immediately; ctx only seeds
// values, not cancellation, since the caller's request may end first.
func (a *Async) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("event", string(ev.Type)).Msg("Event publisher panicked")
				observability.RecordEventDropped(string(ev.Type))
			}
		}()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		if err := a.next.Publish(pubCtx, ev); err != nil {
			log.Warn().Err(err).
				Str("event", string(ev.Type)).
				Str("session_id", ev.SessionID).
				Msg("Failed to publish event")
			observability.RecordEventDropped(string(ev.Type))
		}
	}()
	return nil
}

// Wait blocks until every background publish has finished.
func (a *Async) Wait() {
	a.wg.Wait()
}
