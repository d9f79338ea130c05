package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// AllSessions subscribes to every session.
const AllSessions = "*"

// Handler receives events.
type Handler func(ev Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Broadcaster is an in-process Publisher that fans events out to
// subscribed handlers. Handlers run on their own goroutine.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
	wg     sync.WaitGroup
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string][]subscription)}
}

// Subscribe registers handler for a session (or AllSessions) and returns a
// function that removes it.
func (b *Broadcaster) Subscribe(sessionID string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[sessionID] = append(b.subs[sessionID], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[sessionID]
		for i, s := range subs {
			if s.id == id {
				b.subs[sessionID] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[sessionID]) == 0 {
			delete(b.subs, sessionID)
		}
	}
}

// Publish implements Publisher.
func (b *Broadcaster) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.SessionID])+len(b.subs[AllSessions]))
	for _, s := range b.subs[ev.SessionID] {
		handlers = append(handlers, s.handler)
	}
	if ev.SessionID != AllSessions {
		for _, s := range b.subs[AllSessions] {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	// Emit asynchronously to avoid blocking
	for _, handler := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("event", string(ev.Type)).Msg("Event handler panicked")
				}
			}()
			h(ev)
		}(handler)
	}
	return nil
}

// SubscriberCount returns the number of handlers for a session, excluding
// AllSessions handlers.
func (b *Broadcaster) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Wait blocks until every in-flight handler has returned.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}
