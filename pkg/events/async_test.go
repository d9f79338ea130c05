package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowPublisher struct {
	delay time.Duration
	calls atomic.Int32
}

func (s *slowPublisher) Publish(ctx context.Context, ev Event) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	s.calls.Add(1)
	return nil
}

func TestAsyncDoesNotBlock(t *testing.T) {
	slow := &slowPublisher{delay: 50 * time.Millisecond}
	a := NewAsync(slow, time.Second)

	start := time.Now()
	require.NoError(t, a.Publish(context.Background(), Event{Type: StateChanged, SessionID: "s1"}))
	assert.Less(t, time.Since(start), 40*time.Millisecond)

	a.Wait()
	assert.Equal(t, int32(1), slow.calls.Load())
}

func TestAsyncSurvivesCancelledCaller(t *testing.T) {
	slow := &slowPublisher{delay: 10 * time.Millisecond}
	a := NewAsync(slow, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Publish(ctx, Event{Type: StateChanged}))
	cancel()

	a.Wait()
	assert.Equal(t, int32(1), slow.calls.Load())
}

func TestAsyncSwallowsErrors(t *testing.T) {
	a := NewAsync(failingPublisher{err: errors.New("down")}, time.Second)
	assert.NoError(t, a.Publish(context.Background(), Event{Type: PendingCreated}))
	a.Wait()
}

func TestEnsureAsync(t *testing.T) {
	a := NewAsync(nil, 0)
	assert.Same(t, a, EnsureAsync(a))
	assert.NotNil(t, EnsureAsync(Discard{}))
}
