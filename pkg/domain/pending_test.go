package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from PendingStatus
		to   PendingStatus
		ok   bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusExpired, true},
		{StatusPending, StatusExecuted, false},
		{StatusApproved, StatusExecuted, true},
		{StatusApproved, StatusFailed, true},
		{StatusApproved, StatusPending, false},
		{StatusRejected, StatusApproved, false},
		{StatusExpired, StatusApproved, false},
		{StatusExecuted, StatusPending, false},
		{StatusFailed, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestPendingStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
	for _, s := range []PendingStatus{StatusRejected, StatusExpired, StatusExecuted, StatusFailed} {
		assert.True(t, s.IsTerminal(), s)
	}
}

func TestPendingAction_Transition(t *testing.T) {
	action := &PendingAction{Status: StatusPending}

	require.NoError(t, action.Transition(StatusApproved))
	require.NoError(t, action.Transition(StatusExecuted))

	err := action.Transition(StatusPending)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusExecuted, action.Status)
}

func TestPendingAction_Expiry(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	action := &PendingAction{
		Status:    StatusPending,
		CreatedAt: created,
		ExpiresAt: created.Add(DefaultApprovalExpiry),
	}

	assert.False(t, action.IsExpired(created.Add(time.Minute)))
	assert.Equal(t, 4*time.Minute, action.TimeRemaining(created.Add(time.Minute)))

	assert.True(t, action.IsExpired(created.Add(5*time.Minute)))
	assert.Equal(t, time.Duration(0), action.TimeRemaining(created.Add(10*time.Minute)))

	action.Status = StatusRejected
	assert.False(t, action.IsExpired(created.Add(time.Hour)))
}
