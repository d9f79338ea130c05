package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/events"
)

func stateChanged() events.Event {
	return events.Event{
		Type:        events.StateChanged,
		SessionID:   "s1",
		CharacterID: "c1",
		Payload: domain.Document{
			"tool":     "grant_gold",
			"audit_id": "a-1",
			"state_after": map[string]interface{}{
				"gold": 125,
			},
		},
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New([]Hook{{Event: " ", Script: "true"}}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New([]Hook{{Event: "state.changed", Script: ""}}, zerolog.Nop())
	assert.Error(t, err)

	p, err := New([]Hook{{Event: "state.changed", Script: "true"}, {Event: "*", Script: "true"}}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestPublish_ExposesEventToScript(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "env.txt")
	script := `echo "$TABLEKEEPER_EVENT_TYPE:$TABLEKEEPER_EVENT_SESSION_ID:$TABLEKEEPER_EVENT_DATA_TOOL:$TABLEKEEPER_EVENT_DATA_AUDIT_ID" > ` + outputPath

	p, err := New([]Hook{{ID: "log", Event: string(events.StateChanged), Script: script}}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), stateChanged()))

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "state.changed:s1:grant_gold:a-1\n", string(content))
}

func TestPublish_JSONCarriesNestedPayload(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "event.json")

	p, err := New([]Hook{{Event: "*", Script: `printf '%s' "$TABLEKEEPER_EVENT_JSON" > ` + outputPath}}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), stateChanged()))

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"state_after":{"gold":125}`)
}

func TestPublish_IgnoresOtherEvents(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "never.txt")

	p, err := New([]Hook{{Event: string(events.SessionRewound), Script: "touch " + outputPath}}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), stateChanged()))

	_, err = os.Stat(outputPath)
	assert.True(t, os.IsNotExist(err))
}

func TestPublish_ReturnsJoinedErrors(t *testing.T) {
	p, err := New([]Hook{
		{ID: "fail-1", Event: "state.changed", Script: "exit 2"},
		{ID: "fail-2", Event: "state.changed", Script: "exit 3"},
	}, zerolog.Nop())
	require.NoError(t, err)

	err = p.Publish(context.Background(), stateChanged())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook fail-1 failed")
	assert.Contains(t, err.Error(), "hook fail-2 failed")
}

func TestPublish_RespectsTimeout(t *testing.T) {
	p, err := New([]Hook{{ID: "slow", Event: "state.changed", Script: "sleep 1", Timeout: 30 * time.Millisecond}}, zerolog.Nop())
	require.NoError(t, err)

	err = p.Publish(context.Background(), stateChanged())
	require.Error(t, err)
	assert.True(t,
		strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "signal: killed"),
		"expected timeout-related error, got: %v", err)
}

func TestNormalizeEnvKey(t *testing.T) {
	assert.Equal(t, "STATE_AFTER", normalizeEnvKey("state_after"))
	assert.Equal(t, "AUDIT_ID", normalizeEnvKey("audit-id"))
	assert.Equal(t, "UNKNOWN", normalizeEnvKey(" "))
}
