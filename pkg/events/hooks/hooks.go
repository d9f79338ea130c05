// Package hooks runs shell scripts when session events fire, so a table can
// drive lights, sound or a chat bot without linking against tablekeeper.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/tablekeeper/pkg/events"
)

// EnvPrefix prefixes every variable handed to a hook script.
const EnvPrefix = "TABLEKEEPER_EVENT_"

// Hook binds a script to an event type. Event "*" matches every type.
type Hook struct {
	ID      string
	Event   string
	Script  string
	Timeout time.Duration
}

// Publisher implements events.Publisher by running the hooks registered for
// each event type in order.
type Publisher struct {
	logger  zerolog.Logger
	byEvent map[string][]Hook
}

// New validates hooks and builds a publisher.
func New(hooks []Hook, logger zerolog.Logger) (*Publisher, error) {
	p := &Publisher{
		logger:  logger.With().Str("component", "hooks").Logger(),
		byEvent: make(map[string][]Hook),
	}

	for _, hook := range hooks {
		event := strings.TrimSpace(hook.Event)
		if event == "" {
			return nil, fmt.Errorf("hook event is required")
		}
		if strings.TrimSpace(hook.Script) == "" {
			return nil, fmt.Errorf("hook script is required for event %q", event)
		}
		p.byEvent[event] = append(p.byEvent[event], hook)
	}

	return p, nil
}

// Len returns the number of registered hooks.
func (p *Publisher) Len() int {
	n := 0
	for _, hooks := range p.byEvent {
		n += len(hooks)
	}
	return n
}

// Publish implements events.Publisher. Every matching hook runs even when an
// earlier one fails; the failures are joined.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	hooks := append(append([]Hook(nil), p.byEvent[string(ev.Type)]...), p.byEvent["*"]...)
	if len(hooks) == 0 {
		return nil
	}

	env, err := environment(ev)
	if err != nil {
		return err
	}

	var errs []error
	for _, hook := range hooks {
		if err := p.run(ctx, ev, hook, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) run(ctx context.Context, ev events.Event, hook Hook, env []string) error {
	hookID := hook.ID
	if strings.TrimSpace(hookID) == "" {
		hookID = hook.Event
	}

	runCtx := ctx
	cancel := func() {}
	if hook.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, hook.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", hook.Script)
	cmd.Env = env

	output, err := cmd.CombinedOutput()
	outputText := strings.TrimSpace(string(output))
	if err != nil {
		if outputText != "" {
			return fmt.Errorf("hook %s failed: %w: %s", hookID, err, outputText)
		}
		return fmt.Errorf("hook %s failed: %w", hookID, err)
	}

	p.logger.Debug().
		Str("event", string(ev.Type)).
		Str("session_id", ev.SessionID).
		Str("hook_id", hookID).
		Str("output", outputText).
		Msg("Hook executed")
	return nil
}

// environment exposes the event to the script: type, session, character,
// the whole event as JSON, and one variable per scalar payload field.
func environment(ev events.Event) ([]string, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}

	env := append([]string{}, os.Environ()...)
	env = append(env,
		EnvPrefix+"TYPE="+string(ev.Type),
		EnvPrefix+"SESSION_ID="+ev.SessionID,
		EnvPrefix+"CHARACTER_ID="+ev.CharacterID,
		EnvPrefix+"JSON="+string(raw),
	)

	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch v := ev.Payload[key].(type) {
		case string, bool, int, int64, float64:
			env = append(env, EnvPrefix+"DATA_"+normalizeEnvKey(key)+"="+fmt.Sprintf("%v", v))
		}
	}
	return env, nil
}

func normalizeEnvKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "UNKNOWN"
	}

	upper := strings.ToUpper(key)
	builder := strings.Builder{}
	builder.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
			continue
		}
		builder.WriteRune('_')
	}
	return builder.String()
}
