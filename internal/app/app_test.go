package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harun/tablekeeper/internal/config"
	"github.com/harun/tablekeeper/pkg/audit"
	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/events"
	"github.com/harun/tablekeeper/pkg/executor"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Decision.Seed = 42
	require.NoError(t, cfg.ResolvePaths())
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.Backend = "carrier-pigeon"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "invalid config")
}

func TestNew_WiresLocalBackend(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	assert.NotNil(t, a.Broadcaster())
	assert.NotNil(t, a.Executor())
	assert.NotNil(t, a.Workflow())
	assert.NotNil(t, a.Ledger())
	assert.NotNil(t, a.NPCEngine())
	assert.NotNil(t, a.TreasureEngine())
	assert.Greater(t, a.Registry().Len(), 20)
}

func TestCreateCharacter(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	c, err := a.CreateCharacter(ctx, CharacterSpec{SessionID: "s1", Name: "Mira", MaxHP: 12, Gold: 30})
	require.NoError(t, err)
	assert.Equal(t, 12, c.CurrentHP)
	assert.Equal(t, 1, c.Level)
	assert.Equal(t, 10, c.Abilities.Wisdom)

	stored, err := a.Store().Characters().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mira", stored.Name)

	_, err = a.CreateCharacter(ctx, CharacterSpec{SessionID: "s1", Name: "Ghost"})
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

// A queued call goes through the real workflow and comes back through the
// executor once approved, and the ledger can undo it.
func TestEndToEnd_QueueApproveRewind(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	c, err := a.CreateCharacter(ctx, CharacterSpec{SessionID: "s1", Name: "Mira", MaxHP: 20, Gold: 100})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []events.Type
	)
	a.Broadcaster().Subscribe("s1", func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Type)
	})

	opts := executor.Options{SessionID: "s1", CharacterID: c.ID, UserID: "dm", ConversationTurn: 1}

	res := a.Executor().Execute(ctx, "grant_gold", map[string]interface{}{"amount": float64(25)}, opts)
	require.True(t, res.Success, res.Error)

	opts.ConversationTurn = 2
	res = a.Executor().Execute(ctx, "set_ability_score",
		map[string]interface{}{"ability": "strength", "value": float64(16)}, opts)
	require.True(t, res.Success, res.Error)
	require.True(t, res.Queued)

	pending, err := a.Workflow().List(ctx, "s1", domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, approved, err := a.Workflow().Approve(ctx, res.ActionID, "dm")
	require.NoError(t, err)
	require.True(t, approved.Success, approved.Error)

	after, err := a.Store().Characters().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, after.Abilities.Strength)
	assert.Equal(t, 125, after.Gold)

	rw, err := a.Ledger().Rewind(ctx, audit.RewindRequest{SessionID: "s1", Steps: 2, Actor: "dm"})
	require.NoError(t, err)
	assert.Equal(t, 2, rw.RolledBack)

	restored, err := a.Store().Characters().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, restored.Abilities.Strength)
	assert.Equal(t, 100, restored.Gold)

	a.Wait()
	a.Broadcaster().Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, events.StateChanged)
	assert.Contains(t, seen, events.PendingCreated)
	assert.Contains(t, seen, events.PendingResolved)
	assert.Contains(t, seen, events.SessionRewound)
}

func TestNew_RunsEventHooks(t *testing.T) {
	cfg := testConfig(t)
	out := filepath.Join(cfg.DataDir, "hook.txt")
	cfg.Events.Hooks = []config.HookConfig{{
		ID:     "record",
		Event:  string(events.StateChanged),
		Script: `echo "$TABLEKEEPER_EVENT_DATA_TOOL" >> ` + out,
	}}

	a := newTestApp(t, cfg)
	ctx := context.Background()

	c, err := a.CreateCharacter(ctx, CharacterSpec{SessionID: "s1", Name: "Mira", MaxHP: 20, Gold: 10})
	require.NoError(t, err)

	res := a.Executor().Execute(ctx, "grant_gold", map[string]interface{}{"amount": float64(5)},
		executor.Options{SessionID: "s1", CharacterID: c.ID, UserID: "dm"})
	require.True(t, res.Success, res.Error)
	a.Wait()

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "grant_gold\n", string(content))
}

func TestReload_AppliesApprovalSettings(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)
	require.NoError(t, a.Start())
	defer a.Stop(context.Background())

	next := testConfig(t)
	next.Approval.ExpirySeconds = 60
	next.Approval.SweepSchedule = "@every 5s"
	require.NoError(t, a.Reload(next))
	assert.Equal(t, time.Minute, a.Workflow().Expiry())
	assert.Equal(t, "@every 5s", a.Config().Approval.SweepSchedule)

	bad := testConfig(t)
	bad.Approval.SweepSchedule = "sometimes"
	assert.Error(t, a.Reload(bad))
	assert.Equal(t, time.Minute, a.Workflow().Expiry())
}

func TestFollow_NeedsRedis(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	_, _, err := a.Follow(context.Background(), "s1")
	assert.ErrorContains(t, err, "redis backend")
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, a.Start())
	assert.Error(t, a.Start())

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Close())
}
