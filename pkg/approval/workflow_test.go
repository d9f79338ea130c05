package approval

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/events"
	"github.com/harun/tablekeeper/pkg/executor"
	"github.com/harun/tablekeeper/pkg/handlers"
	"github.com/harun/tablekeeper/pkg/storage/sqlite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	t     *testing.T
	store *sqlite.Store
	exec  *executor.Executor
	flow  *Workflow
	clock *fakeClock
}

var opts = executor.Options{SessionID: "s1", CharacterID: "c1", UserID: "dm", ConversationTurn: 4}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "approval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Characters().Create(ctx, &domain.Character{
		ID:         "c1",
		SessionID:  "s1",
		Name:       "Mira",
		CurrentHP:  20,
		MaxHP:      24,
		Gold:       100,
		Level:      3,
		HitDice:    3,
		Abilities:  domain.AbilityScores{Strength: 10, Dexterity: 14, Constitution: 14, Intelligence: 12, Wisdom: 10, Charisma: 8},
		Conditions: []string{},
	}))

	registry, err := handlers.NewRegistry(handlers.Options{Dice: handlers.NewDice(3)})
	require.NoError(t, err)

	exec, err := executor.New(executor.Config{Registry: registry, Store: store, Publisher: events.Discard{}})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	flow, err := New(Config{Store: store, Runner: exec, Clock: clock.Now})
	require.NoError(t, err)
	exec.SetQueue(flow)

	t.Cleanup(func() {
		exec.Wait()
		flow.Wait()
	})
	return &testEnv{t: t, store: store, exec: exec, flow: flow, clock: clock}
}

func (e *testEnv) queue(tool string, params map[string]interface{}) string {
	e.t.Helper()
	res := e.exec.Execute(context.Background(), tool, params, opts)
	require.True(e.t, res.Queued, "expected %s to be queued: %s", tool, res.Error)
	return res.ActionID
}

func (e *testEnv) character() *domain.Character {
	e.t.Helper()
	c, err := e.store.Characters().Get(context.Background(), "c1")
	require.NoError(e.t, err)
	return c
}

func (e *testEnv) auditCount() int {
	e.t.Helper()
	records, err := e.store.Audit().List(context.Background(), "s1", 0)
	require.NoError(e.t, err)
	return len(records)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestEnqueue(t *testing.T) {
	env := newTestEnv(t)

	id := env.queue("set_ability_score", map[string]interface{}{"ability": "strength", "value": float64(18)})

	action, err := env.flow.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, action.Status)
	assert.Equal(t, env.clock.Now().Add(domain.DefaultApprovalExpiry), action.ExpiresAt)
	assert.Equal(t, 4, action.ConversationTurn)
	assert.Zero(t, env.auditCount())

	views, err := env.flow.List(context.Background(), "s1", domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, domain.DefaultApprovalExpiry, views[0].TimeRemaining)
}

func TestSetExpiry_AppliesToNewActions(t *testing.T) {
	env := newTestEnv(t)

	first := env.queue("set_level", map[string]interface{}{"level": float64(4)})
	env.flow.SetExpiry(time.Minute)
	assert.Equal(t, time.Minute, env.flow.Expiry())
	second := env.queue("set_level", map[string]interface{}{"level": float64(5)})

	a1, err := env.flow.Get(context.Background(), first)
	require.NoError(t, err)
	a2, err := env.flow.Get(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(domain.DefaultApprovalExpiry), a1.ExpiresAt)
	assert.Equal(t, env.clock.Now().Add(time.Minute), a2.ExpiresAt)

	env.flow.SetExpiry(0)
	assert.Equal(t, domain.DefaultApprovalExpiry, env.flow.Expiry())
}

func TestEnqueue_RequiresSessionAndTool(t *testing.T) {
	env := newTestEnv(t)
	err := env.flow.Enqueue(context.Background(), &domain.PendingAction{ToolName: "set_level"})
	assert.True(t, errors.Is(err, domain.ErrInvalidParameters))
}

func TestApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.queue("set_ability_score", map[string]interface{}{"ability": "strength", "value": float64(18)})

	action, res, err := env.flow.Approve(ctx, id, "player-1")
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, domain.StatusExecuted, action.Status)
	assert.Equal(t, "player-1", action.ReviewedBy)
	require.NotNil(t, action.ReviewedAt)
	assert.Equal(t, true, action.ExecutionResult["success"])
	assert.Equal(t, 18, env.character().Abilities.Strength)

	records, err := env.store.Audit().List(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.TriggerPlayerApproval, records[0].TriggerSource)
	assert.Equal(t, id, records[0].PendingActionID)
	assert.Equal(t, 4, records[0].ConversationTurn)

	stored, err := env.flow.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, stored.Status)

	_, _, err = env.flow.Approve(ctx, id, "player-1")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	assert.Equal(t, 1, env.auditCount())
}

func TestApprove_ExecutionFailureEndsFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queued := opts
	queued.RequestApproval = true
	res := env.exec.Execute(ctx, "spend_gold", map[string]interface{}{"amount": float64(1000)}, queued)
	require.True(t, res.Queued)

	action, out, err := env.flow.Approve(ctx, res.ActionID, "player-1")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, domain.StatusFailed, action.Status)
	assert.NotEmpty(t, action.ErrorMessage)
	assert.Equal(t, 100, env.character().Gold)
	assert.Equal(t, 1, env.auditCount())
}

func TestApprove_UnknownAction(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.flow.Approve(context.Background(), "nope", "player-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestApprove_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	id := env.queue("set_level", map[string]interface{}{"level": float64(4)})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.flow.Approve(context.Background(), id, "player-1")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, env.auditCount())
}

func TestReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.queue("set_level", map[string]interface{}{"level": float64(10)})

	action, err := env.flow.Reject(ctx, id, "player-1", "too generous")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, action.Status)
	assert.Equal(t, "too generous", action.RejectionReason)
	assert.Equal(t, 3, env.character().Level)
	assert.Zero(t, env.auditCount())

	_, _, err = env.flow.Approve(ctx, id, "player-1")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = env.flow.Reject(ctx, id, "player-1", "again")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestApprove_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.queue("set_level", map[string]interface{}{"level": float64(4)})

	env.clock.Advance(domain.DefaultApprovalExpiry + time.Second)

	action, _, err := env.flow.Approve(ctx, id, "player-1")
	assert.True(t, errors.Is(err, domain.ErrActionExpired))
	assert.Equal(t, domain.StatusExpired, action.Status)
	assert.Equal(t, 3, env.character().Level)
	assert.Zero(t, env.auditCount())

	stored, err := env.flow.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, stored.Status)

	_, err = env.flow.Reject(ctx, id, "player-1", "late")
	assert.True(t, errors.Is(err, domain.ErrActionExpired))
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stale := env.queue("set_level", map[string]interface{}{"level": float64(4)})
	env.clock.Advance(3 * time.Minute)
	fresh := env.queue("set_max_hp", map[string]interface{}{"max_hp": float64(30)})
	env.clock.Advance(3 * time.Minute)

	n, err := env.flow.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := env.flow.Get(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, a.Status)

	b, err := env.flow.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, b.Status)

	n, err = env.flow.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBatchApprove_HaltsAtFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queued := opts
	queued.RequestApproval = true
	batch := env.exec.ExecuteBatch(ctx, []executor.BatchCall{
		{ToolName: "grant_gold", Parameters: map[string]interface{}{"amount": float64(10)}},
		{ToolName: "spend_gold", Parameters: map[string]interface{}{"amount": float64(1000)}},
		{ToolName: "grant_gold", Parameters: map[string]interface{}{"amount": float64(5)}},
	}, queued)
	require.True(t, batch.Success)
	require.Len(t, batch.Results, 3)
	a1, a2, a3 := batch.Results[0].ActionID, batch.Results[1].ActionID, batch.Results[2].ActionID

	outcomes, err := env.flow.BatchApprove(ctx, []string{a3, a1, a2}, "player-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, a1, outcomes[0].Action.ID)
	assert.True(t, outcomes[0].Succeeded())
	assert.Equal(t, a2, outcomes[1].Action.ID)
	assert.False(t, outcomes[1].Succeeded())
	assert.Equal(t, domain.StatusFailed, outcomes[1].Action.Status)

	remaining, err := env.flow.Get(ctx, a3)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, remaining.Status)
	assert.Equal(t, 110, env.character().Gold)
}
