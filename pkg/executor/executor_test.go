package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/events"
	"github.com/harun/tablekeeper/pkg/handlers"
	"github.com/harun/tablekeeper/pkg/storage/sqlite"
)

type memoryQueue struct {
	mu      sync.Mutex
	actions []*domain.PendingAction
}

func (q *memoryQueue) Enqueue(_ context.Context, a *domain.PendingAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	a.ID = fmt.Sprintf("pa-%d", len(q.actions)+1)
	a.Status = domain.StatusPending
	a.CreatedAt = time.Now().UTC()
	a.ExpiresAt = a.CreatedAt.Add(domain.DefaultApprovalExpiry)
	q.actions = append(q.actions, a)
	return nil
}

type testEnv struct {
	t      *testing.T
	store  *sqlite.Store
	exec   *Executor
	queue  *memoryQueue
	bus    *events.Broadcaster
	events []events.Event
	mu     sync.Mutex
}

var baseOpts = Options{SessionID: "s1", CharacterID: "c1", UserID: "dm", ConversationTurn: 1}

func newTestEnv(t *testing.T, extra ...catalog.Tool) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "executor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	b := catalog.NewBuilder()
	require.NoError(t, handlers.Register(b, handlers.Options{Dice: handlers.NewDice(7)}))
	require.NoError(t, b.RegisterAll(extra))
	registry, err := b.Build()
	require.NoError(t, err)

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

	env := &testEnv{t: t, store: store, queue: &memoryQueue{}, bus: events.NewBroadcaster()}
	env.bus.Subscribe(events.AllSessions, func(ev events.Event) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.events = append(env.events, ev)
	})

	env.exec, err = New(Config{
		Registry:  registry,
		Store:     store,
		Publisher: env.bus,
		Suggester: CategorySuggester{},
	})
	require.NoError(t, err)
	env.exec.SetQueue(env.queue)
	return env
}

func (e *testEnv) character() *domain.Character {
	e.t.Helper()
	c, err := e.store.Characters().Get(context.Background(), "c1")
	require.NoError(e.t, err)
	return c
}

func (e *testEnv) audit() []*domain.AuditRecord {
	e.t.Helper()
	records, err := e.store.Audit().List(context.Background(), "s1", 0)
	require.NoError(e.t, err)
	return records
}

func (e *testEnv) published() []events.Event {
	e.exec.Wait()
	e.bus.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.Event{}, e.events...)
}

func TestExecute_SuggesterOutcomes(t *testing.T) {
	grant := map[string]interface{}{"amount": float64(5)}

	t.Run("custom suggestions", func(t *testing.T) {
		env := newTestEnv(t)
		env.exec.suggester = SuggesterFunc(func(_ context.Context, def catalog.ToolDefinition, _ catalog.Result) ([]string, error) {
			return []string{"after " + def.Name}, nil
		})

		res := env.exec.Execute(context.Background(), "grant_gold", grant, baseOpts)
		require.True(t, res.Success, res.Error)
		assert.Equal(t, []string{"after grant_gold"}, res.Suggestions)
	})

	t.Run("error is swallowed", func(t *testing.T) {
		env := newTestEnv(t)
		env.exec.suggester = SuggesterFunc(func(context.Context, catalog.ToolDefinition, catalog.Result) ([]string, error) {
			return nil, errors.New("suggestion service down")
		})

		res := env.exec.Execute(context.Background(), "grant_gold", grant, baseOpts)
		require.True(t, res.Success, res.Error)
		assert.Empty(t, res.Suggestions)
		assert.Equal(t, 105, env.character().Gold)
	})

	t.Run("panic is contained", func(t *testing.T) {
		env := newTestEnv(t)
		env.exec.suggester = SuggesterFunc(func(context.Context, catalog.ToolDefinition, catalog.Result) ([]string, error) {
			panic("boom")
		})

		res := env.exec.Execute(context.Background(), "grant_gold", grant, baseOpts)
		require.True(t, res.Success, res.Error)
		assert.Empty(t, res.Suggestions)
		assert.Len(t, env.audit(), 1)
	})
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	registry, err := handlers.NewRegistry(handlers.Options{})
	require.NoError(t, err)
	_, err = New(Config{Registry: registry})
	assert.Error(t, err)
}

func TestExecute_GrantGold(t *testing.T) {
	env := newTestEnv(t)

	res := env.exec.Execute(context.Background(), "grant_gold",
		map[string]interface{}{"amount": float64(50), "reason": "quest reward"}, baseOpts)

	require.True(t, res.Success, res.Error)
	assert.False(t, res.Queued)
	assert.Equal(t, "grant_gold", res.ToolName)
	assert.NotEmpty(t, res.AuditID)
	assert.NotEmpty(t, res.Suggestions)
	assert.NoError(t, res.Err())
	assert.Equal(t, 150, env.character().Gold)

	records := env.audit()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, res.AuditID, rec.ID)
	assert.Equal(t, domain.ExecutionExecuted, rec.ExecutionStatus)
	assert.Equal(t, domain.TriggerAI, rec.TriggerSource)
	assert.Equal(t, 100, rec.StateBefore.Gold)
	assert.Equal(t, 150, rec.StateAfter.Gold)
	assert.Equal(t, 1, rec.ConversationTurn)

	evs := env.published()
	require.Len(t, evs, 1)
	assert.Equal(t, events.StateChanged, evs[0].Type)
	assert.Equal(t, "s1", evs[0].SessionID)
	assert.Equal(t, res.AuditID, evs[0].Payload["audit_id"])
}

func TestExecute_UnknownToolLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)

	res := env.exec.Execute(context.Background(), "summon_dragon", nil, baseOpts)

	assert.False(t, res.Success)
	assert.Equal(t, KindUnknownTool, res.ErrorKind)
	assert.Contains(t, res.Error, "summon_dragon")
	assert.True(t, errors.Is(res.Err(), domain.ErrUnknownTool))
	assert.Empty(t, env.audit())
	assert.Empty(t, env.published())
}

func TestExecute_InvalidParameters(t *testing.T) {
	env := newTestEnv(t)

	res := env.exec.Execute(context.Background(), "grant_gold", map[string]interface{}{"amount": "lots"}, baseOpts)

	assert.False(t, res.Success)
	assert.Equal(t, KindInvalidParameters, res.ErrorKind)
	assert.True(t, errors.Is(res.Err(), domain.ErrInvalidParameters))
	assert.Empty(t, env.audit())
	assert.Equal(t, 100, env.character().Gold)
}

func TestExecute_UnknownCharacter(t *testing.T) {
	env := newTestEnv(t)

	opts := baseOpts
	opts.CharacterID = "ghost"
	res := env.exec.Execute(context.Background(), "grant_gold", map[string]interface{}{"amount": float64(5)}, opts)
	assert.Equal(t, KindNotFound, res.ErrorKind)

	opts = baseOpts
	opts.SessionID = "other"
	res = env.exec.Execute(context.Background(), "grant_gold", map[string]interface{}{"amount": float64(5)}, opts)
	assert.Equal(t, KindNotFound, res.ErrorKind)
	assert.True(t, errors.Is(res.Err(), domain.ErrNotFound))

	assert.Empty(t, env.audit())
}

func TestExecute_ApprovalRequiredIsQueued(t *testing.T) {
	env := newTestEnv(t)

	opts := baseOpts
	opts.Reasoning = "the character trained all winter"
	res := env.exec.Execute(context.Background(), "set_ability_score",
		map[string]interface{}{"ability": "strength", "value": float64(18)}, opts)

	require.True(t, res.Success, res.Error)
	assert.True(t, res.Queued)
	assert.Equal(t, "pa-1", res.ActionID)
	assert.NotEmpty(t, res.Description)
	assert.Empty(t, res.AuditID)

	assert.Empty(t, env.audit())
	assert.Equal(t, 10, env.character().Abilities.Strength)

	require.Len(t, env.queue.actions, 1)
	action := env.queue.actions[0]
	assert.Equal(t, "set_ability_score", action.ToolName)
	assert.Equal(t, "dm", action.RequestingUserID)
	assert.Equal(t, "the character trained all winter", action.Reasoning)
	assert.Equal(t, 1, action.ConversationTurn)
}

func TestExecute_SkipApprovalRunsImmediately(t *testing.T) {
	env := newTestEnv(t)

	opts := baseOpts
	opts.SkipApproval = true
	opts.TriggerSource = domain.TriggerPlayerApproval
	opts.PendingActionID = "pa-9"
	res := env.exec.Execute(context.Background(), "set_ability_score",
		map[string]interface{}{"ability": "strength", "value": float64(18)}, opts)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 18, env.character().Abilities.Strength)

	records := env.audit()
	require.Len(t, records, 1)
	assert.Equal(t, domain.TriggerPlayerApproval, records[0].TriggerSource)
	assert.Equal(t, "pa-9", records[0].PendingActionID)
}

func TestExecute_RequestApprovalQueuesImmediateTool(t *testing.T) {
	env := newTestEnv(t)

	opts := baseOpts
	opts.RequestApproval = true
	res := env.exec.Execute(context.Background(), "grant_gold", map[string]interface{}{"amount": float64(5)}, opts)

	assert.True(t, res.Queued)
	assert.Equal(t, 100, env.character().Gold)
}

func TestExecute_NoQueueConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.exec.SetQueue(nil)

	res := env.exec.Execute(context.Background(), "set_level", map[string]interface{}{"level": float64(4)}, baseOpts)

	assert.False(t, res.Success)
	assert.Equal(t, KindInternal, res.ErrorKind)
}

func TestExecute_HandlerFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)

	res := env.exec.Execute(context.Background(), "spend_gold", map[string]interface{}{"amount": float64(500)}, baseOpts)

	assert.False(t, res.Success)
	assert.Equal(t, KindHandlerFailure, res.ErrorKind)
	assert.True(t, errors.Is(res.Err(), domain.ErrInsufficientResource))
	assert.Equal(t, 100, env.character().Gold)

	records := env.audit()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, res.AuditID, rec.ID)
	assert.Equal(t, domain.ExecutionFailed, rec.ExecutionStatus)
	assert.NotEmpty(t, rec.ErrorMessage)
	assert.True(t, rec.StateBefore.Equal(*rec.StateAfter))

	assert.Empty(t, env.published())
}

func TestExecute_ReportedFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	params := map[string]interface{}{"condition": "poisoned"}

	first := env.exec.Execute(context.Background(), "add_condition", params, baseOpts)
	require.True(t, first.Success, first.Error)

	second := env.exec.Execute(context.Background(), "add_condition", params, baseOpts)
	assert.False(t, second.Success)
	assert.Equal(t, KindHandlerFailure, second.ErrorKind)
	assert.Contains(t, second.Error, "already")
	assert.True(t, errors.Is(second.Err(), domain.ErrRuleViolation))

	records := env.audit()
	require.Len(t, records, 2)
	assert.Equal(t, domain.ExecutionFailed, records[0].ExecutionStatus)
	assert.Equal(t, []string{"poisoned"}, env.character().Conditions)
}

func TestExecute_HandlerPanicIsContained(t *testing.T) {
	explode := catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "explode",
			Description: "Spends all gold, then panics",
			Category:    catalog.CategoryDice,
			Immediate:   true,
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			c, err := call.Tx.Characters().Get(ctx, call.CharacterID)
			if err != nil {
				return catalog.Result{}, err
			}
			c.Gold = 0
			if err := call.Tx.Characters().Update(ctx, c); err != nil {
				return catalog.Result{}, err
			}
			panic("boom")
		}),
	}
	env := newTestEnv(t, explode)

	var res Result
	assert.NotPanics(t, func() {
		res = env.exec.Execute(context.Background(), "explode", nil, baseOpts)
	})

	assert.False(t, res.Success)
	assert.Equal(t, KindInternal, res.ErrorKind)
	assert.NotContains(t, res.Error, "boom")
	assert.Equal(t, 100, env.character().Gold)

	records := env.audit()
	require.Len(t, records, 1)
	assert.Equal(t, domain.ExecutionFailed, records[0].ExecutionStatus)

	// The executor stays usable.
	next := env.exec.Execute(context.Background(), "grant_gold", map[string]interface{}{"amount": float64(1)}, baseOpts)
	assert.True(t, next.Success, next.Error)
}

func TestExecute_LockPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.character()
	c.Locked = true
	require.NoError(t, env.store.Characters().Update(ctx, c))

	params := map[string]interface{}{"max_hp": float64(30)}
	opts := baseOpts
	opts.SkipApproval = true

	blocked := env.exec.Execute(ctx, "set_max_hp", params, opts)
	assert.False(t, blocked.Success)
	assert.Equal(t, KindLocked, blocked.ErrorKind)
	assert.True(t, errors.Is(blocked.Err(), domain.ErrCharacterLocked))
	assert.Contains(t, blocked.Error, "approval")
	assert.Empty(t, env.audit())

	// Gameplay tools still work on a locked character.
	healed := env.exec.Execute(ctx, "heal", map[string]interface{}{"amount": float64(2)}, baseOpts)
	assert.True(t, healed.Success, healed.Error)

	requested := baseOpts
	requested.RequestApproval = true
	queued := env.exec.Execute(ctx, "set_max_hp", params, requested)
	assert.True(t, queued.Queued)

	forced := opts
	forced.Force = true
	res := env.exec.Execute(ctx, "set_max_hp", params, forced)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 30, env.character().MaxHP)
}

func TestExecuteBatch_StopsAtFirstFailure(t *testing.T) {
	env := newTestEnv(t)

	out := env.exec.ExecuteBatch(context.Background(), []BatchCall{
		{ToolName: "grant_gold", Parameters: map[string]interface{}{"amount": float64(10)}},
		{ToolName: "spend_gold", Parameters: map[string]interface{}{"amount": float64(1000)}},
		{ToolName: "grant_gold", Parameters: map[string]interface{}{"amount": float64(5)}},
	}, baseOpts)

	assert.False(t, out.Success)
	assert.NotEmpty(t, out.BatchID)
	require.Len(t, out.Results, 2)
	assert.True(t, out.Results[0].Success)
	assert.False(t, out.Results[1].Success)
	assert.Equal(t, 110, env.character().Gold)

	for _, rec := range env.audit() {
		assert.Equal(t, out.BatchID, rec.BatchID)
	}
}

func TestExecuteBatch_QueuedStepsContinue(t *testing.T) {
	env := newTestEnv(t)

	out := env.exec.ExecuteBatch(context.Background(), []BatchCall{
		{ToolName: "set_level", Parameters: map[string]interface{}{"level": float64(4)}},
		{ToolName: "set_max_hp", Parameters: map[string]interface{}{"max_hp": float64(30)}},
	}, baseOpts)

	assert.True(t, out.Success)
	require.Len(t, out.Results, 2)
	require.Len(t, env.queue.actions, 2)
	assert.Equal(t, 0, env.queue.actions[0].BatchOrder)
	assert.Equal(t, 1, env.queue.actions[1].BatchOrder)
	assert.Equal(t, out.BatchID, env.queue.actions[1].BatchID)
}
