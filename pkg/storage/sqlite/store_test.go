package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/tablekeeper/pkg/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCharacter(id string) *domain.Character {
	return &domain.Character{
		ID:         id,
		SessionID:  "s1",
		Name:       "Mira",
		CurrentHP:  20,
		MaxHP:      24,
		Gold:       100,
		Experience: 300,
		Level:      2,
		Abilities:  domain.AbilityScores{Strength: 10, Dexterity: 14, Constitution: 12, Intelligence: 13, Wisdom: 11, Charisma: 16},
		Conditions: []string{"poisoned"},
		HitDice:    2,
		UpdatedAt:  time.Now().UTC(),
	}
}

func TestOpen(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		_, err := Open(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("creates nested directory", func(t *testing.T) {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "a", "b", "test.db"))
		require.NoError(t, err)
		assert.NoError(t, s.Close())
	})
}

func TestCharacterRepo(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	c := testCharacter("c1")
	require.NoError(t, s.Characters().Create(ctx, c))

	got, err := s.Characters().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.Snapshot(), got.Snapshot())
	assert.Equal(t, "Mira", got.Name)

	got.Gold = 150
	got.Locked = true
	got.Economy.ActionUsed = true
	require.NoError(t, s.Characters().Update(ctx, got))

	again, err := s.Characters().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 150, again.Gold)
	assert.True(t, again.Locked)
	assert.True(t, again.Economy.ActionUsed)

	_, err = s.Characters().Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = s.Characters().Update(ctx, testCharacter("missing"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	list, err := s.Characters().ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInventoryRepo(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	inv := s.Inventory()
	require.NoError(t, inv.Upsert(ctx, &domain.InventoryItem{CharacterID: "c1", Name: "Rope", Quantity: 1}))
	require.NoError(t, inv.Upsert(ctx, &domain.InventoryItem{CharacterID: "c1", Name: "Rope", Quantity: 3}))

	item, err := inv.Get(ctx, "c1", "rope")
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)
	assert.Equal(t, "Rope", item.Name)

	require.NoError(t, inv.Delete(ctx, "c1", "Rope"))
	_, err = inv.Get(ctx, "c1", "Rope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Characters().Create(ctx, testCharacter("c1")))

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		c, err := tx.Characters().Get(ctx, "c1")
		if err != nil {
			return err
		}
		c.Gold = 9999
		if err := tx.Characters().Update(ctx, c); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	c, err := s.Characters().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, c.Gold)
}

func TestAtomicRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Characters().Create(ctx, testCharacter("c1")))

	assert.Panics(t, func() {
		_ = s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
			c, _ := tx.Characters().Get(ctx, "c1")
			c.Gold = 1
			_ = tx.Characters().Update(ctx, c)
			panic("handler exploded")
		})
	})

	c, err := s.Characters().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, c.Gold)
}

func auditAt(id string, at time.Time, status domain.ExecutionStatus, gold int) *domain.AuditRecord {
	return &domain.AuditRecord{
		ID:               id,
		SessionID:        "s1",
		CharacterID:      "c1",
		ToolName:         "grant_gold",
		Parameters:       domain.Document{"amount": float64(gold)},
		Result:           domain.Document{"success": true},
		StateBefore:      &domain.StateSnapshot{Gold: gold - 10, Conditions: []string{}},
		StateAfter:       &domain.StateSnapshot{Gold: gold, Conditions: []string{}},
		ExecutionStatus:  status,
		TriggerSource:    domain.TriggerAI,
		ConversationTurn: gold / 10,
		CreatedAt:        at,
	}
}

func TestAuditRepoOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	audit := s.Audit()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, audit.Append(ctx, auditAt("a", base, domain.ExecutionExecuted, 10)))
	// Same timestamp: the id breaks the tie.
	require.NoError(t, audit.Append(ctx, auditAt("b", base, domain.ExecutionExecuted, 20)))
	require.NoError(t, audit.Append(ctx, auditAt("c", base.Add(time.Second), domain.ExecutionFailed, 30)))
	require.NoError(t, audit.Append(ctx, auditAt("d", base.Add(2*time.Second), domain.ExecutionExecuted, 40)))

	executed, err := audit.ListExecuted(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, executed, 3)
	assert.Equal(t, []string{"d", "b", "a"}, ids(executed))

	all, err := audit.List(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, ids(all))

	n, err := audit.CountExecuted(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	through, err := audit.ListExecutedThroughTurn(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(through))

	from, err := audit.ListExecutedFrom(ctx, executed[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, ids(from))

	byTool, err := audit.ListExecutedByTool(ctx, "s1", []string{"grant_gold", "heal"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(byTool))

	got, err := audit.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, base, got.CreatedAt)
	assert.Equal(t, 0, got.StateBefore.Gold)
	assert.Equal(t, 10, got.StateAfter.Gold)
}

func TestAuditRepoMarkRolledBackFrom(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	audit := s.Audit()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, audit.Append(ctx, auditAt(id, base.Add(time.Duration(i)*time.Second), domain.ExecutionExecuted, 10*(i+1))))
	}
	require.NoError(t, audit.Append(ctx, auditAt("f", base.Add(3*time.Second), domain.ExecutionFailed, 40)))

	target, err := audit.Get(ctx, "b")
	require.NoError(t, err)

	n, err := audit.MarkRolledBackFrom(ctx, target, "rewound 2 actions")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := audit.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionRolledBack, b.ExecutionStatus)
	assert.Equal(t, "rewound 2 actions", b.RollbackReason)

	f, err := audit.Get(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, f.ExecutionStatus)

	remaining, err := audit.ListExecuted(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(remaining))
}

func TestAuditRepoUniquePendingAction(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := auditAt("a", time.Now().UTC(), domain.ExecutionExecuted, 10)
	first.PendingActionID = "p1"
	require.NoError(t, s.Audit().Append(ctx, first))

	second := auditAt("b", time.Now().UTC(), domain.ExecutionExecuted, 20)
	second.PendingActionID = "p1"
	assert.Error(t, s.Audit().Append(ctx, second))
}

func TestPendingActionRepo(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	repo := s.PendingActions()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := &domain.PendingAction{
		ID:          "p1",
		SessionID:   "s1",
		CharacterID: "c1",
		ToolName:    "set_ability_score",
		Parameters:  domain.Document{"ability": "strength", "value": float64(18)},
		Status:      domain.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(domain.DefaultApprovalExpiry),
	}
	require.NoError(t, repo.Create(ctx, a))

	t.Run("compare and swap", func(t *testing.T) {
		got, err := repo.Get(ctx, "p1")
		require.NoError(t, err)
		require.NoError(t, got.Transition(domain.StatusApproved))
		reviewed := now.Add(time.Minute)
		got.ReviewedAt = &reviewed
		got.ReviewedBy = "dm"
		require.NoError(t, repo.Save(ctx, got, domain.StatusPending))

		// A second reviewer working from the stale status loses.
		stale := *a
		stale.Status = domain.StatusRejected
		err = repo.Save(ctx, &stale, domain.StatusPending)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		stored, err := repo.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusApproved, stored.Status)
		assert.Equal(t, "dm", stored.ReviewedBy)
		require.NotNil(t, stored.ReviewedAt)
		assert.Equal(t, reviewed, *stored.ReviewedAt)
	})

	t.Run("list and stale", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &domain.PendingAction{
			ID:         "p2",
			SessionID:  "s1",
			ToolName:   "set_level",
			Parameters: domain.Document{"level": float64(3)},
			Status:     domain.StatusPending,
			CreatedAt:  now,
			ExpiresAt:  now.Add(time.Minute),
		}))

		pending, err := repo.ListBySession(ctx, "s1", domain.StatusPending)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "p2", pending[0].ID)

		all, err := repo.ListBySession(ctx, "s1", "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		stale, err := repo.ListStale(ctx, now.Add(30*time.Second))
		require.NoError(t, err)
		assert.Empty(t, stale)

		stale, err = repo.ListStale(ctx, now.Add(2*time.Minute))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "p2", stale[0].ID)
	})

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func ids(records []*domain.AuditRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
