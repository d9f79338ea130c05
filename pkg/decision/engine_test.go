package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/handlers"
)

type fakeHistory struct {
	grants []*domain.AuditRecord
	latest []*domain.AuditRecord
	err    error
}

func (f *fakeHistory) ExecutedByTool(_ context.Context, _ string, _ []string, _ int) ([]*domain.AuditRecord, error) {
	return f.grants, f.err
}

func (f *fakeHistory) RewindableActions(_ context.Context, _ string, _ int) ([]*domain.AuditRecord, error) {
	return f.latest, f.err
}

type fakeNPCs struct{ count int }

func (f fakeNPCs) ListByLocation(context.Context, string, string) ([]*domain.NPC, error) {
	return make([]*domain.NPC, f.count), nil
}

var now = time.Date(2026, 5, 2, 19, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func factorByName(factors []Factor, name string) Factor {
	for _, f := range factors {
		if f.Name == name {
			return f
		}
	}
	return Factor{}
}

func TestNPCEngine_QuietSessionIntroduces(t *testing.T) {
	engine := NewNPCEngine(Config{History: &fakeHistory{}, Rand: NewRand(1), Clock: fixedClock})

	rec, err := engine.Recommend(context.Background(), Input{
		SessionID:   "s1",
		CurrentTurn: 12,
		Location:    "Shrine of the Dawn",
		Scene:       "A quiet evening of prayer",
		Needs:       []string{"healing"},
	})
	require.NoError(t, err)

	assert.Equal(t, NPCEngineName, rec.Engine)
	assert.Equal(t, 1.0, rec.Probability)
	assert.True(t, rec.Introduce)
	assert.Equal(t, -1.0, rec.Roll)
	assert.Contains(t, handlers.NPCRoles, rec.Type)
	assert.Equal(t, 6, rec.TypeScores["healer"])
	assert.NotEmpty(t, rec.Reasoning)

	require.NotNil(t, rec.ToolCall)
	assert.Equal(t, "spawn_npc", rec.ToolCall.ToolName)
	assert.Equal(t, rec.Type, rec.ToolCall.Parameters["role"])
	assert.Equal(t, "Shrine of the Dawn", rec.ToolCall.Parameters["location"])
}

func TestNPCEngine_BusySceneDeclines(t *testing.T) {
	history := &fakeHistory{
		grants: []*domain.AuditRecord{
			{ToolName: "spawn_npc", ConversationTurn: 19, CreatedAt: now.Add(-2 * time.Minute)},
			{ToolName: "spawn_npc", ConversationTurn: 18},
			{ToolName: "spawn_npc", ConversationTurn: 17},
			{ToolName: "spawn_npc", ConversationTurn: 16},
			{ToolName: "spawn_npc", ConversationTurn: 15},
		},
		latest: []*domain.AuditRecord{{ConversationTurn: 19}},
	}
	engine := NewNPCEngine(Config{History: history, NPCs: fakeNPCs{count: 6}, Rand: NewRand(1), Clock: fixedClock})

	factors, err := engine.AnalyzeFactors(context.Background(), Input{
		SessionID:   "s1",
		CurrentTurn: 20,
		Location:    "Market square",
		Scene:       "Battle in the streets",
	})
	require.NoError(t, err)

	assert.Equal(t, -0.2, factorByName(factors, "turns_since_last").Contribution)
	assert.Equal(t, string(MomentumFast), factorByName(factors, "narrative_momentum").Value)
	assert.Equal(t, string(FrequencyExcessive), factorByName(factors, "recent_frequency").Value)
	assert.Equal(t, "6", factorByName(factors, "local_density").Value)
	assert.Equal(t, "0", factorByName(factors, "scene_appropriate").Value)
	assert.Equal(t, -0.1, factorByName(factors, "minutes_since_last").Contribution)
	assert.Equal(t, 0.0, engine.ScoreToProbability(factors))

	rec, err := engine.Recommend(context.Background(), Input{SessionID: "s1", CurrentTurn: 20, Location: "Market square", Scene: "Battle in the streets"})
	require.NoError(t, err)
	assert.False(t, rec.Introduce)
	assert.Nil(t, rec.ToolCall)
	assert.Empty(t, rec.Type)
}

func TestNPCEngine_HistoryError(t *testing.T) {
	engine := NewNPCEngine(Config{History: &fakeHistory{err: errors.New("disk gone")}, Clock: fixedClock})
	_, err := engine.Recommend(context.Background(), Input{SessionID: "s1"})
	assert.Error(t, err)
}

func TestNPCEngine_Deterministic(t *testing.T) {
	in := Input{SessionID: "s1", CurrentTurn: 6, Location: "Crossroads inn", Scene: "Travellers talk"}
	history := &fakeHistory{
		grants: []*domain.AuditRecord{{ConversationTurn: 2, CreatedAt: now.Add(-20 * time.Minute)}},
		latest: []*domain.AuditRecord{{ConversationTurn: 3}},
	}

	a := NewNPCEngine(Config{History: history, Rand: NewRand(9), Clock: fixedClock})
	b := NewNPCEngine(Config{History: history, Rand: NewRand(9), Clock: fixedClock})
	for i := 0; i < 20; i++ {
		ra, err := a.Recommend(context.Background(), in)
		require.NoError(t, err)
		rb, err := b.Recommend(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, ra, rb)
	}
}

func TestTreasureEngine_PoorPartyAfterFight(t *testing.T) {
	engine := NewTreasureEngine(Config{History: &fakeHistory{}, Rand: NewRand(3), Clock: fixedClock})

	rec, err := engine.Recommend(context.Background(), Input{
		SessionID:   "s1",
		CurrentTurn: 8,
		Location:    "Goblin cave",
		Scene:       "The goblins are defeated and the party searches the hoard",
		PartyLevel:  5,
		PartyGold:   100,
	})
	require.NoError(t, err)

	assert.Equal(t, TreasureEngineName, rec.Engine)
	assert.True(t, rec.Introduce)
	assert.Equal(t, "1", factorByName(rec.Factors, "scene_appropriate").Value)
	assert.Equal(t, 0.2, factorByName(rec.Factors, "wealth_ratio").Contribution)
	assert.Contains(t, handlers.TreasureTypes, rec.Type)

	require.NotNil(t, rec.ToolCall)
	assert.Equal(t, "grant_treasure", rec.ToolCall.ToolName)

	registry, err := handlers.NewRegistry(handlers.Options{})
	require.NoError(t, err)
	def, ok := registry.Get("grant_treasure")
	require.True(t, ok)
	v := registry.Validate(def, rec.ToolCall.Parameters)
	assert.True(t, v.Valid, v.Error)
}

func TestTreasureEngine_WealthyPartyInCombat(t *testing.T) {
	engine := NewTreasureEngine(Config{Clock: fixedClock, Rand: NewRand(3)})

	factors, err := engine.AnalyzeFactors(context.Background(), Input{
		SessionID:  "s1",
		Location:   "Castle hall",
		Scene:      "The duel begins, roll initiative",
		PartyLevel: 3,
		PartyGold:  900,
	})
	require.NoError(t, err)
	assert.Equal(t, "0", factorByName(factors, "scene_appropriate").Value)
	assert.Equal(t, -0.3, factorByName(factors, "wealth_ratio").Contribution)
}

func TestWealth(t *testing.T) {
	assert.Equal(t, 50, ExpectedWealth(0))
	assert.Equal(t, 700, ExpectedWealth(5))
	assert.Equal(t, 36000, ExpectedWealth(25))
	assert.InDelta(t, 0.5, WealthRatio(350, 5), 1e-9)

	tests := []struct {
		gold int
		want float64
	}{
		{100, 0.2},
		{400, 0.1},
		{700, 0},
		{1200, -0.15},
		{2000, -0.3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, wealthFactor(tt.gold, 5).Contribution, "gold %d", tt.gold)
	}
}
