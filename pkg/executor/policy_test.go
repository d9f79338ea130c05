package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
)

func TestLockPolicy_Blocks(t *testing.T) {
	policy := NewLockPolicy(nil, nil)
	locked := &domain.Character{Locked: true}
	unlocked := &domain.Character{}

	setLevel := catalog.ToolDefinition{Name: "set_level", Category: catalog.CategoryCharacter}
	grantXP := catalog.ToolDefinition{Name: "grant_experience", Category: catalog.CategoryCharacter}
	grantGold := catalog.ToolDefinition{Name: "grant_gold", Category: catalog.CategoryEconomy}

	tests := []struct {
		name  string
		def   catalog.ToolDefinition
		c     *domain.Character
		opts  Options
		block bool
	}{
		{"unlocked character", setLevel, unlocked, Options{}, false},
		{"protected tool on locked character", setLevel, locked, Options{}, true},
		{"always allowed tool", grantXP, locked, Options{}, false},
		{"unprotected category", grantGold, locked, Options{}, false},
		{"force", setLevel, locked, Options{Force: true}, false},
		{"approval requested", setLevel, locked, Options{RequestApproval: true}, false},
		{"nil character", setLevel, nil, Options{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.block, policy.Blocks(tt.def, tt.c, tt.opts))
		})
	}
}

func TestLockPolicy_Custom(t *testing.T) {
	policy := NewLockPolicy([]string{"set_level"}, []string{" Economy "})
	locked := &domain.Character{Locked: true}

	assert.True(t, policy.IsAlwaysAllowed("set_level"))
	assert.False(t, policy.IsAlwaysAllowed("heal"))
	assert.False(t, policy.Blocks(catalog.ToolDefinition{Name: "set_level", Category: catalog.CategoryCharacter}, locked, Options{}))
	assert.True(t, policy.Blocks(catalog.ToolDefinition{Name: "spend_gold", Category: catalog.CategoryEconomy}, locked, Options{}))
}

func TestCategorySuggester(t *testing.T) {
	out, err := CategorySuggester{}.Suggest(context.Background(), catalog.ToolDefinition{Category: catalog.CategoryCombat},
		catalog.Result{Success: true, Data: domain.Document{"unconscious": true}})
	assert.NoError(t, err)
	assert.Equal(t, "Start death saving throws", out[0])
}
