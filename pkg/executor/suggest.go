package executor

import (
	"context"

	"github.com/harun/tablekeeper/pkg/catalog"
)

// Suggester proposes follow-up moves after a successful tool call.
type Suggester interface {
	Suggest(ctx context.Context, def catalog.ToolDefinition, result catalog.Result) ([]string, error)
}

// SuggesterFunc adapts a function to Suggester.
type SuggesterFunc func(ctx context.Context, def catalog.ToolDefinition, result catalog.Result) ([]string, error)

// Suggest implements Suggester.
func (f SuggesterFunc) Suggest(ctx context.Context, def catalog.ToolDefinition, result catalog.Result) ([]string, error) {
	return f(ctx, def, result)
}

// CategorySuggester returns fixed follow-ups per category, with a few
// result-aware additions.
type CategorySuggester struct{}

var categorySuggestions = map[catalog.Category][]string{
	catalog.CategoryCharacter:  {"Describe how the change shows in the character", "Check whether new abilities unlock"},
	catalog.CategoryCombat:     {"Resolve the next combatant's turn", "Describe the blow's effect on the scene"},
	catalog.CategoryConditions: {"Remind the player how the condition limits them", "Note when the condition can end"},
	catalog.CategoryEconomy:    {"Offer a place to spend or store the gold"},
	catalog.CategoryInventory:  {"Describe the item", "Ask whether the character equips it"},
	catalog.CategoryQuests:     {"Hint at the next lead", "Let an NPC react to the news"},
	catalog.CategoryWorld:      {"Give the NPC a first line of dialogue", "Describe the NPC's surroundings"},
	catalog.CategoryFaction:    {"Show how faction members now treat the character"},
	catalog.CategoryDice:       {"Narrate the outcome of the roll"},
	catalog.CategoryRest:       {"Advance the in-game clock", "Consider a random encounter during the rest"},
	catalog.CategoryTreasure:   {"Describe where the treasure was hidden", "Ask how the party splits the find"},
}

// Suggest implements Suggester.
func (CategorySuggester) Suggest(_ context.Context, def catalog.ToolDefinition, result catalog.Result) ([]string, error) {
	out := append([]string{}, categorySuggestions[def.Category]...)
	if v, ok := result.Data["unconscious"].(bool); ok && v {
		out = append([]string{"Start death saving throws"}, out...)
	}
	if v, ok := result.Data["level_up"].(bool); ok && v {
		out = append([]string{"Offer a level up through set_level"}, out...)
	}
	return out, nil
}
