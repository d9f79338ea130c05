package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
)

// Options configures the tool set.
type Options struct {
	// Dice is shared by roll_dice and the rest tools. A nil Dice is seeded
	// from crypto/rand.
	Dice *Dice
}

// Set holds the dependencies shared by the handlers.
type Set struct {
	dice *Dice
}

// NewSet creates a handler set.
func NewSet(opts Options) *Set {
	dice := opts.Dice
	if dice == nil {
		dice = NewDice(0)
	}
	return &Set{dice: dice}
}

// Tools returns every tool in catalog order.
func (s *Set) Tools() []catalog.Tool {
	return []catalog.Tool{
		// character
		s.setAbilityScoreTool(),
		s.setLevelTool(),
		s.setMaxHPTool(),
		s.grantExperienceTool(),
		s.setGameplayLockTool(),
		// combat
		s.applyDamageTool(),
		s.healTool(),
		s.useActionTool(),
		s.resetActionEconomyTool(),
		// conditions
		s.addConditionTool(),
		s.removeConditionTool(),
		// economy
		s.grantGoldTool(),
		s.spendGoldTool(),
		// inventory
		s.addItemTool(),
		s.removeItemTool(),
		// quests
		s.createQuestTool(),
		s.updateQuestProgressTool(),
		s.completeQuestTool(),
		// world
		s.spawnNPCTool(),
		s.removeNPCTool(),
		// faction
		s.adjustReputationTool(),
		// dice
		s.rollDiceTool(),
		// rest
		s.shortRestTool(),
		s.longRestTool(),
		// treasure
		s.grantTreasureTool(),
	}
}

// Register registers the full tool set on b.
func Register(b *catalog.Builder, opts Options) error {
	if b == nil {
		return errors.New("catalog builder is required")
	}
	for _, tool := range NewSet(opts).Tools() {
		if err := b.Register(tool.Definition, tool.Handler); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Definition.Name, err)
		}
	}
	return nil
}

// NewRegistry builds an immutable registry holding the full tool set.
func NewRegistry(opts Options) (*catalog.Registry, error) {
	b := catalog.NewBuilder()
	if err := Register(b, opts); err != nil {
		return nil, err
	}
	return b.Build()
}

// loadCharacter fetches the character in scope of the call.
func loadCharacter(ctx context.Context, call catalog.Call) (*domain.Character, error) {
	if call.CharacterID == "" {
		return nil, domain.Fail(domain.ErrNotFound, "no character in scope")
	}
	c, err := call.Tx.Characters().Get(ctx, call.CharacterID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Fail(domain.ErrNotFound, "character %s not found", call.CharacterID)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func saveCharacter(ctx context.Context, call catalog.Call, c *domain.Character) error {
	c.UpdatedAt = call.Now
	return call.Tx.Characters().Update(ctx, c)
}

// mutateCharacter loads the character, applies fn and saves it unless fn fails.
func mutateCharacter(ctx context.Context, call catalog.Call, fn func(c *domain.Character) (catalog.Result, error)) (catalog.Result, error) {
	c, err := loadCharacter(ctx, call)
	if err != nil {
		return catalog.Result{}, err
	}
	res, err := fn(c)
	if err != nil || !res.Success {
		return res, err
	}
	if err := saveCharacter(ctx, call, c); err != nil {
		return catalog.Result{}, err
	}
	return res, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
