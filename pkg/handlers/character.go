package handlers

import (
	"context"
	"fmt"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
)

// MaxLevel is the highest character level.
const MaxLevel = 20

// experienceThresholds[i] is the experience needed to reach level i+1.
var experienceThresholds = [MaxLevel]int{
	0, 300, 900, 2700, 6500, 14000, 23000, 34000, 48000, 64000,
	85000, 100000, 120000, 140000, 165000, 195000, 225000, 265000, 305000, 355000,
}

// LevelForExperience returns the level an experience total qualifies for.
func LevelForExperience(xp int) int {
	level := 1
	for i, threshold := range experienceThresholds {
		if xp >= threshold {
			level = i + 1
		}
	}
	return level
}

func abilityNames() []string {
	names := make([]string, 0, 6)
	for _, a := range domain.Abilities() {
		names = append(names, string(a))
	}
	return names
}

func (s *Set) setAbilityScoreTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:             "set_ability_score",
			Description:      "Set one of the character's six ability scores",
			Category:         catalog.CategoryCharacter,
			ApprovalRequired: true,
			Parameters: map[string]catalog.ParamSpec{
				"ability": {Type: catalog.TypeString, Description: "Ability to change", Required: true, Enum: abilityNames()},
				"value":   {Type: catalog.TypeInteger, Description: "New score", Required: true, Min: catalog.Bound(1), Max: catalog.Bound(30)},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			ability := domain.Ability(call.Params.Lower("ability"))
			value := call.Params.Int("value")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				old, _ := c.Abilities.Get(ability)
				if !c.Abilities.Set(ability, value) {
					return catalog.Result{}, domain.Fail(domain.ErrRuleViolation, "unknown ability %q", ability)
				}
				return catalog.OK(
					fmt.Sprintf("%s's %s changed from %d to %d", c.Name, ability, old, value),
					domain.Document{"ability": string(ability), "old_value": old, "new_value": value},
				), nil
			})
		}),
	}
}

func (s *Set) setLevelTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:             "set_level",
			Description:      "Set the character's level directly",
			Category:         catalog.CategoryCharacter,
			ApprovalRequired: true,
			Parameters: map[string]catalog.ParamSpec{
				"level":  {Type: catalog.TypeInteger, Description: "New level", Required: true, Min: catalog.Bound(1), Max: catalog.Bound(MaxLevel)},
				"reason": {Type: catalog.TypeString, Description: "Why the level changes"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			level := call.Params.Int("level")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				old := c.Level
				c.Level = level
				c.HitDice = clamp(c.HitDice+(level-old), 0, level)
				return catalog.OK(
					fmt.Sprintf("%s is now level %d", c.Name, level),
					domain.Document{"old_level": old, "new_level": level},
				), nil
			})
		}),
	}
}

func (s *Set) setMaxHPTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:             "set_max_hp",
			Description:      "Set the character's maximum hit points",
			Category:         catalog.CategoryCharacter,
			ApprovalRequired: true,
			Parameters: map[string]catalog.ParamSpec{
				"max_hp": {Type: catalog.TypeInteger, Description: "New maximum hit points", Required: true, Min: catalog.Bound(1), Max: catalog.Bound(999)},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			maxHP := call.Params.Int("max_hp")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				old := c.MaxHP
				c.MaxHP = maxHP
				c.CurrentHP = clamp(c.CurrentHP, 0, maxHP)
				return catalog.OK(
					fmt.Sprintf("%s's maximum HP changed from %d to %d", c.Name, old, maxHP),
					domain.Document{"old_max_hp": old, "new_max_hp": maxHP, "current_hp": c.CurrentHP},
				), nil
			})
		}),
	}
}

func (s *Set) grantExperienceTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "grant_experience",
			Description: "Award experience points to the character",
			Category:    catalog.CategoryCharacter,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"amount": {Type: catalog.TypeInteger, Description: "Experience points", Required: true, Min: catalog.Bound(1), Max: catalog.Bound(1000000)},
				"reason": {Type: catalog.TypeString, Description: "What the experience is for"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			amount := call.Params.Int("amount")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				c.Experience += amount
				eligible := LevelForExperience(c.Experience)
				data := domain.Document{
					"amount":           amount,
					"total_experience": c.Experience,
					"level_up":         eligible > c.Level,
				}
				msg := fmt.Sprintf("%s gained %d XP (total %d)", c.Name, amount, c.Experience)
				if eligible > c.Level {
					// Levelling is a set_level decision for the player.
					data["eligible_level"] = eligible
					msg += fmt.Sprintf(", eligible for level %d", eligible)
				}
				return catalog.OK(msg, data), nil
			})
		}),
	}
}

func (s *Set) setGameplayLockTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:             "set_gameplay_lock",
			Description:      "Lock or unlock the character sheet for gameplay",
			Category:         catalog.CategoryCharacter,
			ApprovalRequired: true,
			Parameters: map[string]catalog.ParamSpec{
				"locked": {Type: catalog.TypeBoolean, Description: "Whether core attributes are locked", Required: true},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			locked := call.Params.Bool("locked")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				c.Locked = locked
				state := "unlocked"
				if locked {
					state = "locked"
				}
				return catalog.OK(fmt.Sprintf("%s is %s for gameplay", c.Name, state), domain.Document{"locked": locked}), nil
			})
		}),
	}
}
