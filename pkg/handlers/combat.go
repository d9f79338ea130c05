package handlers

import (
	"context"
	"fmt"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
)

const conditionUnconscious = "unconscious"

// Conditions is the closed set accepted by add_condition.
var Conditions = []string{
	"blinded", "charmed", "deafened", "exhaustion", "frightened", "grappled",
	"incapacitated", "invisible", "paralyzed", "petrified", "poisoned",
	"prone", "restrained", "stunned", conditionUnconscious,
}

func (s *Set) applyDamageTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "apply_damage",
			Description: "Reduce the character's current hit points",
			Category:    catalog.CategoryCombat,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"amount":      {Type: catalog.TypeInteger, Description: "Damage dealt", Required: true, Min: catalog.Bound(0), Max: catalog.Bound(9999)},
				"damage_type": {Type: catalog.TypeString, Description: "Damage type, e.g. slashing or fire"},
				"source":      {Type: catalog.TypeString, Description: "What dealt the damage"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			amount := call.Params.Int("amount")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				old := c.CurrentHP
				c.CurrentHP = clamp(c.CurrentHP-amount, 0, c.MaxHP)
				down := c.CurrentHP == 0 && old > 0
				if down {
					c.AddCondition(conditionUnconscious)
				}
				msg := fmt.Sprintf("%s takes %d damage (%d/%d HP)", c.Name, amount, c.CurrentHP, c.MaxHP)
				if down {
					msg += " and falls unconscious"
				}
				return catalog.OK(msg, domain.Document{
					"damage":      amount,
					"damage_type": call.Params.String("damage_type"),
					"old_hp":      old,
					"current_hp":  c.CurrentHP,
					"unconscious": c.CurrentHP == 0,
				}), nil
			})
		}),
	}
}

func (s *Set) healTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "heal",
			Description: "Restore the character's hit points up to the maximum",
			Category:    catalog.CategoryCombat,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"amount": {Type: catalog.TypeInteger, Description: "Hit points restored", Required: true, Min: catalog.Bound(1), Max: catalog.Bound(9999)},
				"source": {Type: catalog.TypeString, Description: "Spell, potion or ability used"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			amount := call.Params.Int("amount")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				old := c.CurrentHP
				c.CurrentHP = clamp(c.CurrentHP+amount, 0, c.MaxHP)
				if old == 0 && c.CurrentHP > 0 {
					c.RemoveCondition(conditionUnconscious)
				}
				return catalog.OK(
					fmt.Sprintf("%s heals %d HP (%d/%d HP)", c.Name, c.CurrentHP-old, c.CurrentHP, c.MaxHP),
					domain.Document{"healed": c.CurrentHP - old, "old_hp": old, "current_hp": c.CurrentHP},
				), nil
			})
		}),
	}
}

func (s *Set) useActionTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "use_action",
			Description: "Spend the character's action, bonus action or reaction for this turn",
			Category:    catalog.CategoryCombat,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"action_type": {Type: catalog.TypeString, Description: "Which part of the action economy", Required: true, Enum: []string{"action", "bonus_action", "reaction"}},
				"description": {Type: catalog.TypeString, Description: "What the character does"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			kind := call.Params.Lower("action_type")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				var used *bool
				switch kind {
				case "action":
					used = &c.Economy.ActionUsed
				case "bonus_action":
					used = &c.Economy.BonusActionUsed
				case "reaction":
					used = &c.Economy.ReactionUsed
				default:
					return catalog.Result{}, domain.Fail(domain.ErrRuleViolation, "unknown action type %q", kind)
				}
				if *used {
					return catalog.Result{}, domain.Fail(domain.ErrRuleViolation, "%s already used its %s this turn", c.Name, kind)
				}
				*used = true
				return catalog.OK(fmt.Sprintf("%s uses their %s", c.Name, kind), domain.Document{
					"action_type": kind,
					"economy":     economyDocument(c.Economy),
				}), nil
			})
		}),
	}
}

func (s *Set) resetActionEconomyTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "reset_action_economy",
			Description: "Start a new combat turn for the character",
			Category:    catalog.CategoryCombat,
			Immediate:   true,
			Parameters:  map[string]catalog.ParamSpec{},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				c.Economy = domain.ActionEconomy{}
				return catalog.OK(fmt.Sprintf("%s's turn begins", c.Name), domain.Document{"economy": economyDocument(c.Economy)}), nil
			})
		}),
	}
}

func economyDocument(e domain.ActionEconomy) domain.Document {
	return domain.Document{
		"action_used":       e.ActionUsed,
		"bonus_action_used": e.BonusActionUsed,
		"reaction_used":     e.ReactionUsed,
	}
}

func (s *Set) addConditionTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "add_condition",
			Description: "Inflict a condition on the character",
			Category:    catalog.CategoryConditions,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"condition": {Type: catalog.TypeString, Description: "Condition name", Required: true, Enum: Conditions},
				"source":    {Type: catalog.TypeString, Description: "What caused the condition"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			condition := call.Params.Lower("condition")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				if !c.AddCondition(condition) {
					return catalog.Result{
						Success: false,
						Message: fmt.Sprintf("%s is already %s", c.Name, condition),
					}, nil
				}
				return catalog.OK(fmt.Sprintf("%s is now %s", c.Name, condition), domain.Document{
					"condition":  condition,
					"conditions": append([]string{}, c.Conditions...),
				}), nil
			})
		}),
	}
}

func (s *Set) removeConditionTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "remove_condition",
			Description: "Remove a condition from the character",
			Category:    catalog.CategoryConditions,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"condition": {Type: catalog.TypeString, Description: "Condition name", Required: true},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			condition := call.Params.Lower("condition")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				if !c.RemoveCondition(condition) {
					return catalog.Result{}, domain.Fail(domain.ErrNotFound, "%s is not %s", c.Name, condition)
				}
				return catalog.OK(fmt.Sprintf("%s is no longer %s", c.Name, condition), domain.Document{
					"condition":  condition,
					"conditions": append([]string{}, c.Conditions...),
				}), nil
			})
		}),
	}
}
