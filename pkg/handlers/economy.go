package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
)

func (s *Set) grantGoldTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "grant_gold",
			Description: "Give gold pieces to the character",
			Category:    catalog.CategoryEconomy,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"amount": {Type: catalog.TypeInteger, Description: "Gold pieces", Required: true, Min: catalog.Bound(1), Max: catalog.Bound(1000000)},
				"reason": {Type: catalog.TypeString, Description: "Where the gold comes from"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			amount := call.Params.Int("amount")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				old := c.Gold
				c.Gold += amount
				return catalog.OK(
					fmt.Sprintf("%s receives %d gp (now %d gp)", c.Name, amount, c.Gold),
					domain.Document{"amount": amount, "old_gold": old, "new_gold": c.Gold, "reason": call.Params.String("reason")},
				), nil
			})
		}),
	}
}

func (s *Set) spendGoldTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "spend_gold",
			Description: "Deduct gold pieces the character spends",
			Category:    catalog.CategoryEconomy,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"amount": {Type: catalog.TypeInteger, Description: "Gold pieces", Required: true, Min: catalog.Bound(1), Max: catalog.Bound(1000000)},
				"reason": {Type: catalog.TypeString, Description: "What the gold is spent on"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			amount := call.Params.Int("amount")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				if c.Gold < amount {
					return catalog.Result{}, domain.Fail(domain.ErrInsufficientResource,
						"insufficient gold: %s has %d gp, needs %d gp", c.Name, c.Gold, amount)
				}
				old := c.Gold
				c.Gold -= amount
				return catalog.OK(
					fmt.Sprintf("%s spends %d gp (now %d gp)", c.Name, amount, c.Gold),
					domain.Document{"amount": amount, "old_gold": old, "new_gold": c.Gold, "reason": call.Params.String("reason")},
				), nil
			})
		}),
	}
}

func (s *Set) addItemTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "add_item",
			Description: "Add an item to the character's inventory",
			Category:    catalog.CategoryInventory,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"item_name": {Type: catalog.TypeString, Description: "Item name", Required: true},
				"quantity":  {Type: catalog.TypeInteger, Description: "How many", Min: catalog.Bound(1), Max: catalog.Bound(9999), Default: 1},
				"notes":     {Type: catalog.TypeString, Description: "Free-form notes about the item"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			c, err := loadCharacter(ctx, call)
			if err != nil {
				return catalog.Result{}, err
			}
			item, err := addItem(ctx, call, c.ID, call.Params.String("item_name"), call.Params.Int("quantity"), call.Params.String("notes"), nil)
			if err != nil {
				return catalog.Result{}, err
			}
			return catalog.OK(
				fmt.Sprintf("%s now carries %d x %s", c.Name, item.Quantity, item.Name),
				domain.Document{"item_name": item.Name, "quantity": item.Quantity},
			), nil
		}),
	}
}

func (s *Set) removeItemTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "remove_item",
			Description: "Remove items from the character's inventory",
			Category:    catalog.CategoryInventory,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"item_name": {Type: catalog.TypeString, Description: "Item name", Required: true},
				"quantity":  {Type: catalog.TypeInteger, Description: "How many", Min: catalog.Bound(1), Max: catalog.Bound(9999), Default: 1},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			c, err := loadCharacter(ctx, call)
			if err != nil {
				return catalog.Result{}, err
			}
			name := call.Params.String("item_name")
			quantity := call.Params.Int("quantity")

			item, err := call.Tx.Inventory().Get(ctx, c.ID, name)
			if errors.Is(err, domain.ErrNotFound) {
				return catalog.Result{}, domain.Fail(domain.ErrNotFound, "%s does not carry %s", c.Name, name)
			}
			if err != nil {
				return catalog.Result{}, err
			}
			if item.Quantity < quantity {
				return catalog.Result{}, domain.Fail(domain.ErrInsufficientResource,
					"%s only carries %d x %s", c.Name, item.Quantity, item.Name)
			}

			item.Quantity -= quantity
			if item.Quantity == 0 {
				err = call.Tx.Inventory().Delete(ctx, c.ID, item.Name)
			} else {
				err = call.Tx.Inventory().Upsert(ctx, item)
			}
			if err != nil {
				return catalog.Result{}, err
			}
			return catalog.OK(
				fmt.Sprintf("%s removes %d x %s (%d left)", c.Name, quantity, item.Name, item.Quantity),
				domain.Document{"item_name": item.Name, "removed": quantity, "remaining": item.Quantity},
			), nil
		}),
	}
}

// addItem stacks quantity onto an existing item (matched case-insensitively)
// or creates it.
func addItem(ctx context.Context, call catalog.Call, characterID, name string, quantity int, notes string, props domain.Document) (*domain.InventoryItem, error) {
	item, err := call.Tx.Inventory().Get(ctx, characterID, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		item = &domain.InventoryItem{CharacterID: characterID, Name: name}
	case err != nil:
		return nil, err
	}
	item.Quantity += quantity
	if notes != "" {
		item.Notes = notes
	}
	if len(props) > 0 {
		if item.Properties == nil {
			item.Properties = domain.Document{}
		}
		for k, v := range props {
			item.Properties[k] = v
		}
	}
	if err := call.Tx.Inventory().Upsert(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// TreasureTypes is the closed set of treasure kinds.
var TreasureTypes = []string{"coins", "gems", "art_object", "magic_item", "consumable", "equipment"}

func (s *Set) grantTreasureTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "grant_treasure",
			Description: "Award found treasure: coins go to the purse, anything else to the inventory",
			Category:    catalog.CategoryTreasure,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"treasure_type": {Type: catalog.TypeString, Description: "Kind of treasure", Required: true, Enum: TreasureTypes},
				"name":          {Type: catalog.TypeString, Description: "Item name (ignored for coins)"},
				"value_gp":      {Type: catalog.TypeInteger, Description: "Value in gold pieces", Required: true, Min: catalog.Bound(0), Max: catalog.Bound(1000000)},
				"quantity":      {Type: catalog.TypeInteger, Description: "How many items", Min: catalog.Bound(1), Max: catalog.Bound(999), Default: 1},
				"rarity":        {Type: catalog.TypeString, Description: "Rarity of a magic item", Enum: []string{"common", "uncommon", "rare", "very_rare", "legendary"}},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			kind := call.Params.Lower("treasure_type")
			value := call.Params.Int("value_gp")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				if kind == "coins" {
					c.Gold += value
					return catalog.OK(
						fmt.Sprintf("%s finds %d gp in coins", c.Name, value),
						domain.Document{"treasure_type": kind, "value_gp": value, "new_gold": c.Gold},
					), nil
				}

				name := call.Params.String("name")
				if name == "" {
					return catalog.Result{}, domain.Fail(domain.ErrRuleViolation, "%s treasure needs a name", kind)
				}
				props := domain.Document{"treasure_type": kind, "value_gp": value}
				if r := call.Params.String("rarity"); r != "" {
					props["rarity"] = r
				}
				item, err := addItem(ctx, call, c.ID, name, call.Params.Int("quantity"), "", props)
				if err != nil {
					return catalog.Result{}, err
				}
				return catalog.OK(
					fmt.Sprintf("%s finds %s (%s, %d gp)", c.Name, item.Name, kind, value),
					domain.Document{"treasure_type": kind, "value_gp": value, "item_name": item.Name, "quantity": item.Quantity},
				), nil
			})
		}),
	}
}
