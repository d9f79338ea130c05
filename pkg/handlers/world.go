package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
)

// NPCRoles is the closed set of roles spawn_npc accepts.
var NPCRoles = []string{"merchant", "guard", "commoner", "traveler", "quest_giver", "villain", "healer"}

func (s *Set) createQuestTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "create_quest",
			Description: "Start tracking a new quest for the session",
			Category:    catalog.CategoryQuests,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"title":       {Type: catalog.TypeString, Description: "Quest title", Required: true},
				"description": {Type: catalog.TypeString, Description: "What the party must do", Required: true},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			q := &domain.Quest{
				ID:          uuid.NewString(),
				SessionID:   call.SessionID,
				Title:       call.Params.String("title"),
				Description: call.Params.String("description"),
				Status:      domain.QuestActive,
				Notes:       []string{},
				CreatedAt:   call.Now,
				UpdatedAt:   call.Now,
			}
			if err := call.Tx.Quests().Create(ctx, q); err != nil {
				return catalog.Result{}, err
			}
			return catalog.OK(fmt.Sprintf("New quest: %s", q.Title), domain.Document{"quest_id": q.ID, "title": q.Title}), nil
		}),
	}
}

func loadActiveQuest(ctx context.Context, call catalog.Call) (*domain.Quest, error) {
	id := call.Params.String("quest_id")
	q, err := call.Tx.Quests().Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && q.SessionID != call.SessionID) {
		return nil, domain.Fail(domain.ErrNotFound, "quest %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if q.Status != domain.QuestActive {
		return nil, domain.Fail(domain.ErrRuleViolation, "quest %q is already %s", q.Title, q.Status)
	}
	return q, nil
}

func (s *Set) updateQuestProgressTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "update_quest_progress",
			Description: "Record progress on an active quest",
			Category:    catalog.CategoryQuests,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"quest_id": {Type: catalog.TypeString, Description: "Quest id", Required: true},
				"progress": {Type: catalog.TypeInteger, Description: "Completion percentage", Required: true, Min: catalog.Bound(0), Max: catalog.Bound(100)},
				"note":     {Type: catalog.TypeString, Description: "Journal entry for this step"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			q, err := loadActiveQuest(ctx, call)
			if err != nil {
				return catalog.Result{}, err
			}
			q.Progress = call.Params.Int("progress")
			if note := call.Params.String("note"); note != "" {
				q.Notes = append(q.Notes, note)
			}
			q.UpdatedAt = call.Now
			if err := call.Tx.Quests().Update(ctx, q); err != nil {
				return catalog.Result{}, err
			}
			return catalog.OK(
				fmt.Sprintf("Quest %q is %d%% complete", q.Title, q.Progress),
				domain.Document{"quest_id": q.ID, "progress": q.Progress},
			), nil
		}),
	}
}

func (s *Set) completeQuestTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "complete_quest",
			Description: "Close a quest as completed or failed and hand out its rewards",
			Category:    catalog.CategoryQuests,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"quest_id":          {Type: catalog.TypeString, Description: "Quest id", Required: true},
				"outcome":           {Type: catalog.TypeString, Description: "How the quest ended", Enum: []string{"completed", "failed"}, Default: "completed"},
				"reward_gold":       {Type: catalog.TypeInteger, Description: "Gold awarded on completion", Min: catalog.Bound(0), Max: catalog.Bound(1000000)},
				"reward_experience": {Type: catalog.TypeInteger, Description: "Experience awarded on completion", Min: catalog.Bound(0), Max: catalog.Bound(1000000)},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			q, err := loadActiveQuest(ctx, call)
			if err != nil {
				return catalog.Result{}, err
			}
			outcome := domain.QuestStatus(call.Params.Lower("outcome"))
			q.Status = outcome
			if outcome == domain.QuestCompleted {
				q.Progress = 100
			}
			q.UpdatedAt = call.Now
			if err := call.Tx.Quests().Update(ctx, q); err != nil {
				return catalog.Result{}, err
			}

			data := domain.Document{"quest_id": q.ID, "outcome": string(outcome)}
			gold, xp := call.Params.Int("reward_gold"), call.Params.Int("reward_experience")
			if outcome == domain.QuestCompleted && (gold > 0 || xp > 0) {
				c, err := loadCharacter(ctx, call)
				if err != nil {
					return catalog.Result{}, err
				}
				c.Gold += gold
				c.Experience += xp
				if err := saveCharacter(ctx, call, c); err != nil {
					return catalog.Result{}, err
				}
				data["reward_gold"] = gold
				data["reward_experience"] = xp
			}
			return catalog.OK(fmt.Sprintf("Quest %q %s", q.Title, outcome), data), nil
		}),
	}
}

func (s *Set) spawnNPCTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "spawn_npc",
			Description: "Introduce a non-player character at a location",
			Category:    catalog.CategoryWorld,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"name":        {Type: catalog.TypeString, Description: "NPC name", Required: true},
				"role":        {Type: catalog.TypeString, Description: "NPC role", Required: true, Enum: NPCRoles},
				"location":    {Type: catalog.TypeString, Description: "Where the NPC appears", Required: true},
				"disposition": {Type: catalog.TypeString, Description: "Attitude towards the party", Enum: []string{"friendly", "neutral", "hostile"}, Default: "neutral"},
				"description": {Type: catalog.TypeString, Description: "Appearance and manner"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			n := &domain.NPC{
				ID:          uuid.NewString(),
				SessionID:   call.SessionID,
				Name:        call.Params.String("name"),
				Role:        call.Params.Lower("role"),
				Location:    call.Params.String("location"),
				Disposition: call.Params.Lower("disposition"),
				Description: call.Params.String("description"),
				CreatedAt:   call.Now,
			}
			if err := call.Tx.NPCs().Create(ctx, n); err != nil {
				return catalog.Result{}, err
			}
			return catalog.OK(
				fmt.Sprintf("%s the %s appears at %s", n.Name, n.Role, n.Location),
				domain.Document{"npc_id": n.ID, "name": n.Name, "role": n.Role, "location": n.Location},
			), nil
		}),
	}
}

func (s *Set) removeNPCTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "remove_npc",
			Description: "Remove a non-player character from the world",
			Category:    catalog.CategoryWorld,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"npc_id": {Type: catalog.TypeString, Description: "NPC id", Required: true},
				"reason": {Type: catalog.TypeString, Description: "Why the NPC leaves"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			id := call.Params.String("npc_id")
			n, err := call.Tx.NPCs().Get(ctx, id)
			if errors.Is(err, domain.ErrNotFound) || (err == nil && n.SessionID != call.SessionID) {
				return catalog.Result{}, domain.Fail(domain.ErrNotFound, "npc %s not found", id)
			}
			if err != nil {
				return catalog.Result{}, err
			}
			if err := call.Tx.NPCs().Delete(ctx, id); err != nil {
				return catalog.Result{}, err
			}
			return catalog.OK(fmt.Sprintf("%s leaves %s", n.Name, n.Location), domain.Document{"npc_id": id}), nil
		}),
	}
}

// Reputation bounds for adjust_reputation.
const (
	MinReputation = -100
	MaxReputation = 100
)

// StandingTier names a reputation value.
func StandingTier(reputation int) string {
	switch {
	case reputation <= -60:
		return "hated"
	case reputation <= -20:
		return "unfriendly"
	case reputation < 20:
		return "neutral"
	case reputation < 60:
		return "friendly"
	default:
		return "revered"
	}
}

func (s *Set) adjustReputationTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "adjust_reputation",
			Description: "Shift the character's standing with a faction",
			Category:    catalog.CategoryFaction,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"faction": {Type: catalog.TypeString, Description: "Faction name", Required: true},
				"delta":   {Type: catalog.TypeInteger, Description: "Change in reputation", Required: true, Min: catalog.Bound(-100), Max: catalog.Bound(100)},
				"reason":  {Type: catalog.TypeString, Description: "What the faction reacts to"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			c, err := loadCharacter(ctx, call)
			if err != nil {
				return catalog.Result{}, err
			}
			faction := call.Params.String("faction")
			standing, err := call.Tx.Factions().Get(ctx, c.ID, faction)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				standing = &domain.FactionStanding{CharacterID: c.ID, Faction: faction}
			case err != nil:
				return catalog.Result{}, err
			}

			old := standing.Reputation
			standing.Reputation = clamp(old+call.Params.Int("delta"), MinReputation, MaxReputation)
			standing.UpdatedAt = call.Now
			if err := call.Tx.Factions().Upsert(ctx, standing); err != nil {
				return catalog.Result{}, err
			}
			tier := StandingTier(standing.Reputation)
			return catalog.OK(
				fmt.Sprintf("%s's standing with %s is now %d (%s)", c.Name, standing.Faction, standing.Reputation, tier),
				domain.Document{"faction": standing.Faction, "old_reputation": old, "reputation": standing.Reputation, "tier": tier},
			), nil
		}),
	}
}
