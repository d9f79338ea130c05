package decision

import (
	"context"
	"fmt"

	"github.com/harun/tablekeeper/pkg/executor"
	"github.com/harun/tablekeeper/pkg/handlers"
)

// NPCEngineName identifies the NPC engine in metrics and recommendations.
const NPCEngineName = "npc"

var npcNames = []string{
	"Aldric", "Brenna", "Corvin", "Dalia", "Edrin", "Fenna", "Garrick", "Hesta",
	"Ivo", "Jora", "Kester", "Liesel", "Marek", "Nessa", "Orrin", "Perrin",
}

var npcDisposition = map[string]string{
	"villain":     "hostile",
	"merchant":    "friendly",
	"healer":      "friendly",
	"quest_giver": "friendly",
}

// NewNPCEngine creates the engine that recommends introducing NPCs.
func NewNPCEngine(cfg Config) *Engine {
	return newEngine(npcPolicy{}, cfg)
}

type npcPolicy struct{}

func (npcPolicy) name() string    { return NPCEngineName }
func (npcPolicy) subject() string { return "NPC introduction" }
func (npcPolicy) tools() []string { return []string{"spawn_npc"} }
func (npcPolicy) base() float64   { return 0.15 }

func (npcPolicy) factors(ctx context.Context, e *Engine, in Input) ([]Factor, error) {
	present := in.NPCsPresent
	if e.npcs != nil && in.Location != "" {
		npcs, err := e.npcs.ListByLocation(ctx, in.SessionID, in.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to count NPCs at %s: %w", in.Location, err)
		}
		present = len(npcs)
	}

	tone := ClassifyTone(in.Scene)
	appropriate, why := true, fmt.Sprintf("a %s scene can take a newcomer", tone)
	switch tone {
	case ToneCombat:
		appropriate, why = false, "combat is under way"
	case ToneTense:
		appropriate, why = false, "the scene is tense"
	}

	return []Factor{
		densityFactor("NPCs", present),
		sceneFactor(appropriate, why),
	}, nil
}

func (npcPolicy) scoreTypes(in Input) (map[string]int, []string) {
	scores := emptyScores(handlers.NPCRoles)
	var reasons []string

	location := ClassifyLocation(in.Location)
	switch location {
	case LocationUrban:
		scores["merchant"] += 2
		scores["guard"] += 2
		scores["commoner"]++
	case LocationTavern:
		scores["traveler"] += 2
		scores["commoner"] += 2
		scores["quest_giver"]++
	case LocationTemple:
		scores["healer"] += 3
		scores["commoner"]++
	case LocationRoad:
		scores["traveler"] += 2
		scores["merchant"]++
		scores["guard"]++
	case LocationWilderness:
		scores["traveler"] += 2
		scores["villain"]++
	case LocationDungeon:
		scores["villain"] += 3
	}
	reasons = append(reasons, fmt.Sprintf("location reads as %s", location))

	tone := ClassifyTone(in.Scene)
	switch tone {
	case ToneSocial:
		scores["merchant"]++
		scores["quest_giver"] += 2
	case ToneTense:
		scores["villain"] += 2
		scores["guard"]++
	case ToneExploration:
		scores["traveler"]++
		scores["quest_giver"]++
	case ToneCalm:
		scores["commoner"]++
		scores["merchant"]++
	case ToneCombat:
		scores["villain"]++
		scores["guard"]++
	}
	reasons = append(reasons, fmt.Sprintf("scene tone reads as %s", tone))

	if hasNeed(in.Needs, "heal*", "cure", "wound*") {
		scores["healer"] += 3
		reasons = append(reasons, "the party needs healing")
	}
	if hasNeed(in.Needs, "suppl*", "gear", "equip*", "trade", "trading", "shop*") {
		scores["merchant"] += 3
		reasons = append(reasons, "the party needs supplies")
	}
	if hasNeed(in.Needs, "quest", "direction", "work", "job") {
		scores["quest_giver"] += 3
		reasons = append(reasons, "the party needs direction")
	}
	if hasNeed(in.Needs, "inform*", "rumor", "rumour", "news") {
		scores["traveler"] += 2
		scores["commoner"]++
		reasons = append(reasons, "the party is after information")
	}
	if hasNeed(in.Needs, "protect*", "escort*") {
		scores["guard"] += 2
		reasons = append(reasons, "the party wants protection")
	}
	return scores, reasons
}

func (npcPolicy) toolCall(e *Engine, in Input, role string) *executor.BatchCall {
	disposition, ok := npcDisposition[role]
	if !ok {
		disposition = "neutral"
	}
	location := in.Location
	if location == "" {
		location = "nearby"
	}
	return &executor.BatchCall{
		ToolName: "spawn_npc",
		Parameters: map[string]interface{}{
			"name":        npcNames[e.rand.Intn(len(npcNames))],
			"role":        role,
			"location":    location,
			"disposition": disposition,
		},
	}
}
