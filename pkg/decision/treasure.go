package decision

import (
	"context"
	"fmt"

	"github.com/harun/tablekeeper/pkg/executor"
	"github.com/harun/tablekeeper/pkg/handlers"
)

// TreasureEngineName identifies the treasure engine in metrics and
// recommendations.
const TreasureEngineName = "treasure"

// expectedWealth is the gold a character of each level is expected to hold.
var expectedWealth = [...]int{
	1: 50, 2: 100, 3: 200, 4: 400, 5: 700,
	6: 1000, 7: 1500, 8: 2000, 9: 3000, 10: 4000,
	11: 5500, 12: 7000, 13: 9000, 14: 11000, 15: 14000,
	16: 17000, 17: 21000, 18: 25000, 19: 30000, 20: 36000,
}

// ExpectedWealth returns the level-expected gold, clamping level to 1..20.
func ExpectedWealth(level int) int {
	if level < 1 {
		level = 1
	}
	if level > 20 {
		level = 20
	}
	return expectedWealth[level]
}

// WealthRatio is gold divided by the level-expected gold.
func WealthRatio(gold, level int) float64 {
	return float64(gold) / float64(ExpectedWealth(level))
}

var treasureValueScale = map[string]float64{
	"coins":      1,
	"gems":       1.5,
	"art_object": 2,
	"magic_item": 4,
	"consumable": 0.5,
	"equipment":  1,
}

var treasureNames = map[string]string{
	"gems":       "Cut gemstone",
	"art_object": "Gilded statuette",
	"magic_item": "Runed trinket",
	"consumable": "Potion of healing",
	"equipment":  "Well-made gear",
}

var lootKeywords = []string{"defeat*", "loot*", "chest", "hoard", "search*", "vault", "slain", "victory", "cache"}

// NewTreasureEngine creates the engine that recommends granting treasure.
func NewTreasureEngine(cfg Config) *Engine {
	return newEngine(treasurePolicy{}, cfg)
}

type treasurePolicy struct{}

func (treasurePolicy) name() string    { return TreasureEngineName }
func (treasurePolicy) subject() string { return "treasure grant" }
func (treasurePolicy) tools() []string { return []string{"grant_treasure"} }
func (treasurePolicy) base() float64   { return 0.1 }

func wealthFactor(gold, level int) Factor {
	ratio := WealthRatio(gold, level)
	f := Factor{Name: "wealth_ratio", Value: fmt.Sprintf("%.2f", ratio)}
	switch {
	case ratio < 0.5:
		f.Contribution = 0.2
	case ratio < 0.8:
		f.Contribution = 0.1
	case ratio <= 1.2:
		f.Contribution = 0
	case ratio <= 2:
		f.Contribution = -0.15
	default:
		f.Contribution = -0.3
	}
	f.Reason = fmt.Sprintf("party holds %d gp, %.0f%% of the %d gp expected at level %d",
		gold, ratio*100, ExpectedWealth(level), level)
	return f
}

func (treasurePolicy) factors(_ context.Context, _ *Engine, in Input) ([]Factor, error) {
	tone := ClassifyTone(in.Scene)
	location := ClassifyLocation(in.Location)

	appropriate, why := false, fmt.Sprintf("nothing in a %s %s scene suggests loot", location, tone)
	if k, ok := matchAny(tokenize(in.Scene), lootKeywords); ok {
		appropriate, why = true, fmt.Sprintf("the scene mentions %q", k)
	} else if location == LocationDungeon || tone == ToneExploration {
		appropriate, why = true, fmt.Sprintf("a %s %s scene can hide treasure", location, tone)
	}
	if tone == ToneCombat {
		appropriate, why = false, "combat is still under way"
	}

	return []Factor{
		densityFactor("items", in.ItemsNearby),
		sceneFactor(appropriate, why),
		wealthFactor(in.PartyGold, in.PartyLevel),
	}, nil
}

func (treasurePolicy) scoreTypes(in Input) (map[string]int, []string) {
	scores := emptyScores(handlers.TreasureTypes)
	var reasons []string

	location := ClassifyLocation(in.Location)
	switch location {
	case LocationDungeon:
		scores["magic_item"] += 2
		scores["gems"] += 2
		scores["art_object"]++
		scores["coins"]++
	case LocationWilderness:
		scores["consumable"]++
		scores["equipment"]++
	case LocationUrban, LocationTavern:
		scores["coins"] += 2
		scores["art_object"]++
	case LocationTemple:
		scores["consumable"] += 2
		scores["art_object"]++
	case LocationRoad:
		scores["coins"]++
		scores["equipment"]++
	}
	reasons = append(reasons, fmt.Sprintf("location reads as %s", location))

	tone := ClassifyTone(in.Scene)
	switch tone {
	case ToneCombat:
		scores["coins"] += 2
		scores["consumable"] += 2
		scores["equipment"]++
	case ToneExploration:
		scores["gems"]++
		scores["art_object"]++
		scores["magic_item"]++
	case ToneSocial:
		scores["coins"]++
		scores["art_object"]++
	}
	reasons = append(reasons, fmt.Sprintf("scene tone reads as %s", tone))

	ratio := WealthRatio(in.PartyGold, in.PartyLevel)
	switch {
	case ratio < 0.5:
		scores["coins"] += 3
		scores["equipment"]++
		reasons = append(reasons, "the party is poor")
	case ratio < 0.8:
		scores["coins"]++
		scores["consumable"]++
		reasons = append(reasons, "the party is short of money")
	case ratio > 1.2:
		scores["magic_item"]++
		scores["consumable"]++
		reasons = append(reasons, "the party is wealthy")
	}

	if hasNeed(in.Needs, "heal*", "cure", "potion") {
		scores["consumable"] += 3
		reasons = append(reasons, "the party needs healing")
	}
	if hasNeed(in.Needs, "gear", "equip*", "weapon", "armor", "armour") {
		scores["equipment"] += 3
		reasons = append(reasons, "the party needs gear")
	}
	if hasNeed(in.Needs, "magic") {
		scores["magic_item"] += 2
		reasons = append(reasons, "the party wants magic")
	}
	if hasNeed(in.Needs, "gold", "money", "coin") {
		scores["coins"] += 2
		reasons = append(reasons, "the party needs money")
	}
	return scores, reasons
}

func (treasurePolicy) toolCall(_ *Engine, in Input, kind string) *executor.BatchCall {
	value := int(float64(ExpectedWealth(in.PartyLevel)) / 10 * treasureValueScale[kind])
	if value < 5 {
		value = 5
	}
	params := map[string]interface{}{
		"treasure_type": kind,
		"value_gp":      value,
	}
	if name, ok := treasureNames[kind]; ok {
		params["name"] = name
	}
	if kind == "magic_item" {
		params["rarity"] = "uncommon"
		if in.PartyLevel >= 11 {
			params["rarity"] = "rare"
		}
	}
	return &executor.BatchCall{ToolName: "grant_treasure", Parameters: params}
}
