package decision

import (
	"strings"
	"unicode"
)

// Location is a coarse category derived from free-form location text.
type Location string

const (
	LocationUrban      Location = "urban"
	LocationTavern     Location = "tavern"
	LocationTemple     Location = "temple"
	LocationRoad       Location = "road"
	LocationWilderness Location = "wilderness"
	LocationDungeon    Location = "dungeon"
	LocationUnknown    Location = "unknown"
)

// Tone is a coarse reading of the current scene.
type Tone string

const (
	ToneCombat      Tone = "combat"
	ToneTense       Tone = "tense"
	ToneSocial      Tone = "social"
	ToneExploration Tone = "exploration"
	ToneCalm        Tone = "calm"
	ToneUnknown     Tone = "unknown"
)

type keywordClass[T any] struct {
	class T
	words []string
}

// Keywords match whole words and their plurals. A trailing "*" marks a stem
// that matches any word starting with it. Earlier entries win, so the more specific places come first.
var locationKeywords = []keywordClass[Location]{
	{LocationTavern, []string{"tavern", "inn", "alehouse", "pub"}},
	{LocationTemple, []string{"temple", "shrine", "chapel", "monastery", "cathedral"}},
	{LocationDungeon, []string{"dungeon", "crypt", "cave", "cavern", "tomb", "ruin", "catacomb", "lair", "vault", "sewer"}},
	{LocationRoad, []string{"road", "highway", "bridge", "crossroad", "trail", "caravan"}},
	{LocationUrban, []string{"city", "town", "village", "market", "street", "square", "castle", "keep", "docks", "shop"}},
	{LocationWilderness, []string{"forest", "woods", "mountain", "swamp", "desert", "plain", "hill", "river", "coast", "jungle"}},
}

var toneKeywords = []keywordClass[Tone]{
	{ToneCombat, []string{"combat", "battle", "fight", "fighting", "attack*", "initiative", "ambushed", "melee"}},
	{ToneTense, []string{"ambush", "stealth*", "sneak*", "hiding", "chase", "chased", "chasing", "danger*", "trap", "trapped", "tense"}},
	{ToneSocial, []string{"talk*", "negotiat*", "bargain*", "persuad*", "feast", "conversation", "audience", "haggl*"}},
	{ToneExploration, []string{"explor*", "search*", "travel*", "investigat*", "journey*", "map", "discover*"}},
	{ToneCalm, []string{"rest", "resting", "camp", "camping", "campfire", "quiet", "peaceful", "sleep*", "downtime", "calm"}},
}

// ClassifyLocation maps location text to a category by keyword.
func ClassifyLocation(text string) Location {
	if c, ok := classify(text, locationKeywords); ok {
		return c
	}
	return LocationUnknown
}

// ClassifyTone maps scene text to a tone by keyword.
func ClassifyTone(text string) Tone {
	if c, ok := classify(text, toneKeywords); ok {
		return c
	}
	return ToneUnknown
}

func classify[T any](text string, classes []keywordClass[T]) (T, bool) {
	words := tokenize(text)
	for _, c := range classes {
		if _, ok := matchAny(words, c.words); ok {
			return c.class, true
		}
	}
	var zero T
	return zero, false
}

// tokenize lowercases text and splits it into words.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchAny returns the first keyword matching one of the words, without any
// stem marker.
func matchAny(words, keywords []string) (string, bool) {
	for _, k := range keywords {
		for _, w := range words {
			if matchWord(w, k) {
				return strings.TrimSuffix(k, "*"), true
			}
		}
	}
	return "", false
}

func matchWord(word, keyword string) bool {
	if stem, ok := strings.CutSuffix(keyword, "*"); ok {
		return strings.HasPrefix(word, stem)
	}
	return word == keyword || word == keyword+"s" || word == keyword+"es"
}

// hasNeed reports whether any of the party's stated needs mentions a keyword.
func hasNeed(needs []string, words ...string) bool {
	for _, n := range needs {
		if _, ok := matchAny(tokenize(n), words); ok {
			return true
		}
	}
	return false
}
