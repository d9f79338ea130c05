package domain

import (
	"slices"
	"strings"
	"time"
)

// Document is an open JSON-shaped payload (tool parameters, handler results).
type Document map[string]interface{}

// Ability names one of the six ability scores.
type Ability string

const (
	Strength     Ability = "strength"
	Dexterity    Ability = "dexterity"
	Constitution Ability = "constitution"
	Intelligence Ability = "intelligence"
	Wisdom       Ability = "wisdom"
	Charisma     Ability = "charisma"
)

// Abilities returns the six abilities in canonical order.
func Abilities() []Ability {
	return []Ability{Strength, Dexterity, Constitution, Intelligence, Wisdom, Charisma}
}

// AbilityScores holds the six ability scores of a character.
type AbilityScores struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// Get returns the score for an ability.
func (a AbilityScores) Get(ability Ability) (int, bool) {
	switch ability {
	case Strength:
		return a.Strength, true
	case Dexterity:
		return a.Dexterity, true
	case Constitution:
		return a.Constitution, true
	case Intelligence:
		return a.Intelligence, true
	case Wisdom:
		return a.Wisdom, true
	case Charisma:
		return a.Charisma, true
	}
	return 0, false
}

// Set assigns the score for an ability. It reports false for unknown abilities.
func (a *AbilityScores) Set(ability Ability, value int) bool {
	switch ability {
	case Strength:
		a.Strength = value
	case Dexterity:
		a.Dexterity = value
	case Constitution:
		a.Constitution = value
	case Intelligence:
		a.Intelligence = value
	case Wisdom:
		a.Wisdom = value
	case Charisma:
		a.Charisma = value
	default:
		return false
	}
	return true
}

// StateSnapshot is the whitelist of character fields captured around every
// tool execution and restored by rewind.
type StateSnapshot struct {
	CurrentHP  int           `json:"current_hp"`
	MaxHP      int           `json:"max_hp"`
	Gold       int           `json:"gold"`
	Experience int           `json:"experience"`
	Level      int           `json:"level"`
	Abilities  AbilityScores `json:"abilities"`
	Conditions []string      `json:"conditions"`
}

// Clone returns a deep copy of the snapshot.
func (s StateSnapshot) Clone() StateSnapshot {
	out := s
	out.Conditions = append([]string{}, s.Conditions...)
	return out
}

// Equal compares two snapshots field by field. Condition order is significant.
func (s StateSnapshot) Equal(other StateSnapshot) bool {
	return s.CurrentHP == other.CurrentHP &&
		s.MaxHP == other.MaxHP &&
		s.Gold == other.Gold &&
		s.Experience == other.Experience &&
		s.Level == other.Level &&
		s.Abilities == other.Abilities &&
		slices.Equal(s.Conditions, other.Conditions)
}

// ActionEconomy tracks what a character has spent during the current combat turn.
type ActionEconomy struct {
	ActionUsed      bool `json:"action_used"`
	BonusActionUsed bool `json:"bonus_action_used"`
	ReactionUsed    bool `json:"reaction_used"`
}

// Character is the mutable sheet a session's tool calls operate on.
type Character struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Name       string        `json:"name"`
	CurrentHP  int           `json:"current_hp"`
	MaxHP      int           `json:"max_hp"`
	Gold       int           `json:"gold"`
	Experience int           `json:"experience"`
	Level      int           `json:"level"`
	Abilities  AbilityScores `json:"abilities"`
	Conditions []string      `json:"conditions"`
	Locked     bool          `json:"locked"`
	Economy    ActionEconomy `json:"economy"`
	HitDice    int           `json:"hit_dice"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Snapshot captures the whitelisted fields.
func (c *Character) Snapshot() StateSnapshot {
	return StateSnapshot{
		CurrentHP:  c.CurrentHP,
		MaxHP:      c.MaxHP,
		Gold:       c.Gold,
		Experience: c.Experience,
		Level:      c.Level,
		Abilities:  c.Abilities,
		Conditions: append([]string{}, c.Conditions...),
	}
}

// Restore overwrites the whitelisted fields from a snapshot. Fields outside
// the whitelist (inventory, quests, reputation, action economy) are untouched.
func (c *Character) Restore(s StateSnapshot) {
	c.CurrentHP = s.CurrentHP
	c.MaxHP = s.MaxHP
	c.Gold = s.Gold
	c.Experience = s.Experience
	c.Level = s.Level
	c.Abilities = s.Abilities
	c.Conditions = append([]string{}, s.Conditions...)
}

// HasCondition reports whether the character carries a condition (case-insensitive).
func (c *Character) HasCondition(name string) bool {
	return slices.ContainsFunc(c.Conditions, func(existing string) bool {
		return strings.EqualFold(existing, name)
	})
}

// AddCondition appends a condition unless already present.
func (c *Character) AddCondition(name string) bool {
	if c.HasCondition(name) {
		return false
	}
	c.Conditions = append(c.Conditions, strings.ToLower(name))
	return true
}

// RemoveCondition drops a condition and reports whether it was present.
func (c *Character) RemoveCondition(name string) bool {
	before := len(c.Conditions)
	c.Conditions = slices.DeleteFunc(c.Conditions, func(existing string) bool {
		return strings.EqualFold(existing, name)
	})
	return len(c.Conditions) != before
}
