package executor

import (
	"strings"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
)

// DefaultAlwaysAllowed lists the gameplay tools a locked character may
// still receive: inventory, hit points, conditions, dice, combat and rests.
func DefaultAlwaysAllowed() []string {
	return []string{
		"add_item",
		"remove_item",
		"apply_damage",
		"heal",
		"add_condition",
		"remove_condition",
		"roll_dice",
		"use_action",
		"reset_action_economy",
		"short_rest",
		"long_rest",
		"grant_experience",
		"set_gameplay_lock",
	}
}

// DefaultProtectedCategories are the categories touching core identity
// attributes.
func DefaultProtectedCategories() []string {
	return []string{string(catalog.CategoryCharacter)}
}

// LockPolicy decides which tools a locked character refuses.
type LockPolicy struct {
	alwaysAllowed map[string]bool
	protected     map[catalog.Category]bool
}

// NewLockPolicy builds a policy. Nil slices select the defaults.
func NewLockPolicy(alwaysAllowed, protectedCategories []string) *LockPolicy {
	if alwaysAllowed == nil {
		alwaysAllowed = DefaultAlwaysAllowed()
	}
	if protectedCategories == nil {
		protectedCategories = DefaultProtectedCategories()
	}

	p := &LockPolicy{
		alwaysAllowed: make(map[string]bool, len(alwaysAllowed)),
		protected:     make(map[catalog.Category]bool, len(protectedCategories)),
	}
	for _, name := range alwaysAllowed {
		p.alwaysAllowed[strings.TrimSpace(name)] = true
	}
	for _, category := range protectedCategories {
		p.protected[catalog.Category(strings.ToLower(strings.TrimSpace(category)))] = true
	}
	return p
}

// IsAlwaysAllowed reports whether a tool is on the gameplay list.
func (p *LockPolicy) IsAlwaysAllowed(tool string) bool {
	return p.alwaysAllowed[tool]
}

// Blocks reports whether the call must be refused.
func (p *LockPolicy) Blocks(def catalog.ToolDefinition, c *domain.Character, opts Options) bool {
	if c == nil || !c.Locked || opts.Force || opts.RequestApproval {
		return false
	}
	if p.alwaysAllowed[def.Name] {
		return false
	}
	return p.protected[def.Category]
}
