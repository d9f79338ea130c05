package catalog

// Category groups tools by the part of the game they touch.
type Category string

const (
	CategoryCharacter  Category = "character"
	CategoryCombat     Category = "combat"
	CategoryConditions Category = "conditions"
	CategoryEconomy    Category = "economy"
	CategoryInventory  Category = "inventory"
	CategoryQuests     Category = "quests"
	CategoryWorld      Category = "world"
	CategoryFaction    Category = "faction"
	CategoryDice       Category = "dice"
	CategoryRest       Category = "rest"
	CategoryTreasure   Category = "treasure"
)

// AllCategories returns every known category.
func AllCategories() []Category {
	return []Category{
		CategoryCharacter,
		CategoryCombat,
		CategoryConditions,
		CategoryEconomy,
		CategoryInventory,
		CategoryQuests,
		CategoryWorld,
		CategoryFaction,
		CategoryDice,
		CategoryRest,
		CategoryTreasure,
	}
}

// IsValidCategory checks if a category is known.
func IsValidCategory(category Category) bool {
	for _, valid := range AllCategories() {
		if category == valid {
			return true
		}
	}
	return false
}

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

func (t ParamType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

func (t ParamType) numeric() bool {
	return t == TypeInteger || t == TypeNumber
}

// ParamSpec declares one tool parameter.
type ParamSpec struct {
	Type        ParamType   `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Enum        []string    `json:"enum,omitempty"`
	Min         *float64    `json:"min,omitempty"`
	Max         *float64    `json:"max,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// Bound is a helper for ParamSpec.Min and ParamSpec.Max literals.
func Bound(v float64) *float64 {
	return &v
}

// ToolDefinition describes a tool exposed to the dungeon master.
type ToolDefinition struct {
	Name             string               `json:"name"`
	Description      string               `json:"description"`
	Category         Category             `json:"category"`
	Parameters       map[string]ParamSpec `json:"parameters"`
	ApprovalRequired bool                 `json:"approval_required"`
	Immediate        bool                 `json:"immediate"`
}
