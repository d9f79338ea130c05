package domain

import "time"

// InventoryItem is a stack of identical items carried by a character.
type InventoryItem struct {
	CharacterID string   `json:"character_id"`
	Name        string   `json:"name"`
	Quantity    int      `json:"quantity"`
	Notes       string   `json:"notes,omitempty"`
	Properties  Document `json:"properties,omitempty"`
}

// QuestStatus is the state of a quest.
type QuestStatus string

const (
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestFailed    QuestStatus = "failed"
)

// Quest is a session-scoped objective.
type Quest struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      QuestStatus `json:"status"`
	Progress    int         `json:"progress"`
	Notes       []string    `json:"notes"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NPC is a non-player character introduced into the session world.
type NPC struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Location    string    `json:"location"`
	Disposition string    `json:"disposition"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// FactionStanding is a character's reputation with one faction.
type FactionStanding struct {
	CharacterID string    `json:"character_id"`
	Faction     string    `json:"faction"`
	Reputation  int       `json:"reputation"`
	UpdatedAt   time.Time `json:"updated_at"`
}
