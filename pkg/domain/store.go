package domain

import (
	"context"
	"time"
)

// CharacterRepository persists character sheets.
type CharacterRepository interface {
	Create(ctx context.Context, c *Character) error
	Get(ctx context.Context, id string) (*Character, error)
	Update(ctx context.Context, c *Character) error
	ListBySession(ctx context.Context, sessionID string) ([]*Character, error)
}

// InventoryRepository persists carried items keyed by (character, name).
type InventoryRepository interface {
	Get(ctx context.Context, characterID, name string) (*InventoryItem, error)
	Upsert(ctx context.Context, item *InventoryItem) error
	Delete(ctx context.Context, characterID, name string) error
	List(ctx context.Context, characterID string) ([]*InventoryItem, error)
}

// QuestRepository persists quests.
type QuestRepository interface {
	Create(ctx context.Context, q *Quest) error
	Get(ctx context.Context, id string) (*Quest, error)
	Update(ctx context.Context, q *Quest) error
	ListBySession(ctx context.Context, sessionID string) ([]*Quest, error)
}

// NPCRepository persists session NPCs.
type NPCRepository interface {
	Create(ctx context.Context, n *NPC) error
	Get(ctx context.Context, id string) (*NPC, error)
	Delete(ctx context.Context, id string) error
	ListByLocation(ctx context.Context, sessionID, location string) ([]*NPC, error)
}

// FactionRepository persists reputation standings.
type FactionRepository interface {
	Get(ctx context.Context, characterID, faction string) (*FactionStanding, error)
	Upsert(ctx context.Context, s *FactionStanding) error
}

// AuditRepository is the append-only ledger. List methods return newest
// first unless stated otherwise.
type AuditRepository interface {
	Append(ctx context.Context, r *AuditRecord) error
	Get(ctx context.Context, id string) (*AuditRecord, error)
	List(ctx context.Context, sessionID string, limit int) ([]*AuditRecord, error)
	ListExecuted(ctx context.Context, sessionID string, limit int) ([]*AuditRecord, error)
	CountExecuted(ctx context.Context, sessionID string) (int, error)
	// ListExecutedByTool returns executed records of the given tools, newest first.
	ListExecutedByTool(ctx context.Context, sessionID string, tools []string, limit int) ([]*AuditRecord, error)
	// ListExecutedThroughTurn returns executed records with a conversation turn
	// at or below turn, oldest first.
	ListExecutedThroughTurn(ctx context.Context, sessionID string, turn int) ([]*AuditRecord, error)
	// ListExecutedFrom returns executed records at or after from in ledger
	// order, oldest first.
	ListExecutedFrom(ctx context.Context, from *AuditRecord) ([]*AuditRecord, error)
	// MarkRolledBackFrom flags every executed record of from's session at or after from
	// as rolled back and returns how many rows changed.
	MarkRolledBackFrom(ctx context.Context, from *AuditRecord, reason string) (int, error)
}

// PendingActionRepository persists approval requests.
type PendingActionRepository interface {
	Create(ctx context.Context, a *PendingAction) error
	Get(ctx context.Context, id string) (*PendingAction, error)
	// Save writes a's mutable fields only if the stored status still equals
	// from; otherwise it returns ErrInvalidTransition.
	Save(ctx context.Context, a *PendingAction, from PendingStatus) error
	ListBySession(ctx context.Context, sessionID string, status PendingStatus) ([]*PendingAction, error)
	ListStale(ctx context.Context, now time.Time) ([]*PendingAction, error)
}

// Tx is the set of repositories visible inside one unit of work.
type Tx interface {
	Characters() CharacterRepository
	Inventory() InventoryRepository
	Quests() QuestRepository
	NPCs() NPCRepository
	Factions() FactionRepository
	Audit() AuditRepository
	PendingActions() PendingActionRepository
}

// Store is the storage layer. Outside Atomic its repositories run in
// auto-commit mode.
type Store interface {
	Tx
	// Atomic runs fn inside a single transaction. A non-nil return from fn
	// rolls every write back.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
