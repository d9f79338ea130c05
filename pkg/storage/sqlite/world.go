package sqlite

import (
	"context"
	"fmt"

	"github.com/harun/tablekeeper/pkg/domain"
)

// InventoryRepo implements domain.InventoryRepository.
type InventoryRepo struct {
	q querier
}

func (r *InventoryRepo) Get(ctx context.Context, characterID, name string) (*domain.InventoryItem, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT character_id, name, quantity, notes, properties FROM inventory_items
		 WHERE character_id = ? AND name = ? COLLATE NOCASE`,
		characterID, name,
	)
	item, err := scanItem(row)
	if err != nil {
		return nil, notFound("inventoryRepo.Get", err)
	}
	return item, nil
}

func (r *InventoryRepo) Upsert(ctx context.Context, item *domain.InventoryItem) error {
	props, err := marshalJSON(item.Properties)
	if err != nil {
		return fmt.Errorf("inventoryRepo.Upsert: marshal properties: %w", err)
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO inventory_items (character_id, name, quantity, notes, properties) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(character_id, name) DO UPDATE SET quantity = excluded.quantity, notes = excluded.notes,
		    properties = excluded.properties`,
		item.CharacterID, item.Name, item.Quantity, item.Notes, props,
	)
	if err != nil {
		return fmt.Errorf("inventoryRepo.Upsert: %w", err)
	}
	return nil
}

func (r *InventoryRepo) Delete(ctx context.Context, characterID, name string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM inventory_items WHERE character_id = ? AND name = ? COLLATE NOCASE`, characterID, name)
	if err != nil {
		return fmt.Errorf("inventoryRepo.Delete: %w", err)
	}
	return nil
}

func (r *InventoryRepo) List(ctx context.Context, characterID string) ([]*domain.InventoryItem, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT character_id, name, quantity, notes, properties FROM inventory_items
		 WHERE character_id = ? ORDER BY name`, characterID)
	if err != nil {
		return nil, fmt.Errorf("inventoryRepo.List: %w", err)
	}
	defer rows.Close()

	var out []*domain.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("inventoryRepo.List: scan: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanItem(s rowScanner) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	var props string
	if err := s.Scan(&item.CharacterID, &item.Name, &item.Quantity, &item.Notes, &props); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(props, &item.Properties); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	return &item, nil
}

// QuestRepo implements domain.QuestRepository.
type QuestRepo struct {
	q querier
}

const questColumns = `id, session_id, title, description, status, progress, notes, created_at, updated_at`

func (r *QuestRepo) Create(ctx context.Context, q *domain.Quest) error {
	notes, err := marshalJSON(nonNil(q.Notes))
	if err != nil {
		return fmt.Errorf("questRepo.Create: marshal notes: %w", err)
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO quests (`+questColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.SessionID, q.Title, q.Description, q.Status, q.Progress, notes,
		toUnix(q.CreatedAt), toUnix(q.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("questRepo.Create: %w", err)
	}
	return nil
}

func (r *QuestRepo) Get(ctx context.Context, id string) (*domain.Quest, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+questColumns+` FROM quests WHERE id = ?`, id)
	q, err := scanQuest(row)
	if err != nil {
		return nil, notFound("questRepo.Get", err)
	}
	return q, nil
}

func (r *QuestRepo) Update(ctx context.Context, q *domain.Quest) error {
	notes, err := marshalJSON(nonNil(q.Notes))
	if err != nil {
		return fmt.Errorf("questRepo.Update: marshal notes: %w", err)
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE quests SET title = ?, description = ?, status = ?, progress = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		q.Title, q.Description, q.Status, q.Progress, notes, toUnix(q.UpdatedAt), q.ID,
	)
	if err != nil {
		return fmt.Errorf("questRepo.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("questRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *QuestRepo) ListBySession(ctx context.Context, sessionID string) ([]*domain.Quest, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+questColumns+` FROM quests WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("questRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	var out []*domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("questRepo.ListBySession: scan: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuest(s rowScanner) (*domain.Quest, error) {
	var q domain.Quest
	var notes string
	var createdAt, updatedAt int64
	err := s.Scan(&q.ID, &q.SessionID, &q.Title, &q.Description, &q.Status, &q.Progress, &notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(notes, &q.Notes); err != nil {
		return nil, fmt.Errorf("unmarshal notes: %w", err)
	}
	q.CreatedAt = fromUnix(createdAt)
	q.UpdatedAt = fromUnix(updatedAt)
	return &q, nil
}

// NPCRepo implements domain.NPCRepository.
type NPCRepo struct {
	q querier
}

const npcColumns = `id, session_id, name, role, location, disposition, description, created_at`

func (r *NPCRepo) Create(ctx context.Context, n *domain.NPC) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO npcs (`+npcColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.SessionID, n.Name, n.Role, n.Location, n.Disposition, n.Description, toUnix(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("npcRepo.Create: %w", err)
	}
	return nil
}

func (r *NPCRepo) Get(ctx context.Context, id string) (*domain.NPC, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+npcColumns+` FROM npcs WHERE id = ?`, id)
	n, err := scanNPC(row)
	if err != nil {
		return nil, notFound("npcRepo.Get", err)
	}
	return n, nil
}

func (r *NPCRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM npcs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("npcRepo.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("npcRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *NPCRepo) ListByLocation(ctx context.Context, sessionID, location string) ([]*domain.NPC, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+npcColumns+` FROM npcs WHERE session_id = ? AND location = ? COLLATE NOCASE
		 ORDER BY created_at, id`, sessionID, location)
	if err != nil {
		return nil, fmt.Errorf("npcRepo.ListByLocation: %w", err)
	}
	defer rows.Close()

	var out []*domain.NPC
	for rows.Next() {
		n, err := scanNPC(rows)
		if err != nil {
			return nil, fmt.Errorf("npcRepo.ListByLocation: scan: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNPC(s rowScanner) (*domain.NPC, error) {
	var n domain.NPC
	var createdAt int64
	err := s.Scan(&n.ID, &n.SessionID, &n.Name, &n.Role, &n.Location, &n.Disposition, &n.Description, &createdAt)
	if err != nil {
		return nil, err
	}
	n.CreatedAt = fromUnix(createdAt)
	return &n, nil
}

// FactionRepo implements domain.FactionRepository.
type FactionRepo struct {
	q querier
}

func (r *FactionRepo) Get(ctx context.Context, characterID, faction string) (*domain.FactionStanding, error) {
	var s domain.FactionStanding
	var updatedAt int64
	err := r.q.QueryRowContext(ctx,
		`SELECT character_id, faction, reputation, updated_at FROM faction_standings
		 WHERE character_id = ? AND faction = ? COLLATE NOCASE`,
		characterID, faction,
	).Scan(&s.CharacterID, &s.Faction, &s.Reputation, &updatedAt)
	if err != nil {
		return nil, notFound("factionRepo.Get", err)
	}
	s.UpdatedAt = fromUnix(updatedAt)
	return &s, nil
}

func (r *FactionRepo) Upsert(ctx context.Context, s *domain.FactionStanding) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO faction_standings (character_id, faction, reputation, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(character_id, faction) DO UPDATE SET reputation = excluded.reputation,
		    updated_at = excluded.updated_at`,
		s.CharacterID, s.Faction, s.Reputation, toUnix(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("factionRepo.Upsert: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
