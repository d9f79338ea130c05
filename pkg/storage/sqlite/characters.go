package sqlite

import (
	"context"
	"fmt"

	"github.com/harun/tablekeeper/pkg/domain"
)

// CharacterRepo implements domain.CharacterRepository.
type CharacterRepo struct {
	q querier
}

const characterColumns = `id, session_id, name, current_hp, max_hp, gold, experience, level,
	abilities, conditions, locked, economy, hit_dice, updated_at`

func (r *CharacterRepo) Create(ctx context.Context, c *domain.Character) error {
	args, err := characterArgs(c)
	if err != nil {
		return fmt.Errorf("characterRepo.Create: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO characters (`+characterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("characterRepo.Create: %w", err)
	}
	return nil
}

func (r *CharacterRepo) Get(ctx context.Context, id string) (*domain.Character, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	c, err := scanCharacter(row)
	if err != nil {
		return nil, notFound("characterRepo.Get", err)
	}
	return c, nil
}

func (r *CharacterRepo) Update(ctx context.Context, c *domain.Character) error {
	args, err := characterArgs(c)
	if err != nil {
		return fmt.Errorf("characterRepo.Update: %w", err)
	}

	// Move id to the end for the WHERE clause.
	args = append(args[1:], args[0])
	res, err := r.q.ExecContext(ctx,
		`UPDATE characters SET session_id = ?, name = ?, current_hp = ?, max_hp = ?, gold = ?, experience = ?,
		        level = ?, abilities = ?, conditions = ?, locked = ?, economy = ?, hit_dice = ?, updated_at = ?
		 WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("characterRepo.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("characterRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *CharacterRepo) ListBySession(ctx context.Context, sessionID string) ([]*domain.Character, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE session_id = ? ORDER BY name, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("characterRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	var out []*domain.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("characterRepo.ListBySession: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("characterRepo.ListBySession: rows: %w", err)
	}
	return out, nil
}

func characterArgs(c *domain.Character) ([]interface{}, error) {
	abilities, err := marshalJSON(c.Abilities)
	if err != nil {
		return nil, fmt.Errorf("marshal abilities: %w", err)
	}
	conditions := c.Conditions
	if conditions == nil {
		conditions = []string{}
	}
	conds, err := marshalJSON(conditions)
	if err != nil {
		return nil, fmt.Errorf("marshal conditions: %w", err)
	}
	economy, err := marshalJSON(c.Economy)
	if err != nil {
		return nil, fmt.Errorf("marshal economy: %w", err)
	}

	return []interface{}{
		c.ID, c.SessionID, c.Name, c.CurrentHP, c.MaxHP, c.Gold, c.Experience, c.Level,
		abilities, conds, c.Locked, economy, c.HitDice, toUnix(c.UpdatedAt),
	}, nil
}

func scanCharacter(s rowScanner) (*domain.Character, error) {
	var c domain.Character
	var abilities, conditions, economy string
	var updatedAt int64

	err := s.Scan(
		&c.ID, &c.SessionID, &c.Name, &c.CurrentHP, &c.MaxHP, &c.Gold, &c.Experience, &c.Level,
		&abilities, &conditions, &c.Locked, &economy, &c.HitDice, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(abilities, &c.Abilities); err != nil {
		return nil, fmt.Errorf("unmarshal abilities: %w", err)
	}
	if err := unmarshalJSON(conditions, &c.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	if c.Conditions == nil {
		c.Conditions = []string{}
	}
	if err := unmarshalJSON(economy, &c.Economy); err != nil {
		return nil, fmt.Errorf("unmarshal economy: %w", err)
	}
	c.UpdatedAt = fromUnix(updatedAt)

	return &c, nil
}
