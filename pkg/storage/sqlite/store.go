// Package sqlite implements domain.Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/harun/tablekeeper/pkg/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// repos binds every repository to one querier.
type repos struct {
	characters *CharacterRepo
	inventory  *InventoryRepo
	quests     *QuestRepo
	npcs       *NPCRepo
	factions   *FactionRepo
	audit      *AuditRepo
	pending    *PendingActionRepo
}

func newRepos(q querier) repos {
	return repos{
		characters: &CharacterRepo{q: q},
		inventory:  &InventoryRepo{q: q},
		quests:     &QuestRepo{q: q},
		npcs:       &NPCRepo{q: q},
		factions:   &FactionRepo{q: q},
		audit:      &AuditRepo{q: q},
		pending:    &PendingActionRepo{q: q},
	}
}

func (r repos) Characters() domain.CharacterRepository         { return r.characters }
func (r repos) Inventory() domain.InventoryRepository          { return r.inventory }
func (r repos) Quests() domain.QuestRepository                 { return r.quests }
func (r repos) NPCs() domain.NPCRepository                     { return r.npcs }
func (r repos) Factions() domain.FactionRepository             { return r.factions }
func (r repos) Audit() domain.AuditRepository                  { return r.audit }
func (r repos) PendingActions() domain.PendingActionRepository { return r.pending }

// Store is a SQLite-backed domain.Store.
type Store struct {
	repos
	db *sql.DB
}

// Open opens (and migrates) the database at path.
//
// The pool is capped at one connection: SQLite serialises writers anyway and
// a single connection keeps Atomic free of SQLITE_BUSY between concurrent
// tool calls. Code running inside Atomic must only use the Tx it was given.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite store opened")

	return &Store{repos: newRepos(db), db: db}, nil
}

// Atomic implements domain.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, newRepos(sqlTx)); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Transaction rollback failed")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS characters (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			current_hp INTEGER NOT NULL,
			max_hp INTEGER NOT NULL,
			gold INTEGER NOT NULL,
			experience INTEGER NOT NULL,
			level INTEGER NOT NULL,
			abilities TEXT NOT NULL,
			conditions TEXT NOT NULL,
			locked INTEGER NOT NULL DEFAULT 0,
			economy TEXT NOT NULL,
			hit_dice INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_characters_session ON characters(session_id);

		CREATE TABLE IF NOT EXISTS inventory_items (
			character_id TEXT NOT NULL,
			name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			properties TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (character_id, name)
		);

		CREATE TABLE IF NOT EXISTS quests (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL,
			notes TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_quests_session ON quests(session_id);

		CREATE TABLE IF NOT EXISTS npcs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			location TEXT NOT NULL,
			disposition TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_npcs_location ON npcs(session_id, location);

		CREATE TABLE IF NOT EXISTS faction_standings (
			character_id TEXT NOT NULL,
			faction TEXT NOT NULL,
			reputation INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (character_id, faction)
		);

		CREATE TABLE IF NOT EXISTS pending_actions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			character_id TEXT NOT NULL DEFAULT '',
			requesting_user_id TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL,
			parameters TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			reasoning TEXT NOT NULL DEFAULT '',
			conversation_turn INTEGER NOT NULL DEFAULT 0,
			batch_id TEXT NOT NULL DEFAULT '',
			batch_order INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			reviewed_at INTEGER,
			reviewed_by TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			execution_result TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_pending_session ON pending_actions(session_id, status);
		CREATE INDEX IF NOT EXISTS idx_pending_expiry ON pending_actions(status, expires_at);

		CREATE TABLE IF NOT EXISTS audit_records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			parameters TEXT NOT NULL,
			result TEXT NOT NULL,
			state_before TEXT,
			state_after TEXT,
			execution_status TEXT NOT NULL,
			trigger_source TEXT NOT NULL,
			conversation_turn INTEGER NOT NULL DEFAULT 0,
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			batch_id TEXT NOT NULL DEFAULT '',
			batch_order INTEGER NOT NULL DEFAULT 0,
			pending_action_id TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			rollback_reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_session_order ON audit_records(session_id, created_at, id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_pending ON audit_records(pending_action_id) WHERE pending_action_id != '';
	`

	_, err := db.ExecContext(ctx, schema)
	return err
}
