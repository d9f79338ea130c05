package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/harun/tablekeeper/pkg/domain"
)

// AuditRepo implements domain.AuditRepository.
type AuditRepo struct {
	q querier
}

const auditColumns = `id, session_id, character_id, tool_name, parameters, result, state_before, state_after,
	execution_status, trigger_source, conversation_turn, execution_time_ms, batch_id, batch_order,
	pending_action_id, error_message, rollback_reason, created_at`

// atOrAfter selects records of a session at or after a (created_at, id) position.
const atOrAfter = `session_id = ? AND (created_at > ? OR (created_at = ? AND id >= ?))`

func (r *AuditRepo) Append(ctx context.Context, rec *domain.AuditRecord) error {
	params, err := marshalJSON(rec.Parameters)
	if err != nil {
		return fmt.Errorf("auditRepo.Append: marshal parameters: %w", err)
	}
	result, err := marshalJSON(rec.Result)
	if err != nil {
		return fmt.Errorf("auditRepo.Append: marshal result: %w", err)
	}
	before, err := marshalSnapshot(rec.StateBefore)
	if err != nil {
		return fmt.Errorf("auditRepo.Append: marshal state_before: %w", err)
	}
	after, err := marshalSnapshot(rec.StateAfter)
	if err != nil {
		return fmt.Errorf("auditRepo.Append: marshal state_after: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO audit_records (`+auditColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.CharacterID, rec.ToolName, params, result, before, after,
		rec.ExecutionStatus, rec.TriggerSource, rec.ConversationTurn, rec.ExecutionTimeMs,
		rec.BatchID, rec.BatchOrder, rec.PendingActionID, rec.ErrorMessage, rec.RollbackReason,
		toUnix(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("auditRepo.Append: %w", err)
	}
	return nil
}

func (r *AuditRepo) Get(ctx context.Context, id string) (*domain.AuditRecord, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_records WHERE id = ?`, id)
	rec, err := scanAudit(row)
	if err != nil {
		return nil, notFound("auditRepo.Get", err)
	}
	return rec, nil
}

func (r *AuditRepo) List(ctx context.Context, sessionID string, limit int) ([]*domain.AuditRecord, error) {
	return r.query(ctx, "auditRepo.List",
		`SELECT `+auditColumns+` FROM audit_records WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, sqlLimit(limit),
	)
}

func (r *AuditRepo) ListExecuted(ctx context.Context, sessionID string, limit int) ([]*domain.AuditRecord, error) {
	return r.query(ctx, "auditRepo.ListExecuted",
		`SELECT `+auditColumns+` FROM audit_records WHERE session_id = ? AND execution_status = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, domain.ExecutionExecuted, sqlLimit(limit),
	)
}

func (r *AuditRepo) CountExecuted(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_records WHERE session_id = ? AND execution_status = ?`,
		sessionID, domain.ExecutionExecuted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("auditRepo.CountExecuted: %w", err)
	}
	return n, nil
}

func (r *AuditRepo) ListExecutedByTool(ctx context.Context, sessionID string, tools []string, limit int) ([]*domain.AuditRecord, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tools)), ",")
	args := []interface{}{sessionID, domain.ExecutionExecuted}
	for _, t := range tools {
		args = append(args, t)
	}
	args = append(args, sqlLimit(limit))

	return r.query(ctx, "auditRepo.ListExecutedByTool",
		`SELECT `+auditColumns+` FROM audit_records
		 WHERE session_id = ? AND execution_status = ? AND tool_name IN (`+placeholders+`)
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		args...,
	)
}

func (r *AuditRepo) ListExecutedThroughTurn(ctx context.Context, sessionID string, turn int) ([]*domain.AuditRecord, error) {
	return r.query(ctx, "auditRepo.ListExecutedThroughTurn",
		`SELECT `+auditColumns+` FROM audit_records
		 WHERE session_id = ? AND execution_status = ? AND conversation_turn <= ?
		 ORDER BY created_at, id`,
		sessionID, domain.ExecutionExecuted, turn,
	)
}

func (r *AuditRepo) ListExecutedFrom(ctx context.Context, from *domain.AuditRecord) ([]*domain.AuditRecord, error) {
	at := toUnix(from.CreatedAt)
	return r.query(ctx, "auditRepo.ListExecutedFrom",
		`SELECT `+auditColumns+` FROM audit_records
		 WHERE `+atOrAfter+` AND execution_status = ?
		 ORDER BY created_at, id`,
		from.SessionID, at, at, from.ID, domain.ExecutionExecuted,
	)
}

func (r *AuditRepo) MarkRolledBackFrom(ctx context.Context, from *domain.AuditRecord, reason string) (int, error) {
	at := toUnix(from.CreatedAt)
	res, err := r.q.ExecContext(ctx,
		`UPDATE audit_records SET execution_status = ?, rollback_reason = ?
		 WHERE `+atOrAfter+` AND execution_status = ?`,
		domain.ExecutionRolledBack, reason, from.SessionID, at, at, from.ID, domain.ExecutionExecuted,
	)
	if err != nil {
		return 0, fmt.Errorf("auditRepo.MarkRolledBackFrom: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("auditRepo.MarkRolledBackFrom: rows affected: %w", err)
	}
	return int(n), nil
}

func (r *AuditRepo) query(ctx context.Context, op, query string, args ...interface{}) ([]*domain.AuditRecord, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*domain.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

func scanAudit(s rowScanner) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var params, result string
	var before, after sql.NullString
	var createdAt int64

	err := s.Scan(
		&rec.ID, &rec.SessionID, &rec.CharacterID, &rec.ToolName, &params, &result, &before, &after,
		&rec.ExecutionStatus, &rec.TriggerSource, &rec.ConversationTurn, &rec.ExecutionTimeMs,
		&rec.BatchID, &rec.BatchOrder, &rec.PendingActionID, &rec.ErrorMessage, &rec.RollbackReason,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(params, &rec.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	if err := unmarshalJSON(result, &rec.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	if rec.StateBefore, err = unmarshalSnapshot(before); err != nil {
		return nil, fmt.Errorf("unmarshal state_before: %w", err)
	}
	if rec.StateAfter, err = unmarshalSnapshot(after); err != nil {
		return nil, fmt.Errorf("unmarshal state_after: %w", err)
	}
	rec.CreatedAt = fromUnix(createdAt)

	return &rec, nil
}

// sqlLimit maps a non-positive limit to "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
