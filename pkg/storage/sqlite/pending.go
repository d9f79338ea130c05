package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harun/tablekeeper/pkg/domain"
)

// PendingActionRepo implements domain.PendingActionRepository.
type PendingActionRepo struct {
	q querier
}

const pendingColumns = `id, session_id, character_id, requesting_user_id, tool_name, parameters, description,
	status, reasoning, conversation_turn, batch_id, batch_order, created_at, expires_at, reviewed_at,
	reviewed_by, rejection_reason, execution_result, error_message`

func (r *PendingActionRepo) Create(ctx context.Context, a *domain.PendingAction) error {
	params, err := marshalJSON(a.Parameters)
	if err != nil {
		return fmt.Errorf("pendingActionRepo.Create: marshal parameters: %w", err)
	}
	result, err := marshalResult(a.ExecutionResult)
	if err != nil {
		return fmt.Errorf("pendingActionRepo.Create: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO pending_actions (`+pendingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.CharacterID, a.RequestingUserID, a.ToolName, params, a.Description,
		a.Status, a.Reasoning, a.ConversationTurn, a.BatchID, a.BatchOrder,
		toUnix(a.CreatedAt), toUnix(a.ExpiresAt), reviewedAt(a.ReviewedAt),
		a.ReviewedBy, a.RejectionReason, result, a.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("pendingActionRepo.Create: %w", err)
	}
	return nil
}

func (r *PendingActionRepo) Get(ctx context.Context, id string) (*domain.PendingAction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_actions WHERE id = ?`, id)
	a, err := scanPending(row)
	if err != nil {
		return nil, notFound("pendingActionRepo.Get", err)
	}
	return a, nil
}

func (r *PendingActionRepo) Save(ctx context.Context, a *domain.PendingAction, from domain.PendingStatus) error {
	result, err := marshalResult(a.ExecutionResult)
	if err != nil {
		return fmt.Errorf("pendingActionRepo.Save: %w", err)
	}

	res, err := r.q.ExecContext(ctx,
		`UPDATE pending_actions SET status = ?, reviewed_at = ?, reviewed_by = ?, rejection_reason = ?,
		        execution_result = ?, error_message = ?
		 WHERE id = ? AND status = ?`,
		a.Status, reviewedAt(a.ReviewedAt), a.ReviewedBy, a.RejectionReason, result, a.ErrorMessage,
		a.ID, from,
	)
	if err != nil {
		return fmt.Errorf("pendingActionRepo.Save: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pendingActionRepo.Save: %s is no longer %s: %w", a.ID, from, domain.ErrInvalidTransition)
	}
	return nil
}

func (r *PendingActionRepo) ListBySession(ctx context.Context, sessionID string, status domain.PendingStatus) ([]*domain.PendingAction, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_actions WHERE session_id = ?`
	args := []interface{}{sessionID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, batch_order, id`

	return r.query(ctx, "pendingActionRepo.ListBySession", query, args...)
}

func (r *PendingActionRepo) ListStale(ctx context.Context, now time.Time) ([]*domain.PendingAction, error) {
	return r.query(ctx, "pendingActionRepo.ListStale",
		`SELECT `+pendingColumns+` FROM pending_actions WHERE status = ? AND expires_at <= ?
		 ORDER BY expires_at, id`,
		domain.StatusPending, toUnix(now),
	)
}

func (r *PendingActionRepo) query(ctx context.Context, op, query string, args ...interface{}) ([]*domain.PendingAction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*domain.PendingAction
	for rows.Next() {
		a, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

func scanPending(s rowScanner) (*domain.PendingAction, error) {
	var a domain.PendingAction
	var params, result string
	var createdAt, expiresAt int64
	var reviewed sql.NullInt64

	err := s.Scan(
		&a.ID, &a.SessionID, &a.CharacterID, &a.RequestingUserID, &a.ToolName, &params, &a.Description,
		&a.Status, &a.Reasoning, &a.ConversationTurn, &a.BatchID, &a.BatchOrder, &createdAt, &expiresAt,
		&reviewed, &a.ReviewedBy, &a.RejectionReason, &result, &a.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(params, &a.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	if err := unmarshalJSON(result, &a.ExecutionResult); err != nil {
		return nil, fmt.Errorf("unmarshal execution_result: %w", err)
	}
	a.CreatedAt = fromUnix(createdAt)
	a.ExpiresAt = fromUnix(expiresAt)
	if reviewed.Valid {
		t := fromUnix(reviewed.Int64)
		a.ReviewedAt = &t
	}

	return &a, nil
}

func marshalResult(doc domain.Document) (string, error) {
	if doc == nil {
		return "", nil
	}
	data, err := marshalJSON(doc)
	if err != nil {
		return "", fmt.Errorf("marshal execution_result: %w", err)
	}
	return data, nil
}

func reviewedAt(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}
