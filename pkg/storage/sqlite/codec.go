package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/tablekeeper/pkg/domain"
)

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalJSON(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func marshalSnapshot(s *domain.StateSnapshot) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	data, err := marshalJSON(s)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: data, Valid: true}, nil
}

func unmarshalSnapshot(ns sql.NullString) (*domain.StateSnapshot, error) {
	if !ns.Valid {
		return nil, nil
	}
	var s domain.StateSnapshot
	if err := unmarshalJSON(ns.String, &s); err != nil {
		return nil, err
	}
	if s.Conditions == nil {
		s.Conditions = []string{}
	}
	return &s, nil
}

// notFound maps sql.ErrNoRows onto domain.ErrNotFound.
func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}
