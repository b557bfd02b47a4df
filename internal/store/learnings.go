package store

import (
	"context"
	"fmt"
)

// AddLearning stores a harvested learning, replacing any earlier harvest of
// the same session.
func (s *SQLiteStore) AddLearning(ctx context.Context, l *Learning) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learnings (session_id, payload, created_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload, created_at = CURRENT_TIMESTAMP`,
		l.SessionID, l.Payload,
	)
	if err != nil {
		return fmt.Errorf("storing learning for %s: %w", l.SessionID, err)
	}
	return nil
}

// HasLearning reports whether a session has already been harvested.
func (s *SQLiteStore) HasLearning(ctx context.Context, sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM learnings WHERE session_id = ?", sessionID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking learning for %s: %w", sessionID, err)
	}
	return count > 0, nil
}

// ListLearnings returns all stored learnings, oldest first.
func (s *SQLiteStore) ListLearnings(ctx context.Context) ([]*Learning, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, payload, created_at FROM learnings ORDER BY created_at, session_id")
	if err != nil {
		return nil, fmt.Errorf("listing learnings: %w", err)
	}
	defer rows.Close()

	var learnings []*Learning
	for rows.Next() {
		l := &Learning{}
		if err := rows.Scan(&l.SessionID, &l.Payload, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning learning row: %w", err)
		}
		learnings = append(learnings, l)
	}
	return learnings, rows.Err()
}
