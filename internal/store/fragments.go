package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ReplaceFragments atomically swaps a session's fragment set: every existing
// fragment for sessionID is deleted, the new set is inserted, and the
// processed marker is recorded, all inside one transaction. A failure at any
// point leaves the previous state intact. The FTS triggers keep the lexical
// index synchronized inside the same transaction.
//
// Fragments without an ID are assigned one. Fragment text is never patched
// incrementally; reprocessing a session always goes through here.
func (s *SQLiteStore) ReplaceFragments(ctx context.Context, sessionID string, fp Fingerprint, frags []*Fragment) error {
	for _, f := range frags {
		if f.TurnStart >= f.TurnEnd {
			return fmt.Errorf("fragment turn range [%d,%d) is empty", f.TurnStart, f.TurnEnd)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("deleting fragments for session %s: %w", sessionID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, session_id, turn_start, turn_end, timestamp, text, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range frags {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, f.ID, sessionID, f.TurnStart, f.TurnEnd,
			f.Timestamp, f.Text, vectorToBytes(f.Embedding)); err != nil {
			return fmt.Errorf("inserting fragment %s: %w", f.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions_processed (session_id, file_path, file_size, file_mtime, chunks_count, processed_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id) DO UPDATE SET
			file_path = excluded.file_path,
			file_size = excluded.file_size,
			file_mtime = excluded.file_mtime,
			chunks_count = excluded.chunks_count,
			processed_at = CURRENT_TIMESTAMP`,
		sessionID, fp.FilePath, fp.FileSize, fp.FileMtime, len(frags)); err != nil {
		return fmt.Errorf("recording processed marker for %s: %w", sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replace for %s: %w", sessionID, err)
	}
	return nil
}

// IsProcessed reports whether sessionID was last processed under exactly this
// size and mtime. Any mismatch, including a missing marker, means the session
// needs reprocessing.
func (s *SQLiteStore) IsProcessed(ctx context.Context, sessionID string, size, mtime int64) (bool, error) {
	var storedSize, storedMtime int64
	err := s.db.QueryRowContext(ctx,
		"SELECT file_size, file_mtime FROM sessions_processed WHERE session_id = ?",
		sessionID,
	).Scan(&storedSize, &storedMtime)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading processed marker for %s: %w", sessionID, err)
	}
	return storedSize == size && storedMtime == mtime, nil
}

const fragmentColumns = "id, rowid, session_id, turn_start, turn_end, COALESCE(timestamp, ''), text, embedding"

// LoadByKeys loads only the named fragments, vectors included. Empty input
// returns empty output without touching the database. Order of the result is
// unspecified.
func (s *SQLiteStore) LoadByKeys(ctx context.Context, keys []string) ([]*Fragment, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		args[i] = k
	}

	queryStr := fmt.Sprintf(
		"SELECT %s FROM chunks WHERE id IN (%s)",
		fragmentColumns, strings.Join(placeholders, ","),
	)

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("loading fragments by keys: %w", err)
	}
	defer rows.Close()

	return scanFragments(rows)
}

// LoadAll loads the entire corpus with vectors. Full-scan fallback only;
// searches normally go through LexicalSearch + LoadByKeys.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*Fragment, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM chunks", fragmentColumns))
	if err != nil {
		return nil, fmt.Errorf("loading all fragments: %w", err)
	}
	defer rows.Close()

	return scanFragments(rows)
}

func scanFragments(rows *sql.Rows) ([]*Fragment, error) {
	var frags []*Fragment
	for rows.Next() {
		f := &Fragment{}
		var blob []byte
		if err := rows.Scan(&f.ID, &f.Rowid, &f.SessionID, &f.TurnStart, &f.TurnEnd,
			&f.Timestamp, &f.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning fragment row: %w", err)
		}
		f.Embedding = bytesToVector(blob)
		frags = append(frags, f)
	}
	return frags, rows.Err()
}
