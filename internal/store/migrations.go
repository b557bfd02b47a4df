package store

import (
	"database/sql"
	"fmt"
)

// migrate creates all tables if they don't exist and performs the one-time
// FTS backfill for databases that predate the lexical index.
func (s *SQLiteStore) migrate() error {
	ftsBuilt, err := s.isMetaFlagEnabled("chunks_fts_built")
	if err != nil {
		return fmt.Errorf("checking fts state: %w", err)
	}

	if err := s.runBootstrapDDL(); err != nil {
		return err
	}

	// Databases created before the FTS index existed have chunks the
	// triggers never saw. Rebuild once, then record it.
	if !ftsBuilt {
		if _, err := s.db.Exec(`INSERT INTO chunks_fts(chunks_fts) VALUES('rebuild')`); err != nil {
			return fmt.Errorf("rebuilding fts index: %w", err)
		}
		if err := s.setMetaFlag("chunks_fts_built"); err != nil {
			return fmt.Errorf("marking fts rebuild: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		// Fragment table. id is the opaque key; rowid backs the FTS index.
		`CREATE TABLE IF NOT EXISTS chunks (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			turn_start INTEGER NOT NULL,
			turn_end   INTEGER NOT NULL,
			timestamp  TEXT,
			text       TEXT NOT NULL,
			embedding  BLOB NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id)`,

		// FTS5 full-text index over fragment text
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			text,
			content=chunks,
			content_rowid=rowid,
			tokenize='porter unicode61'
		)`,

		// FTS sync triggers
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,

		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		END`,

		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,

		// Processed-session markers
		`CREATE TABLE IF NOT EXISTS sessions_processed (
			session_id   TEXT PRIMARY KEY,
			file_path    TEXT NOT NULL,
			file_size    INTEGER NOT NULL,
			file_mtime   INTEGER NOT NULL,
			chunks_count INTEGER NOT NULL DEFAULT 0,
			processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Harvested learnings, one JSON document per session
		`CREATE TABLE IF NOT EXISTS learnings (
			session_id TEXT PRIMARY KEY,
			payload    TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Metadata table
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
