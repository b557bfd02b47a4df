// Package store provides the SQLite + FTS5 storage layer for recall.
//
// All indexed data lives in a single SQLite database file, including:
// - Conversation fragments (chunks) with turn provenance
// - Embedding vectors stored inline as little-endian float32 blobs
// - FTS5 full-text index kept in lockstep via triggers
// - Processed-session markers for incremental reindexing
// - Harvested learnings
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.recall/recall.db"

// Fragment is the retrievable unit: a rendered window of conversation turns
// with its embedding. ID is an opaque key assigned at storage time; Rowid is
// the SQLite rowid used for FTS joins, populated on load.
type Fragment struct {
	ID        string
	Rowid     int64
	SessionID string
	TurnStart int
	TurnEnd   int
	Timestamp string
	Text      string
	Embedding []float32
}

// Fingerprint identifies the source-file state under which a session's
// fragments were generated. Matching is exact on both fields.
type Fingerprint struct {
	FilePath  string
	FileSize  int64
	FileMtime int64
}

// LexicalHit is one FTS match: a fragment key with its BM25 rank score
// (lower is better).
type LexicalHit struct {
	FragmentID string
	Rank       float64
}

// Learning is a structured summary harvested from one session.
type Learning struct {
	SessionID string
	Payload   string // JSON document
	CreatedAt string
}

// Stats holds observability counters about the store.
type Stats struct {
	FragmentCount  int64 `json:"fragment_count"`
	SessionCount   int64 `json:"session_count"`
	ProcessedCount int64 `json:"processed_count"`
	LearningCount  int64 `json:"learning_count"`
	DBSizeBytes    int64 `json:"db_size_bytes"`
	Dimensions     int   `json:"dimensions"`
}

// Config holds configuration for NewStore.
type Config struct {
	DBPath string
}

// Store defines the chunk-store interface.
type Store interface {
	// Fragments
	ReplaceFragments(ctx context.Context, sessionID string, fp Fingerprint, frags []*Fragment) error
	LoadByKeys(ctx context.Context, keys []string) ([]*Fragment, error)
	LoadAll(ctx context.Context) ([]*Fragment, error)

	// Lexical index
	LexicalSearch(ctx context.Context, query string, limit int) ([]LexicalHit, error)

	// Processed markers
	IsProcessed(ctx context.Context, sessionID string, size, mtime int64) (bool, error)

	// Learnings
	AddLearning(ctx context.Context, l *Learning) error
	HasLearning(ctx context.Context, sessionID string) (bool, error)
	ListLearnings(ctx context.Context) ([]*Learning, error)

	// Observability
	Stats(ctx context.Context) (*Stats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite + FTS5.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never automatic.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// GetDB exposes the underlying handle for callers that need raw access.
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
