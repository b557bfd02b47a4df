package store

import (
	"context"
	"fmt"
	"os"
)

// Stats gathers counters for the status and stats commands.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		sql  string
		dest *int64
	}{
		{"SELECT COUNT(*) FROM chunks", &stats.FragmentCount},
		{"SELECT COUNT(DISTINCT session_id) FROM chunks", &stats.SessionCount},
		{"SELECT COUNT(*) FROM sessions_processed", &stats.ProcessedCount},
		{"SELECT COUNT(*) FROM learnings", &stats.LearningCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("stats query %q: %w", q.sql, err)
		}
	}

	// Dimension comes from any stored blob; zero when the corpus is empty.
	var blobLen int64
	err := s.db.QueryRowContext(ctx, "SELECT LENGTH(embedding) FROM chunks LIMIT 1").Scan(&blobLen)
	if err == nil {
		stats.Dimensions = int(blobLen / 4)
	}

	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			stats.DBSizeBytes = info.Size()
		}
	}

	return stats, nil
}
