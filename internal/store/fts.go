package store

import (
	"context"
	"fmt"
	"strings"
)

// LexicalSearch runs a BM25 query over the FTS index and returns at most
// limit fragment keys ordered by ascending rank (lower = better match).
// The query is sanitized first; a query that sanitizes to nothing returns
// an empty result without hitting the index.
func (s *SQLiteStore) LexicalSearch(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	if limit <= 0 {
		limit = 10
	}

	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, f.rank
		 FROM chunks_fts f
		 JOIN chunks c ON c.rowid = f.rowid
		 WHERE chunks_fts MATCH ?
		 ORDER BY f.rank
		 LIMIT ?`,
		sanitized, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lexical search %q: %w", query, err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.FragmentID, &h.Rank); err != nil {
			return nil, fmt.Errorf("scanning lexical hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// sanitizeFTSQuery neutralizes FTS5 operator syntax embedded in user text.
// Each whitespace-delimited token is stripped of double quotes and wrapped
// in its own pair, so boolean operators, unbalanced quotes, and grouping
// characters read as plain terms. Returns "" when nothing survives.
func sanitizeFTSQuery(query string) string {
	var quoted []string
	for _, token := range strings.Fields(query) {
		token = strings.ReplaceAll(token, `"`, "")
		if token == "" {
			continue
		}
		quoted = append(quoted, `"`+token+`"`)
	}
	return strings.Join(quoted, " ")
}
