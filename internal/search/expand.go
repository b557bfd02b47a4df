package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hurttlocker/recall/internal/llm"
)

const (
	// expandTimeout is the maximum time to wait for LLM query expansion.
	expandTimeout = 5 * time.Second

	// expandMaxQueries is the max number of paraphrases added to a query.
	// Paraphrases only widen lexical recall; the similarity vector always
	// comes from the original query.
	expandMaxQueries = 2
)

const expandSystemPrompt = `You are a search query expansion assistant for an archive of past user/assistant conversations.

Given a vague or natural language query, generate up to 2 alternative phrasings that would match relevant conversation fragments.

Rules:
- Each phrasing should target a different way the topic may have been discussed
- Use specific keywords and proper nouns, not full sentences
- Keep each phrasing short (2-6 words)
- Return ONLY a JSON array of strings, nothing else

Examples:
Input: "that sqlite locking problem"
Output: ["database is locked error", "sqlite busy timeout"]

Input: "when did we switch embedding models"
Output: ["embedding model migration", "text-embedding dimensions change"]`

// expandQuery asks the LLM for up to expandMaxQueries paraphrases and returns
// the original query followed by the unique paraphrases. Any failure (error,
// timeout, unparseable response) falls back to the original query alone and
// reports the cause; expansion is never allowed to fail a search.
func expandQuery(ctx context.Context, provider llm.Provider, query string) ([]string, error) {
	expandCtx, cancel := context.WithTimeout(ctx, expandTimeout)
	defer cancel()

	resp, err := provider.Complete(expandCtx, query, llm.CompletionOpts{
		System:      expandSystemPrompt,
		MaxTokens:   200,
		Temperature: 0.3,
	})
	if err != nil {
		return []string{query}, fmt.Errorf("expansion request: %w", err)
	}

	expanded, err := parseExpandResponse(resp)
	if err != nil {
		return []string{query}, err
	}

	variants := []string{query}
	seen := map[string]bool{strings.ToLower(query): true}
	for _, q := range expanded {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		lower := strings.ToLower(q)
		if !seen[lower] {
			variants = append(variants, q)
			seen[lower] = true
		}
		if len(variants) >= expandMaxQueries+1 { // +1 for the original
			break
		}
	}
	return variants, nil
}

// parseExpandResponse parses the LLM response into a string slice.
// Handles both clean JSON arrays and markdown-wrapped responses.
func parseExpandResponse(resp string) ([]string, error) {
	resp = strings.TrimSpace(resp)

	// Strip markdown code fences if present
	if strings.HasPrefix(resp, "```") {
		lines := strings.Split(resp, "\n")
		var cleaned []string
		inBlock := false
		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inBlock = !inBlock
				continue
			}
			if inBlock {
				cleaned = append(cleaned, line)
			}
		}
		resp = strings.Join(cleaned, "\n")
	}

	var queries []string
	if err := json.Unmarshal([]byte(resp), &queries); err != nil {
		// Some models wrap the array in an object despite instructions.
		var obj map[string]json.RawMessage
		if err2 := json.Unmarshal([]byte(resp), &obj); err2 == nil {
			for _, key := range []string{"queries", "expansions", "results", "search_queries"} {
				if raw, ok := obj[key]; ok {
					if err3 := json.Unmarshal(raw, &queries); err3 == nil {
						return queries, nil
					}
				}
			}
		}
		return nil, fmt.Errorf("parsing expansion response as JSON array: %w", err)
	}

	return queries, nil
}
