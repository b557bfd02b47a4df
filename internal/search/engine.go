package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hurttlocker/recall/internal/embed"
	"github.com/hurttlocker/recall/internal/llm"
	"github.com/hurttlocker/recall/internal/store"
)

const (
	// candidatePoolFactor scales the lexical pool with the requested result
	// count; candidatePoolFloor keeps the pool useful for small top-k.
	// Re-ranking cost is O(pool), not O(corpus).
	candidatePoolFactor = 40
	candidatePoolFloor  = 200
)

// Options controls a single search invocation.
type Options struct {
	TopK         int
	Threshold    float64 // minimum cosine similarity for the semantic ranking
	SemanticOnly bool    // exhaustive cosine scan, no lexical stage
	Expand       bool    // LLM paraphrase expansion of the lexical stage
	ContextTurns int     // context width for display expansion, 0 = off
	RRF          RRFConfig
}

// DefaultOptions returns the standard search configuration.
func DefaultOptions() Options {
	return Options{
		TopK:      5,
		Threshold: 0.3,
		RRF:       DefaultRRFConfig(),
	}
}

// Result is one ranked search hit. Score is the fused ranking score;
// Similarity is the raw cosine value for display, 0.0 when the fragment
// never entered the semantic ranking.
type Result struct {
	FragmentID string  `json:"fragment_id"`
	SessionID  string  `json:"session_id"`
	TurnStart  int     `json:"turn_start"`
	TurnEnd    int     `json:"turn_end"`
	Timestamp  string  `json:"timestamp,omitempty"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	MatchType  string  `json:"match_type"` // "semantic", "lexical", or "hybrid"
}

// Engine runs searches against a Store using an Embedder for query vectors
// and, optionally, an LLM provider for query expansion.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
	provider llm.Provider
}

// NewEngine creates a search engine without query expansion.
func NewEngine(st store.Store, embedder embed.Embedder) *Engine {
	return &Engine{store: st, embedder: embedder}
}

// NewEngineWithProvider creates a search engine that can expand queries
// through the given completion provider.
func NewEngineWithProvider(st store.Store, embedder embed.Embedder, provider llm.Provider) *Engine {
	return &Engine{store: st, embedder: embedder, provider: provider}
}

// Search returns at most opts.TopK results for the query. The query is
// embedded exactly once; paraphrase variants only feed the lexical stage.
// An embedding failure is fatal (no vector, no ranking); an expansion
// failure is logged and ignored.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	if opts.SemanticOnly {
		return e.semanticSearch(ctx, queryVec, opts)
	}
	return e.hybridSearch(ctx, query, queryVec, opts)
}

func (e *Engine) hybridSearch(ctx context.Context, query string, queryVec []float32, opts Options) ([]Result, error) {
	variants := []string{query}
	if opts.Expand && e.provider != nil {
		var err error
		variants, err = expandQuery(ctx, e.provider, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: query expansion failed, searching without it: %v\n", err)
		}
	}

	poolSize := opts.TopK * candidatePoolFactor
	if poolSize < candidatePoolFloor {
		poolSize = candidatePoolFloor
	}

	// Merge lexical pools across variants, keeping each key's best rank.
	bestRank := make(map[string]int)
	for _, variant := range variants {
		hits, err := e.store.LexicalSearch(ctx, variant, poolSize)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
		for i, h := range hits {
			rank := i + 1
			if prev, ok := bestRank[h.FragmentID]; !ok || rank < prev {
				bestRank[h.FragmentID] = rank
			}
		}
	}

	var candidates []*store.Fragment
	var err error
	if len(bestRank) == 0 {
		// No token overlap with the corpus at all. Fall back to scanning
		// everything: correctness over speed in the degenerate case.
		candidates, err = e.store.LoadAll(ctx)
	} else {
		keys := make([]string, 0, len(bestRank))
		for k := range bestRank {
			keys = append(keys, k)
		}
		candidates, err = e.store.LoadByKeys(ctx, keys)
	}
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	lexicalKeys := rankedLexicalKeys(bestRank)

	similarities := make(map[string]float64, len(candidates))
	for _, f := range candidates {
		similarities[f.ID] = cosineSimilarity(queryVec, f.Embedding)
	}
	semanticKeys := rankedSemanticKeys(similarities, opts.Threshold)

	fused := fuseRRF(semanticKeys, lexicalKeys, opts.RRF)
	if len(fused) > opts.TopK {
		fused = fused[:opts.TopK]
	}

	byID := make(map[string]*store.Fragment, len(candidates))
	for _, f := range candidates {
		byID[f.ID] = f
	}

	results := make([]Result, 0, len(fused))
	for _, entry := range fused {
		f := byID[entry.key]
		if f == nil {
			continue
		}
		r := fragmentResult(f)
		r.Score = entry.score
		switch {
		case entry.semanticRank > 0 && entry.lexicalRank > 0:
			r.MatchType = "hybrid"
			r.Similarity = similarities[entry.key]
		case entry.semanticRank > 0:
			r.MatchType = "semantic"
			r.Similarity = similarities[entry.key]
		default:
			// Below the similarity floor but lexically strong. Display
			// similarity stays 0.0: the fragment never entered the
			// semantic ranking.
			r.MatchType = "lexical"
		}
		results = append(results, r)
	}
	return results, nil
}

// semanticSearch is the exhaustive legacy path: cosine over every fragment.
func (e *Engine) semanticSearch(ctx context.Context, queryVec []float32, opts Options) ([]Result, error) {
	frags, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}

	var results []Result
	for _, f := range frags {
		sim := cosineSimilarity(queryVec, f.Embedding)
		if sim < opts.Threshold {
			continue
		}
		r := fragmentResult(f)
		r.Score = sim
		r.Similarity = sim
		r.MatchType = "semantic"
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].FragmentID < results[j].FragmentID
		}
		return results[i].Score > results[j].Score
	})

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

// rankedLexicalKeys orders merged pool keys by best rank ascending.
func rankedLexicalKeys(bestRank map[string]int) []string {
	keys := make([]string, 0, len(bestRank))
	for k := range bestRank {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if bestRank[keys[i]] == bestRank[keys[j]] {
			return keys[i] < keys[j]
		}
		return bestRank[keys[i]] < bestRank[keys[j]]
	})
	return keys
}

// rankedSemanticKeys orders candidate keys by similarity descending,
// dropping those below the threshold.
func rankedSemanticKeys(similarities map[string]float64, threshold float64) []string {
	keys := make([]string, 0, len(similarities))
	for k, sim := range similarities {
		if sim >= threshold {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if similarities[keys[i]] == similarities[keys[j]] {
			return keys[i] < keys[j]
		}
		return similarities[keys[i]] > similarities[keys[j]]
	})
	return keys
}

func fragmentResult(f *store.Fragment) Result {
	return Result{
		FragmentID: f.ID,
		SessionID:  f.SessionID,
		TurnStart:  f.TurnStart,
		TurnEnd:    f.TurnEnd,
		Timestamp:  f.Timestamp,
		Text:       f.Text,
	}
}

// TruncateContent shortens text for single-line display.
func TruncateContent(text string, maxLen int) string {
	if maxLen <= 3 || len(text) <= maxLen {
		return text
	}
	return text[:maxLen-3] + "..."
}
