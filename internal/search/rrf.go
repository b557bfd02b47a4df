package search

import (
	"math"
	"sort"
)

const (
	defaultRRFK = 60

	// defaultFallbackRank is assigned to a fragment in any ranking it is
	// absent from, instead of excluding it. Large enough that a single-signal
	// hit ranks below anything present in both lists at comparable positions,
	// small enough that it still contributes. Tuning is unverified; both
	// constants stay configurable.
	defaultFallbackRank = 10000
)

// RRFConfig holds parameters for Reciprocal Rank Fusion.
type RRFConfig struct {
	K            int
	FallbackRank int
}

// DefaultRRFConfig returns the default RRF configuration.
func DefaultRRFConfig() RRFConfig {
	return RRFConfig{
		K:            defaultRRFK,
		FallbackRank: defaultFallbackRank,
	}
}

type fusedEntry struct {
	key          string
	score        float64
	semanticRank int // 0 when absent from the semantic ranking
	lexicalRank  int // 0 when absent from the lexical ranking
}

// fuseRRF merges a semantic and a lexical ranking (each an ordered list of
// fragment keys, best first) into one list scored by Reciprocal Rank Fusion:
//
//	score = 1/(K + semanticRank) + 1/(K + lexicalRank)
//
// Ranks are 1-based; a key missing from one list takes cfg.FallbackRank in
// that list, so a fragment strong in only one signal still surfaces.
// The result is sorted descending by score with a stable key tie-break.
func fuseRRF(semanticKeys, lexicalKeys []string, cfg RRFConfig) []fusedEntry {
	cfg = normalizeRRFConfig(cfg)

	fusedMap := make(map[string]*fusedEntry)

	for i, key := range semanticKeys {
		fusedMap[key] = &fusedEntry{key: key, semanticRank: i + 1}
	}
	for i, key := range lexicalKeys {
		if entry, exists := fusedMap[key]; exists {
			entry.lexicalRank = i + 1
		} else {
			fusedMap[key] = &fusedEntry{key: key, lexicalRank: i + 1}
		}
	}

	merged := make([]fusedEntry, 0, len(fusedMap))
	for _, entry := range fusedMap {
		semRank := entry.semanticRank
		if semRank == 0 {
			semRank = cfg.FallbackRank
		}
		lexRank := entry.lexicalRank
		if lexRank == 0 {
			lexRank = cfg.FallbackRank
		}
		entry.score = 1.0/float64(cfg.K+semRank) + 1.0/float64(cfg.K+lexRank)
		merged = append(merged, *entry)
	}

	sort.Slice(merged, func(i, j int) bool {
		delta := merged[i].score - merged[j].score
		if math.Abs(delta) <= 1e-12 {
			return merged[i].key < merged[j].key
		}
		return delta > 0
	})

	return merged
}

func normalizeRRFConfig(cfg RRFConfig) RRFConfig {
	if cfg.K <= 0 {
		cfg.K = defaultRRFK
	}
	if cfg.FallbackRank <= 0 {
		cfg.FallbackRank = defaultFallbackRank
	}
	return cfg
}
