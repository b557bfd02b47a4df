package session

// TokenStats aggregates token usage across a set of messages.
type TokenStats struct {
	Messages     int   `json:"messages"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CacheRead    int64 `json:"cache_read_tokens"`
	CacheWrite   int64 `json:"cache_creation_tokens"`
}

// Add folds one message's usage into the stats.
func (s *TokenStats) Add(m *Message) {
	s.Messages++
	if m.Usage == nil {
		return
	}
	s.InputTokens += m.Usage.InputTokens
	s.OutputTokens += m.Usage.OutputTokens
	s.CacheRead += m.Usage.CacheReadTokens
	s.CacheWrite += m.Usage.CacheCreationTokens
}

// CacheHitRate is the fraction of input-side tokens served from cache.
func (s *TokenStats) CacheHitRate() float64 {
	total := s.InputTokens + s.CacheRead
	if total == 0 {
		return 0
	}
	return float64(s.CacheRead) / float64(total)
}

// Collect sums usage over all messages in a transcript.
func Collect(messages []Message) TokenStats {
	var stats TokenStats
	for i := range messages {
		stats.Add(&messages[i])
	}
	return stats
}
