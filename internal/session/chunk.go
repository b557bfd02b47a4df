package session

import "strings"

// DefaultChunkSize is the number of turns per chunk.
const DefaultChunkSize = 3

// DefaultOverlap is the number of turns shared between adjacent chunks.
const DefaultOverlap = 1

// Chunk is a window of consecutive turns rendered to retrievable text.
// TurnStart and TurnEnd form a half-open range [start, end) into the
// session's turn sequence.
type Chunk struct {
	Text      string
	TurnStart int
	TurnEnd   int
	Timestamp string
}

// ChunkTurns slides a window of size turns over the sequence, advancing by
// max(size-overlap, 1). Turns with no text on either side are rendered as-is;
// a window whose rendered text is empty is skipped.
func ChunkTurns(turns []Turn, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	step := size - overlap
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	for start := 0; start < len(turns); start += step {
		end := start + size
		if end > len(turns) {
			end = len(turns)
		}

		parts := make([]string, 0, end-start)
		for _, t := range turns[start:end] {
			parts = append(parts, t.Render())
		}
		text := strings.Join(parts, "\n\n---\n\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				Text:      text,
				TurnStart: start,
				TurnEnd:   end,
				Timestamp: turns[start].Timestamp,
			})
		}

		if end == len(turns) {
			break
		}
	}
	return chunks
}
