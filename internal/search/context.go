package search

import (
	"github.com/hurttlocker/recall/internal/session"
)

// TurnLoader resolves a session id to its ordered turn sequence.
type TurnLoader interface {
	LoadTurns(sessionID string) ([]session.Turn, error)
}

// ContextTurn is one turn in an expanded display window. Matched marks turns
// inside the result's own range; the rest are surrounding context.
type ContextTurn struct {
	Index   int
	Turn    session.Turn
	Matched bool
}

// Context is the display form of one result: either a window of real turns
// or, when the source conversation cannot be resolved, the stored fragment
// text with a warning.
type Context struct {
	Turns    []ContextTurn
	Fallback bool
	Warning  string
}

// Expander reconstructs turn windows around results. It caches parsed turn
// sequences per session id for the lifetime of one search invocation; create
// a fresh Expander per search, do not share across searches.
type Expander struct {
	loader TurnLoader
	cache  map[string][]session.Turn
}

// NewExpander creates an expander scoped to one search invocation.
func NewExpander(loader TurnLoader) *Expander {
	return &Expander{
		loader: loader,
		cache:  make(map[string][]session.Turn),
	}
}

// Expand returns the window [max(0, start-width), min(len, end+width)) around
// the result's turn range. Any failure to resolve the conversation, an
// out-of-bounds range, or an empty window degrades to the stored fragment
// text with a warning; it never fails the search.
func (e *Expander) Expand(r Result, width int) Context {
	turns, err := e.turnsFor(r.SessionID)
	if err != nil {
		return Context{
			Fallback: true,
			Warning:  "session transcript unavailable, showing stored text",
		}
	}

	if r.TurnStart < 0 || r.TurnStart >= r.TurnEnd || r.TurnEnd > len(turns) {
		return Context{
			Fallback: true,
			Warning:  "turn range no longer matches the transcript, showing stored text",
		}
	}

	lo := r.TurnStart - width
	if lo < 0 {
		lo = 0
	}
	hi := r.TurnEnd + width
	if hi > len(turns) {
		hi = len(turns)
	}
	if lo >= hi {
		return Context{
			Fallback: true,
			Warning:  "empty context window, showing stored text",
		}
	}

	window := make([]ContextTurn, 0, hi-lo)
	for i := lo; i < hi; i++ {
		window = append(window, ContextTurn{
			Index:   i,
			Turn:    turns[i],
			Matched: i >= r.TurnStart && i < r.TurnEnd,
		})
	}
	return Context{Turns: window}
}

func (e *Expander) turnsFor(sessionID string) ([]session.Turn, error) {
	if turns, ok := e.cache[sessionID]; ok {
		return turns, nil
	}
	turns, err := e.loader.LoadTurns(sessionID)
	if err != nil {
		return nil, err
	}
	e.cache[sessionID] = turns
	return turns, nil
}
