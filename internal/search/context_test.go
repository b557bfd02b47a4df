package search

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hurttlocker/recall/internal/session"
)

type mockTurnLoader struct {
	turns map[string][]session.Turn
	err   error
	calls int
}

func (m *mockTurnLoader) LoadTurns(sessionID string) ([]session.Turn, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	turns, ok := m.turns[sessionID]
	if !ok {
		return nil, errors.New("no such session")
	}
	return turns, nil
}

func tenTurns() []session.Turn {
	turns := make([]session.Turn, 10)
	for i := range turns {
		turns[i] = session.Turn{
			UserText:      fmt.Sprintf("question %d", i),
			AssistantText: fmt.Sprintf("answer %d", i),
		}
	}
	return turns
}

func TestExpandWindow(t *testing.T) {
	loader := &mockTurnLoader{turns: map[string][]session.Turn{"s1": tenTurns()}}
	exp := NewExpander(loader)

	ctx := exp.Expand(Result{SessionID: "s1", TurnStart: 2, TurnEnd: 3}, 1)
	if ctx.Fallback {
		t.Fatalf("unexpected fallback: %s", ctx.Warning)
	}
	if len(ctx.Turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(ctx.Turns))
	}
	for i, ct := range ctx.Turns {
		wantIndex := 1 + i
		if ct.Index != wantIndex {
			t.Errorf("turn %d has index %d, want %d", i, ct.Index, wantIndex)
		}
		wantMatched := wantIndex == 2
		if ct.Matched != wantMatched {
			t.Errorf("turn index %d Matched = %v, want %v", ct.Index, ct.Matched, wantMatched)
		}
	}
}

func TestExpandClampsToBounds(t *testing.T) {
	loader := &mockTurnLoader{turns: map[string][]session.Turn{"s1": tenTurns()}}
	exp := NewExpander(loader)

	ctx := exp.Expand(Result{SessionID: "s1", TurnStart: 0, TurnEnd: 1}, 3)
	if ctx.Fallback {
		t.Fatalf("unexpected fallback: %s", ctx.Warning)
	}
	if ctx.Turns[0].Index != 0 || ctx.Turns[len(ctx.Turns)-1].Index != 3 {
		t.Errorf("window = [%d, %d], want [0, 3]", ctx.Turns[0].Index, ctx.Turns[len(ctx.Turns)-1].Index)
	}

	ctx = exp.Expand(Result{SessionID: "s1", TurnStart: 9, TurnEnd: 10}, 3)
	if ctx.Fallback {
		t.Fatalf("unexpected fallback: %s", ctx.Warning)
	}
	if ctx.Turns[len(ctx.Turns)-1].Index != 9 {
		t.Errorf("window must stop at the last turn, ends at %d", ctx.Turns[len(ctx.Turns)-1].Index)
	}
}

func TestExpandZeroWidth(t *testing.T) {
	loader := &mockTurnLoader{turns: map[string][]session.Turn{"s1": tenTurns()}}
	exp := NewExpander(loader)

	ctx := exp.Expand(Result{SessionID: "s1", TurnStart: 4, TurnEnd: 6}, 0)
	if ctx.Fallback {
		t.Fatalf("unexpected fallback: %s", ctx.Warning)
	}
	if len(ctx.Turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(ctx.Turns))
	}
	for _, ct := range ctx.Turns {
		if !ct.Matched {
			t.Errorf("turn %d should be matched with zero width", ct.Index)
		}
	}
}

func TestExpandLoaderFailure(t *testing.T) {
	loader := &mockTurnLoader{err: errors.New("file gone")}
	exp := NewExpander(loader)

	ctx := exp.Expand(Result{SessionID: "s1", TurnStart: 0, TurnEnd: 1}, 1)
	if !ctx.Fallback {
		t.Fatal("expected fallback when the transcript cannot be loaded")
	}
	if ctx.Warning == "" {
		t.Error("fallback must carry a warning")
	}
	if len(ctx.Turns) != 0 {
		t.Errorf("fallback should carry no turns, got %d", len(ctx.Turns))
	}
}

func TestExpandStaleRange(t *testing.T) {
	loader := &mockTurnLoader{turns: map[string][]session.Turn{"s1": tenTurns()}}
	exp := NewExpander(loader)

	tests := []struct {
		name       string
		start, end int
	}{
		{"end past transcript", 8, 12},
		{"negative start", -1, 2},
		{"empty range", 3, 3},
		{"inverted range", 5, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := exp.Expand(Result{SessionID: "s1", TurnStart: tt.start, TurnEnd: tt.end}, 1)
			if !ctx.Fallback {
				t.Errorf("range [%d,%d) should fall back", tt.start, tt.end)
			}
		})
	}
}

func TestExpandCachesTranscript(t *testing.T) {
	loader := &mockTurnLoader{turns: map[string][]session.Turn{"s1": tenTurns()}}
	exp := NewExpander(loader)

	exp.Expand(Result{SessionID: "s1", TurnStart: 1, TurnEnd: 2}, 1)
	exp.Expand(Result{SessionID: "s1", TurnStart: 5, TurnEnd: 6}, 1)
	if loader.calls != 1 {
		t.Errorf("loader called %d times for one session, want 1", loader.calls)
	}

	// A fresh expander has its own cache.
	exp2 := NewExpander(loader)
	exp2.Expand(Result{SessionID: "s1", TurnStart: 1, TurnEnd: 2}, 1)
	if loader.calls != 2 {
		t.Errorf("loader called %d times across expanders, want 2", loader.calls)
	}
}
