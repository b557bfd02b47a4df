package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestContentDecodeString(t *testing.T) {
	var m Message
	if err := unmarshalMessage(`{"role":"user","content":"hello there"}`, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := m.Text(); got != "hello there" {
		t.Errorf("Text() = %q, want %q", got, "hello there")
	}
}

func TestContentDecodeBlocks(t *testing.T) {
	line := `{"role":"assistant","content":[
		{"type":"text","text":"first"},
		{"type":"tool_use","name":"read_file","input":{"path":"x"}},
		{"type":"tool_result","content":"ignored output"},
		{"type":"thinking","thinking":"hidden"},
		{"type":"text","text":"second"}
	]}`
	var m Message
	if err := unmarshalMessage(line, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(m.Content.Blocks) != 5 {
		t.Fatalf("got %d blocks, want 5", len(m.Content.Blocks))
	}

	wantKinds := []BlockKind{BlockText, BlockToolCall, BlockToolResult, BlockOther, BlockText}
	for i, want := range wantKinds {
		if m.Content.Blocks[i].Kind != want {
			t.Errorf("block %d kind = %q, want %q", i, m.Content.Blocks[i].Kind, want)
		}
	}
	if m.Content.Blocks[1].ToolName != "read_file" {
		t.Errorf("tool name = %q, want read_file", m.Content.Blocks[1].ToolName)
	}

	if got := m.Text(); got != "first\nsecond" {
		t.Errorf("Text() = %q, want %q", got, "first\nsecond")
	}
}

func TestContentDecodeUnknownShape(t *testing.T) {
	var m Message
	if err := unmarshalMessage(`{"role":"user","content":{"weird":true}}`, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m.Content.Blocks) != 1 || m.Content.Blocks[0].Kind != BlockOther {
		t.Errorf("unknown content shape should decode to a single other block, got %+v", m.Content.Blocks)
	}
	if m.Text() != "" {
		t.Errorf("other blocks must not contribute text, got %q", m.Text())
	}
}

func TestBuildTurns(t *testing.T) {
	messages := parseLines(t, []string{
		`{"role":"assistant","content":"orphan, dropped"}`,
		`{"role":"user","content":"q1","timestamp":"2026-01-02T03:04:05Z"}`,
		`{"role":"assistant","content":"a1 part one"}`,
		`{"role":"assistant","content":"a1 part two"}`,
		`{"role":"user","content":"q2"}`,
		`{"role":"assistant","content":"a2"}`,
	})

	turns := BuildTurns(messages)
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].UserText != "q1" {
		t.Errorf("turn 0 user = %q", turns[0].UserText)
	}
	if turns[0].AssistantText != "a1 part one\n\na1 part two" {
		t.Errorf("turn 0 assistant = %q", turns[0].AssistantText)
	}
	if turns[0].Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("turn 0 timestamp = %q", turns[0].Timestamp)
	}
	if turns[1].UserText != "q2" || turns[1].AssistantText != "a2" {
		t.Errorf("turn 1 = %+v", turns[1])
	}
}

func TestChunkTurns(t *testing.T) {
	turns := make([]Turn, 7)
	for i := range turns {
		turns[i] = Turn{UserText: "u", AssistantText: "a"}
	}

	tests := []struct {
		name          string
		size, overlap int
		wantRanges    [][2]int
	}{
		{"default window", 3, 1, [][2]int{{0, 3}, {2, 5}, {4, 7}}},
		{"no overlap", 2, 0, [][2]int{{0, 2}, {2, 4}, {4, 6}, {6, 7}}},
		{"overlap >= size still advances", 2, 5, [][2]int{{0, 2}, {1, 3}, {2, 4}, {3, 5}, {4, 6}, {5, 7}}},
		{"window larger than corpus", 10, 1, [][2]int{{0, 7}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkTurns(turns, tt.size, tt.overlap)
			if len(chunks) != len(tt.wantRanges) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tt.wantRanges))
			}
			for i, want := range tt.wantRanges {
				if chunks[i].TurnStart != want[0] || chunks[i].TurnEnd != want[1] {
					t.Errorf("chunk %d range = [%d,%d), want [%d,%d)",
						i, chunks[i].TurnStart, chunks[i].TurnEnd, want[0], want[1])
				}
				if chunks[i].TurnStart >= chunks[i].TurnEnd {
					t.Errorf("chunk %d has empty range", i)
				}
			}
		})
	}
}

func TestChunkTurnsRendering(t *testing.T) {
	turns := []Turn{
		{UserText: "how do I fix this", AssistantText: "like so"},
		{UserText: "thanks", AssistantText: "np"},
	}
	chunks := ChunkTurns(turns, 3, 1)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	want := "User: how do I fix this\n\nAssistant: like so\n\n---\n\nUser: thanks\n\nAssistant: np"
	if chunks[0].Text != want {
		t.Errorf("chunk text = %q, want %q", chunks[0].Text, want)
	}
}

func TestChunkTurnsEmpty(t *testing.T) {
	if chunks := ChunkTurns(nil, 3, 1); len(chunks) != 0 {
		t.Errorf("empty turn list should produce no chunks, got %d", len(chunks))
	}
}

func TestParseFileSkipsBadLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.jsonl")
	content := `{"role":"user","content":"ok"}
not json at all
{"role":"assistant","content":"fine"}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	messages, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(messages) != 2 {
		t.Errorf("got %d messages, want 2 (bad line skipped)", len(messages))
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	write("a.jsonl")
	write("b.jsonl")
	write("c.jsonl.deleted")
	write("notes.txt")

	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	for _, f := range files {
		if f.ID != "a" && f.ID != "b" {
			t.Errorf("unexpected session id %q", f.ID)
		}
		if f.Size == 0 || f.Mtime == 0 {
			t.Errorf("file %s missing size/mtime", f.ID)
		}
	}
}

func TestTokenStats(t *testing.T) {
	messages := parseLines(t, []string{
		`{"role":"user","content":"q"}`,
		`{"role":"assistant","content":"a","usage":{"input_tokens":100,"output_tokens":50,"cache_read_input_tokens":300,"cache_creation_input_tokens":20}}`,
		`{"role":"assistant","content":"b","usage":{"input_tokens":100,"output_tokens":25}}`,
	})
	stats := Collect(messages)
	if stats.Messages != 3 {
		t.Errorf("messages = %d, want 3", stats.Messages)
	}
	if stats.InputTokens != 200 || stats.OutputTokens != 75 || stats.CacheRead != 300 || stats.CacheWrite != 20 {
		t.Errorf("totals = %+v", stats)
	}
	if got, want := stats.CacheHitRate(), 0.6; got != want {
		t.Errorf("cache hit rate = %v, want %v", got, want)
	}

	var empty TokenStats
	if empty.CacheHitRate() != 0 {
		t.Errorf("empty stats should have 0 hit rate")
	}
}

func unmarshalMessage(line string, m *Message) error {
	return json.Unmarshal([]byte(line), m)
}

func parseLines(t *testing.T, lines []string) []Message {
	t.Helper()
	messages := make([]Message, 0, len(lines))
	for _, line := range lines {
		var m Message
		if err := unmarshalMessage(line, &m); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		messages = append(messages, m)
	}
	return messages
}
