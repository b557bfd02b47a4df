package search

import (
	"context"
	"errors"
	"testing"

	"github.com/hurttlocker/recall/internal/llm"
)

type mockProvider struct {
	resp  string
	err   error
	calls int
}

func (m *mockProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	m.calls++
	return m.resp, m.err
}

func (m *mockProvider) Name() string { return "mock" }

func TestExpandQuery(t *testing.T) {
	p := &mockProvider{resp: `["database is locked error", "sqlite busy timeout"]`}
	variants, err := expandQuery(context.Background(), p, "that sqlite locking problem")
	if err != nil {
		t.Fatalf("expandQuery: %v", err)
	}
	want := []string{"that sqlite locking problem", "database is locked error", "sqlite busy timeout"}
	if len(variants) != len(want) {
		t.Fatalf("got %d variants, want %d: %v", len(variants), len(want), variants)
	}
	for i := range want {
		if variants[i] != want[i] {
			t.Errorf("variants[%d] = %q, want %q", i, variants[i], want[i])
		}
	}
}

func TestExpandQueryCapsVariants(t *testing.T) {
	p := &mockProvider{resp: `["one", "two", "three", "four"]`}
	variants, err := expandQuery(context.Background(), p, "orig")
	if err != nil {
		t.Fatalf("expandQuery: %v", err)
	}
	if len(variants) != expandMaxQueries+1 {
		t.Errorf("got %d variants, want %d", len(variants), expandMaxQueries+1)
	}
	if variants[0] != "orig" {
		t.Errorf("original query must come first, got %q", variants[0])
	}
}

func TestExpandQueryDedupes(t *testing.T) {
	p := &mockProvider{resp: `["Orig", "orig", "fresh angle"]`}
	variants, err := expandQuery(context.Background(), p, "orig")
	if err != nil {
		t.Fatalf("expandQuery: %v", err)
	}
	if len(variants) != 2 || variants[1] != "fresh angle" {
		t.Errorf("case-insensitive duplicates of the query should be dropped, got %v", variants)
	}
}

func TestExpandQueryProviderFailure(t *testing.T) {
	p := &mockProvider{err: errors.New("rate limited")}
	variants, err := expandQuery(context.Background(), p, "orig")
	if err == nil {
		t.Error("expected an error to report")
	}
	if len(variants) != 1 || variants[0] != "orig" {
		t.Errorf("failure must fall back to the original query alone, got %v", variants)
	}
}

func TestExpandQueryGarbageResponse(t *testing.T) {
	p := &mockProvider{resp: "Sure! Here are some ideas for you."}
	variants, err := expandQuery(context.Background(), p, "orig")
	if err == nil {
		t.Error("expected a parse error to report")
	}
	if len(variants) != 1 || variants[0] != "orig" {
		t.Errorf("unparseable response must fall back to the original query, got %v", variants)
	}
}

func TestParseExpandResponse(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		want    int
		wantErr bool
	}{
		{"plain array", `["a", "b"]`, 2, false},
		{"fenced array", "```json\n[\"a\", \"b\"]\n```", 2, false},
		{"object with queries key", `{"queries": ["a", "b", "c"]}`, 3, false},
		{"object with expansions key", `{"expansions": ["a"]}`, 1, false},
		{"empty array", `[]`, 0, false},
		{"prose", "here you go", 0, true},
		{"object without known key", `{"stuff": ["a"]}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExpandResponse(tt.resp)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExpandResponse: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d queries, want %d: %v", len(got), tt.want, got)
			}
		})
	}
}
