package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hurttlocker/recall/internal/search"
	"github.com/hurttlocker/recall/internal/session"
)

func runSearch(args []string) error {
	common, rest := parseCommon(args)

	opts := search.DefaultOptions()
	jsonOut := false
	var queryParts []string

	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--top-k" && i+1 < len(rest):
			i++
			n, err := strconv.Atoi(rest[i])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid --top-k value: %s", rest[i])
			}
			opts.TopK = n
		case strings.HasPrefix(rest[i], "--top-k="):
			n, err := strconv.Atoi(strings.TrimPrefix(rest[i], "--top-k="))
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid --top-k value: %s", rest[i])
			}
			opts.TopK = n
		case rest[i] == "--threshold" && i+1 < len(rest):
			i++
			f, err := strconv.ParseFloat(rest[i], 64)
			if err != nil {
				return fmt.Errorf("invalid --threshold value: %s", rest[i])
			}
			opts.Threshold = f
		case strings.HasPrefix(rest[i], "--threshold="):
			f, err := strconv.ParseFloat(strings.TrimPrefix(rest[i], "--threshold="), 64)
			if err != nil {
				return fmt.Errorf("invalid --threshold value: %s", rest[i])
			}
			opts.Threshold = f
		case rest[i] == "--context" && i+1 < len(rest):
			i++
			n, err := strconv.Atoi(rest[i])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid --context value: %s", rest[i])
			}
			opts.ContextTurns = n
		case strings.HasPrefix(rest[i], "--context="):
			n, err := strconv.Atoi(strings.TrimPrefix(rest[i], "--context="))
			if err != nil || n < 0 {
				return fmt.Errorf("invalid --context value: %s", rest[i])
			}
			opts.ContextTurns = n
		case rest[i] == "--semantic-only":
			opts.SemanticOnly = true
		case rest[i] == "--expand":
			opts.Expand = true
		case rest[i] == "--json":
			jsonOut = true
		case strings.HasPrefix(rest[i], "-"):
			return fmt.Errorf("unknown flag: %s", rest[i])
		default:
			queryParts = append(queryParts, rest[i])
		}
	}

	query := strings.TrimSpace(strings.Join(queryParts, " "))
	if query == "" {
		return fmt.Errorf("usage: recall search <query> [--top-k N] [--threshold F] [--semantic-only] [--expand] [--context N] [--json]")
	}

	rc, err := resolveConfig(common)
	if err != nil {
		return err
	}
	s, err := openStore(rc)
	if err != nil {
		return err
	}
	defer s.Close()

	embedder, err := buildEmbedder(rc)
	if err != nil {
		return fmt.Errorf("building embedder: %w", err)
	}

	engine := search.NewEngine(s, embedder)
	if opts.Expand {
		provider, err := buildProvider(rc, "expand", defaultExpandModel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: query expansion unavailable: %v\n", err)
		} else {
			engine = search.NewEngineWithProvider(s, embedder, provider)
		}
	}

	results, err := engine.Search(context.Background(), query, opts)
	if err != nil {
		return err
	}

	if !jsonOut && !isTTY() {
		jsonOut = true
	}

	if opts.ContextTurns > 0 && rc.SessionsDir.Value != "" {
		return printResultsWithContext(results, opts.ContextTurns, rc.SessionsDir.Value, jsonOut)
	}
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printResults(results)
	return nil
}

func printResults(results []search.Result) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%s] %s (turns %d-%d, %s", i+1, r.MatchType, r.SessionID, r.TurnStart, r.TurnEnd, formatSimilarity(r))
		if r.Timestamp != "" {
			fmt.Printf(", %s", r.Timestamp)
		}
		fmt.Println(")")
		fmt.Printf("   %s\n\n", search.TruncateContent(r.Text, 300))
	}
}

// formatSimilarity renders the display similarity. Lexical-only hits never
// entered the semantic ranking, so there is no cosine value to show.
func formatSimilarity(r search.Result) string {
	if r.MatchType == "lexical" {
		return "sim n/a"
	}
	return fmt.Sprintf("sim %.2f", r.Similarity)
}

// resultWithContext mirrors the MCP search payload: a result plus the
// surrounding conversation turns.
type resultWithContext struct {
	search.Result
	Context []contextTurnOut `json:"context,omitempty"`
	Warning string           `json:"context_warning,omitempty"`
}

type contextTurnOut struct {
	Index     int    `json:"index"`
	User      string `json:"user,omitempty"`
	Assistant string `json:"assistant,omitempty"`
	Matched   bool   `json:"matched"`
}

func printResultsWithContext(results []search.Result, width int, sessionsDir string, jsonOut bool) error {
	expander := search.NewExpander(session.DirLoader{Dir: sessionsDir})

	expanded := make([]resultWithContext, 0, len(results))
	for _, r := range results {
		out := resultWithContext{Result: r}
		cx := expander.Expand(r, width)
		if cx.Fallback {
			out.Warning = cx.Warning
		}
		for _, t := range cx.Turns {
			out.Context = append(out.Context, contextTurnOut{
				Index:     t.Index,
				User:      t.Turn.UserText,
				Assistant: t.Turn.AssistantText,
				Matched:   t.Matched,
			})
		}
		expanded = append(expanded, out)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(expanded)
	}

	if len(expanded) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range expanded {
		fmt.Printf("%d. [%s] %s (turns %d-%d, %s)\n", i+1, r.MatchType, r.SessionID, r.TurnStart, r.TurnEnd, formatSimilarity(r.Result))
		if r.Warning != "" {
			fmt.Printf("   (%s)\n", r.Warning)
			fmt.Printf("   %s\n\n", search.TruncateContent(r.Text, 300))
			continue
		}
		for _, t := range r.Context {
			marker := " "
			if t.Matched {
				marker = "*"
			}
			if t.User != "" {
				fmt.Printf("   %s [%d] user: %s\n", marker, t.Index, search.TruncateContent(t.User, 200))
			}
			if t.Assistant != "" {
				fmt.Printf("   %s [%d] assistant: %s\n", marker, t.Index, search.TruncateContent(t.Assistant, 200))
			}
		}
		fmt.Println()
	}
	return nil
}
