// Package mcp provides a Model Context Protocol server for Recall.
//
// It exposes conversation search, store statistics, and harvested learnings
// as MCP tools over stdio, so agents can query past sessions mid-conversation.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hurttlocker/recall/internal/embed"
	"github.com/hurttlocker/recall/internal/harvest"
	"github.com/hurttlocker/recall/internal/llm"
	"github.com/hurttlocker/recall/internal/search"
	"github.com/hurttlocker/recall/internal/session"
	"github.com/hurttlocker/recall/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store       store.Store
	Embedder    embed.Embedder
	Provider    llm.Provider // optional, enables query expansion
	SessionsDir string       // optional, enables context windows around results
	Version     string
}

// dbMu serializes MCP tool calls that touch the database. The mcp-go library
// dispatches handlers concurrently via goroutines, and SQLite supports only
// one writer at a time; the mutex keeps reads from interleaving with an
// in-flight re-index.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all Recall tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Recall",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	engine := search.NewEngineWithProvider(cfg.Store, cfg.Embedder, cfg.Provider)

	registerSearchTool(s, engine, cfg.SessionsDir)
	registerStatsTool(s, cfg.Store)
	registerLearningsTool(s, cfg.Store)

	registerStatsResource(s, cfg.Store)
	registerRecentResource(s, cfg.Store)

	return s
}

// searchResult is one search hit as returned over MCP, optionally with the
// surrounding conversation turns.
type searchResult struct {
	search.Result
	Context []contextTurn `json:"context,omitempty"`
	Warning string        `json:"context_warning,omitempty"`
}

type contextTurn struct {
	Index     int    `json:"index"`
	User      string `json:"user,omitempty"`
	Assistant string `json:"assistant,omitempty"`
	Matched   bool   `json:"matched"`
}

func registerSearchTool(s *server.MCPServer, engine *search.Engine, sessionsDir string) {
	tool := mcp.NewTool("recall_search",
		mcp.WithDescription("Search past conversations with hybrid keyword+semantic retrieval. Returns scored fragments with session provenance, optionally expanded with surrounding turns."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of results (default: 5, max: 50)"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum cosine similarity for the semantic ranking (default: 0.3)"),
		),
		mcp.WithBoolean("semantic_only",
			mcp.Description("Skip the keyword stage and rank by cosine similarity alone (default: false)"),
		),
		mcp.WithBoolean("expand",
			mcp.Description("Widen keyword recall with LLM query paraphrases (default: false)"),
		),
		mcp.WithNumber("context",
			mcp.Description("Turns of surrounding conversation to include per result (default: 0, off)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		opts := search.DefaultOptions()
		if v, err := req.RequireFloat("top_k"); err == nil && v > 0 {
			topK := int(v)
			if topK > 50 {
				topK = 50
			}
			opts.TopK = topK
		}
		if v, err := req.RequireFloat("threshold"); err == nil && v > 0 {
			opts.Threshold = v
		}
		opts.SemanticOnly = req.GetBool("semantic_only", false)
		opts.Expand = req.GetBool("expand", false)
		contextWidth := 0
		if v, err := req.RequireFloat("context"); err == nil && v > 0 {
			contextWidth = int(v)
		}

		results, err := engine.Search(ctx, query, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}

		out := make([]searchResult, 0, len(results))
		var expander *search.Expander
		if contextWidth > 0 && sessionsDir != "" {
			expander = search.NewExpander(session.DirLoader{Dir: sessionsDir})
		}
		for _, r := range results {
			sr := searchResult{Result: r}
			if expander != nil {
				window := expander.Expand(r, contextWidth)
				if window.Fallback {
					sr.Warning = window.Warning
				}
				for _, ct := range window.Turns {
					sr.Context = append(sr.Context, contextTurn{
						Index:     ct.Index,
						User:      ct.Turn.UserText,
						Assistant: ct.Turn.AssistantText,
						Matched:   ct.Matched,
					})
				}
			}
			out = append(out, sr)
		}

		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("recall_stats",
		mcp.WithDescription("Get Recall store statistics: fragments, indexed sessions, harvested learnings, embedding dimensions, and database size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerLearningsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("recall_learnings",
		mcp.WithDescription("List harvested session learnings: per-session digests of topics, decisions, facts, and action items."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session",
			mcp.Description("Return only the learning for this session id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		sessionID := ""
		if v, err := req.RequireString("session"); err == nil {
			sessionID = v
		}

		stored, err := st.ListLearnings(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("learnings error: %v", err)), nil
		}

		var learnings []*harvest.Learning
		for _, l := range stored {
			if sessionID != "" && l.SessionID != sessionID {
				continue
			}
			decoded, err := harvest.Decode(l)
			if err != nil {
				continue
			}
			learnings = append(learnings, decoded)
		}

		if len(learnings) == 0 {
			if sessionID != "" {
				return mcp.NewToolResultText(fmt.Sprintf("No learning stored for session %q.", sessionID)), nil
			}
			return mcp.NewToolResultText("No learnings harvested yet. Run `recall harvest` first."), nil
		}

		data, _ := json.MarshalIndent(learnings, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"recall://stats",
		"Store Statistics",
		mcp.WithResourceDescription("Fragment, session, and learning counts plus database size."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerRecentResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"recall://recent",
		"Recent Learnings",
		mcp.WithResourceDescription("The 20 most recently harvested session digests."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stored, err := st.ListLearnings(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing learnings: %w", err)
		}

		// ListLearnings is oldest first; take the tail.
		if len(stored) > 20 {
			stored = stored[len(stored)-20:]
		}

		type recentLearning struct {
			SessionID   string `json:"session_id"`
			Summary     string `json:"summary"`
			HarvestedAt string `json:"harvested_at"`
		}
		recent := make([]recentLearning, 0, len(stored))
		for i := len(stored) - 1; i >= 0; i-- {
			decoded, err := harvest.Decode(stored[i])
			if err != nil {
				continue
			}
			recent = append(recent, recentLearning{
				SessionID:   decoded.SessionID,
				Summary:     decoded.Summary,
				HarvestedAt: decoded.HarvestedAt,
			})
		}

		data, _ := json.MarshalIndent(recent, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
