package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hurttlocker/recall/internal/config"
	"github.com/hurttlocker/recall/internal/embed"
	"github.com/hurttlocker/recall/internal/llm"
	"github.com/hurttlocker/recall/internal/store"
)

const version = "0.1.0-dev"

// Built-in model defaults, used when neither config nor flags pick one.
const (
	defaultEmbedFlag    = "local/all-MiniLM-L6-v2"
	defaultExpandModel  = "openrouter/openai/gpt-4o-mini"
	defaultHarvestModel = "openrouter/openai/gpt-4o-mini"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "index":
		err = runIndex(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "harvest":
		err = runHarvest(os.Args[2:])
	case "learnings":
		err = runLearnings(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("recall %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonOpts are the flags every subcommand accepts. parseCommon strips them
// from args and returns what remains for the subcommand to interpret.
type commonOpts struct {
	configPath  string
	dbPath      string
	sessionsDir string
	embedFlag   string
	llmFlag     string
}

func parseCommon(args []string) (commonOpts, []string) {
	var opts commonOpts
	var rest []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			i++
			opts.configPath = args[i]
		case strings.HasPrefix(args[i], "--config="):
			opts.configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--db" && i+1 < len(args):
			i++
			opts.dbPath = args[i]
		case strings.HasPrefix(args[i], "--db="):
			opts.dbPath = strings.TrimPrefix(args[i], "--db=")
		case args[i] == "--sessions" && i+1 < len(args):
			i++
			opts.sessionsDir = args[i]
		case strings.HasPrefix(args[i], "--sessions="):
			opts.sessionsDir = strings.TrimPrefix(args[i], "--sessions=")
		case args[i] == "--embed" && i+1 < len(args):
			i++
			opts.embedFlag = args[i]
		case strings.HasPrefix(args[i], "--embed="):
			opts.embedFlag = strings.TrimPrefix(args[i], "--embed=")
		case args[i] == "--llm" && i+1 < len(args):
			i++
			opts.llmFlag = args[i]
		case strings.HasPrefix(args[i], "--llm="):
			opts.llmFlag = strings.TrimPrefix(args[i], "--llm=")
		default:
			rest = append(rest, args[i])
		}
	}
	return opts, rest
}

func resolveConfig(opts commonOpts) (config.ResolvedConfig, error) {
	rc, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath: opts.configPath,
		CLILLM:     opts.llmFlag,
		CLIEmbed:   opts.embedFlag,
		CLIDBPath:  opts.dbPath,
	})
	if err != nil {
		return rc, err
	}
	if opts.sessionsDir != "" {
		rc.SessionsDir = config.ResolvedValue{Value: opts.sessionsDir, Source: config.SourceCLI, From: "--sessions"}
	}
	return rc, nil
}

func openStore(rc config.ResolvedConfig) (store.Store, error) {
	s, err := store.NewStore(store.Config{DBPath: rc.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

func buildEmbedder(rc config.ResolvedConfig) (embed.Embedder, error) {
	flag := rc.EmbedProvider.Value
	if flag == "" {
		flag = defaultEmbedFlag
	}
	cfg, err := embed.ParseEmbedFlag(flag)
	if err != nil {
		return nil, err
	}
	if v := rc.EmbedEndpoint.Value; v != "" {
		cfg.Endpoint = v
	}
	if cfg.Provider == "local" {
		if v := rc.ModelDir.Value; v != "" {
			cfg.Endpoint = v
		}
	}
	if v := rc.EmbedAPIKey.Value; v != "" {
		cfg.APIKey = v
	}
	return embed.New(cfg)
}

// buildProvider constructs the completion provider for one purpose
// ("expand" or "harvest").
func buildProvider(rc config.ResolvedConfig, purpose, fallback string) (llm.Provider, error) {
	model := rc.EffectiveLLMModel(purpose, fallback)
	if model.Value == "" {
		return nil, fmt.Errorf("no LLM configured for %s (set llm.provider in %s or pass --llm)", purpose, rc.ConfigPath)
	}
	cfg, err := llm.ParseLLMFlag(model.Value)
	if err != nil {
		return nil, err
	}
	if key := rc.APIKeyForProvider(model.Value); key.Value != "" {
		cfg.APIKey = key.Value
	}
	return llm.NewProvider(cfg)
}

func requireSessionsDir(rc config.ResolvedConfig) (string, error) {
	if dir := rc.SessionsDir.Value; dir != "" {
		return dir, nil
	}
	return "", fmt.Errorf("no sessions directory configured (set sessions_dir in %s, RECALL_SESSIONS_DIR, or pass --sessions)", rc.ConfigPath)
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func printUsage() {
	fmt.Printf(`recall %s — Searchable long-term memory for coding sessions

Usage:
  recall <command> [arguments]

Commands:
  index               Index session transcripts into the database
  search <query>      Hybrid BM25 + semantic search over indexed sessions
  status              Show effective configuration and database counts
  stats               Show database statistics and session token usage
  harvest             Distill structured learnings from sessions via LLM
  learnings           List harvested learnings
  export              Export learnings as Markdown
  mcp                 Serve search over the Model Context Protocol (stdio)
  version             Print version

Search Flags:
  --top-k N           Number of results (default 5)
  --threshold F       Minimum cosine similarity for semantic ranking (default 0.3)
  --semantic-only     Skip the lexical stage, exhaustive cosine scan
  --expand            Widen lexical recall with LLM query paraphrases
  --context N         Show N conversation turns around each result
  --json              JSON output (default when stdout is not a terminal)

Common Flags:
  --config PATH       Config file (default ~/.recall/config.yaml)
  --db PATH           Database file (default ~/.recall/recall.db)
  --sessions DIR      Session transcript directory
  --embed P/M         Embedding provider/model (e.g. local/all-MiniLM-L6-v2)
  --llm P/M           Completion provider/model (e.g. openrouter/openai/gpt-4o-mini)
  -h, --help          Show this help message
  -v, --version       Print version

Documentation:
  https://github.com/hurttlocker/recall
`, version)
}
