package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hurttlocker/recall/internal/config"
	"github.com/hurttlocker/recall/internal/session"
	"github.com/hurttlocker/recall/internal/store"
)

func runStatus(args []string) error {
	common, rest := parseCommon(args)
	jsonOut := false
	for _, arg := range rest {
		switch arg {
		case "--json":
			jsonOut = true
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}

	rc, err := resolveConfig(common)
	if err != nil {
		return err
	}

	st, statsErr := loadStats(rc)

	if jsonOut {
		out := struct {
			Config config.ResolvedConfig `json:"config"`
			Stats  *store.Stats          `json:"stats,omitempty"`
		}{Config: rc, Stats: st}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Config file: %s\n\n", rc.ConfigPath)
	printValue("db_path", rc.DBPath, store.DefaultDBPath)
	printValue("sessions_dir", rc.SessionsDir, "")
	printValue("embed", rc.EmbedProvider, defaultEmbedFlag)
	printValue("embed_endpoint", rc.EmbedEndpoint, "")
	printValue("model_dir", rc.ModelDir, "")
	printValue("llm", rc.LLMProvider, "")
	printValue("llm_expand", rc.EffectiveLLMModel("expand", defaultExpandModel), "")
	printValue("llm_harvest", rc.EffectiveLLMModel("harvest", defaultHarvestModel), "")

	fmt.Println()
	if statsErr != nil {
		fmt.Fprintf(os.Stderr, "warning: could not read database stats: %v\n", statsErr)
		return nil
	}
	fmt.Printf("Fragments:  %d\n", st.FragmentCount)
	fmt.Printf("Sessions:   %d indexed, %d processed\n", st.SessionCount, st.ProcessedCount)
	fmt.Printf("Learnings:  %d\n", st.LearningCount)
	fmt.Printf("DB size:    %s\n", formatBytes(st.DBSizeBytes))
	if st.Dimensions > 0 {
		fmt.Printf("Dimensions: %d\n", st.Dimensions)
	}
	return nil
}

func loadStats(rc config.ResolvedConfig) (*store.Stats, error) {
	s, err := openStore(rc)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Stats(context.Background())
}

func printValue(name string, v config.ResolvedValue, fallback string) {
	value := v.Value
	source := string(v.Source)
	if value == "" {
		if fallback == "" {
			return
		}
		value = fallback
		source = string(config.SourceDefault)
	}
	origin := source
	if v.From != "" && v.Value != "" {
		origin = fmt.Sprintf("%s: %s", source, v.From)
	}
	fmt.Printf("  %-16s %-44s (%s)\n", name, value, origin)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// tokenTotals is the per-directory rollup of session.TokenStats.
type tokenTotals struct {
	Sessions int `json:"sessions"`
	session.TokenStats
	CacheHitRate float64 `json:"cache_hit_rate"`
}

func runStats(args []string) error {
	common, rest := parseCommon(args)
	jsonOut := false
	for _, arg := range rest {
		switch arg {
		case "--json":
			jsonOut = true
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}

	rc, err := resolveConfig(common)
	if err != nil {
		return err
	}

	st, err := loadStats(rc)
	if err != nil {
		return err
	}

	var usage *tokenTotals
	if dir := rc.SessionsDir.Value; dir != "" {
		usage, err = sumTokenUsage(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read session usage: %v\n", err)
		}
	}

	if jsonOut {
		out := struct {
			*store.Stats
			Usage *tokenTotals `json:"usage,omitempty"`
		}{Stats: st, Usage: usage}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Fragments:  %d\n", st.FragmentCount)
	fmt.Printf("Sessions:   %d indexed, %d processed\n", st.SessionCount, st.ProcessedCount)
	fmt.Printf("Learnings:  %d\n", st.LearningCount)
	fmt.Printf("DB size:    %s\n", formatBytes(st.DBSizeBytes))
	if st.Dimensions > 0 {
		fmt.Printf("Dimensions: %d\n", st.Dimensions)
	}
	if usage != nil {
		fmt.Println()
		fmt.Printf("Token usage across %d session(s), %d message(s):\n", usage.Sessions, usage.Messages)
		fmt.Printf("  input:          %d\n", usage.InputTokens)
		fmt.Printf("  output:         %d\n", usage.OutputTokens)
		fmt.Printf("  cache read:     %d\n", usage.CacheRead)
		fmt.Printf("  cache creation: %d\n", usage.CacheWrite)
		fmt.Printf("  cache hit rate: %.1f%%\n", usage.CacheHitRate*100)
	}
	return nil
}

func sumTokenUsage(dir string) (*tokenTotals, error) {
	files, err := session.Discover(dir)
	if err != nil {
		return nil, err
	}

	totals := &tokenTotals{Sessions: len(files)}
	for _, f := range files {
		messages, err := session.ParseFile(f.Path)
		if err != nil {
			continue
		}
		st := session.Collect(messages)
		totals.Messages += st.Messages
		totals.InputTokens += st.InputTokens
		totals.OutputTokens += st.OutputTokens
		totals.CacheRead += st.CacheRead
		totals.CacheWrite += st.CacheWrite
	}
	totals.CacheHitRate = totals.TokenStats.CacheHitRate()
	return totals, nil
}
