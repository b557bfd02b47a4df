package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hurttlocker/recall/internal/harvest"
	"github.com/hurttlocker/recall/internal/store"
)

func runHarvest(args []string) error {
	common, rest := parseCommon(args)

	opts := harvest.Options{}
	for _, arg := range rest {
		switch arg {
		case "--force", "-f":
			opts.Force = true
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}

	rc, err := resolveConfig(common)
	if err != nil {
		return err
	}
	dir, err := requireSessionsDir(rc)
	if err != nil {
		return err
	}

	s, err := openStore(rc)
	if err != nil {
		return err
	}
	defer s.Close()

	provider, err := buildProvider(rc, "harvest", defaultHarvestModel)
	if err != nil {
		return err
	}

	fmt.Printf("Harvesting learnings from %s via %s...\n", dir, provider.Name())
	opts.ProgressFn = func(done, total int, sessionID string) {
		fmt.Printf("  [%d/%d] %s\n", done, total, sessionID)
	}

	result, err := harvest.NewHarvester(s, provider).HarvestDir(context.Background(), dir, opts)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Scanned %d sessions: %d harvested, %d skipped\n",
		result.SessionsScanned, result.SessionsHarvested, result.SessionsSkipped)
	for _, se := range result.Errors {
		fmt.Fprintf(os.Stderr, "  failed: %s: %s\n", se.SessionID, se.Message)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d session(s) failed", len(result.Errors))
	}
	return nil
}

func runLearnings(args []string) error {
	common, rest := parseCommon(args)

	jsonOut := false
	sessionID := ""
	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--json":
			jsonOut = true
		case rest[i] == "--session" && i+1 < len(rest):
			i++
			sessionID = rest[i]
		case strings.HasPrefix(rest[i], "--session="):
			sessionID = strings.TrimPrefix(rest[i], "--session=")
		default:
			return fmt.Errorf("unknown argument: %s", rest[i])
		}
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

	learnings, err := loadLearnings(s, sessionID)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(learnings)
	}

	if len(learnings) == 0 {
		fmt.Println("No learnings stored. Run `recall harvest` first.")
		return nil
	}
	for _, l := range learnings {
		fmt.Printf("%s  %s\n", l.SessionID, harvest.RenderSummaryLine(l))
	}
	fmt.Printf("\n%d learning(s)\n", len(learnings))
	return nil
}

func runExport(args []string) error {
	common, rest := parseCommon(args)

	outPath := ""
	sessionID := ""
	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--out" && i+1 < len(rest):
			i++
			outPath = rest[i]
		case strings.HasPrefix(rest[i], "--out="):
			outPath = strings.TrimPrefix(rest[i], "--out=")
		case rest[i] == "--session" && i+1 < len(rest):
			i++
			sessionID = rest[i]
		case strings.HasPrefix(rest[i], "--session="):
			sessionID = strings.TrimPrefix(rest[i], "--session=")
		default:
			return fmt.Errorf("unknown argument: %s", rest[i])
		}
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

	learnings, err := loadLearnings(s, sessionID)
	if err != nil {
		return err
	}
	if len(learnings) == 0 {
		return fmt.Errorf("no learnings to export; run `recall harvest` first")
	}

	md := harvest.RenderMarkdown(learnings)
	if outPath == "" {
		fmt.Print(md)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	fmt.Printf("Exported %d learning(s) to %s\n", len(learnings), outPath)
	return nil
}

// loadLearnings decodes stored learnings, optionally filtered to one session.
// Rows whose payload no longer decodes are reported to stderr and skipped.
func loadLearnings(s store.Store, sessionID string) ([]*harvest.Learning, error) {
	rows, err := s.ListLearnings(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing learnings: %w", err)
	}

	out := make([]*harvest.Learning, 0, len(rows))
	for _, row := range rows {
		if sessionID != "" && row.SessionID != sessionID {
			continue
		}
		l, err := harvest.Decode(row)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping learning for %s: %v\n", row.SessionID, err)
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
