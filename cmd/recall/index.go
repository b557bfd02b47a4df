package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hurttlocker/recall/internal/ingest"
)

func runIndex(args []string) error {
	common, rest := parseCommon(args)

	opts := ingest.Options{}
	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--force" || rest[i] == "-f":
			opts.Force = true
		case rest[i] == "--chunk-size" && i+1 < len(rest):
			i++
			n, err := strconv.Atoi(rest[i])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid --chunk-size value: %s", rest[i])
			}
			opts.ChunkSize = n
		case strings.HasPrefix(rest[i], "--chunk-size="):
			n, err := strconv.Atoi(strings.TrimPrefix(rest[i], "--chunk-size="))
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid --chunk-size value: %s", rest[i])
			}
			opts.ChunkSize = n
		case rest[i] == "--overlap" && i+1 < len(rest):
			i++
			n, err := strconv.Atoi(rest[i])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid --overlap value: %s", rest[i])
			}
			opts.Overlap = n
		case strings.HasPrefix(rest[i], "--overlap="):
			n, err := strconv.Atoi(strings.TrimPrefix(rest[i], "--overlap="))
			if err != nil || n < 0 {
				return fmt.Errorf("invalid --overlap value: %s", rest[i])
			}
			opts.Overlap = n
		case strings.HasPrefix(rest[i], "-"):
			return fmt.Errorf("unknown flag: %s", rest[i])
		default:
			return fmt.Errorf("unexpected argument: %s", rest[i])
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

	embedder, err := buildEmbedder(rc)
	if err != nil {
		return fmt.Errorf("building embedder: %w", err)
	}

	fmt.Printf("Indexing sessions from %s...\n", dir)
	opts.ProgressFn = func(done, total int, path string) {
		fmt.Printf("  [%d/%d] %s\n", done, total, path)
	}

	result, err := ingest.NewIndexer(s, embedder).IndexDir(context.Background(), dir, opts)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Scanned %d files: %d indexed, %d unchanged, %d fragments added\n",
		result.FilesScanned, result.FilesIndexed, result.FilesSkipped, result.FragmentsAdded)
	for _, fe := range result.Errors {
		fmt.Fprintf(os.Stderr, "  failed: %s: %s\n", fe.Path, fe.Message)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d file(s) failed", len(result.Errors))
	}
	return nil
}
