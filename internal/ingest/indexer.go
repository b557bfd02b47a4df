// Package ingest turns session transcripts into embedded fragments in the
// store. Indexing is idempotent: a file whose size and mtime match its
// processed marker is skipped unless forced, and re-indexing a session
// replaces its fragment set atomically.
package ingest

import (
	"context"
	"fmt"

	"github.com/hurttlocker/recall/internal/embed"
	"github.com/hurttlocker/recall/internal/session"
	"github.com/hurttlocker/recall/internal/store"
)

// Options configures an indexing run.
type Options struct {
	Force      bool // re-index files whose processed marker still matches
	ChunkSize  int  // turns per fragment (default: session.DefaultChunkSize)
	Overlap    int  // shared turns between adjacent fragments
	ProgressFn func(done, total int, path string)
}

// FileError records a non-fatal per-file failure during indexing.
type FileError struct {
	Path    string
	Message string
}

// Result summarizes an indexing run.
type Result struct {
	FilesScanned   int
	FilesIndexed   int
	FilesSkipped   int
	FragmentsAdded int
	Errors         []FileError
}

// Indexer drives the transcript-to-fragment pipeline.
type Indexer struct {
	store    store.Store
	embedder embed.Embedder
}

func NewIndexer(s store.Store, e embed.Embedder) *Indexer {
	return &Indexer{store: s, embedder: e}
}

// IndexDir discovers transcripts under dir and indexes the new or changed
// ones, oldest first. A failure in one file is recorded and the run moves
// on; only discovery errors and cancellation abort the whole run.
func (ix *Indexer) IndexDir(ctx context.Context, dir string, opts Options) (*Result, error) {
	files, err := session.Discover(dir)
	if err != nil {
		return nil, fmt.Errorf("discovering sessions: %w", err)
	}

	result := &Result{}
	for i, f := range files {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		result.FilesScanned++

		if !opts.Force {
			processed, err := ix.store.IsProcessed(ctx, f.ID, f.Size, f.Mtime)
			if err != nil {
				return result, fmt.Errorf("checking processed marker for %s: %w", f.ID, err)
			}
			if processed {
				result.FilesSkipped++
				continue
			}
		}

		added, err := ix.IndexFile(ctx, f, opts)
		if err != nil {
			result.Errors = append(result.Errors, FileError{Path: f.Path, Message: err.Error()})
			continue
		}
		result.FilesIndexed++
		result.FragmentsAdded += added

		if opts.ProgressFn != nil {
			opts.ProgressFn(i+1, len(files), f.Path)
		}
	}
	return result, nil
}

// IndexFile parses, chunks, embeds, and stores one transcript, replacing any
// previous fragments for the session. A transcript that yields no chunks
// still gets its processed marker so it is not re-parsed every run.
func (ix *Indexer) IndexFile(ctx context.Context, f session.File, opts Options) (int, error) {
	messages, err := session.ParseFile(f.Path)
	if err != nil {
		return 0, err
	}
	turns := session.BuildTurns(messages)
	chunks := session.ChunkTurns(turns, opts.ChunkSize, opts.Overlap)

	fp := store.Fingerprint{FilePath: f.Path, FileSize: f.Size, FileMtime: f.Mtime}

	if len(chunks) == 0 {
		if err := ix.store.ReplaceFragments(ctx, f.ID, fp, nil); err != nil {
			return 0, fmt.Errorf("marking empty session: %w", err)
		}
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(chunks))
	}

	frags := make([]*store.Fragment, len(chunks))
	for i, c := range chunks {
		frags[i] = &store.Fragment{
			TurnStart: c.TurnStart,
			TurnEnd:   c.TurnEnd,
			Timestamp: c.Timestamp,
			Text:      c.Text,
			Embedding: vectors[i],
		}
	}

	if err := ix.store.ReplaceFragments(ctx, f.ID, fp, frags); err != nil {
		return 0, fmt.Errorf("storing fragments: %w", err)
	}
	return len(frags), nil
}
