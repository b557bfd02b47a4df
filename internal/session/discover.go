package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is a discovered session transcript on disk.
type File struct {
	Path  string
	ID    string // file name without extension
	Size  int64
	Mtime int64 // unix seconds
}

// Discover lists *.jsonl transcripts under dir (recursively), oldest first.
// Files marked deleted (*.deleted) are skipped.
func Discover(dir string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".deleted") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, File{
			Path:  path,
			ID:    strings.TrimSuffix(name, ".jsonl"),
			Size:  info.Size(),
			Mtime: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering sessions in %s: %w", dir, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Mtime < files[j].Mtime })
	return files, nil
}

// Find locates a session file by id under dir.
func Find(dir, id string) (File, error) {
	files, err := Discover(dir)
	if err != nil {
		return File{}, err
	}
	for _, f := range files {
		if f.ID == id {
			return f, nil
		}
	}
	return File{}, fmt.Errorf("session %s not found under %s", id, dir)
}
