package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type stagedFile struct {
	temp   string
	target string
}

// Batch stages output files next to their destinations and moves them into
// place together. Until Commit nothing is visible under the target names.
type Batch struct {
	files []stagedFile
	done  bool
}

// NewBatch creates an empty batch
func NewBatch() *Batch {
	return &Batch{}
}

// Stage reserves a temporary file for target and returns its path. The path
// keeps the target's extension so extension based writers still dispatch.
func (b *Batch) Stage(target string) (string, error) {
	if b.done {
		return "", fmt.Errorf("batch already finished")
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	ext := filepath.Ext(target)
	name := strings.TrimSuffix(filepath.Base(target), ext)
	f, err := os.CreateTemp(dir, "."+name+".*.staged"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", filepath.Base(target), err)
	}
	f.Close()
	b.files = append(b.files, stagedFile{temp: f.Name(), target: target})
	return f.Name(), nil
}

// Len returns the number of staged files
func (b *Batch) Len() int {
	return len(b.files)
}

// Commit renames every staged file onto its target. If a rename fails the
// targets already moved by this batch are removed along with the rest.
func (b *Batch) Commit() error {
	if b.done {
		return fmt.Errorf("batch already finished")
	}
	b.done = true
	for i, f := range b.files {
		if err := os.Rename(f.temp, f.target); err != nil {
			for _, moved := range b.files[:i] {
				os.Remove(moved.target)
			}
			for _, rest := range b.files[i:] {
				os.Remove(rest.temp)
			}
			return fmt.Errorf("failed to move %s into place: %w", filepath.Base(f.target), err)
		}
	}
	slog.Debug("Committed output batch", slog.Int("files", len(b.files)))
	return nil
}

// Abort removes every staged file. It is a no-op after Commit.
func (b *Batch) Abort() {
	if b.done {
		return
	}
	b.done = true
	for _, f := range b.files {
		os.Remove(f.temp)
	}
}
