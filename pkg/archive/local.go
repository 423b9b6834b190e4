package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalArchiver writes archive artifacts under a root directory,
// mirroring the object key as a relative path. Meant for single-node
// deployments and tests.
type LocalArchiver struct {
	root string
}

// NewLocal creates a local archiver rooted at dir.
func NewLocal(dir string) (*LocalArchiver, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchiver{root: dir}, nil
}

// Store writes the artifact atomically: a temp file in the target
// directory renamed into place, so a crashed sweep never leaves a
// half-written artifact under the final name.
func (a *LocalArchiver) Store(_ context.Context, key string, data []byte) error {
	path := filepath.Join(a.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create archive subdirectory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*")
	if err != nil {
		return fmt.Errorf("failed to create temp archive file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write archive artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to finalize archive artifact: %w", err)
	}
	return nil
}
