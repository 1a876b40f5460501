package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// FileStore writes documents into a directory, replacing earlier ones.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "data"
	}
	return &FileStore{dir: dir}
}

func (s *FileStore) Save(_ context.Context, name string, doc []byte) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	tmp := filepath.Join(s.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return path.Join("/", filepath.Base(s.dir), name), nil
}

func (s *FileStore) Close() error { return nil }
