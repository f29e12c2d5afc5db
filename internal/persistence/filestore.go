package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON file per key under a directory. It mirrors the
// single-slot, origin-scoped storage the checkout UI uses in the browser:
// last writer wins, no locking, a few KB per slot.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted in
// it.
func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("persistence: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Put implements Store. The write goes through a temp file and rename so a
// crash never leaves a truncated snapshot behind.
func (s *FileStore) Put(_ context.Context, key string, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persistence: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persistence: commit snapshot: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) (Snapshot, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("persistence: read snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		// A malformed file is as good as absent.
		return Snapshot{}, ErrNotFound
	}
	return snapshot, nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("persistence: delete snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
