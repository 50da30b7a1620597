package prefstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var validKey = regexp.MustCompile(`^[a-z0-9_]+$`)

// FileStore keeps one <key>.json file per key in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates dir when needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create preferences directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid preference key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Load reads the blob stored under key
func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return data, nil
}

// Save writes the blob atomically through a temp file and a rename
func (s *FileStore) Save(_ context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace preference %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	return nil
}

// Close is a no-op
func (s *FileStore) Close(context.Context) error {
	return nil
}
