package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/noahxzhu/redmine-notify/internal/apperr"
)

// FileStore keeps the watermark as the bare token in a text file.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

func (s *FileStore) Read(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, apperr.Persistence("read", fmt.Errorf("failed to read file: %w", err))
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// Write replaces the file through a rename so a reader never sees half a token.
func (s *FileStore) Write(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Persistence("write", fmt.Errorf("failed to create storage directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return apperr.Persistence("write", fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(token); err != nil {
		_ = tmp.Close()
		cleanup()
		return apperr.Persistence("write", fmt.Errorf("failed to write file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return apperr.Persistence("write", fmt.Errorf("failed to sync file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return apperr.Persistence("write", fmt.Errorf("failed to close file: %w", err))
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return apperr.Persistence("write", fmt.Errorf("failed to chmod file: %w", err))
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		cleanup()
		return apperr.Persistence("write", fmt.Errorf("failed to replace file: %w", err))
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
