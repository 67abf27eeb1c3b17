package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumapics/gallery-backend/internal/logger"
)

// FileStore persists each cache key as one JSON file in a directory. Writes
// stage the full envelope in a temp file and rename it over the final path,
// so readers never see a torn write.
type FileStore struct {
	dir    string
	writes *keyedMutex
}

// NewFileStore creates the cache directory if needed and returns a store
// backed by it
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		writes: newKeyedMutex(),
	}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, SanitizeKey(key)+".json")
}

// Get reads the envelope stored under key. Missing file, unreadable JSON and
// stale format versions all count as a miss.
func (s *FileStore) Get(ctx context.Context, key string) (*Envelope, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.WarnCtx(ctx, "corrupt cache file, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, nil
	}

	if env.FormatVersion != FormatVersion {
		logger.InfoCtx(ctx, "cache format version mismatch, treating as miss",
			zap.String("key", key),
			zap.Int("stored", env.FormatVersion),
			zap.Int("expected", FormatVersion))
		return nil, nil
	}

	return &env, nil
}

// Set atomically replaces the value under key via write-temp-then-rename
func (s *FileStore) Set(ctx context.Context, key string, data interface{}, timestamp time.Time) error {
	raw, err := encode(data, timestamp)
	if err != nil {
		return fmt.Errorf("failed to serialize cache envelope: %w", err)
	}

	unlock := s.writes.Lock(key)
	defer unlock()

	target := s.path(key)
	tmp := target + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to stage cache file: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit cache file: %w", err)
	}

	return nil
}

// Delete removes the file under key
func (s *FileStore) Delete(ctx context.Context, key string) error {
	unlock := s.writes.Lock(key)
	defer unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Exists reports whether a file is stored under key
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := os.Stat(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat cache file: %w", err)
	}
	return true, nil
}
