package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumapics/gallery-backend/internal/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type samplePayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(ctx, "assets", samplePayload{Name: "a", Count: 3}, ts))

	env, err := store.Get(ctx, "assets")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.True(t, env.Timestamp.Equal(ts))
	assert.Equal(t, FormatVersion, env.FormatVersion)

	var got samplePayload
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, samplePayload{Name: "a", Count: 3}, got)
}

func TestFileStoreGetMissingKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	env, err := store.Get(context.Background(), "never-written")
	assert.NoError(t, err)
	assert.Nil(t, env)
}

func TestFileStoreGetCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets.json"), []byte("{not json"), 0o644))

	env, err := store.Get(context.Background(), "assets")
	assert.NoError(t, err, "corruption is a miss, not an error")
	assert.Nil(t, env)
}

func TestFileStoreGetFormatVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	stale, err := json.Marshal(Envelope{
		Data:          json.RawMessage(`{"name":"old"}`),
		Timestamp:     time.Now(),
		FormatVersion: FormatVersion - 1,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets.json"), stale, 0o644))

	env, err := store.Get(context.Background(), "assets")
	assert.NoError(t, err)
	assert.Nil(t, env, "old format version is a total miss")
}

func TestFileStoreOverwriteReplacesValue(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "assets", samplePayload{Name: "first"}, time.Now()))
	require.NoError(t, store.Set(ctx, "assets", samplePayload{Name: "second"}, time.Now()))

	env, err := store.Get(ctx, "assets")
	require.NoError(t, err)
	require.NotNil(t, env)

	var got samplePayload
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, "second", got.Name)
}

func TestFileStoreDeleteAndExists(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	exists, err := store.Exists(ctx, "assets")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Set(ctx, "assets", samplePayload{}, time.Now()))

	exists, err = store.Exists(ctx, "assets")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "assets"))

	exists, err = store.Exists(ctx, "assets")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, store.Delete(ctx, "assets"), "deleting a missing key is not an error")
}

func TestFileStoreSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "weird/../key name", samplePayload{Name: "safe"}, time.Now()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "weird-..-key-name.json", entries[0].Name())

	env, err := store.Get(ctx, "weird/../key name")
	require.NoError(t, err)
	require.NotNil(t, env)
}

func TestFileStoreConcurrentSameKeyWrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, store.Set(ctx, "assets", samplePayload{Name: fmt.Sprintf("writer-%d", n), Count: n}, time.Now()))
		}(i)
	}
	wg.Wait()

	// Whatever writer won, the stored envelope must be complete and decodable.
	env, err := store.Get(ctx, "assets")
	require.NoError(t, err)
	require.NotNil(t, env)

	var got samplePayload
	require.NoError(t, env.Decode(&got))
	assert.Contains(t, got.Name, "writer-")
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"assets", "assets"},
		{"metadata-overrides", "metadata-overrides"},
		{"a/b\\c:d", "a-b-c-d"},
		{"with space", "with-space"},
		{"dots.and_underscores", "dots.and_underscores"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, SanitizeKey(tt.input))
	}
}
