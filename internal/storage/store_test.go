package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahxzhu/redmine-notify/internal/apperr"
)

const sampleToken = "2024-01-02T03:04:05.000000+0900"

func openStores(t *testing.T) map[string]WatermarkStore {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	file, err := Open(ctx, DriverFile, filepath.Join(dir, "since_db.txt"))
	require.NoError(t, err)
	sqlite, err := Open(ctx, DriverSQLite, filepath.Join(dir, "state", "since.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = file.Close()
		_ = sqlite.Close()
	})
	return map[string]WatermarkStore{DriverFile: file, DriverSQLite: sqlite}
}

func TestWatermarkAbsentOnFirstRun(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			token, ok, err := s.Read(context.Background())
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, token)
		})
	}
}

func TestWatermarkRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Write(ctx, sampleToken))

			token, ok, err := s.Read(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, sampleToken, token)
		})
	}
}

func TestWatermarkLastWriteWins(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Write(ctx, "2024-01-03T00:00:00.000000+0900"))
			// Older value still replaces the newer one.
			require.NoError(t, s.Write(ctx, sampleToken))

			token, _, err := s.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, sampleToken, token)
		})
	}
}

func TestFileStoreWritesBareToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "since_db.txt")
	s := NewFileStore(path)

	require.NoError(t, s.Write(context.Background(), sampleToken))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleToken, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFileStoreEmptyFileIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "since_db.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, ok, err := NewFileStore(path).Read(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreReadErrorIsPersistenceError(t *testing.T) {
	// A directory in place of the file makes ReadFile fail.
	dir := t.TempDir()

	_, _, err := NewFileStore(dir).Read(context.Background())
	require.Error(t, err)

	var pe *apperr.PersistenceError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "read", pe.Op)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "redis", "x")
	assert.Error(t, err)
}
