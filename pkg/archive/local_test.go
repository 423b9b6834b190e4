package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalArchiver_Store(t *testing.T) {
	dir := t.TempDir()
	archiver, err := NewLocal(dir)
	require.NoError(t, err)

	key := "audit/2026/07/audit-2026-07-15T03-00-00Z.json"
	data := []byte(`[{"id":"abc"}]`)
	require.NoError(t, archiver.Store(context.Background(), key, data))

	written, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, data, written)

	// No temp file debris left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "audit", "2026", "07"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalArchiver_StoreOverwrites(t *testing.T) {
	archiver, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "audit/2026/07/sweep.json"
	require.NoError(t, archiver.Store(ctx, key, []byte("first")))
	require.NoError(t, archiver.Store(ctx, key, []byte("second")))

	written, err := os.ReadFile(filepath.Join(archiver.root, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), written)
}

func TestNewLocalRequiresDir(t *testing.T) {
	_, err := NewLocal("")
	assert.Error(t, err)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "tape"})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	now := time.Date(2026, 7, 15, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "audit/2026/07/audit-2026-07-15T03-00-00Z.json", Key(now))
}
