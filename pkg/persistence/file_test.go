package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suhana-ai/appsecurity"
)

func TestFileStore_LoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))

	keys, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, keys)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	store := NewFileStore(path)
	ctx := context.Background()

	keys := []appsecurity.StoredKey{
		{Key: "bmV3ZXN0", Timestamp: "2026-02-01T00:00:00Z"},
		{Key: "b2xkZXN0", Timestamp: "2026-01-01T00:00:00Z"},
	}

	require.NoError(t, store.Store(ctx, keys))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys, loaded)
}

func TestFileStore_StoreCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "keys.json")
	store := NewFileStore(path)

	require.NoError(t, store.Store(context.Background(), []appsecurity.StoredKey{{Key: "AAAA", Timestamp: "2026-01-01T00:00:00Z"}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_StoreReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, []appsecurity.StoredKey{{Key: "b25l", Timestamp: "2026-01-01T00:00:00Z"}}))

	replacement := []appsecurity.StoredKey{
		{Key: "dHdv", Timestamp: "2026-02-01T00:00:00Z"},
		{Key: "b25l", Timestamp: "2026-01-01T00:00:00Z"},
	}
	require.NoError(t, store.Store(ctx, replacement))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, replacement, loaded)
}

func TestFileStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStore_SaltRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	store := NewFileStore(path)
	ctx := context.Background()

	// No salt stored yet.
	salt, err := store.LoadSalt(ctx)
	require.NoError(t, err)
	assert.Nil(t, salt)

	want := []byte("sixteen-byte-slt")
	require.NoError(t, store.StoreSalt(ctx, want))

	got, err := store.LoadSalt(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The salt lives beside the key store, not inside it.
	_, err = os.Stat(path + SaltFileSuffix)
	assert.NoError(t, err)
}

func TestKeyStoreFuncs(t *testing.T) {
	ctx := context.Background()

	var stored []appsecurity.StoredKey

	store := KeyStoreFuncs{
		LoaderFunc: func(context.Context) ([]appsecurity.StoredKey, error) {
			return stored, nil
		},
		StorerFunc: func(_ context.Context, keys []appsecurity.StoredKey) error {
			stored = keys
			return nil
		},
	}

	require.NoError(t, store.Store(ctx, []appsecurity.StoredKey{{Key: "AAAA", Timestamp: "2026-01-01T00:00:00Z"}}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}
