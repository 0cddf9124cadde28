package localstate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "0xAbC", KeyUsername)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "0xAbC", KeyUsername, "alice.letspay.eth"))

	// Account keys are case-insensitive.
	got, ok, err := store.Get(ctx, "0xabc", KeyUsername)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice.letspay.eth", got)
}

func TestClearAccountRemovesEveryFactTogether(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "0xabc", KeyConnected, "1"))
	require.NoError(t, store.Set(ctx, "0xabc", KeyVerified, "1"))
	require.NoError(t, store.Set(ctx, "0xabc", KeyUsername, "alice.letspay.eth"))
	require.NoError(t, store.Set(ctx, "0xdef", KeyConnected, "1"))

	require.NoError(t, store.ClearAccount(ctx, "0xABC"))

	for _, key := range []string{KeyConnected, KeyVerified, KeyUsername} {
		_, ok, err := store.Get(ctx, "0xabc", key)
		require.NoError(t, err)
		assert.False(t, ok, "key %s survived clear", key)
	}

	// Other accounts are untouched.
	_, ok, err := store.Get(ctx, "0xdef", KeyConnected)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "0xabc", KeyUsername, "alice.letspay.eth"))

	_, err = os.Stat(path)
	require.NoError(t, err, "expected file on disk")

	store2, err := NewFileStore(path)
	require.NoError(t, err)

	got, ok, err := store2.Get(ctx, "0xabc", KeyUsername)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice.letspay.eth", got)
}

func TestFileStoreClearPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "0xabc", KeyVerified, "1"))
	require.NoError(t, store.ClearAccount(ctx, "0xabc"))

	store2, err := NewFileStore(path)
	require.NoError(t, err)
	_, ok, err := store2.Get(ctx, "0xabc", KeyVerified)
	require.NoError(t, err)
	assert.False(t, ok)
}
