package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SurvivesReopen(t *testing.T) {
	// given
	dir := t.TempDir()
	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(context.Background(), "user_favorites", `[{"id":7}]`))

	// when
	second, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.Get(context.Background(), "user_favorites")

	// then
	require.NoError(t, err)
	assert.Equal(t, `[{"id":7}]`, got)
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, store.Set(context.Background(), "user_cart", v))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "user_cart"+fileSuffix, entries[0].Name())
}

func TestFileStore_EscapesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "../outside", "x"))

	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "outside"+fileSuffix))
	assert.ErrorIs(t, err, os.ErrNotExist)
	got, err := store.Get(context.Background(), "../outside")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	_, err := NewFileStore("")
	require.Error(t, err)
}

func TestFileStore_CanceledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Set(ctx, "k", "v"), context.Canceled)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
