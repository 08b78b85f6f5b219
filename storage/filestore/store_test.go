package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
)

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "rec-01_comments.json", []byte("[]")))
	data, err := store.Get(ctx, "rec-01_comments.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), data)

	require.NoError(t, store.Put(ctx, "rec-01_comments.json", []byte(`[[1,0,1,0,0,"a"]]`)))
	data, err = store.Get(ctx, "rec-01_comments.json")
	require.NoError(t, err)
	assert.Equal(t, `[[1,0,1,0,0,"a"]]`, string(data))

	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_GetMissing(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
	assert.True(t, errors.IsInvalid(err))
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"b_comments.json", "a_comments.json", "nested/a_comments.json"} {
		require.NoError(t, store.Put(ctx, key, []byte("[]")))
	}

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_comments.json", "b_comments.json", "nested/a_comments.json"}, keys)

	keys, err = store.List(ctx, "nested/")
	require.NoError(t, err)
	assert.Equal(t, []string{"nested/a_comments.json"}, keys)

	require.NoError(t, store.Delete(ctx, "a_comments.json"))
	require.NoError(t, store.Delete(ctx, "a_comments.json"))
	keys, err = store.List(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "root"))
	require.NoError(t, err)

	for _, key := range []string{"", "../outside.json", "/etc/passwd", "a/../../x"} {
		err := store.Put(context.Background(), key, []byte("x"))
		assert.True(t, errors.IsInvalid(err), "key %q", key)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.Put(ctx, "x.json", []byte("[]"))
	assert.True(t, errors.IsTransient(err))
}

func TestNew_EmptyDir(t *testing.T) {
	_, err := New("")
	assert.True(t, errors.IsInvalid(err))
}
