package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/purify/pkg/purify/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func writeAPK(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestPutGet(t *testing.T) {
	store := openTestStore(t)
	apk := writeAPK(t, "app.apk", []byte("apk bytes"))

	analysis := &types.Analysis{
		Package:     "com.example.app",
		VersionName: "1.0",
		Permissions: []string{"android.permission.INTERNET"},
		DexFiles:    2,
		CodeFiles:   1500,
	}

	require.NoError(t, store.Put(apk, analysis))

	got, err := store.Get(apk)
	require.NoError(t, err)
	assert.Equal(t, analysis, got)
}

func TestGet_Miss(t *testing.T) {
	store := openTestStore(t)
	apk := writeAPK(t, "app.apk", []byte("apk bytes"))

	_, err := store.Get(apk)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_MissingFile(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(filepath.Join(t.TempDir(), "ghost.apk"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

// Rewriting the file invalidates its key, so the old entry is unreachable.
func TestKey_ChangesWithContent(t *testing.T) {
	store := openTestStore(t)
	apk := writeAPK(t, "app.apk", []byte("original"))

	require.NoError(t, store.Put(apk, &types.Analysis{Package: "com.example.v1"}))

	require.NoError(t, os.WriteFile(apk, []byte("modified content"), 0o644))
	// Force a distinct mtime even on coarse-grained filesystems.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(apk, future, future))

	_, err := store.Get(apk)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)
	apk := writeAPK(t, "app.apk", []byte("apk bytes"))

	require.NoError(t, store.Put(apk, &types.Analysis{Package: "com.example.app"}))
	require.NoError(t, store.Delete(apk))

	_, err := store.Get(apk)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	store, err := OpenWithTTL(filepath.Join(t.TempDir(), "cache"), 50*time.Millisecond)
	require.NoError(t, err)
	defer store.Close()

	apk := writeAPK(t, "app.apk", []byte("apk bytes"))
	require.NoError(t, store.Put(apk, &types.Analysis{Package: "com.example.app"}))

	time.Sleep(100 * time.Millisecond)

	_, err = store.Get(apk)
	assert.ErrorIs(t, err, ErrNotFound)
}
