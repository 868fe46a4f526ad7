package staging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutStagesFileWithOriginalExtension(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	handle, err := store.Put("vacation.jpg", []byte("fake image data"))
	require.NoError(t, err)

	assert.Equal(t, ".jpg", filepath.Ext(handle.Path()))
	assert.Equal(t, int64(15), handle.Size())
	assert.False(t, handle.Released())

	data, err := os.ReadFile(handle.Path())
	require.NoError(t, err)
	assert.Equal(t, "fake image data", string(data))
}

func TestPutGeneratesUniquePaths(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	a, err := store.Put("same.jpg", []byte("file a"))
	require.NoError(t, err)
	b, err := store.Put("same.jpg", []byte("file b"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Path(), b.Path())
}

func TestPutStream(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	handle, err := store.PutStream("streamed.png", strings.NewReader("streamed content"))
	require.NoError(t, err)

	assert.Equal(t, int64(16), handle.Size())
	data, err := os.ReadFile(handle.Path())
	require.NoError(t, err)
	assert.Equal(t, "streamed content", string(data))
}

func TestReleaseRemovesFileExactlyOnce(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	handle, err := store.Put("gone.jpg", []byte("short lived"))
	require.NoError(t, err)

	require.NoError(t, handle.Release())
	assert.True(t, handle.Released())
	_, err = os.Stat(handle.Path())
	assert.True(t, os.IsNotExist(err))

	// Further releases are no-ops
	assert.NoError(t, handle.Release())
	assert.NoError(t, handle.Release())
}

func TestReleaseConcurrent(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	handle, err := store.Put("contended.jpg", []byte("short lived"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, handle.Release())
		}()
	}
	wg.Wait()

	assert.True(t, handle.Released())
}

func TestReleaseToleratesMissingFile(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	handle, err := store.Put("vanished.jpg", []byte("removed externally"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(handle.Path()))
	assert.NoError(t, handle.Release())
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "staging")
	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
