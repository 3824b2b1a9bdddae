package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(dir, "abc"+Extension), store.PathFor("abc"))
}

func TestSaveKeepsNewestFirstAndReplaces(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	later := time.Now()
	earlier := later.Add(-time.Hour)

	require.NoError(t, store.Save(Metadata{ID: "b-old", StartTime: earlier, Frames: 1}))
	require.NoError(t, store.Save(Metadata{ID: "a-new", StartTime: later, Frames: 2}))

	all, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a-new", all[0].ID)

	require.NoError(t, store.Save(Metadata{ID: "b-old", StartTime: earlier, Frames: 10}))
	all, err = store.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(10), all[1].Frames)
}

func TestGetAcceptsUniquePrefix(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(Metadata{ID: "1234-aaaa"}))
	require.NoError(t, store.Save(Metadata{ID: "1299-bbbb"}))

	m, err := store.Get("1234")
	require.NoError(t, err)
	assert.Equal(t, "1234-aaaa", m.ID)

	_, err = store.Get("12")
	assert.Error(t, err)
	_, err = store.Get("zz")
	assert.Error(t, err)
}

func TestDeleteRemovesFileAndEntry(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	path := store.PathFor("gone")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, store.Save(Metadata{ID: "gone", RecordingPath: path}))

	files, err := store.Scan()
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)

	require.NoError(t, store.Delete("gone"))
	assert.NoFileExists(t, path)
	all, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}
