package storage

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutHashesContent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBlobStore(dir)
	require.NoError(t, err)

	info, err := store.Put(bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", info.SHA256)
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", info.SHA1)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", info.MD5)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "ba/ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", info.Path)
	assert.False(t, info.Existed)

	file, err := store.Open(info.Path)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Equal(t, "abc", string(data))
}

func TestBlobStorePutIsContentAddressed(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBlobStore(dir)
	require.NoError(t, err)

	first, err := store.Put(bytes.NewReader([]byte("same bytes")))
	require.NoError(t, err)
	second, err := store.Put(bytes.NewReader([]byte("same bytes")))
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)
	assert.True(t, second.Existed)

	leftovers, err := os.ReadDir(filepath.Join(dir, tempDirName))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestBlobStoreOpenMissing(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(BlobPath("ffff"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
