package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorePutAndRemove(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskStore(dir, "http://localhost:8480/")

	path := "chat-images/user-alice/1750000000000.jpg"
	require.NoError(t, store.Put(path, []byte("jpeg-bytes")))

	data, err := os.ReadFile(filepath.Join(dir, "chat-images", "user-alice", "1750000000000.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	require.NoError(t, store.Remove(path))
	_, err = os.ReadFile(filepath.Join(dir, "chat-images", "user-alice", "1750000000000.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestDiskStoreRemoveMissingIsNoError(t *testing.T) {
	store := NewDiskStore(t.TempDir(), "http://localhost:8480")
	assert.NoError(t, store.Remove("chat-images/nope.jpg"))
}

func TestDiskStoreRejectsEscapingPaths(t *testing.T) {
	store := NewDiskStore(t.TempDir(), "http://localhost:8480")
	assert.Error(t, store.Put("../outside.jpg", []byte("x")))
	assert.Error(t, store.Put("a/../../outside.jpg", []byte("x")))
}

func TestDiskStorePublicURL(t *testing.T) {
	store := NewDiskStore(t.TempDir(), "http://localhost:8480/")
	assert.Equal(t,
		"http://localhost:8480/media/chat-images/u/1.jpg",
		store.PublicURL("chat-images/u/1.jpg"),
	)
}
