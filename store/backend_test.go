package store_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/chunkrestore/chunkid"
	"github.com/grailbio/chunkrestore/errors"
	"github.com/grailbio/chunkrestore/store"
	"github.com/stretchr/testify/require"
)

const testChunkSize = 64 * 1024

func writeStoreTag(t *testing.T, dir, tag string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "chunks"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunks", "store"), []byte(tag), 0644))
}

func TestOpenBackendRequiresStoreFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "chunks"), 0755))
	_, err := store.OpenBackend(dir, testChunkSize)
	require.Error(t, err)
}

func TestOpenBackendRejectsWrongVersion(t *testing.T) {
	dir := t.TempDir()
	writeStoreTag(t, dir, "v1")
	_, err := store.OpenBackend(dir, testChunkSize)
	require.Error(t, err)
	require.True(t, errors.Is(errors.VersionTag, err))
}

func TestOpenBackendAcceptsV2(t *testing.T) {
	dir := t.TempDir()
	writeStoreTag(t, dir, "v2\n")
	_, err := store.OpenBackend(dir, testChunkSize)
	require.NoError(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeStoreTag(t, dir, "v2")
	be, err := store.OpenBackend(dir, testChunkSize)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(2))
	data := make([]byte, testChunkSize)
	r.Read(data)

	id, err := chunkid.Parse("4db6e194fd398e8edb76e11054d73eb0")
	require.NoError(t, err)
	require.NoError(t, be.Save(id, data))

	got, err := be.Load(id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestLoadMissingChunk(t *testing.T) {
	dir := t.TempDir()
	writeStoreTag(t, dir, "v2")
	be, err := store.OpenBackend(dir, testChunkSize)
	require.NoError(t, err)

	id, err := chunkid.Parse("00000000000000000000000000000001")
	require.NoError(t, err)
	_, err = be.Load(id)
	require.Error(t, err)
}

func TestLoadCorruptedChunkFailsLzoNotMagic(t *testing.T) {
	dir := t.TempDir()
	writeStoreTag(t, dir, "v2")
	be, err := store.OpenBackend(dir, testChunkSize)
	require.NoError(t, err)

	id, err := chunkid.Parse("4db6e194fd398e8edb76e11054d73eb0")
	require.NoError(t, err)
	data := make([]byte, testChunkSize)
	require.NoError(t, be.Save(id, data))

	// Truncate the chunk file but keep its 5-byte magic header intact, so
	// the failure must surface as Lzo, not Magic.
	require.NoError(t, os.Truncate(be.Path(id), 7))

	_, err = be.Load(id)
	require.Error(t, err)
	require.True(t, errors.Is(errors.Lzo, err))
}
