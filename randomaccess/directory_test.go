package randomaccess_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/chunkrestore/errors"
	"github.com/grailbio/chunkrestore/randomaccess"
	"github.com/stretchr/testify/require"
)

func TestDirectoryInitEnumeratesRevisions(t *testing.T) {
	dir := newFixture(t, 1, map[int64]string{})
	// Add a second revision sharing the same chunks directory.
	raw, err := os.ReadFile(filepath.Join(dir, "rev0"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rev1"), raw, 0644))
	raw, err = os.ReadFile(filepath.Join(dir, "rev0.rev"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rev1.rev"), raw, 0644))

	d, err := randomaccess.Init(dir, testChunkSize, testChunkSize)
	require.NoError(t, err)

	ids := d.Identifiers()
	require.Len(t, ids, 2)

	for _, id := range ids {
		_, ok := d.Lookup(id)
		require.True(t, ok)
	}
	_, ok := d.LookupRevision("rev0")
	require.True(t, ok)
	_, ok = d.LookupRevision("rev1")
	require.True(t, ok)
}

func TestDirectoryIdentifiersStartAboveReserved(t *testing.T) {
	dir := newFixture(t, 1, map[int64]string{})
	d, err := randomaccess.Init(dir, testChunkSize, testChunkSize)
	require.NoError(t, err)

	for _, id := range d.Identifiers() {
		require.GreaterOrEqual(t, id, uint64(4))
	}
}

func TestDirectoryInitFailsWithNoRevisions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "chunks"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunks", "store"), []byte("v2"), 0644))

	_, err := randomaccess.Init(dir, testChunkSize, testChunkSize)
	require.Error(t, err)
	require.True(t, errors.Is(errors.NoRevisions, err))
}

func TestDirectoryInitFailsWithoutChunksDir(t *testing.T) {
	dir := t.TempDir()
	_, err := randomaccess.Init(dir, testChunkSize, testChunkSize)
	require.Error(t, err)
	require.True(t, errors.Is(errors.NoRevisions, err))
}

func TestDirectoryClose(t *testing.T) {
	dir := newFixture(t, 1, map[int64]string{})
	d, err := randomaccess.Init(dir, testChunkSize, testChunkSize)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}
