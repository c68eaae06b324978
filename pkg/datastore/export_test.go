package datastore

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImport_RoundTripsBlobsAndMetadata(t *testing.T) {
	src, err := Open(filepath.Join(t.TempDir(), "src.ds"), Options{StoreBlobs: true})
	require.NoError(t, err)

	blobID, err := src.BlobStore.Store([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, src.Close())

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))

	dst, err := Import(filepath.Join(t.TempDir(), "dst.ds"), &buf, Options{StoreBlobs: true})
	require.NoError(t, err)
	defer dst.Close()

	assert.True(t, dst.BlobStore.Exists(blobID))
	content, err := dst.BlobStore.Get(blobID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), content)

	assert.FileExists(t, filepath.Join(dst.Path, ".gitignore"))
	assert.FileExists(t, filepath.Join(dst.Path, "datastore.db"))
}

func TestExport_SkipsMissingBlobsDirectory(t *testing.T) {
	src, err := Open(filepath.Join(t.TempDir(), "src.ds"), Options{StoreBlobs: false})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))
	assert.NotEmpty(t, buf.Bytes())
}

func TestImport_RejectsPathEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	writeTarEntry(t, &buf, "../escape.txt", []byte("evil"))

	_, err := Import(filepath.Join(t.TempDir(), "dst.ds"), &buf, Options{})
	assert.Error(t, err)
}

// writeTarEntry builds a minimal single-entry gzipped tar stream for
// testing Import's path traversal guard.
func writeTarEntry(t *testing.T, buf *bytes.Buffer, name string, content []byte) {
	t.Helper()

	gz := gzip.NewWriter(buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(content)),
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}
