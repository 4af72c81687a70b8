package services

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaUnAkKS/fileshare/internal/models"
	"github.com/RaUnAkKS/fileshare/internal/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func storeBlob(t *testing.T, store storage.Store, name, content string) models.File {
	t.Helper()
	key, size, err := store.Save(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	return models.File{
		ID:               name,
		OriginalFilename: name,
		FileSize:         size,
		StorageKey:       key,
		UploadedAt:       time.Now(),
	}
}

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(content)
	}
	return out
}

func TestWriteBundle(t *testing.T) {
	store := newTestStore(t)
	builder := NewBundleBuilder(store)

	files := []models.File{
		storeBlob(t, store, "notes.txt", "first"),
		storeBlob(t, store, "photo.jpg", "second"),
	}

	var buf bytes.Buffer
	require.NoError(t, builder.WriteBundle(context.Background(), &buf, files))

	entries := readArchive(t, buf.Bytes())
	assert.Equal(t, map[string]string{
		"notes.txt": "first",
		"photo.jpg": "second",
	}, entries)
}

func TestWriteBundleDeterministic(t *testing.T) {
	store := newTestStore(t)
	builder := NewBundleBuilder(store)

	files := []models.File{
		storeBlob(t, store, "a.txt", "aaa"),
		storeBlob(t, store, "b.txt", "bbb"),
	}

	var first, second bytes.Buffer
	require.NoError(t, builder.WriteBundle(context.Background(), &first, files))
	require.NoError(t, builder.WriteBundle(context.Background(), &second, files))

	// Same file set, same bytes. Entry timestamps are pinned so reruns do
	// not smuggle wall-clock time into the archive.
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestWriteBundleNameCollisions(t *testing.T) {
	store := newTestStore(t)
	builder := NewBundleBuilder(store)

	files := []models.File{
		storeBlob(t, store, "report.pdf", "one"),
		storeBlob(t, store, "report.pdf", "two"),
		storeBlob(t, store, "report.pdf", "three"),
		storeBlob(t, store, "README", "plain"),
		storeBlob(t, store, "README", "again"),
	}

	var buf bytes.Buffer
	require.NoError(t, builder.WriteBundle(context.Background(), &buf, files))

	entries := readArchive(t, buf.Bytes())
	assert.Equal(t, map[string]string{
		"report.pdf":     "one",
		"report (1).pdf": "two",
		"report (2).pdf": "three",
		"README":         "plain",
		"README (1)":     "again",
	}, entries)
}

func TestWriteBundleSuffixCollidesWithRealName(t *testing.T) {
	store := newTestStore(t)
	builder := NewBundleBuilder(store)

	// The renamed duplicate must not land on the real "report (1).pdf";
	// otherwise one of the two silently shadows the other on extraction.
	files := []models.File{
		storeBlob(t, store, "report.pdf", "one"),
		storeBlob(t, store, "report (1).pdf", "real"),
		storeBlob(t, store, "report.pdf", "two"),
	}

	var buf bytes.Buffer
	require.NoError(t, builder.WriteBundle(context.Background(), &buf, files))

	entries := readArchive(t, buf.Bytes())
	assert.Equal(t, map[string]string{
		"report.pdf":     "one",
		"report (1).pdf": "real",
		"report (2).pdf": "two",
	}, entries)
}

func TestWriteBundleSuffixCollisionReversed(t *testing.T) {
	store := newTestStore(t)
	builder := NewBundleBuilder(store)

	files := []models.File{
		storeBlob(t, store, "report (1).pdf", "real"),
		storeBlob(t, store, "report.pdf", "one"),
		storeBlob(t, store, "report.pdf", "two"),
	}

	var buf bytes.Buffer
	require.NoError(t, builder.WriteBundle(context.Background(), &buf, files))

	entries := readArchive(t, buf.Bytes())
	assert.Equal(t, map[string]string{
		"report (1).pdf": "real",
		"report.pdf":     "one",
		"report (2).pdf": "two",
	}, entries)
}

func TestWriteBundleEmpty(t *testing.T) {
	builder := NewBundleBuilder(newTestStore(t))

	var buf bytes.Buffer
	require.NoError(t, builder.WriteBundle(context.Background(), &buf, nil))

	entries := readArchive(t, buf.Bytes())
	assert.Empty(t, entries)
}

func TestWriteBundleMissingBlob(t *testing.T) {
	store := newTestStore(t)
	builder := NewBundleBuilder(store)

	files := []models.File{
		storeBlob(t, store, "a.txt", "exists"),
		{OriginalFilename: "gone.txt", StorageKey: "00-no-such-blob"},
	}

	var buf bytes.Buffer
	err := builder.WriteBundle(context.Background(), &buf, files)
	assert.Error(t, err)
}

func TestWriteBundleCancelled(t *testing.T) {
	store := newTestStore(t)
	builder := NewBundleBuilder(store)

	files := []models.File{storeBlob(t, store, "a.txt", "aaa")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := builder.WriteBundle(ctx, &buf, files)
	assert.ErrorIs(t, err, context.Canceled)
}
