package services

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// multipartFile builds a real multipart part the way an HTTP upload would.
func multipartFile(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("files", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["files"][0]
}

func newTestFileService(t *testing.T) (*FileService, int64) {
	t.Helper()

	db := newTestDB(t)
	store := newTestStore(t)
	svc := NewFileService(db, store, newTestConfig(t))
	owner := createTestUser(t, db)
	return svc, owner.ID
}

func TestUploadFile(t *testing.T) {
	svc, ownerID := newTestFileService(t)
	ctx := context.Background()

	content := []byte("<html><body>hello</body></html>")
	file, err := svc.Upload(ctx, ownerID, multipartFile(t, "page.html", content))
	require.NoError(t, err)

	assert.Len(t, file.ID, 22)
	assert.Equal(t, "page.html", file.OriginalFilename)
	assert.Equal(t, int64(len(content)), file.FileSize)
	// Content type comes from sniffing the bytes, not the client header.
	assert.Equal(t, "text/html", file.ContentType)

	blob, err := svc.OpenBlob(file.StorageKey)
	require.NoError(t, err)
	defer blob.Close()
	got, err := io.ReadAll(blob)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUploadEmptyFile(t *testing.T) {
	svc, ownerID := newTestFileService(t)

	file, err := svc.Upload(context.Background(), ownerID, multipartFile(t, "empty.bin", nil))
	require.NoError(t, err)
	assert.Equal(t, int64(0), file.FileSize)
}

func TestUploadTooLarge(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig(t)
	cfg.Upload.MaxSize = 4
	svc := NewFileService(db, newTestStore(t), cfg)
	owner := createTestUser(t, db)

	_, err := svc.Upload(context.Background(), owner.ID, multipartFile(t, "big.bin", []byte("too big")))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUploadStripsPathComponents(t *testing.T) {
	svc, ownerID := newTestFileService(t)

	file, err := svc.Upload(context.Background(), ownerID, multipartFile(t, `..\evil\..\..\passwd`, []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, "passwd", file.OriginalFilename)
}

func TestDeleteFile(t *testing.T) {
	svc, ownerID := newTestFileService(t)
	ctx := context.Background()

	file, err := svc.Upload(ctx, ownerID, multipartFile(t, "a.txt", []byte("aaa")))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, ownerID, file.ID))

	files, err := svc.List(ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = svc.OpenBlob(file.StorageKey)
	assert.Error(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, ownerID, file.ID), ErrFileNotFound)
}

func TestDeleteFileWrongOwner(t *testing.T) {
	db := newTestDB(t)
	svc := NewFileService(db, newTestStore(t), newTestConfig(t))
	owner := createTestUser(t, db)
	stranger := createTestUser(t, db)
	ctx := context.Background()

	file, err := svc.Upload(ctx, owner.ID, multipartFile(t, "a.txt", []byte("aaa")))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, stranger.ID, file.ID), ErrFileNotFound)
}

func TestDeleteAllFiles(t *testing.T) {
	svc, ownerID := newTestFileService(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := svc.Upload(ctx, ownerID, multipartFile(t, name, []byte(name)))
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteAll(ctx, ownerID))

	files, err := svc.List(ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListFilesNewestFirst(t *testing.T) {
	svc, ownerID := newTestFileService(t)
	ctx := context.Background()

	first, err := svc.Upload(ctx, ownerID, multipartFile(t, "old.txt", []byte("1")))
	require.NoError(t, err)
	second, err := svc.Upload(ctx, ownerID, multipartFile(t, "new.txt", []byte("2")))
	require.NoError(t, err)

	files, err := svc.List(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	if files[0].UploadedAt.After(files[1].UploadedAt) {
		assert.Equal(t, second.ID, files[0].ID)
		assert.Equal(t, first.ID, files[1].ID)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain.txt", "plain.txt"},
		{"/etc/passwd", "passwd"},
		{`C:\Users\x\doc.pdf`, "doc.pdf"},
		{"..", "file"},
		{"", "file"},
		{"with\x00null.txt", "withnull.txt"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), "input %q", tt.in)
	}
}
