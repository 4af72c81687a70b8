package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/RaUnAkKS/fileshare/internal/config"
	"github.com/RaUnAkKS/fileshare/internal/database"
	"github.com/RaUnAkKS/fileshare/internal/models"
	"github.com/RaUnAkKS/fileshare/internal/storage"
)

// File service errors.
var (
	ErrFileNotFound = errors.New("file not found")
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")
)

// FileService manages the file registry and the blob store behind it.
type FileService struct {
	db    *database.DB
	blobs storage.Store
	cfg   *config.Config
}

// NewFileService creates a new file service.
func NewFileService(db *database.DB, blobs storage.Store, cfg *config.Config) *FileService {
	return &FileService{db: db, blobs: blobs, cfg: cfg}
}

// newID generates an opaque, non-enumerable identifier: 128 bits from
// crypto/rand, URL-safe base64 without padding.
func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Upload stores one uploaded part: bytes into the blob store, metadata into
// the registry. The content type is sniffed from the first bytes rather than
// trusted from the client header.
func (s *FileService) Upload(ctx context.Context, ownerID int64, fh *multipart.FileHeader) (*models.File, error) {
	if fh.Size > s.cfg.Upload.MaxSize {
		return nil, ErrFileTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := src.Read(head)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	contentType := http.DetectContentType(head[:n])
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}

	key, size, err := s.blobs.Save(ctx, io.MultiReader(bytes.NewReader(head[:n]), src))
	if err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}

	id, err := newID()
	if err != nil {
		s.blobs.Delete(key)
		return nil, err
	}

	file := &models.File{
		ID:               id,
		OwnerID:          ownerID,
		OriginalFilename: sanitizeFilename(fh.Filename),
		ContentType:      contentType,
		FileSize:         size,
		StorageKey:       key,
		UploadedAt:       time.Now().UTC(),
	}

	if err := s.db.CreateFile(ctx, file); err != nil {
		s.blobs.Delete(key)
		return nil, err
	}

	return file, nil
}

// List returns all files owned by a user, newest first.
func (s *FileService) List(ctx context.Context, ownerID int64) ([]models.File, error) {
	return s.db.ListFilesByOwner(ctx, ownerID)
}

// Delete removes a file's registry row and its blob.
func (s *FileService) Delete(ctx context.Context, ownerID int64, fileID string) error {
	key, err := s.db.DeleteFile(ctx, ownerID, fileID)
	if err != nil {
		return err
	}
	if key == "" {
		return ErrFileNotFound
	}

	if err := s.blobs.Delete(key); err != nil {
		// Registry row is gone; the orphaned blob is logged, not fatal.
		fmt.Printf("Warning: failed to delete blob %s: %v\n", key, err)
	}
	return nil
}

// DeleteAll removes every file owned by a user, registry and blobs.
func (s *FileService) DeleteAll(ctx context.Context, ownerID int64) error {
	keys, err := s.db.DeleteAllFiles(ctx, ownerID)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.blobs.Delete(key); err != nil {
			fmt.Printf("Warning: failed to delete blob %s: %v\n", key, err)
		}
	}
	return nil
}

// OpenBlob opens the raw bytes behind a storage key for reading.
func (s *FileService) OpenBlob(key string) (io.ReadCloser, error) {
	return s.blobs.Open(key)
}

// PublicURL returns the URL path where the raw file bytes are served.
func (s *FileService) PublicURL(file *models.File) string {
	return s.cfg.Upload.PublicRoot + "/" + file.StorageKey
}

// sanitizeFilename strips path components and control characters from a
// client-supplied filename.
func sanitizeFilename(name string) string {
	// Strip any path components, Windows or POSIX.
	if idx := strings.LastIndexAny(name, `/\`); idx != -1 {
		name = name[idx+1:]
	}

	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}

	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "file"
	}
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}
	return cleaned
}
