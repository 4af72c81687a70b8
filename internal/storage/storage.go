package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store is the blob store the file registry points into. The engine only ever
// needs opaque keys, byte streams and sizes, so the interface stays small
// enough to swap the local implementation for an object store.
type Store interface {
	Save(ctx context.Context, r io.Reader) (key string, size int64, err error)
	Open(key string) (io.ReadCloser, error)
	Delete(key string) error
}

// LocalStore persists blobs on the local filesystem under a two-level
// fan-out directory derived from the key prefix.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local blob store rooted at path.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Save streams the reader into a new blob and returns its key and size.
func (s *LocalStore) Save(ctx context.Context, r io.Reader) (string, int64, error) {
	key := uuid.NewString()

	dir := filepath.Join(s.root, key[:2])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create blob directory: %w", err)
	}

	path := filepath.Join(dir, key)
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create blob: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(path)
		return "", 0, err
	}

	return key, size, nil
}

// Open returns a reader over the blob bytes.
func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	if len(key) < 2 {
		return nil, fmt.Errorf("invalid storage key %q", key)
	}
	f, err := os.Open(filepath.Join(s.root, key[:2], key))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return f, nil
}

// Delete removes the blob. Missing blobs are not an error; deletion is
// idempotent.
func (s *LocalStore) Delete(key string) error {
	if len(key) < 2 {
		return fmt.Errorf("invalid storage key %q", key)
	}
	err := os.Remove(filepath.Join(s.root, key[:2], key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}
