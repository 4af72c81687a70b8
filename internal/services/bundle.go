package services

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/RaUnAkKS/fileshare/internal/models"
	"github.com/RaUnAkKS/fileshare/internal/storage"
)

// bundleEpoch is the fixed Modified timestamp written into every archive
// entry, so bundling the same file set twice produces byte-identical output.
var bundleEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// BundleBuilder streams the member files of a share link into a single zip
// archive. It never buffers whole files: each blob is copied straight from
// the store into the archive writer.
type BundleBuilder struct {
	blobs storage.Store
}

// NewBundleBuilder creates a bundle builder over the given blob store.
func NewBundleBuilder(blobs storage.Store) *BundleBuilder {
	return &BundleBuilder{blobs: blobs}
}

// WriteBundle writes the archive to w. Files are added in input order, which
// the engine already made deterministic; name collisions are resolved by
// appending " (n)" before the extension. Any blob failure aborts with an
// error so a truncated archive is never passed off as success. An empty file
// set yields a valid empty archive.
func (b *BundleBuilder) WriteBundle(ctx context.Context, w io.Writer, files []models.File) error {
	zw := zip.NewWriter(w)

	names := make(map[string]int, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return err
		}

		header := &zip.FileHeader{
			Name:     uniqueArchiveName(names, file.OriginalFilename),
			Method:   zip.Deflate,
			Modified: bundleEpoch,
		}

		entry, err := zw.CreateHeader(header)
		if err != nil {
			zw.Close()
			return fmt.Errorf("failed to create archive entry %s: %w", header.Name, err)
		}

		if err := b.copyBlob(entry, file.StorageKey); err != nil {
			zw.Close()
			return fmt.Errorf("failed to bundle %s: %w", file.OriginalFilename, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func (b *BundleBuilder) copyBlob(dst io.Writer, key string) error {
	src, err := b.blobs.Open(key)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}

// uniqueArchiveName returns name unchanged on first use, then "name (1).ext",
// "name (2).ext" and so on. Generated suffixes are checked against every name
// already emitted, so a duplicate cannot land on a real filename that happens
// to carry the same suffix. Resolution is deterministic for a given input
// order.
func uniqueArchiveName(used map[string]int, name string) string {
	n := used[name]
	if n == 0 {
		used[name] = 1
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if used[candidate] == 0 {
			used[name] = n + 1
			used[candidate] = 1
			return candidate
		}
		n++
	}
}
