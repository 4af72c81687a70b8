package models

import "time"

// File is the registry entry for one uploaded file. The bytes themselves live
// in the blob store under StorageKey; the registry row carries everything the
// API exposes about the file.
type File struct {
	ID               string    `json:"id"`
	OwnerID          int64     `json:"-"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	FileSize         int64     `json:"file_size"`
	StorageKey       string    `json:"-"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// FileResponse is the API shape of a file record. The File field is a URL,
// relative to the configured public root, where the raw bytes can be fetched.
type FileResponse struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	FileSize         int64     `json:"file_size"`
	UploadedAt       time.Time `json:"uploaded_at"`
	File             string    `json:"file"`
}
