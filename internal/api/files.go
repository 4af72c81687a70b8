package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/RaUnAkKS/fileshare/internal/models"
	"github.com/RaUnAkKS/fileshare/internal/services"
)

func (h *Handler) fileResponse(file models.File) models.FileResponse {
	return models.FileResponse{
		ID:               file.ID,
		OriginalFilename: file.OriginalFilename,
		ContentType:      file.ContentType,
		FileSize:         file.FileSize,
		UploadedAt:       file.UploadedAt,
		File:             h.files.PublicURL(&file),
	}
}

// UploadFiles stores every part of a multipart upload under the "files" field.
// Parts are stored independently; the first failure aborts the request but
// already-stored files stay.
func (h *Handler) UploadFiles(c echo.Context) error {
	user := GetAPIUser(c)

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}

	parts := form.File["files"]
	if len(parts) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files in upload")
	}

	stored := make([]models.FileResponse, 0, len(parts))
	for _, part := range parts {
		file, err := h.files.Upload(c.Request().Context(), user.ID, part)
		if err != nil {
			if errors.Is(err, services.ErrFileTooLarge) {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
			}
			fmt.Printf("Error: upload failed: %v\n", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
		}
		stored = append(stored, h.fileResponse(*file))
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{"files": stored})
}

// ListFiles returns the user's files, newest first.
func (h *Handler) ListFiles(c echo.Context) error {
	user := GetAPIUser(c)

	files, err := h.files.List(c.Request().Context(), user.ID)
	if err != nil {
		fmt.Printf("Error: file list failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list files")
	}

	return c.JSON(http.StatusOK, lo.Map(files, func(f models.File, _ int) models.FileResponse {
		return h.fileResponse(f)
	}))
}

// DeleteFile removes one of the user's files.
func (h *Handler) DeleteFile(c echo.Context) error {
	user := GetAPIUser(c)

	err := h.files.Delete(c.Request().Context(), user.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrFileNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		fmt.Printf("Error: file delete failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete file")
	}

	return c.NoContent(http.StatusNoContent)
}

// DeleteAllFiles removes every file the user owns.
func (h *Handler) DeleteAllFiles(c echo.Context) error {
	user := GetAPIUser(c)

	if err := h.files.DeleteAll(c.Request().Context(), user.ID); err != nil {
		fmt.Printf("Error: delete-all failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete files")
	}

	return c.NoContent(http.StatusNoContent)
}

// ServeBlob streams raw file bytes by storage key. Blobs sit in fan-out
// subdirectories, so this goes through the store rather than a static mount.
func (h *Handler) ServeBlob(c echo.Context) error {
	key := c.Param("key")

	file, err := h.db.GetFileByStorageKey(c.Request().Context(), key)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to look up file")
	}
	if file == nil {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	blob, err := h.files.OpenBlob(key)
	if err != nil {
		fmt.Printf("Error: blob %s missing for file %s: %v\n", key, file.ID, err)
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	defer blob.Close()

	c.Response().Header().Set(echo.HeaderContentType, file.ContentType)
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`inline; filename=%q`, file.OriginalFilename))
	c.Response().WriteHeader(http.StatusOK)

	_, err = io.Copy(c.Response(), blob)
	return err
}
