package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/RaUnAkKS/fileshare/internal/models"
	"github.com/RaUnAkKS/fileshare/internal/services"
)

type createShareRequest struct {
	Files        []string   `json:"files"`
	ShareAll     bool       `json:"share_all"`
	Password     string     `json:"password"`
	MaxDownloads *int       `json:"max_downloads"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// CreateShare creates a new share link for the authenticated user.
func (h *Handler) CreateShare(c echo.Context) error {
	user := GetAPIUser(c)

	var req createShareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	link, err := h.shares.Create(c.Request().Context(), user.ID, services.CreateLinkInput{
		FileIDs:      req.Files,
		ShareAll:     req.ShareAll,
		Password:     req.Password,
		MaxDownloads: req.MaxDownloads,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidArgument):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, "one or more files do not belong to you")
		}
		fmt.Printf("Error: share create failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create share link")
	}

	return c.JSON(http.StatusCreated, link.Response())
}

// ListShares returns one cursor page of the user's share links, newest first.
// search=active|inactive filters by the kill switch.
func (h *Handler) ListShares(c echo.Context) error {
	user := GetAPIUser(c)

	search := c.QueryParam("search")
	if search != "" && search != "active" && search != "inactive" {
		return echo.NewHTTPError(http.StatusBadRequest, "search must be active or inactive")
	}

	cursorAt, cursorID, err := decodeCursor(c.QueryParam("cursor"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
	}

	page, err := h.shares.List(c.Request().Context(), user.ID, search, cursorAt, cursorID, h.pageLimit(c))
	if err != nil {
		fmt.Printf("Error: share list failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list share links")
	}

	var next *string
	if page.HasMore && len(page.Links) > 0 {
		last := page.Links[len(page.Links)-1]
		u := h.pageURL(c, encodeCursor(last.CreatedAt, last.ID))
		next = &u
	}

	results := lo.Map(page.Links, func(l models.ShareLink, _ int) models.ShareLinkResponse {
		return l.Response()
	})

	return c.JSON(http.StatusOK, newPagePayload(next, page.TotalCount, results))
}

type updateShareRequest struct {
	IsActive *bool `json:"is_active"`
}

// UpdateShare flips the link's kill switch. Deactivating also revokes every
// recorded unlock.
func (h *Handler) UpdateShare(c echo.Context) error {
	user := GetAPIUser(c)

	var req updateShareRequest
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_active is required")
	}

	ctx := c.Request().Context()
	if err := h.shares.SetActive(ctx, c.Param("id"), user.ID, *req.IsActive); err != nil {
		return h.shareError(err, "failed to update share link")
	}

	link, err := h.shares.Get(ctx, c.Param("id"), user.ID)
	if err != nil {
		return h.shareError(err, "failed to load share link")
	}

	return c.JSON(http.StatusOK, link.Response())
}

// DeleteShare soft-deletes a link. The id is never reused and subsequent
// lookups report not found.
func (h *Handler) DeleteShare(c echo.Context) error {
	user := GetAPIUser(c)

	if err := h.shares.Delete(c.Request().Context(), c.Param("id"), user.ID); err != nil {
		return h.shareError(err, "failed to delete share link")
	}

	return c.NoContent(http.StatusNoContent)
}

// ListShareFiles returns one cursor page of a link's member files, for the
// owner, in the same order the bundle uses.
func (h *Handler) ListShareFiles(c echo.Context) error {
	user := GetAPIUser(c)

	cursorAt, cursorID, err := decodeCursor(c.QueryParam("cursor"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
	}

	page, err := h.shares.Files(c.Request().Context(), c.Param("id"), user.ID, cursorAt, cursorID, h.pageLimit(c))
	if err != nil {
		return h.shareError(err, "failed to list share files")
	}

	var next *string
	if page.HasMore && len(page.Files) > 0 {
		last := page.Files[len(page.Files)-1]
		u := h.pageURL(c, encodeCursor(last.UploadedAt, last.ID))
		next = &u
	}

	results := lo.Map(page.Files, func(f models.File, _ int) models.FileResponse {
		return h.fileResponse(f)
	})

	return c.JSON(http.StatusOK, newPagePayload(next, page.TotalCount, results))
}

// ShareStatus reports a link's current gating state to a visitor. The unlock
// flag is resolved against the visitor's cookie session without minting one.
func (h *Handler) ShareStatus(c echo.Context) error {
	sessionID := h.visitors.PeekSessionID(c)

	status, err := h.shares.Status(c.Request().Context(), c.Param("id"), sessionID)
	if err != nil {
		return h.shareError(err, "failed to load share link")
	}

	return c.JSON(http.StatusOK, status)
}

type accessRequest struct {
	Password string `json:"password"`
}

// ShareAccess verifies a password attempt and unlocks the link for this
// visitor session.
func (h *Handler) ShareAccess(c echo.Context) error {
	sessionID, err := h.visitors.SessionID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to establish session")
	}

	var req accessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.shares.Unlock(c.Request().Context(), c.Param("id"), sessionID, req.Password); err != nil {
		switch {
		case errors.Is(err, services.ErrTooManyAttempts):
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many password attempts")
		case errors.Is(err, services.ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, "invalid password")
		}
		fmt.Printf("Error: share unlock failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to unlock share link")
	}

	return c.JSON(http.StatusOK, map[string]string{"detail": "access granted"})
}

// ShareDownload admits the request through the download gate and streams the
// bundle. The increment is consumed before the first byte is written; a
// failed transfer still counts.
func (h *Handler) ShareDownload(c echo.Context) error {
	sessionID, err := h.visitors.SessionID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to establish session")
	}

	ctx := c.Request().Context()
	linkID := c.Param("id")

	bundle, err := h.shares.RequestDownload(ctx, linkID, sessionID, c.QueryParam("password"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLinkNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "share link not found")
		case errors.Is(err, services.ErrTooManyAttempts):
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many password attempts")
		case errors.Is(err, services.ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, "password required")
		case errors.Is(err, services.ErrGateClosed):
			// Tell the visitor which condition closed the gate.
			if status, stErr := h.shares.Status(ctx, linkID, sessionID); stErr == nil {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("share link is not available: %s", status.Status))
			}
			return echo.NewHTTPError(http.StatusForbidden, "share link is not available")
		}
		fmt.Printf("Error: share download failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "download failed")
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/zip")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="share-%s.zip"`, bundle.Link.ID))
	c.Response().WriteHeader(http.StatusOK)

	if err := h.bundles.WriteBundle(ctx, c.Response(), bundle.Files); err != nil {
		// Headers are already out; all we can do is cut the stream short.
		fmt.Printf("Error: bundle stream for %s aborted: %v\n", linkID, err)
		return err
	}
	return nil
}

// shareError maps the share engine's sentinel errors onto HTTP responses.
func (h *Handler) shareError(err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrLinkNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "share link not found")
	case errors.Is(err, services.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fmt.Printf("Error: %s: %v\n", fallback, err)
	return echo.NewHTTPError(http.StatusInternalServerError, fallback)
}
