package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

var errBadCursor = errors.New("invalid cursor")

// encodeCursor packs a (timestamp, id) keyset position into an opaque token.
func encodeCursor(t time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", t.UTC().UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks a token produced by encodeCursor. An empty token means
// the first page.
func decodeCursor(token string) (time.Time, string, error) {
	if token == "" {
		return time.Time{}, "", nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", errBadCursor
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", errBadCursor
	}

	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", errBadCursor
	}

	return time.Unix(0, nanos).UTC(), parts[1], nil
}

// pageLimit reads the limit query parameter, clamped to the configured bounds.
func (h *Handler) pageLimit(c echo.Context) int {
	limit := h.config.Share.DefaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.config.Share.MaxListLimit {
		limit = h.config.Share.MaxListLimit
	}
	return limit
}

// pageURL builds the absolute URL of the same endpoint with a new cursor,
// preserving the other query parameters.
func (h *Handler) pageURL(c echo.Context, cursor string) string {
	base := strings.TrimRight(h.config.Site.URL, "/")

	query := url.Values{}
	for key, values := range c.QueryParams() {
		if key == "cursor" {
			continue
		}
		for _, v := range values {
			query.Add(key, v)
		}
	}
	query.Set("cursor", cursor)

	return base + c.Request().URL.Path + "?" + query.Encode()
}

// pagePayload is the envelope for cursor-paginated list responses.
type pagePayload struct {
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  pageResults `json:"results"`
}

type pageResults struct {
	Count   int         `json:"count"`
	Results interface{} `json:"results"`
}

func newPagePayload(next *string, count int, results interface{}) pagePayload {
	return pagePayload{
		Next:    next,
		Results: pageResults{Count: count, Results: results},
	}
}
