package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/RaUnAkKS/fileshare/internal/config"
)

const visitorIDKey = "visitor_id"

// VisitorSessions hands out an opaque per-browser session id via a signed
// cookie. The unlock tracker keys unlock records by this id; the cookie
// itself carries no unlock state, so deleting or deactivating a link
// invalidates access server-side with no cookie round trip.
type VisitorSessions struct {
	store       *sessions.CookieStore
	sessionName string
}

// NewVisitorSessions creates the cookie-backed visitor session manager.
func NewVisitorSessions(cfg *config.Config) *VisitorSessions {
	store := sessions.NewCookieStore([]byte(cfg.Security.SecretKey))

	isHTTPS := strings.HasPrefix(cfg.Site.URL, "https")
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Security.SessionMaxAge,
		HttpOnly: true,
		Secure:   isHTTPS,
		SameSite: http.SameSiteLaxMode,
	}

	return &VisitorSessions{
		store:       store,
		sessionName: cfg.Security.SessionName,
	}
}

// SessionID returns the visitor's session id, minting and persisting one on
// first contact. The returned id is stable for the lifetime of the cookie.
func (vs *VisitorSessions) SessionID(c echo.Context) (string, error) {
	session, err := vs.store.Get(c.Request(), vs.sessionName)
	if err != nil {
		// A corrupt or stale cookie gets replaced rather than erroring.
		session, err = vs.store.New(c.Request(), vs.sessionName)
		if err != nil {
			return "", fmt.Errorf("failed to create session: %w", err)
		}
	}

	if id, ok := session.Values[visitorIDKey].(string); ok && id != "" {
		return id, nil
	}

	id, err := generateVisitorID()
	if err != nil {
		return "", err
	}

	session.Values[visitorIDKey] = id
	if err := session.Save(c.Request(), c.Response()); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	return id, nil
}

// PeekSessionID returns the visitor's session id without minting one.
// Returns empty when the visitor has no session yet.
func (vs *VisitorSessions) PeekSessionID(c echo.Context) string {
	session, err := vs.store.Get(c.Request(), vs.sessionName)
	if err != nil {
		return ""
	}
	if id, ok := session.Values[visitorIDKey].(string); ok {
		return id
	}
	return ""
}

func generateVisitorID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate visitor id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
