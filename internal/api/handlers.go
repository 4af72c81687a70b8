package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/RaUnAkKS/fileshare/internal/config"
	"github.com/RaUnAkKS/fileshare/internal/database"
	"github.com/RaUnAkKS/fileshare/internal/middleware"
	"github.com/RaUnAkKS/fileshare/internal/models"
	"github.com/RaUnAkKS/fileshare/internal/services"
)

// Handler holds the services the HTTP layer dispatches into.
type Handler struct {
	db       *database.DB
	config   *config.Config
	auth     *services.AuthService
	files    *services.FileService
	shares   *services.ShareService
	bundles  *services.BundleBuilder
	visitors *middleware.VisitorSessions
}

// NewHandler creates the API handler.
func NewHandler(
	db *database.DB,
	cfg *config.Config,
	auth *services.AuthService,
	files *services.FileService,
	shares *services.ShareService,
	bundles *services.BundleBuilder,
	visitors *middleware.VisitorSessions,
) *Handler {
	return &Handler{
		db:       db,
		config:   cfg,
		auth:     auth,
		files:    files,
		shares:   shares,
		bundles:  bundles,
		visitors: visitors,
	}
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type profileResponse struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

func newProfileResponse(user *models.User) profileResponse {
	resp := profileResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
	if user.LastLoginAt.Valid {
		t := user.LastLoginAt.Time
		resp.LastLoginAt = &t
	}
	return resp
}

// Register creates a new account.
func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Password != req.ConfirmPassword {
		return echo.NewHTTPError(http.StatusBadRequest, "passwords do not match")
	}

	user, err := h.auth.Register(c.Request().Context(), models.UserCreate{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserExists):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, services.ErrInvalidUsername),
			errors.Is(err, services.ErrInvalidEmail),
			errors.Is(err, services.ErrInvalidPassword):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		fmt.Printf("Error: registration failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
	}

	return c.JSON(http.StatusCreated, newProfileResponse(user))
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Token authenticates credentials and issues an access/refresh token pair.
func (h *Handler) Token(c echo.Context) error {
	clientIP := c.RealIP()
	if !apiAuthLimiter.check(clientIP) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many failed authentication attempts")
	}

	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, err := h.auth.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrUserInactive) {
			apiAuthLimiter.recordFailure(clientIP)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		fmt.Printf("Error: authentication failed: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "authentication failed")
	}

	access, err := GenerateJWT(user, h.config.Security.SecretKey, h.config.Security.JWTAccessExpiry)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	refresh, err := GenerateJWT(user, h.config.Security.SecretKey, h.config.Security.JWTRefreshExpiry)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	return c.JSON(http.StatusOK, tokenResponse{Access: access, Refresh: refresh})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// TokenRefresh exchanges a valid refresh token for a new access token.
func (h *Handler) TokenRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	claims, err := ParseJWT(req.Refresh, h.config.Security.SecretKey)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	user, err := h.auth.GetUserByID(c.Request().Context(), claims.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get user")
	}
	if user == nil || !user.IsActive {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	access, err := GenerateJWT(user, h.config.Security.SecretKey, h.config.Security.JWTAccessExpiry)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	return c.JSON(http.StatusOK, tokenResponse{Access: access})
}

// Profile returns the authenticated user's account record.
func (h *Handler) Profile(c echo.Context) error {
	user := GetAPIUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return c.JSON(http.StatusOK, newProfileResponse(user))
}

// Health reports service liveness.
func (h *Handler) Health(c echo.Context) error {
	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
