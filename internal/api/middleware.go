package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/RaUnAkKS/fileshare/internal/config"
	"github.com/RaUnAkKS/fileshare/internal/database"
	"github.com/RaUnAkKS/fileshare/internal/models"
)

// authRateLimiter tracks failed authentication attempts per IP.
type authRateLimiter struct {
	attempts map[string]*authAttempt
	mu       sync.RWMutex
	maxFails int
	window   time.Duration
}

type authAttempt struct {
	count   int
	resetAt time.Time
}

func newAuthRateLimiter(maxFails int, window time.Duration) *authRateLimiter {
	rl := &authRateLimiter{
		attempts: make(map[string]*authAttempt),
		maxFails: maxFails,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

func (rl *authRateLimiter) check(ip string) bool {
	rl.mu.RLock()
	attempt, exists := rl.attempts[ip]
	rl.mu.RUnlock()

	if !exists {
		return true
	}

	if time.Now().After(attempt.resetAt) {
		return true
	}

	return attempt.count < rl.maxFails
}

func (rl *authRateLimiter) recordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	attempt, exists := rl.attempts[ip]

	if !exists || now.After(attempt.resetAt) {
		rl.attempts[ip] = &authAttempt{
			count:   1,
			resetAt: now.Add(rl.window),
		}
		return
	}

	attempt.count++
}

func (rl *authRateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for ip, attempt := range rl.attempts {
			if now.After(attempt.resetAt) {
				delete(rl.attempts, ip)
			}
		}
		rl.mu.Unlock()
	}
}

var apiAuthLimiter = newAuthRateLimiter(10, 15*time.Minute) // 10 failures per 15 min

type contextKey string

const userContextKey contextKey = "api_user"

// JWTClaims represents the claims in a JWT token.
type JWTClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTMiddleware handles bearer-token authentication for owner endpoints.
type JWTMiddleware struct {
	db     *database.DB
	config *config.Config
}

// NewJWTMiddleware creates a new JWT middleware.
func NewJWTMiddleware(db *database.DB, cfg *config.Config) *JWTMiddleware {
	return &JWTMiddleware{
		db:     db,
		config: cfg,
	}
}

// Middleware returns the Echo middleware function.
func (m *JWTMiddleware) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clientIP := c.RealIP()

			if !apiAuthLimiter.check(clientIP) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many failed authentication attempts")
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				apiAuthLimiter.recordFailure(clientIP)
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				apiAuthLimiter.recordFailure(clientIP)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := ParseJWT(parts[1], m.config.Security.SecretKey)
			if err != nil {
				apiAuthLimiter.recordFailure(clientIP)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			user, err := m.db.GetUserByID(c.Request().Context(), claims.UserID)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to get user")
			}
			if user == nil || !user.IsActive {
				apiAuthLimiter.recordFailure(clientIP)
				return echo.NewHTTPError(http.StatusUnauthorized, "user not found or inactive")
			}

			ctx := context.WithValue(c.Request().Context(), userContextKey, user)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// GetAPIUser returns the authenticated user from context.
func GetAPIUser(c echo.Context) *models.User {
	user, _ := c.Request().Context().Value(userContextKey).(*models.User)
	return user
}

// GenerateJWT creates a new signed token for a user.
func GenerateJWT(user *models.User, secretKey string, expiry time.Duration) (string, error) {
	claims := &JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "fileshare",
			Subject:   user.Email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ParseJWT validates a signed token and returns its claims.
func ParseJWT(tokenString, secretKey string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
