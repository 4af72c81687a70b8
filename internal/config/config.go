package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Site     SiteConfig
	Upload   UploadConfig
	Share    ShareConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	SecretKey         string
	SessionName       string
	SessionMaxAge     int
	BcryptCost        int
	RateLimitRequests int
	RateLimitWindow   time.Duration
	JWTAccessExpiry   time.Duration
	JWTRefreshExpiry  time.Duration
}

// SiteConfig contains site-wide settings.
type SiteConfig struct {
	Name string
	URL  string
}

// UploadConfig contains file upload settings.
type UploadConfig struct {
	Path       string
	MaxSize    int64
	PublicRoot string
}

// ShareConfig contains share-link engine settings.
type ShareConfig struct {
	UnlockTTL        time.Duration
	UnlockRatePerMin int
	UnlockBurst      int
	DefaultListLimit int
	MaxListLimit     int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("FSHARE_PORT", 8000),
			Host:            getEnv("FSHARE_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvDuration("FSHARE_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("FSHARE_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvDuration("FSHARE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Path:            getEnv("FSHARE_DB_PATH", "./data/fileshare.db"),
			MaxOpenConns:    getEnvInt("FSHARE_DB_MAX_OPEN", 25),
			MaxIdleConns:    getEnvInt("FSHARE_DB_MAX_IDLE", 5),
			ConnMaxLifetime: getEnvDuration("FSHARE_DB_CONN_LIFETIME", 5*time.Minute),
		},
		Security: SecurityConfig{
			SecretKey:         getEnv("FSHARE_SECRET_KEY", ""),
			SessionName:       getEnv("FSHARE_SESSION_NAME", "fileshare_session"),
			SessionMaxAge:     getEnvInt("FSHARE_SESSION_MAX_AGE", 86400*7), // 7 days
			BcryptCost:        getEnvInt("FSHARE_BCRYPT_COST", 12),
			RateLimitRequests: getEnvInt("FSHARE_RATE_LIMIT", 300),
			RateLimitWindow:   getEnvDuration("FSHARE_RATE_WINDOW", time.Minute),
			JWTAccessExpiry:   getEnvDuration("FSHARE_JWT_ACCESS_EXPIRY", 30*time.Minute),
			JWTRefreshExpiry:  getEnvDuration("FSHARE_JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		Site: SiteConfig{
			Name: getEnv("FSHARE_SITE_NAME", "FileShare"),
			URL:  getEnv("FSHARE_SITE_URL", "http://localhost:8000"),
		},
		Upload: UploadConfig{
			Path:       getEnv("FSHARE_UPLOAD_PATH", "./uploads"),
			MaxSize:    getEnvInt64("FSHARE_MAX_UPLOAD_SIZE", 100*1024*1024), // 100MB
			PublicRoot: getEnv("FSHARE_UPLOAD_PUBLIC_ROOT", "/uploads"),
		},
		Share: ShareConfig{
			UnlockTTL:        getEnvDuration("FSHARE_UNLOCK_TTL", 24*time.Hour),
			UnlockRatePerMin: getEnvInt("FSHARE_UNLOCK_RATE", 10),
			UnlockBurst:      getEnvInt("FSHARE_UNLOCK_BURST", 5),
			DefaultListLimit: getEnvInt("FSHARE_LIST_LIMIT", 20),
			MaxListLimit:     getEnvInt("FSHARE_LIST_LIMIT_MAX", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that all required configuration is present and valid.
func (c *Config) validate() error {
	var errs []string

	// Generate secret key if not provided (for development only)
	if c.Security.SecretKey == "" {
		key, err := generateRandomKey(32)
		if err != nil {
			errs = append(errs, "failed to generate secret key")
		} else {
			c.Security.SecretKey = key
			fmt.Println("WARNING: No FSHARE_SECRET_KEY set, using randomly generated key. Sessions and tokens will not persist across restarts.")
		}
	}

	if len(c.Security.SecretKey) < 32 {
		errs = append(errs, "FSHARE_SECRET_KEY must be at least 32 characters")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "FSHARE_PORT must be between 1 and 65535")
	}

	if c.Security.BcryptCost < 10 || c.Security.BcryptCost > 31 {
		errs = append(errs, "FSHARE_BCRYPT_COST must be between 10 and 31")
	}

	if c.Share.DefaultListLimit < 1 || c.Share.DefaultListLimit > c.Share.MaxListLimit {
		errs = append(errs, "FSHARE_LIST_LIMIT must be between 1 and FSHARE_LIST_LIMIT_MAX")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Address returns the server address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
