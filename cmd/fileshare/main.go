package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/RaUnAkKS/fileshare/internal/api"
	"github.com/RaUnAkKS/fileshare/internal/config"
	"github.com/RaUnAkKS/fileshare/internal/database"
	"github.com/RaUnAkKS/fileshare/internal/middleware"
	"github.com/RaUnAkKS/fileshare/internal/services"
	"github.com/RaUnAkKS/fileshare/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fmt.Printf("Starting %s...\n", cfg.Site.Name)

	// Create data directory if needed
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize blob store
	blobs, err := storage.NewLocalStore(cfg.Upload.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	// Initialize services
	authService := services.NewAuthService(db, cfg)
	fileService := services.NewFileService(db, blobs, cfg)
	shareService := services.NewShareService(db, cfg)
	bundleBuilder := services.NewBundleBuilder(blobs)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Visitor sessions for public share endpoints
	visitors := middleware.NewVisitorSessions(cfg)

	// Rate limiter
	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRequests,
		cfg.Security.RateLimitWindow,
	)

	// Global middleware (order matters!)
	e.Use(middleware.RequestID())
	e.Use(middleware.RecoveryMiddleware())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.SecurityHeaders())
	e.Use(rateLimiter.Middleware())

	// Gzip compression; zip bundles are already compressed
	e.Use(echoMiddleware.GzipWithConfig(echoMiddleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/share/download/:id/" || c.Path() == "/uploads/:key"
		},
	}))

	// Register routes
	api.RegisterRoutes(e, db, cfg, authService, fileService, shareService, bundleBuilder, visitors)

	// Custom error handler
	e.HTTPErrorHandler = customErrorHandler

	// Sweep expired unlock records in the background
	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	defer purgeCancel()
	go purgeUnlocks(purgeCtx, shareService)

	// Start server
	server := &http.Server{
		Addr:         cfg.Address(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	go func() {
		fmt.Printf("Server listening on http://%s\n", cfg.Address())
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// purgeUnlocks periodically removes expired unlock records.
func purgeUnlocks(ctx context.Context, shares *services.ShareService) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := shares.PurgeExpiredUnlocks(ctx)
			if err != nil {
				fmt.Printf("Warning: failed to purge expired unlocks: %v\n", err)
				continue
			}
			if n > 0 {
				fmt.Printf("Purged %d expired unlock records\n", n)
			}
		}
	}
}

// customErrorHandler renders every error as a JSON detail payload.
func customErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	detail := "internal server error"

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			detail = m
		}
	}

	if c.Response().Committed {
		return
	}

	if err := c.JSON(code, map[string]string{"detail": detail}); err != nil {
		fmt.Printf("Error: failed to write error response: %v\n", err)
	}
}
