package api

import (
	"github.com/labstack/echo/v4"

	"github.com/RaUnAkKS/fileshare/internal/config"
	"github.com/RaUnAkKS/fileshare/internal/database"
	"github.com/RaUnAkKS/fileshare/internal/middleware"
	"github.com/RaUnAkKS/fileshare/internal/services"
)

// RegisterRoutes registers all API routes.
func RegisterRoutes(
	e *echo.Echo,
	db *database.DB,
	cfg *config.Config,
	authService *services.AuthService,
	fileService *services.FileService,
	shareService *services.ShareService,
	bundleBuilder *services.BundleBuilder,
	visitors *middleware.VisitorSessions,
) {
	h := NewHandler(db, cfg, authService, fileService, shareService, bundleBuilder, visitors)
	jwtMiddleware := NewJWTMiddleware(db, cfg)

	e.GET("/health", h.Health)

	// Raw file bytes referenced by file URLs
	e.GET("/uploads/:key", h.ServeBlob)

	api := e.Group("/api")

	// Public routes (no auth required)
	api.POST("/register/", h.Register)
	api.POST("/token/", h.Token)
	api.POST("/token/refresh/", h.TokenRefresh)

	// Visitor routes keyed by the cookie session, not a bearer token
	api.GET("/share/status/:id/", h.ShareStatus)
	api.POST("/share/access/:id/", h.ShareAccess)
	api.GET("/share/download/:id/", h.ShareDownload)

	// Protected routes (auth required)
	protected := api.Group("")
	protected.Use(jwtMiddleware.Middleware())

	protected.GET("/profile/", h.Profile)

	protected.POST("/files/upload/", h.UploadFiles)
	protected.GET("/files/list/", h.ListFiles)
	protected.DELETE("/files/delete/:id/", h.DeleteFile)
	protected.DELETE("/files/delete-all/", h.DeleteAllFiles)

	protected.POST("/share/create/", h.CreateShare)
	protected.GET("/share/list/", h.ListShares)
	protected.PATCH("/share/update/:id/", h.UpdateShare)
	protected.DELETE("/share/delete/:id/", h.DeleteShare)
	protected.GET("/share/:id/files/", h.ListShareFiles)
}
