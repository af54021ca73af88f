package api

import (
	"net/http"

	"fileshare/internal/server/config"
	"fileshare/web"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(RequestLogger())

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// Upload
	e.POST("/upload", handler.HandleUpload)

	// Download & info
	e.GET("/file/:id", handler.HandleDownload)
	e.GET("/file/:id/info", handler.HandleInfo)

	// Raw uploads bypass the record lookup and the download counter.
	if cfg.ServeRawUploads {
		e.Static("/uploads", cfg.StoragePath)
	}

	// Client UI
	e.StaticFS("/", echo.MustSubFS(web.Assets, "public"))

	return e
}
