package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tempshare/internal/server/config"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
// Background work started here stops when ctx is done.
func SetupRouter(ctx context.Context, handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(RequestLogger())

	// Rate limiter on upload endpoint only
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go uploadLimiter.Run(ctx)

	// Health, stats & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Files
	e.GET("/api/files", handler.HandleList)
	e.POST("/api/files", handler.HandleUpload, uploadLimiter.Middleware())
	e.GET("/api/files/:id", handler.HandleDownload)
	e.GET("/api/files/:id/*", handler.HandleEmbed)
	e.DELETE("/api/files/:id", handler.HandleDelete)
	e.PATCH("/api/files/:id/permanent", handler.HandlePermanent)

	// Info
	e.GET("/api/info/:id", handler.HandleInfo)

	return e
}
