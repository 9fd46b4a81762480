package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tempshare/internal/server/api"
	"tempshare/internal/server/app"
	"tempshare/internal/server/config"
	"tempshare/internal/server/storage"
)

const readHeaderTimeout = 30 * time.Second

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_backend", cfg.StorageBackend,
		"metadata_backend", cfg.MetadataBackend,
		"max_file_size", cfg.MaxFileSize,
		"expiry_window", cfg.ExpiryWindow,
	)

	// Wire stores and the file service
	ctx := context.Background()
	a, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	svc := a.Service

	// Drop content left behind by a previous crash
	if _, err := svc.Reconcile(ctx); err != nil {
		slog.Error("startup reconciliation failed", "error", err)
	}

	// Start expiry sweeper
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	cleanup := storage.NewCleanupService(svc, cfg.SweepInterval)
	cleanup.Start(cleanupCtx)

	// Setup HTTP router
	var health api.HealthChecker
	if a.DB != nil {
		health = a.DB
	}
	handler := api.NewHandler(svc, health)
	e := api.SetupRouter(cleanupCtx, handler, cfg)
	e.Server.ReadHeaderTimeout = readHeaderTimeout

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop background work
	cleanupCancel()
	cleanup.Wait()

	slog.Info("server exited cleanly")
}
