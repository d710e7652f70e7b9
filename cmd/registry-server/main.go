// Package main provides the land registry API server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/dlrs-ng/land-registry/internal/config"
)

func main() {
	flags := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	flags.Apply(flag.CommandLine, cfg)
	if err := cfg.Validate(); err != nil {
		glog.Fatalf("Invalid config: %v", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		glog.Fatalf("Failed to initialize registry: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("land registry server ready",
		"listen", cfg.ListenAddr,
		"store", cfg.Store.Backend,
		"geometry", cfg.Registry.GeometrySchema,
		"auth", cfg.Auth.Mode,
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	app.close()

	logger.Info("land registry server stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
