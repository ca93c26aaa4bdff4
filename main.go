package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/openeduhub/duplicate-detection/cache"
	"github.com/openeduhub/duplicate-detection/config"
	"github.com/openeduhub/duplicate-detection/detect"
	"github.com/openeduhub/duplicate-detection/web"
	"github.com/openeduhub/duplicate-detection/wlo"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	client := wlo.NewClient(cfg.WLOBaseURL, cfg.WLOTimeout, cfg.WLOMaxRetries, logger)
	pipeline := detect.NewPipeline(client, logger)
	responseCache := cache.New(cfg.DetectionCacheTTL, cfg.DetectionCacheMaxSize)

	webServer := web.NewServer(pipeline, responseCache, cfg, logger)

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting duplicate detection service",
		zap.String("address", cfg.ListenAddr),
		zap.String("repository", cfg.WLOBaseURL))
	if err := webServer.Start(ctx, cfg.ListenAddr); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
