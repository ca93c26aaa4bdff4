// Package web wires the HTTP surface: routing, rate limiting, request
// logging and the detection handlers.
package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openeduhub/duplicate-detection/cache"
	"github.com/openeduhub/duplicate-detection/config"
	"github.com/openeduhub/duplicate-detection/detect"
	"github.com/openeduhub/duplicate-detection/web/handlers"
	"github.com/openeduhub/duplicate-detection/web/middleware"
)

type Server struct {
	router *gin.Engine
	logger *zap.Logger
	config *config.Config
}

func NewServer(pipeline *detect.Pipeline, responseCache *cache.Cache, cfg *config.Config, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	server := &Server{
		router: router,
		logger: logger,
		config: cfg,
	}

	server.setupRoutes(pipeline, responseCache)
	return server
}

func (s *Server) setupRoutes(pipeline *detect.Pipeline, responseCache *cache.Cache) {
	// Health, hash and admin are unlimited; only detection consumes
	// rate limit tokens, inside the handlers after validation.
	limiter := middleware.NewIPRateLimiter(s.config.RateLimitCount, s.config.RateLimitWindow, s.logger)
	detectHandler := handlers.NewDetectHandler(pipeline, responseCache, limiter, s.config.MaxCandidates, s.logger)
	adminHandler := handlers.NewAdminHandler(responseCache, s.config.AdminAPIKey, s.logger)

	s.router.GET("/health", handlers.Health)
	s.router.POST("/hash", handlers.Hash)
	s.router.POST("/admin/cache/clear", adminHandler.ClearCache)

	s.router.POST("/detect/hash/by-node", detectHandler.ByNode)
	s.router.POST("/detect/hash/by-metadata", detectHandler.ByMetadata)
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	return srv.Shutdown(context.Background())
}
