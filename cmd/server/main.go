package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sceneboard/internal/config"
	"github.com/sceneboard/internal/mockapi"
	"github.com/sceneboard/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup logger
	logger := cfg.Logging.NewLogger()

	gin.SetMode(cfg.Server.GetGINMode())

	// Initialize media storage
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	blobs, err := storage.New(ctx, cfg.Server.Storage)
	cancel()
	if err != nil {
		logger.Fatalf("Failed to create storage service: %v", err)
	}
	logger.WithField("type", cfg.Server.Storage.Type).Info("Storage service initialized")

	api := mockapi.New(mockapi.Options{
		Config: cfg.Server,
		Blobs:  blobs,
		Logger: logger,
	})

	if cfg.Server.Auth.JWTSecret == "your-secret-key" && cfg.Server.IsProduction() {
		logger.Warn("JWT secret is the default value; set JWT_SECRET")
	}

	// Setup HTTP server
	srv := &http.Server{
		Addr:           cfg.Server.Address,
		Handler:        api.Handler(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	// Graceful shutdown
	go func() {
		logger.Infof("Starting server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
