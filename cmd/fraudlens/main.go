package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savegress/fraudlens/internal/api"
	"github.com/savegress/fraudlens/internal/config"
	"github.com/savegress/fraudlens/internal/pipeline"
	"github.com/savegress/fraudlens/internal/progress"
	"github.com/savegress/fraudlens/internal/reporting"
	"github.com/savegress/fraudlens/internal/storage"
)

func main() {
	log.Println("Starting FraudLens...")

	// Load configuration
	cfg := loadConfig()

	// Open the run store
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}

	// Start the progress hub
	hub := progress.NewHub()
	go hub.Run()

	// Initialize report generator and pipeline runner
	generator := reporting.NewGenerator(&cfg.Reporting)
	runner := pipeline.NewRunner(cfg, store, hub, generator)

	// Create API server
	server := api.NewServer(cfg, runner, store, generator, hub)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("FraudLens API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down FraudLens...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	runner.Stop()
	hub.Stop()
	if err := store.Close(); err != nil {
		log.Printf("Run store close error: %v", err)
	}

	log.Println("FraudLens stopped")
}

func loadConfig() *config.Config {
	configPath := os.Getenv("FRAUDLENS_CONFIG")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Printf("Failed to load config from %s: %v, using defaults", configPath, err)
			return config.LoadFromEnv()
		}
		return cfg
	}
	return config.LoadFromEnv()
}
