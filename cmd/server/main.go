// Package main is the entry point for the app-market serving API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fidde/appmarket_pipeline/internal/api"
	"github.com/fidde/appmarket_pipeline/internal/config"
	"github.com/fidde/appmarket_pipeline/internal/metrics"
	"github.com/fidde/appmarket_pipeline/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", getEnv("PIPELINE_CONFIG", ""), "path to YAML config file")
		apiAddr    = flag.String("addr", "", "API listen address (overrides config)")
	)
	flag.Parse()

	log.Println("Starting app-market API server...")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Loading config: %v", err)
		}
		cfg = loaded
	}
	if *apiAddr != "" {
		cfg.API.Addr = *apiAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	store, err := storage.NewStore(cfg.StorageFactoryConfig())
	if err != nil {
		log.Fatalf("Creating store: %v", err)
	}

	reg := metrics.NewRegistry()
	apiServer := api.NewServer(cfg.API.Addr, store, reg)

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Starting REST API server on %s", cfg.API.Addr)
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	log.Println("API endpoints:")
	log.Printf("  - Apps: http://%s/api/v1/apps", cfg.API.Addr)
	log.Printf("  - Reviews: http://%s/api/v1/reviews", cfg.API.Addr)
	log.Printf("  - KPIs: http://%s/api/v1/kpis", cfg.API.Addr)
	log.Printf("  - Daily: http://%s/api/v1/daily", cfg.API.Addr)
	log.Printf("  - Batches: http://%s/api/v1/batches", cfg.API.Addr)
	log.Printf("  - Health: http://%s/api/v1/health", cfg.API.Addr)
	log.Printf("  - Metrics: http://%s/metrics", cfg.API.Addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down API server: %v", err)
	}

	log.Println("Closing storage...")
	if err := store.Close(); err != nil {
		log.Printf("Error closing storage: %v", err)
	}

	log.Println("Shutdown complete")
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
