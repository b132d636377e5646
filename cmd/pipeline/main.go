// Package main is the entry point for the app-market ingestion pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fidde/appmarket_pipeline/internal/config"
	"github.com/fidde/appmarket_pipeline/internal/metrics"
	"github.com/fidde/appmarket_pipeline/internal/pipeline"
	"github.com/fidde/appmarket_pipeline/internal/schema"
	"github.com/fidde/appmarket_pipeline/internal/storage"
)

func main() {
	var (
		configPath  = flag.String("config", getEnv("PIPELINE_CONFIG", ""), "path to YAML config file")
		appsFile    = flag.String("apps", "", "app catalog batch file (overrides config)")
		reviewsFile = flag.String("reviews", "", "review batch file (overrides config)")
		batchDir    = flag.String("batch-dir", "", "directory of incremental batch files (overrides config)")
		interval    = flag.Duration("interval", 0, "re-run interval; zero runs once (overrides config)")
	)
	flag.Parse()

	log.Println("Starting app-market pipeline...")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Loading config: %v", err)
		}
		cfg = loaded
	}
	if *appsFile != "" {
		cfg.Inputs.AppsFile = *appsFile
	}
	if *reviewsFile != "" {
		cfg.Inputs.ReviewsFile = *reviewsFile
	}
	if *batchDir != "" {
		cfg.Inputs.BatchDir = *batchDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	runEvery := cfg.Interval()
	if *interval > 0 {
		runEvery = *interval
	}

	store, err := storage.NewStore(cfg.StorageFactoryConfig())
	if err != nil {
		log.Fatalf("Creating store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing storage: %v", err)
		}
	}()

	opts := pipeline.Options{Metrics: metrics.NewRegistry()}
	if cfg.AliasesFile != "" {
		apps, reviews, err := schema.LoadAliasConfig(cfg.AliasesFile)
		if err != nil {
			log.Fatalf("Loading aliases: %v", err)
		}
		opts.AppAliases = apps
		opts.ReviewAliases = reviews
		log.Printf("Loaded alias table from %s", cfg.AliasesFile)
	}

	// Health and metrics endpoint for the long-running mode.
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
		mux.Handle("/metrics", opts.Metrics.Handler())
		addr := ":" + cfg.Service.HealthPort
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Health server error: %v", err)
		}
	}()

	p := pipeline.New(store, opts)
	inputs := pipeline.Inputs{
		AppsFile:    cfg.Inputs.AppsFile,
		ReviewsFile: cfg.Inputs.ReviewsFile,
		BatchDir:    cfg.Inputs.BatchDir,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, shutting down...", sig)
		cancel()
	}()

	if err := runOnce(ctx, p, inputs); err != nil {
		log.Fatalf("Pipeline run failed: %v", err)
	}

	if runEvery <= 0 {
		log.Println("Run complete")
		return
	}

	log.Printf("Re-running every %s", runEvery)
	ticker := time.NewTicker(runEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Shutdown complete")
			return
		case <-ticker.C:
			if err := runOnce(ctx, p, inputs); err != nil {
				log.Printf("Pipeline run failed: %v", err)
			}
		}
	}
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, inputs pipeline.Inputs) error {
	summary, err := p.Run(ctx, inputs)
	if err != nil {
		return err
	}

	for _, bs := range summary.Batches {
		switch {
		case bs.MissingFile:
			log.Printf("  %s: missing, skipped", bs.SourceFile)
		case bs.Merge == nil:
			log.Printf("  %s: entity unknown, skipped", bs.SourceFile)
		case bs.Merge.SkippedAlreadyIngested:
			log.Printf("  %s (%s): already ingested", bs.SourceFile, bs.Entity)
		default:
			log.Printf("  %s (%s): %d inserted, %d duplicate keys, %d dropped",
				bs.SourceFile, bs.Entity, bs.Merge.Inserted, bs.Merge.DuplicateKeys, bs.Drops.Total())
		}
	}
	log.Printf("Derived tables rebuilt: %d app KPIs, %d daily rows (%s)",
		summary.AppKPIs, summary.DailyMetrics, summary.Duration.Round(time.Millisecond))
	return nil
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
