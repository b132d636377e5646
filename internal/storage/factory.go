// Package storage defines the canonical store contract and backend selection.
package storage

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/fidde/appmarket_pipeline/internal/storage/clickhouse"
	"github.com/fidde/appmarket_pipeline/internal/storage/sqlite"
)

// Config holds storage configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" or "clickhouse"
	Backend string

	// SQLite-specific config
	SQLitePath string

	// ClickHouse-specific config
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string
}

// DefaultConfig returns default storage configuration.
func DefaultConfig() Config {
	return Config{
		Backend:            "sqlite",
		SQLitePath:         "appmarket.db",
		ClickHouseAddr:     "localhost:9000",
		ClickHouseDatabase: "default",
		ClickHouseUsername: "default",
	}
}

// NewStore creates a storage implementation based on configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		log.Printf("Using SQLite storage: %s", cfg.SQLitePath)
		return sqlite.New(sqlite.DefaultConfig(cfg.SQLitePath))

	case "clickhouse":
		log.Printf("Using ClickHouse storage: %s", cfg.ClickHouseAddr)

		chCfg := clickhouse.DefaultConfig()
		chCfg.Addr = cfg.ClickHouseAddr
		if cfg.ClickHouseDatabase != "" {
			chCfg.Database = cfg.ClickHouseDatabase
		}
		if cfg.ClickHouseUsername != "" {
			chCfg.Username = cfg.ClickHouseUsername
		}
		chCfg.Password = cfg.ClickHousePassword

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		store, err := clickhouse.NewStore(context.Background(), chCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating ClickHouse store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, clickhouse)", cfg.Backend)
	}
}
