// Package config loads pipeline configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fidde/appmarket_pipeline/internal/storage"
)

// Config holds all configuration for the app-market pipeline.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Storage StorageConfig `yaml:"storage"`
	Inputs  InputsConfig  `yaml:"inputs"`
	API     APIConfig     `yaml:"api"`

	// AliasesFile optionally overrides the built-in schema-drift alias table.
	AliasesFile string `yaml:"aliases_file"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Name            string `yaml:"name"`
	HealthPort      string `yaml:"health_port"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

// StorageConfig contains storage backend settings.
type StorageConfig struct {
	// Backend selects the storage backend: "sqlite" or "clickhouse"
	Backend string `yaml:"backend"`

	SQLitePath string `yaml:"sqlite_path"`

	ClickHouseAddr     string `yaml:"clickhouse_addr"`
	ClickHouseDatabase string `yaml:"clickhouse_database"`
	ClickHouseUsername string `yaml:"clickhouse_username"`
	ClickHousePassword string `yaml:"clickhouse_password"`
}

// InputsConfig names the batch files to ingest. Any of the three may be
// empty; missing files are skipped at run time.
type InputsConfig struct {
	AppsFile    string `yaml:"apps_file"`
	ReviewsFile string `yaml:"reviews_file"`
	BatchDir    string `yaml:"batch_dir"`
}

// APIConfig contains the serving API settings.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "appmarket-pipeline"
	}
	if c.Service.HealthPort == "" {
		c.Service.HealthPort = "8091"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "appmarket.db"
	}
	if c.Storage.ClickHouseAddr == "" {
		c.Storage.ClickHouseAddr = "localhost:9000"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "clickhouse":
	default:
		return fmt.Errorf("storage.backend must be sqlite or clickhouse, got %q", c.Storage.Backend)
	}
	if c.Service.IntervalMinutes < 0 {
		return fmt.Errorf("service.interval_minutes must not be negative")
	}
	if c.AliasesFile != "" {
		if _, err := os.Stat(c.AliasesFile); err != nil {
			return fmt.Errorf("aliases_file: %w", err)
		}
	}
	return nil
}

// Interval returns the re-run interval as a Duration. Zero means run once.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Service.IntervalMinutes) * time.Minute
}

// StorageFactoryConfig converts the YAML storage section into the factory config.
func (c *Config) StorageFactoryConfig() storage.Config {
	return storage.Config{
		Backend:            c.Storage.Backend,
		SQLitePath:         c.Storage.SQLitePath,
		ClickHouseAddr:     c.Storage.ClickHouseAddr,
		ClickHouseDatabase: c.Storage.ClickHouseDatabase,
		ClickHouseUsername: c.Storage.ClickHouseUsername,
		ClickHousePassword: c.Storage.ClickHousePassword,
	}
}
