package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const schemaVersion = "1.0.0"

const appsTableDDL = `
	CREATE TABLE IF NOT EXISTS apps (
		app_id        String,
		title         String,
		developer     String,
		score         Float64,
		rating_count  Int64,
		install_count Int64,
		genre         String,
		price         Float64,
		loaded_at     DateTime64(3),
		source_file   String
	) ENGINE = MergeTree()
	ORDER BY app_id
`

const reviewsTableDDL = `
	CREATE TABLE IF NOT EXISTS reviews (
		review_id     String,
		app_id        String,
		author        String,
		score         Int64,
		content       String,
		helpful_count Int64,
		submitted_at  DateTime,
		loaded_at     DateTime64(3),
		source_file   String
	) ENGINE = MergeTree()
	ORDER BY review_id
`

const ingestedBatchesTableDDL = `
	CREATE TABLE IF NOT EXISTS ingested_batches (
		source_file     String,
		entity          String,
		row_count       Int64,
		duplicate_count Int64,
		loaded_at       DateTime64(3)
	) ENGINE = MergeTree()
	ORDER BY (source_file, entity)
`

const appKPIsTableDDL = `
	CREATE TABLE IF NOT EXISTS app_kpis (
		app_id            String,
		title             String,
		num_reviews       Int64,
		avg_rating        Float64,
		pct_low_ratings   Float64,
		first_review_date DateTime,
		last_review_date  DateTime
	) ENGINE = MergeTree()
	ORDER BY app_id
`

const dailyMetricsTableDDL = `
	CREATE TABLE IF NOT EXISTS daily_metrics (
		date               Date,
		daily_review_count Int64,
		daily_avg_rating   Float64
	) ENGINE = MergeTree()
	ORDER BY date
`

// InitializeSchema creates all required tables if they don't exist.
func InitializeSchema(ctx context.Context, conn driver.Conn) error {
	if err := createSchemaVersionTable(ctx, conn); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion, err := getCurrentSchemaVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}
	if currentVersion != "" && currentVersion != schemaVersion {
		return fmt.Errorf("schema version mismatch: database has %s, code expects %s", currentVersion, schemaVersion)
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"apps", appsTableDDL},
		{"reviews", reviewsTableDDL},
		{"ingested_batches", ingestedBatchesTableDDL},
		{"app_kpis", appKPIsTableDDL},
		{"daily_metrics", dailyMetricsTableDDL},
	}
	for _, table := range tables {
		if err := conn.Exec(ctx, table.ddl); err != nil {
			return fmt.Errorf("creating table %s: %w", table.name, err)
		}
	}

	if currentVersion == "" {
		if err := setSchemaVersion(ctx, conn, schemaVersion); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	}
	return nil
}

func createSchemaVersionTable(ctx context.Context, conn driver.Conn) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version String,
			applied_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY applied_at
	`
	return conn.Exec(ctx, ddl)
}

func getCurrentSchemaVersion(ctx context.Context, conn driver.Conn) (string, error) {
	var version string
	row := conn.QueryRow(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1")
	err := row.Scan(&version)
	if err != nil && err.Error() != "sql: no rows in result set" {
		return "", err
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, conn driver.Conn, version string) error {
	return conn.Exec(ctx, "INSERT INTO schema_version (version) VALUES (?)", version)
}
