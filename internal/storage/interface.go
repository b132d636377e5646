// Package storage defines the canonical store contract for the pipeline.
package storage

import (
	"context"

	"github.com/fidde/appmarket_pipeline/pkg/models"
)

// Store is the canonical store for apps and reviews plus the derived
// KPI tables. Merges are idempotent: re-merging an already-ingested
// source file is a no-op, and a natural key never appears twice.
// Implementations must be safe for concurrent use; merges on the same
// entity table are serialized.
type Store interface {
	// Canonical merges
	MergeApps(ctx context.Context, sourceFile string, apps []*models.AppRecord) (*models.MergeResult, error)
	MergeReviews(ctx context.Context, sourceFile string, reviews []*models.ReviewRecord) (*models.MergeResult, error)

	// Canonical reads
	GetApp(ctx context.Context, appID string) (*models.AppRecord, error)
	ListApps(ctx context.Context) ([]*models.AppRecord, error)
	ListReviews(ctx context.Context) ([]*models.ReviewRecord, error)

	// Derived tables, replaced wholesale by the aggregator
	ReplaceAppKPIs(ctx context.Context, kpis []*models.AppKPI) error
	ReplaceDailyMetrics(ctx context.Context, metrics []*models.DailyMetric) error
	ListAppKPIs(ctx context.Context) ([]*models.AppKPI, error)
	ListDailyMetrics(ctx context.Context) ([]*models.DailyMetric, error)

	// Batch provenance
	ListBatches(ctx context.Context) ([]*models.IngestedBatch, error)

	// Close releases the underlying connection.
	Close() error
}
